package verification

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zombor/instapay-verifier/internal/ocr"
)

// ErrMalformedReceipt is returned when an envelope has no recognizable data container
var ErrMalformedReceipt = errors.New("malformed receipt: no data container")

// ReceiptFields are the canonical receipt values. An empty string means the field is absent.
type ReceiptFields struct {
	Status     string
	Timestamp  string
	Reference  string
	Amount     string
	Confidence map[string]float64
}

// statusKeys are tried in order, first non-empty wins
var statusKeys = []string{"status", "transactionStatus", "transactionStatusAlt"}

// ReceiptSource is one of the two shapes OCR providers answer with
type ReceiptSource interface {
	fields() ReceiptFields
}

// Structured is the named-key shape: receipt.data + receipt.confidence
type Structured struct {
	Data       map[string]any
	Confidence map[string]float64
}

// FlatFields is the legacy list of name/value pairs
type FlatFields struct {
	Fields     []ocr.Field
	Confidence map[string]float64
}

func (s Structured) fields() ReceiptFields {
	get := func(key string) string {
		return stringValue(s.Data[key])
	}
	out := ReceiptFields{
		Timestamp:  get("timestamp"),
		Reference:  get("reference"),
		Amount:     get("amount"),
		Confidence: s.Confidence,
	}
	for _, key := range statusKeys {
		if v := get(key); v != "" {
			out.Status = v
			break
		}
	}
	return out
}

func (f FlatFields) fields() ReceiptFields {
	values := make(map[string]string, len(f.Fields))
	for _, field := range f.Fields {
		key := fieldKey(field.Name)
		// Keep the first non-empty occurrence
		if values[key] == "" {
			values[key] = strings.TrimSpace(field.Value)
		}
	}
	out := ReceiptFields{
		Timestamp:  values["timestamp"],
		Reference:  values["reference"],
		Amount:     values["amount"],
		Confidence: f.Confidence,
	}
	for _, key := range statusKeys {
		if v := values[fieldKey(key)]; v != "" {
			out.Status = v
			break
		}
	}
	return out
}

// SourceOf detects the envelope shape
func SourceOf(envelope *ocr.Envelope) (ReceiptSource, error) {
	if envelope == nil {
		return nil, ErrMalformedReceipt
	}
	if envelope.Receipt != nil && envelope.Receipt.Data != nil {
		return Structured{Data: envelope.Receipt.Data, Confidence: envelope.Receipt.Confidence}, nil
	}
	if len(envelope.Fields) > 0 {
		return FlatFields{Fields: envelope.Fields, Confidence: envelope.Confidence}, nil
	}
	return nil, ErrMalformedReceipt
}

// ExtractFields normalizes either envelope shape into ReceiptFields
func ExtractFields(envelope *ocr.Envelope) (ReceiptFields, error) {
	source, err := SourceOf(envelope)
	if err != nil {
		return ReceiptFields{}, err
	}
	return source.fields(), nil
}

// fieldKey folds "Transaction Status", "transaction_status" and "transactionStatus" together
func fieldKey(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
