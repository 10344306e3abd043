package ocr

// InvalidReceiptMessage is reported when a receipt image could not be read at all
const InvalidReceiptMessage = "This doesn't appear to be a valid Instapay receipt. Please upload a screenshot of your payment."

// Envelope is the result of running OCR against a receipt image.
//
// Providers answer in one of two shapes: the structured shape carries
// Receipt.Data with named keys, the legacy flat shape carries Fields as
// name/value pairs next to a top-level Confidence map.
type Envelope struct {
	Success         *bool            `json:"success,omitempty"`
	Error           string           `json:"error,omitempty"`
	Receipt         *ReceiptBody     `json:"receipt,omitempty"`
	MasterTimestamp *MasterTimestamp `json:"masterTimestamp,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`

	// Legacy flat shape
	Fields     []Field            `json:"fields,omitempty"`
	Confidence map[string]float64 `json:"confidence,omitempty"`
	Suspicion  map[string]any     `json:"suspicion,omitempty"`
}

// ReceiptBody holds the structured receipt fields and their confidence scores
type ReceiptBody struct {
	Data       map[string]any     `json:"data,omitempty"`
	Confidence map[string]float64 `json:"confidence,omitempty"`
}

// Field is one name/value pair of the legacy flat shape
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MasterTimestamp is the provider's own pick of the transaction time
type MasterTimestamp struct {
	Value  string `json:"value"`
	Source string `json:"source,omitempty"`
}

// Failed builds the envelope returned when OCR could not run or produced nothing usable
func Failed(message string) *Envelope {
	success := false
	return &Envelope{Success: &success, Error: message}
}

// Succeeded builds a structured envelope around the given data
func Succeeded(data map[string]any, confidence map[string]float64) *Envelope {
	success := true
	return &Envelope{
		Success: &success,
		Receipt: &ReceiptBody{Data: data, Confidence: confidence},
	}
}

// ReportsFailure is true only when the provider explicitly answered success=false
func (e *Envelope) ReportsFailure() bool {
	return e == nil || (e.Success != nil && !*e.Success)
}

// Succeeded is true when the envelope claims success. The flat shape predates the
// success flag, so a flat envelope without one counts as successful.
func (e *Envelope) Succeeded() bool {
	if e == nil {
		return false
	}
	if e.Success != nil {
		return *e.Success
	}
	return len(e.Fields) > 0
}

// Provider extracts an OCR envelope from receipt image bytes
type Provider interface {
	// Extract runs OCR on an image or PDF and returns the envelope
	Extract(imageData []byte, contentType string) (*Envelope, error)
	// Close releases provider resources
	Close() error
}
