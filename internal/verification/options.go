package verification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultMaxAgeMinutes is the freshness window used when none is configured
const DefaultMaxAgeMinutes = 10

// Options configures a single verification
type Options struct {
	MaxAgeMinutes         int         `json:"maxAgeMinutes,omitempty"`
	StrictMetadataCheck   bool        `json:"strictMetadataCheck,omitempty"`
	ExpectedAmount        AmountInput `json:"expectedAmount,omitempty"`
	AllowMoreThanExpected *bool       `json:"allowMoreThanExpected,omitempty"`
	CheckReferenceUsage   bool        `json:"checkReferenceUsage,omitempty"`
}

func (o Options) maxAge() int {
	if o.MaxAgeMinutes <= 0 {
		return DefaultMaxAgeMinutes
	}
	return o.MaxAgeMinutes
}

func (o Options) allowMore() bool {
	return o.AllowMoreThanExpected == nil || *o.AllowMoreThanExpected
}

// expected returns the expected amount when one was supplied and is a positive number
func (o Options) expected() (decimal.Decimal, bool) {
	if o.ExpectedAmount == "" {
		return decimal.Zero, false
	}
	amount, err := ParseAmount(string(o.ExpectedAmount))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

// AmountInput is an amount as a caller supplied it, e.g. "1,500.00", "200" or 200
type AmountInput string

// UnmarshalJSON accepts both JSON strings and numbers
func (a *AmountInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AmountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or number: %w", err)
	}
	*a = AmountInput(n.String())
	return nil
}

var leadingNumber = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)`)

// ParseAmount strips thousands separators and whitespace and reads the leading number,
// so "1,200.50 EGP" is 1200.50
func ParseAmount(text string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(text, ",", "")
	cleaned = strings.Join(strings.Fields(cleaned), "")
	match := leadingNumber.FindString(cleaned)
	if match == "" {
		return decimal.Zero, fmt.Errorf("not a number: %q", text)
	}
	amount, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimPrefix(match, "+"), "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", text, err)
	}
	return amount, nil
}
