package verification

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/zombor/instapay-verifier/internal/ocr"
)

const (
	// lowConfidenceThreshold is the score under which a field gets a warning
	lowConfidenceThreshold = 0.80
	// minReferenceLength is the shortest reference that does not look truncated
	minReferenceLength = 8
)

// successPatterns are matched case-insensitively against the status text
var successPatterns = []string{
	"successful", "success", "completed", "approved",
	"تمت العملية بنجاح", "تمت بنجاح", "ناجحة", "نجاح",
}

// failurePatterns override a success match, e.g. "Unsuccessful" contains "successful"
var failurePatterns = []string{
	"unsuccessful", "not successful", "failed", "declined", "not completed",
	"غير ناجحة", "لم تتم", "فشل",
}

// AmountStatus compares the paid amount with the expected one
type AmountStatus string

const (
	AmountExact   AmountStatus = "exact"
	AmountMore    AmountStatus = "more"
	AmountLess    AmountStatus = "less"
	AmountInvalid AmountStatus = "invalid"
)

// ReferenceStore looks up references already consumed by earlier payments.
// The booking side records references once it accepts a payment.
type ReferenceStore interface {
	Contains(reference string) (bool, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// VerificationReport is the outcome of every legitimacy check run against one receipt
type VerificationReport struct {
	IsLegitimate          bool            `json:"isLegitimate"`
	IsRightAmount         bool            `json:"isRightAmount"`
	AmountStatus          AmountStatus    `json:"amountStatus"`
	Remainder             decimal.Decimal `json:"remainder"`
	Reasons               []string        `json:"reasons"`
	Warnings              []string        `json:"warnings"`
	HasReferenceNumber    bool            `json:"hasReferenceNumber"`
	HasTimestamp          bool            `json:"hasTimestamp"`
	HasAmount             bool            `json:"hasAmount"`
	HasStatus             bool            `json:"hasStatus"`
	MetadataTimestampUsed bool            `json:"metadataTimestampUsed"`

	StatusUnsuccessful   bool       `json:"statusUnsuccessful"`
	TimestampTooOld      bool       `json:"timestampTooOld"`
	TimestampInFuture    bool       `json:"timestampInFuture"`
	ReferenceAlreadyUsed bool       `json:"referenceAlreadyUsed"`
	MetadataMissing      bool       `json:"metadataMissing"`
	TransactionTime      *time.Time `json:"transactionTime,omitempty"`
	TransactionAge       string     `json:"transactionAge,omitempty"`
}

func newReport() *VerificationReport {
	return &VerificationReport{
		IsLegitimate:  true,
		IsRightAmount: true,
		AmountStatus:  AmountExact,
		Remainder:     decimal.Zero,
		Reasons:       []string{},
		Warnings:      []string{},
	}
}

func (r *VerificationReport) fail(format string, args ...any) {
	r.IsLegitimate = false
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

func (r *VerificationReport) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Verifier runs the legitimacy checks and the decision engine
type Verifier struct {
	references ReferenceStore
	location   *time.Location
	timeSource TimeSource
}

// NewVerifier creates a Verifier. references may be nil when reference reuse is never checked.
func NewVerifier(references ReferenceStore, location *time.Location) *Verifier {
	return NewVerifierWithDeps(references, location, &defaultTimeSource{})
}

// NewVerifierWithDeps creates a Verifier with a custom time source for testing
func NewVerifierWithDeps(references ReferenceStore, location *time.Location, timeSrc TimeSource) *Verifier {
	if location == nil {
		location = time.Local
	}
	return &Verifier{
		references: references,
		location:   location,
		timeSource: timeSrc,
	}
}

// Verify checks an OCR envelope. Every check runs so the report is complete;
// only an unusable envelope stops early.
func (v *Verifier) Verify(envelope *ocr.Envelope, opts Options) *VerificationReport {
	report := newReport()

	fields, err := ExtractFields(envelope)
	if err != nil || !envelope.Succeeded() {
		report.fail("Invalid receipt format from OCR service")
		return report
	}

	now := v.timeSource.Now()

	v.checkStatus(report, fields)
	v.checkTimestamp(report, envelope, fields, opts, now)
	v.checkMetadata(report, envelope, opts)
	v.checkConfidence(report, fields)
	v.checkReference(report, fields, opts)
	v.checkAmount(report, fields, opts)

	return report
}

func (v *Verifier) checkStatus(r *VerificationReport, fields ReceiptFields) {
	if fields.Status == "" {
		r.fail("Missing transaction status field")
		return
	}
	r.HasStatus = true
	if !isSuccessStatus(fields.Status) {
		r.StatusUnsuccessful = true
		r.fail("Transaction status is not successful: %s", fields.Status)
	}
}

func isSuccessStatus(status string) bool {
	text := strings.ToLower(status)
	for _, pattern := range failurePatterns {
		if strings.Contains(text, pattern) {
			return false
		}
	}
	for _, pattern := range successPatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}

func (v *Verifier) checkTimestamp(r *VerificationReport, envelope *ocr.Envelope, fields ReceiptFields, opts Options, now time.Time) {
	at, ok := v.resolveTimestamp(r, envelope, fields)
	if !ok {
		r.fail("No valid transaction timestamp found")
		return
	}
	r.HasTimestamp = true
	r.TransactionTime = &at

	maxAge := opts.maxAge()
	elapsedMins := int(math.Floor(now.Sub(at).Minutes()))
	if elapsedMins > maxAge {
		r.TimestampTooOld = true
		r.TransactionAge = formatAge(elapsedMins)
		r.fail("Transaction is too old (%s ago, max allowed: %d minutes)", r.TransactionAge, maxAge)
	}
	if at.After(now) {
		r.TimestampInFuture = true
		r.fail("Transaction date is in the future: %s", at.UTC().Format(time.RFC3339))
	}
}

// resolveTimestamp prefers EXIF creation times, then the provider's master timestamp,
// then the text read off the receipt
func (v *Verifier) resolveTimestamp(r *VerificationReport, envelope *ocr.Envelope, fields ReceiptFields) (time.Time, bool) {
	for _, key := range []string{"DateTimeOriginal", "CreateDate"} {
		raw := stringValue(envelope.Metadata[key])
		if raw == "" {
			continue
		}
		if at, err := ParseTransactionDate(raw, v.location); err == nil {
			r.MetadataTimestampUsed = true
			return at, true
		}
	}

	if mt := envelope.MasterTimestamp; mt != nil && mt.Value != "" {
		if at, err := ParseTransactionDate(mt.Value, v.location); err == nil {
			r.MetadataTimestampUsed = strings.Contains(strings.ToLower(mt.Source), "exif")
			return at, true
		}
	}

	if fields.Timestamp == "" {
		return time.Time{}, false
	}
	at, err := ParseTransactionDate(fields.Timestamp, v.location)
	if err != nil {
		r.warn("Could not parse transaction date: %s", fields.Timestamp)
		return time.Time{}, false
	}
	return at, true
}

// formatAge renders minutes in the largest unit that stays under the next threshold
func formatAge(mins int) string {
	switch {
	case mins < 60:
		return fmt.Sprintf("%d minutes", mins)
	case mins < 1440:
		return fmt.Sprintf("%d hour(s)", mins/60)
	default:
		return fmt.Sprintf("%d day(s)", mins/1440)
	}
}

func (v *Verifier) checkMetadata(r *VerificationReport, envelope *ocr.Envelope, opts Options) {
	if opts.StrictMetadataCheck && !ocr.HasTimestampMetadata(envelope.Metadata) {
		r.MetadataMissing = true
		r.fail("Missing required metadata (possible manipulation)")
		return
	}
	if envelope.Metadata == nil {
		r.warn("Missing metadata (possible manipulation but allowed by config)")
	}
}

func (v *Verifier) checkConfidence(r *VerificationReport, fields ReceiptFields) {
	names := make([]string, 0, len(fields.Confidence))
	for name := range fields.Confidence {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		score := fields.Confidence[name]
		if score < lowConfidenceThreshold {
			r.warn("Low confidence in %s: %s", name, strconv.FormatFloat(score, 'f', -1, 64))
		}
	}
}

func (v *Verifier) checkReference(r *VerificationReport, fields ReceiptFields, opts Options) {
	if fields.Reference == "" {
		r.fail("Missing required reference number field")
		return
	}
	r.HasReferenceNumber = true
	if utf8.RuneCountInString(fields.Reference) < minReferenceLength {
		r.warn("Reference number seems too short: %s", fields.Reference)
	}

	if !opts.CheckReferenceUsage {
		return
	}
	if v.references == nil {
		r.warn("Reference store could not be loaded for duplicate check")
		return
	}
	used, err := v.references.Contains(fields.Reference)
	if err != nil {
		slog.Warn("Reference store lookup failed", "reference", fields.Reference, "error", err)
		r.warn("Reference store could not be loaded for duplicate check")
		return
	}
	if used {
		r.ReferenceAlreadyUsed = true
		r.fail("Reference number already used")
	}
}

func (v *Verifier) checkAmount(r *VerificationReport, fields ReceiptFields, opts Options) {
	if fields.Amount == "" {
		r.IsRightAmount = false
		r.AmountStatus = AmountInvalid
		r.fail("Missing required amount field")
		return
	}
	r.HasAmount = true

	amount, err := ParseAmount(fields.Amount)
	if err != nil || !amount.IsPositive() {
		r.IsRightAmount = false
		r.AmountStatus = AmountInvalid
		r.fail("Invalid transaction amount: %s", fields.Amount)
		return
	}

	expected, ok := opts.expected()
	if !ok {
		return
	}

	r.Remainder = amount.Sub(expected)
	switch r.Remainder.Sign() {
	case 0:
		r.AmountStatus = AmountExact
	case 1:
		r.AmountStatus = AmountMore
		if opts.allowMore() {
			r.warn("Amount is more than expected: %s vs %s (excess: %s)", amount, expected, r.Remainder)
		} else {
			r.IsRightAmount = false
			r.fail("Amount is more than expected: %s vs %s (excess: %s)", amount, expected, r.Remainder)
		}
	default:
		r.AmountStatus = AmountLess
		r.IsRightAmount = false
		r.fail("Amount is less than expected: %s vs %s (shortfall: %s)", amount, expected, r.Remainder.Abs())
	}
}
