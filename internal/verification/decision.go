package verification

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zombor/instapay-verifier/internal/ocr"
)

// Outcome is the single answer given to the payer
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomePartial  Outcome = "PARTIAL"
	OutcomeRejected Outcome = "REJECTED"
	OutcomeError    Outcome = "ERROR"
)

// Issue and result codes
const (
	CodeUnsuccessfulStatus = 1
	CodeMissingStatus      = 2
	CodeMissingTimestamp   = 3
	CodeStaleTimestamp     = 4
	CodeMissingReference   = 5
	CodeAmountMismatch     = 6
	CodeOCRFailure         = 7
	CodeApproved           = 8
	CodePartialPayment     = 9
	CodeOverpayment        = 10
	CodeReferenceReused    = 11
	CodeFutureTimestamp    = 12
	CodeMissingMetadata    = 13
)

// IssuePriority orders issue codes, most important first
var IssuePriority = []int{
	CodeUnsuccessfulStatus,
	CodeReferenceReused,
	CodeMissingReference,
	CodeMissingTimestamp,
	CodeStaleTimestamp,
	CodeFutureTimestamp,
	CodeMissingStatus,
	CodeMissingMetadata,
	CodeAmountMismatch,
}

const (
	messageOCRFailure  = "We couldn't process this receipt. Please upload a clearer image of your InstaPay receipt."
	messageApproved    = "Payment verified successfully."
	messageNotVerified = "We couldn't verify your payment."
)

// Decision is the verdict for one receipt
type Decision struct {
	Decision    Outcome `json:"decision"`
	PrimaryCode int     `json:"primaryCode"`
	Codes       []int   `json:"codes"`
	Message     string  `json:"message"`
}

func newDecision(outcome Outcome, code int, message string) *Decision {
	return &Decision{Decision: outcome, PrimaryCode: code, Codes: []int{code}, Message: message}
}

// Decide turns a verification report into one outcome with a primary reason
func Decide(report *VerificationReport, envelope *ocr.Envelope, opts Options) *Decision {
	if envelope.ReportsFailure() || !envelope.Succeeded() || report == nil {
		return newDecision(OutcomeError, CodeOCRFailure, messageOCRFailure)
	}
	if _, err := SourceOf(envelope); err != nil {
		return newDecision(OutcomeError, CodeOCRFailure, messageOCRFailure)
	}

	codes := issueCodes(report)
	amountProblem := !report.IsRightAmount || report.AmountStatus == AmountMore

	if len(codes) == 0 && amountProblem {
		if isPartialPayment(report, opts) {
			return newDecision(OutcomePartial, CodePartialPayment,
				fmt.Sprintf("Partial payment detected. The amount is %s less than required.", report.Remainder.Abs().StringFixed(2)))
		}
		if report.AmountStatus == AmountMore {
			return newDecision(OutcomeApproved, CodeOverpayment,
				fmt.Sprintf("Payment verified successfully. You paid %s more than required.", report.Remainder.StringFixed(2)))
		}
	}

	if !report.IsRightAmount && !isPartialPayment(report, opts) && report.AmountStatus != AmountMore {
		codes = append(codes, CodeAmountMismatch)
	}

	if len(codes) == 0 {
		return newDecision(OutcomeApproved, CodeApproved, messageApproved)
	}

	sortByPriority(codes)
	return &Decision{
		Decision:    outcomeFor(codes[0]),
		PrimaryCode: codes[0],
		Codes:       codes,
		Message:     issueMessage(codes, report),
	}
}

// issueCodes collects every non-amount issue present in the report
func issueCodes(report *VerificationReport) []int {
	var codes []int
	if report.HasStatus && report.StatusUnsuccessful {
		codes = append(codes, CodeUnsuccessfulStatus)
	}
	if !report.HasStatus {
		codes = append(codes, CodeMissingStatus)
	}
	if !report.HasReferenceNumber {
		codes = append(codes, CodeMissingReference)
	}
	if !report.HasTimestamp {
		codes = append(codes, CodeMissingTimestamp)
	}
	if report.TimestampTooOld {
		codes = append(codes, CodeStaleTimestamp)
	}
	if report.ReferenceAlreadyUsed {
		codes = append(codes, CodeReferenceReused)
	}
	if report.TimestampInFuture {
		codes = append(codes, CodeFutureTimestamp)
	}
	if report.MetadataMissing {
		codes = append(codes, CodeMissingMetadata)
	}
	return codes
}

// isPartialPayment is an underpayment where something, but not everything, was paid
func isPartialPayment(report *VerificationReport, opts Options) bool {
	if report.AmountStatus != AmountLess {
		return false
	}
	expected, ok := opts.expected()
	if !ok {
		return false
	}
	return report.Remainder.Abs().LessThan(expected)
}

func priorityRank(code int) int {
	for i, c := range IssuePriority {
		if c == code {
			return i
		}
	}
	return len(IssuePriority)
}

func sortByPriority(codes []int) {
	sort.SliceStable(codes, func(i, j int) bool {
		return priorityRank(codes[i]) < priorityRank(codes[j])
	})
}

func outcomeFor(code int) Outcome {
	switch code {
	case CodeApproved, CodeOverpayment:
		return OutcomeApproved
	case CodePartialPayment:
		return OutcomePartial
	case CodeOCRFailure:
		return OutcomeError
	default:
		return OutcomeRejected
	}
}

// issueTemplates hold the single-issue messages
var issueTemplates = map[int]func(*VerificationReport) string{
	CodeUnsuccessfulStatus: func(*VerificationReport) string {
		return "This payment was not successful. Please complete the payment and upload a successful transaction receipt."
	},
	CodeReferenceReused: func(*VerificationReport) string {
		return messageNotVerified + " This reference number has already been used for another booking."
	},
	CodeMissingReference: func(*VerificationReport) string {
		return messageNotVerified + " The reference number is missing from the receipt."
	},
	CodeMissingTimestamp: func(*VerificationReport) string {
		return messageNotVerified + " The transaction date is missing from the receipt."
	},
	CodeStaleTimestamp: func(r *VerificationReport) string {
		age := "too old"
		if r.TransactionAge != "" {
			age = r.TransactionAge + " ago"
		}
		return fmt.Sprintf("%s The transaction is from %s, which exceeds our verification window.", messageNotVerified, age)
	},
	CodeFutureTimestamp: func(*VerificationReport) string {
		return messageNotVerified + " The transaction date is in the future."
	},
	CodeMissingStatus: func(*VerificationReport) string {
		return messageNotVerified + " The transaction status is unclear or missing."
	},
	CodeMissingMetadata: func(*VerificationReport) string {
		return messageNotVerified + " The image is missing the metadata needed to confirm it is an original screenshot."
	},
	CodeAmountMismatch: func(r *VerificationReport) string {
		if r.AmountStatus == AmountLess {
			return fmt.Sprintf("%s The amount is %s less than required.", messageNotVerified, r.Remainder.Abs().StringFixed(2))
		}
		return messageNotVerified + " The amount is invalid or unreadable."
	},
}

// issueDescriptions feed the combined sentence for codes without a template
var issueDescriptions = map[int]func(*VerificationReport) string{
	CodeMissingStatus:    func(*VerificationReport) string { return "transaction status is unclear" },
	CodeMissingReference: func(*VerificationReport) string { return "reference number is missing" },
	CodeMissingTimestamp: func(*VerificationReport) string { return "transaction date is missing" },
	CodeStaleTimestamp: func(r *VerificationReport) string {
		if r.TransactionAge != "" {
			return fmt.Sprintf("transaction is from %s ago", r.TransactionAge)
		}
		return "transaction is too old"
	},
	CodeAmountMismatch: func(r *VerificationReport) string {
		if r.AmountStatus == AmountLess {
			return fmt.Sprintf("amount is %s less than required", r.Remainder.Abs().StringFixed(2))
		}
		return "amount is invalid"
	},
}

// issueMessage picks the template of the highest-priority code, falling back to one
// sentence listing every issue. codes must already be sorted by priority.
func issueMessage(codes []int, report *VerificationReport) string {
	for _, code := range codes {
		if template, ok := issueTemplates[code]; ok {
			return template(report)
		}
	}

	var parts []string
	for _, code := range codes {
		if describe, ok := issueDescriptions[code]; ok {
			parts = append(parts, describe(report))
		} else {
			parts = append(parts, fmt.Sprintf("issue %d was found", code))
		}
	}
	return fmt.Sprintf("%s The %s.", messageNotVerified, joinIssues(parts))
}

// joinIssues joins "a", "a and b", "a, b, and c"
func joinIssues(parts []string) string {
	switch len(parts) {
	case 0:
		return "receipt could not be verified"
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}
