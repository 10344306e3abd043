package verification

import (
	"log/slog"

	"github.com/zombor/instapay-verifier/internal/ocr"
)

// Result packages the three stages of one verification
type Result struct {
	OCRResult          *ocr.Envelope       `json:"ocrResult"`
	VerificationResult *VerificationReport `json:"verificationResult"`
	Decision           *Decision           `json:"decision"`
}

// ProcessFullVerification runs verification and the decision engine over one envelope.
// Failures are reported in the result, never returned.
func (v *Verifier) ProcessFullVerification(envelope *ocr.Envelope, opts Options) *Result {
	if envelope == nil {
		envelope = ocr.Failed(ocr.InvalidReceiptMessage)
	}

	report := v.Verify(envelope, opts)
	decision := Decide(report, envelope, opts)

	slog.Info("Receipt verified",
		"decision", decision.Decision,
		"primary_code", decision.PrimaryCode,
		"codes", decision.Codes,
		"legitimate", report.IsLegitimate,
		"amount_status", report.AmountStatus,
		"reasons", len(report.Reasons),
		"warnings", len(report.Warnings),
	)

	return &Result{
		OCRResult:          envelope,
		VerificationResult: report,
		Decision:           decision,
	}
}
