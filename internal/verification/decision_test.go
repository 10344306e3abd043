package verification

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/instapay-verifier/internal/ocr"
)

var _ = Describe("Decide", func() {
	var (
		verifier *Verifier
		envelope *ocr.Envelope
		opts     Options
		result   *Result
	)

	BeforeEach(func() {
		timeSrc := &mockTimeSource{now: time.Date(2025, time.May, 16, 23, 0, 0, 0, cairo)}
		verifier = NewVerifierWithDeps(&mockReferenceStore{used: map[string]bool{"111122223333": true}}, cairo, timeSrc)
		envelope = validEnvelope()
		opts = Options{ExpectedAmount: "200"}
	})

	JustBeforeEach(func() {
		result = verifier.ProcessFullVerification(envelope, opts)
	})

	When("everything checks out", func() {
		It("should approve with code 8", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomeApproved))
			Expect(result.Decision.PrimaryCode).To(Equal(CodeApproved))
			Expect(result.Decision.Codes).To(Equal([]int{8}))
			Expect(result.Decision.Message).To(Equal("Payment verified successfully."))
		})

		It("should package all three stages", func() {
			Expect(result.OCRResult).To(BeIdenticalTo(envelope))
			Expect(result.VerificationResult.IsLegitimate).To(BeTrue())
		})
	})

	When("the OCR envelope reports failure", func() {
		BeforeEach(func() {
			envelope = ocr.Failed(ocr.InvalidReceiptMessage)
		})

		It("should be an error with code 7", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomeError))
			Expect(result.Decision.PrimaryCode).To(Equal(CodeOCRFailure))
			Expect(result.Decision.Codes).To(Equal([]int{7}))
		})
	})

	When("the OCR envelope is nil", func() {
		BeforeEach(func() {
			envelope = nil
		})

		It("should be an error with code 7", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomeError))
			Expect(result.OCRResult.ReportsFailure()).To(BeTrue())
		})
	})

	When("success is false but fields are present", func() {
		BeforeEach(func() {
			envelope.Success = boolPtr(false)
		})

		It("should ignore the fields", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomeError))
			Expect(result.Decision.PrimaryCode).To(Equal(7))
		})
	})

	When("the envelope uses the legacy flat shape", func() {
		BeforeEach(func() {
			envelope = &ocr.Envelope{
				Fields: []ocr.Field{
					{Name: "Transaction Status", Value: "Successful"},
					{Name: "Timestamp", Value: "16 May 2025 10:58 PM"},
					{Name: "Reference", Value: "513601082638"},
					{Name: "Amount", Value: "200.00"},
				},
				Confidence: map[string]float64{"amount": 0.97},
			}
			opts.ExpectedAmount = "150"
		})

		It("should verify it without a success flag", func() {
			Expect(result.VerificationResult.HasStatus).To(BeTrue())
			Expect(result.VerificationResult.HasReferenceNumber).To(BeTrue())
			Expect(result.VerificationResult.AmountStatus).To(Equal(AmountMore))
		})

		It("should approve the overpayment with code 10", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomeApproved))
			Expect(result.Decision.Codes).To(Equal([]int{CodeOverpayment}))
			Expect(result.Decision.Message).To(ContainSubstring("50.00"))
		})

		Context("and the amount matches", func() {
			BeforeEach(func() {
				opts.ExpectedAmount = "200"
			})

			It("should approve with code 8", func() {
				Expect(result.Decision.PrimaryCode).To(Equal(CodeApproved))
			})
		})
	})

	When("a structured envelope has no success flag", func() {
		BeforeEach(func() {
			envelope.Success = nil
		})

		It("should be an error with code 7", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomeError))
			Expect(result.Decision.PrimaryCode).To(Equal(CodeOCRFailure))
		})
	})

	When("the payer paid less", func() {
		BeforeEach(func() {
			opts.ExpectedAmount = "250"
		})

		It("should be a partial payment", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomePartial))
			Expect(result.Decision.Codes).To(Equal([]int{9}))
			Expect(result.Decision.Message).To(Equal("Partial payment detected. The amount is 50.00 less than required."))
		})
	})

	When("the payer paid more", func() {
		BeforeEach(func() {
			opts.ExpectedAmount = "150"
		})

		It("should approve with code 10", func() {
			Expect(result.VerificationResult.AmountStatus).To(Equal(AmountMore))
			Expect(result.Decision.Decision).To(Equal(OutcomeApproved))
			Expect(result.Decision.Codes).To(Equal([]int{10}))
			Expect(result.Decision.Message).To(ContainSubstring("50.00"))
		})

		Context("and overpayment is not allowed", func() {
			BeforeEach(func() {
				opts.AllowMoreThanExpected = boolPtr(false)
			})

			It("should still approve with code 10", func() {
				Expect(result.VerificationResult.IsLegitimate).To(BeFalse())
				Expect(result.Decision.Decision).To(Equal(OutcomeApproved))
				Expect(result.Decision.PrimaryCode).To(Equal(CodeOverpayment))
			})
		})

		Context("and the reference is missing", func() {
			BeforeEach(func() {
				delete(envelope.Receipt.Data, "reference")
			})

			It("should reject for the reference only", func() {
				Expect(result.Decision.Decision).To(Equal(OutcomeRejected))
				Expect(result.Decision.Codes).To(Equal([]int{5}))
			})
		})
	})

	When("the status is pending", func() {
		BeforeEach(func() {
			envelope.Metadata = nil
			envelope.MasterTimestamp = nil
			envelope.Receipt.Data["status"] = "Transaction Pending"
			envelope.Receipt.Data["reference"] = "512822790027"
			envelope.Receipt.Data["timestamp"] = "16 May 2025 10:58 PM"
			opts.MaxAgeMinutes = 10
		})

		It("should reject with code 1", func() {
			Expect(result.VerificationResult.Reasons).To(ContainElement("Transaction status is not successful: Transaction Pending"))
			Expect(result.Decision.Decision).To(Equal(OutcomeRejected))
			Expect(result.Decision.PrimaryCode).To(Equal(CodeUnsuccessfulStatus))
			Expect(result.Decision.Message).To(HavePrefix("This payment was not successful."))
		})
	})

	When("the status is unsuccessful and the reference is missing", func() {
		BeforeEach(func() {
			envelope.Receipt.Data["status"] = "Failed"
			delete(envelope.Receipt.Data, "reference")
		})

		It("should rank the status first", func() {
			Expect(result.Decision.PrimaryCode).To(Equal(1))
			Expect(result.Decision.Codes).To(Equal([]int{1, 5}))
		})
	})

	When("the reference and status are missing", func() {
		BeforeEach(func() {
			delete(envelope.Receipt.Data, "reference")
			delete(envelope.Receipt.Data, "status")
		})

		It("should sort by priority", func() {
			Expect(result.Decision.Codes).To(Equal([]int{5, 2}))
			Expect(result.Decision.PrimaryCode).To(Equal(5))
			Expect(result.Decision.Message).To(ContainSubstring("reference number is missing"))
		})
	})

	When("the transaction is stale", func() {
		BeforeEach(func() {
			envelope.Metadata = nil
			envelope.MasterTimestamp = nil
			envelope.Receipt.Data["timestamp"] = "14 May 2025 10:00 PM"
		})

		It("should name the age in the message", func() {
			Expect(result.Decision.Codes).To(Equal([]int{4}))
			Expect(result.Decision.Message).To(ContainSubstring("from 2 day(s) ago"))
		})
	})

	When("the timestamp is missing and the payer paid less", func() {
		BeforeEach(func() {
			envelope.Metadata = nil
			envelope.MasterTimestamp = nil
			delete(envelope.Receipt.Data, "timestamp")
			opts.ExpectedAmount = "250"
		})

		It("should not treat it as a partial payment", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomeRejected))
			Expect(result.Decision.Codes).To(Equal([]int{3}))
		})
	})

	When("the amount is missing", func() {
		BeforeEach(func() {
			delete(envelope.Receipt.Data, "amount")
		})

		It("should reject with code 6", func() {
			Expect(result.Decision.Codes).To(Equal([]int{6}))
			Expect(result.Decision.Message).To(ContainSubstring("invalid or unreadable"))
		})
	})

	When("the reference was already used", func() {
		BeforeEach(func() {
			envelope.Receipt.Data["reference"] = "111122223333"
			opts.CheckReferenceUsage = true
		})

		It("should reject with code 11", func() {
			Expect(result.Decision.Decision).To(Equal(OutcomeRejected))
			Expect(result.Decision.Codes).To(Equal([]int{11}))
		})
	})

	When("the transaction is in the future", func() {
		BeforeEach(func() {
			envelope.Metadata = map[string]any{}
			envelope.MasterTimestamp = nil
			envelope.Receipt.Data["timestamp"] = "18 May 2025 10:00 PM"
		})

		It("should reject with code 12", func() {
			Expect(result.Decision.Codes).To(Equal([]int{12}))
		})
	})

	When("strict metadata is missing", func() {
		BeforeEach(func() {
			envelope.Metadata = nil
			opts.StrictMetadataCheck = true
		})

		It("should reject with code 13", func() {
			Expect(result.Decision.Codes).To(Equal([]int{13}))
		})
	})
})

var _ = Describe("priority ordering", func() {
	It("should keep the documented issue order", func() {
		codes := []int{6, 2, 4, 3, 5, 1}
		sortByPriority(codes)
		Expect(codes).To(Equal([]int{1, 5, 3, 4, 2, 6}))
	})

	It("should place unknown codes last", func() {
		codes := []int{99, 2}
		sortByPriority(codes)
		Expect(codes).To(Equal([]int{2, 99}))
	})
})

var _ = Describe("issueMessage", func() {
	It("should combine issues without a template", func() {
		Expect(issueMessage([]int{98, 99}, newReport())).To(Equal(
			"We couldn't verify your payment. The issue 98 was found and issue 99 was found."))
	})

	It("should use the first template in priority order", func() {
		report := newReport()
		Expect(issueMessage([]int{5, 2}, report)).To(Equal(
			"We couldn't verify your payment. The reference number is missing from the receipt."))
	})
})

var _ = Describe("joinIssues", func() {
	It("should join two with and", func() {
		Expect(joinIssues([]string{"a", "b"})).To(Equal("a and b"))
	})

	It("should join three with commas", func() {
		Expect(joinIssues([]string{"a", "b", "c"})).To(Equal("a, b, and c"))
	})
})
