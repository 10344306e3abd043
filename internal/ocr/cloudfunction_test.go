package ocr

import (
	"encoding/base64"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("CloudFunction", func() {
	var (
		server   *ghttp.Server
		provider *CloudFunction
		image    []byte
		envelope *Envelope
		err      error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		image = pngFixture()

		var newErr error
		provider, newErr = NewCloudFunction(server.URL() + "/ocr")
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		envelope, err = provider.Extract(image, "image/png")
	})

	When("the function reads the receipt", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/ocr"),
				ghttp.VerifyContentType("application/json"),
				ghttp.VerifyJSONRepresenting(map[string]string{
					"base64Image": base64.StdEncoding.EncodeToString(image),
				}),
				ghttp.RespondWith(http.StatusOK, `{
					"success": true,
					"receipt": {
						"data": {"status": "Successful", "reference": "513601082638", "amount": 200},
						"confidence": {"amount": 0.95}
					},
					"masterTimestamp": {"value": "2025-05-16T22:58:23", "source": "exif"}
				}`),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should decode the envelope", func() {
			Expect(envelope.Succeeded()).To(BeTrue())
			Expect(envelope.Receipt.Data).To(HaveKeyWithValue("amount", 200.0))
			Expect(envelope.MasterTimestamp.Source).To(Equal("exif"))
		})
	})

	When("the function rejects the image", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnprocessableEntity, `{"error": "no receipt"}`))
		})

		It("should return a failed envelope", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(envelope.ReportsFailure()).To(BeTrue())
			Expect(envelope.Error).To(Equal(InvalidReceiptMessage))
		})
	})

	When("the function answers with something else", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"hello": "world"}`))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("does not match schema")))
		})
	})
})

var _ = Describe("NewCloudFunction", func() {
	It("should require a URL", func() {
		_, err := NewCloudFunction("")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("DecodeEnvelope", func() {
	It("should accept the legacy flat shape", func() {
		envelope, err := DecodeEnvelope([]byte(`{"fields": [{"name": "Reference", "value": "513601082638"}], "confidence": {"reference": 0.7}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(envelope.Fields).To(ConsistOf(Field{Name: "Reference", Value: "513601082638"}))
		Expect(envelope.Succeeded()).To(BeTrue())
	})

	It("should reject confidence scores that are not numbers", func() {
		_, err := DecodeEnvelope([]byte(`{"success": true, "confidence": {"amount": "high"}}`))
		Expect(err).To(HaveOccurred())
	})

	It("should reject invalid JSON", func() {
		_, err := DecodeEnvelope([]byte(`{`))
		Expect(err).To(MatchError(ContainSubstring("unmarshaling envelope")))
	})
})
