package ocr

import (
	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("candidateText", func() {
	It("should join the text parts of the first candidate", func() {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"data":`), genai.Text(` {}}`)}},
		}}}
		text, err := candidateText(resp)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal(`{"data": {}}`))
	})

	It("should fail without candidates", func() {
		_, err := candidateText(&genai.GenerateContentResponse{})
		Expect(err).To(MatchError(errEmptyCandidate))
	})

	It("should fail when the image was blocked", func() {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
		_, err := candidateText(resp)
		Expect(err).To(MatchError(errEmptyCandidate))
	})

	It("should fail when the answer is blank", func() {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}},
		}}}
		_, err := candidateText(resp)
		Expect(err).To(MatchError(errEmptyCandidate))
	})
})

var _ = Describe("NewGemini", func() {
	It("should require an API key", func() {
		_, err := NewGemini("", "")
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})
})
