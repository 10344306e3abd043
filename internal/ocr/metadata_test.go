package ocr

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("metadata", func() {
	Describe("ReadMetadata", func() {
		It("should return nil when the image has no EXIF block", func() {
			Expect(ReadMetadata(pngFixture())).To(BeNil())
		})

		It("should return nil for garbage", func() {
			Expect(ReadMetadata([]byte("not an image"))).To(BeNil())
		})
	})

	Describe("parseExifTime", func() {
		It("should convert to the metadata layout", func() {
			t, err := parseExifTime("2025:05:16 22:58:23\x00")
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal("2025-05-16T22:58:23"))
		})

		It("should reject other layouts", func() {
			_, err := parseExifTime("16 May 2025")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("HasTimestampMetadata", func() {
		It("should be false for nil", func() {
			Expect(HasTimestampMetadata(nil)).To(BeFalse())
		})

		It("should be false without creation timestamps", func() {
			Expect(HasTimestampMetadata(map[string]any{"Make": "Apple", "DateTimeOriginal": ""})).To(BeFalse())
		})

		It("should accept CreateDate", func() {
			Expect(HasTimestampMetadata(map[string]any{"CreateDate": "2025-05-16T22:58:23"})).To(BeTrue())
		})
	})

	Describe("attachMetadata", func() {
		var envelope *Envelope

		BeforeEach(func() {
			envelope = Succeeded(map[string]any{"status": "Success"}, nil)
		})

		It("should promote DateTimeOriginal to the master timestamp", func() {
			attachMetadata(envelope, map[string]any{"DateTimeOriginal": "2025-05-16T22:58:23"})
			Expect(envelope.MasterTimestamp).To(Equal(&MasterTimestamp{Value: "2025-05-16T22:58:23", Source: "exif"}))
			Expect(envelope.Metadata).To(HaveKey("DateTimeOriginal"))
		})

		It("should keep the provider's own master timestamp", func() {
			envelope.MasterTimestamp = &MasterTimestamp{Value: "16 May 2025 10:56 PM", Source: "ocr"}
			attachMetadata(envelope, map[string]any{"DateTimeOriginal": "2025-05-16T22:58:23"})
			Expect(envelope.MasterTimestamp.Source).To(Equal("ocr"))
		})

		It("should leave failed envelopes alone", func() {
			failed := Failed(InvalidReceiptMessage)
			attachMetadata(failed, map[string]any{"DateTimeOriginal": "2025-05-16T22:58:23"})
			Expect(failed.Metadata).To(BeNil())
		})
	})
})
