package verification

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseTransactionDate", func() {
	var (
		loc    *time.Location
		text   string
		parsed time.Time
		err    error
	)

	BeforeEach(func() {
		loc = time.FixedZone("EET", 2*60*60)
	})

	JustBeforeEach(func() {
		parsed, err = ParseTransactionDate(text, loc)
	})

	When("parsing the receipt long form", func() {
		BeforeEach(func() {
			text = "16 May 2025 10:56 PM"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should convert to 24 hour local time", func() {
			Expect(parsed).To(BeTemporally("==", time.Date(2025, time.May, 16, 22, 56, 0, 0, loc)))
		})
	})

	When("parsing a long form at midnight", func() {
		BeforeEach(func() {
			text = "1 january 2025 12:05 am"
		})

		It("should zero the hour", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeTemporally("==", time.Date(2025, time.January, 1, 0, 5, 0, 0, loc)))
		})
	})

	When("parsing a long form at noon", func() {
		BeforeEach(func() {
			text = "3 Sept 2025 12:30 PM"
		})

		It("should keep the hour at 12", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeTemporally("==", time.Date(2025, time.September, 3, 12, 30, 0, 0, loc)))
		})
	})

	When("the long form has an unknown month", func() {
		BeforeEach(func() {
			text = "3 Foo 2025 12:30 PM"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrUnparseableDate))
		})
	})

	When("parsing ISO-8601 with an offset", func() {
		BeforeEach(func() {
			text = "2025-05-16T20:56:00Z"
		})

		It("should keep the instant", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeTemporally("==", time.Date(2025, time.May, 16, 22, 56, 0, 0, loc)))
		})
	})

	When("parsing ISO-8601 without an offset", func() {
		BeforeEach(func() {
			text = "2025-05-16T22:56:00"
		})

		It("should read it in the configured location", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeTemporally("==", time.Date(2025, time.May, 16, 22, 56, 0, 0, loc)))
		})
	})

	When("parsing an EXIF timestamp", func() {
		BeforeEach(func() {
			text = "2025:05:16 22:58:23"
		})

		It("should parse it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeTemporally("==", time.Date(2025, time.May, 16, 22, 58, 23, 0, loc)))
		})
	})

	When("parsing a day-first slash date", func() {
		BeforeEach(func() {
			text = "5/3/2025"
		})

		It("should read the day first", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeTemporally("==", time.Date(2025, time.March, 5, 0, 0, 0, 0, loc)))
		})
	})

	When("the slash date only makes sense month-first", func() {
		BeforeEach(func() {
			text = "5/13/2025"
		})

		It("should swap day and month", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeTemporally("==", time.Date(2025, time.May, 13, 0, 0, 0, 0, loc)))
		})
	})

	When("the slash date is impossible either way", func() {
		BeforeEach(func() {
			text = "32/13/2025"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrUnparseableDate))
		})
	})

	When("the text is Arabic", func() {
		BeforeEach(func() {
			text = "١٦ مايو ٢٠٢٥ ١٠:٥٦ م"
		})

		It("declares the script unsupported", func() {
			Expect(err).To(MatchError(ErrUnsupportedScript))
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = "   "
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrUnparseableDate))
		})
	})

	When("the text is not a date", func() {
		BeforeEach(func() {
			text = "yesterday-ish"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrUnparseableDate))
		})
	})
})

var _ = Describe("formatAge", func() {
	It("should use minutes under an hour", func() {
		Expect(formatAge(59)).To(Equal("59 minutes"))
	})

	It("should use hours under a day", func() {
		Expect(formatAge(180)).To(Equal("3 hour(s)"))
	})

	It("should use days from a day on", func() {
		Expect(formatAge(1440 * 2)).To(Equal("2 day(s)"))
	})
})
