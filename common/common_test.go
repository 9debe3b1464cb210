package common_test

import (
	"shopfloor/common"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Strings", func() {
	Describe("SplitList", func() {
		It("should drop blank items", func() {
			Expect(common.SplitList(" 340-, ,341-,")).To(Equal([]string{"340-", "341-"}))
			Expect(common.SplitList("")).To(BeNil())
		})
	})

	Describe("LeftRunes", func() {
		It("should count runes instead of bytes", func() {
			Expect(common.LeftRunes("340-25808001", 4)).To(Equal("340-"))
			Expect(common.LeftRunes("出貨包裝A", 4)).To(Equal("出貨包裝"))
			Expect(common.LeftRunes("ab", 4)).To(Equal("ab"))
		})
	})

	Describe("RoundTo2", func() {
		It("should round half away from zero", func() {
			Expect(common.RoundTo2(1.005 + 1e-9)).To(Equal(1.01))
			Expect(common.RoundTo2(6.0)).To(Equal(6.0))
			Expect(common.RoundTo2(0.333333)).To(Equal(0.33))
		})
	})
})

var _ = Describe("Dates", func() {
	It("should parse known layouts and truncate to date", func() {
		for _, s := range []string{"20250105", "2025-01-05", "2025/01/05", "2025-01-05 13:04:05"} {
			d, ok := common.ParseLenientDate(s, time.UTC)
			Expect(ok).To(BeTrue(), s)
			Expect(d).To(Equal(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)))
		}
	})

	It("should report unparsable values", func() {
		_, ok := common.ParseLenientDate("next week", time.UTC)
		Expect(ok).To(BeFalse())
		_, ok = common.ParseLenientDate("  ", time.UTC)
		Expect(ok).To(BeFalse())
	})
})
