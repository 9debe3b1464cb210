package fillwork_test

import (
	"time"

	"shopfloor/bizerror"
	"shopfloor/domain/fillwork"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("time math", func() {
	workDate := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

	Describe("ParseClock", func() {
		It("should parse wall times", func() {
			Expect(fillwork.ParseClock("08:00")).To(Equal(480))
			Expect(fillwork.ParseClock("8:05")).To(Equal(485))
			Expect(fillwork.ParseClock(" 23:59 ")).To(Equal(1439))
		})
		It("should reject malformed wall times", func() {
			for _, s := range []string{"", "24:00", "12:60", "12", "12:5", "ab:cd", "12:00:00", "123:00"} {
				_, err := fillwork.ParseClock(s)
				Expect(err).To(HaveOccurred(), s)
			}
		})
	})

	Describe("WorkDuration", func() {
		It("should measure same day windows", func() {
			Expect(fillwork.WorkDuration(workDate, "08:00", "12:00")).To(Equal(4 * time.Hour))
		})
		It("should wrap windows crossing midnight", func() {
			Expect(fillwork.WorkDuration(workDate, "22:00", "04:00")).To(Equal(6 * time.Hour))
			Expect(fillwork.WorkDuration(workDate, "23:30", "00:15")).To(Equal(45 * time.Minute))
		})
		It("should be zero for identical ends", func() {
			Expect(fillwork.WorkDuration(workDate, "08:00", "08:00")).To(BeZero())
		})
		It("should fail on invalid times", func() {
			_, err := fillwork.WorkDuration(workDate, "8h", "12:00")
			Expect(bizerror.IsValidation(err, bizerror.InvalidTime)).To(BeTrue())
		})
	})

	Describe("BreakDuration", func() {
		startAt := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)
		endAt := time.Date(2025, 1, 5, 17, 0, 0, 0, time.UTC)

		It("should measure a break inside the window", func() {
			Expect(fillwork.BreakDuration(startAt, endAt, "12:00", "13:00")).To(Equal(time.Hour))
		})
		It("should place breaks after midnight on the next day", func() {
			nightStart := time.Date(2025, 1, 5, 22, 0, 0, 0, time.UTC)
			nightEnd := time.Date(2025, 1, 6, 4, 0, 0, 0, time.UTC)
			Expect(fillwork.BreakDuration(nightStart, nightEnd, "01:00", "01:30")).To(Equal(30 * time.Minute))
			Expect(fillwork.BreakDuration(nightStart, nightEnd, "23:45", "00:15")).To(Equal(30 * time.Minute))
		})
		It("should reject breaks outside the window", func() {
			_, err := fillwork.BreakDuration(startAt, endAt, "16:30", "17:30")
			Expect(bizerror.IsValidation(err, bizerror.BreakOutsideWindow)).To(BeTrue())
			_, err = fillwork.BreakDuration(startAt, endAt, "07:00", "07:30")
			Expect(bizerror.IsValidation(err, bizerror.BreakOutsideWindow)).To(BeTrue())
		})
		It("should reject reversed breaks", func() {
			_, err := fillwork.BreakDuration(startAt, endAt, "13:00", "12:00")
			Expect(bizerror.IsValidation(err, bizerror.InvalidTime)).To(BeTrue())
			_, err = fillwork.BreakDuration(startAt, endAt, "12:00", "12:00")
			Expect(bizerror.IsValidation(err, bizerror.InvalidTime)).To(BeTrue())
		})
	})

	Describe("DerivedHours", func() {
		It("should cap normal hours", func() {
			work, overtime, breakHours := fillwork.DerivedHours(10*time.Hour, time.Hour, 8)
			Expect(work).To(Equal(8.0))
			Expect(overtime).To(Equal(1.0))
			Expect(breakHours).To(Equal(1.0))
		})
		It("should keep short shifts without overtime", func() {
			work, overtime, _ := fillwork.DerivedHours(6*time.Hour, 0, 8)
			Expect(work).To(Equal(6.0))
			Expect(overtime).To(Equal(0.0))
		})
		It("should round to two decimals", func() {
			work, _, breakHours := fillwork.DerivedHours(100*time.Minute, 20*time.Minute, 8)
			Expect(work).To(Equal(1.33))
			Expect(breakHours).To(Equal(0.33))
		})
	})

	Describe("Validate", func() {
		valid := func() *fillwork.Submission {
			return &fillwork.Submission{CompanyCode: "A", Operator: "O1", OrderNumber: "331-25808001", ProductID: "P-A",
				ProcessName: "出貨包裝", WorkDate: "2025-01-05", StartTime: "08:00", EndTime: "12:00", WorkQuantity: 100}
		}

		It("should derive hours of a valid report", func() {
			m, err := fillwork.Validate(valid(), now, time.UTC, fillwork.Limits{})
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Duration).To(Equal(4 * time.Hour))
			Expect(m.WorkHours).To(Equal(4.0))
			Expect(m.OvertimeHours).To(Equal(0.0))
		})

		It("should reject reports longer than 12 hours", func() {
			s := valid()
			s.EndTime = "21:30"
			_, err := fillwork.Validate(s, now, time.UTC, fillwork.Limits{})
			Expect(bizerror.IsValidation(err, bizerror.DurationExceeded)).To(BeTrue())
		})

		It("should accept cross midnight reports", func() {
			s := valid()
			s.StartTime, s.EndTime = "22:00", "04:00"
			m, err := fillwork.Validate(s, now, time.UTC, fillwork.Limits{})
			Expect(err).ToNot(HaveOccurred())
			Expect(m.WorkHours).To(Equal(6.0))
			Expect(m.OvertimeHours).To(Equal(0.0))
			Expect(m.EndAt).To(BeTemporally("==", time.Date(2025, 1, 6, 4, 0, 0, 0, time.UTC)))
		})

		It("should check rules in order", func() {
			cases := []struct {
				mutate func(s *fillwork.Submission)
				kind   bizerror.ValidationKind
			}{
				{func(s *fillwork.Submission) { s.Operator = " " }, bizerror.MissingRequired},
				{func(s *fillwork.Submission) { s.CompanyCode = "" }, bizerror.MissingRequired},
				{func(s *fillwork.Submission) { s.ProcessName = "SMT貼片" }, bizerror.MissingRequired},
				{func(s *fillwork.Submission) { s.HasBreak = true }, bizerror.MissingRequired},
				{func(s *fillwork.Submission) { s.WorkQuantity = -1 }, bizerror.NegativeQuantity},
				{func(s *fillwork.Submission) { s.DefectQuantity = -1 }, bizerror.NegativeQuantity},
				{func(s *fillwork.Submission) { s.WorkDate = "05/01/2025" }, bizerror.InvalidTime},
				{func(s *fillwork.Submission) { s.WorkDate = "2025-01-07" }, bizerror.FutureDate},
				{func(s *fillwork.Submission) { s.EndTime = "08:00" }, bizerror.InvalidTime},
				{func(s *fillwork.Submission) { s.HasBreak, s.BreakStart, s.BreakEnd = true, "11:30", "12:30" }, bizerror.BreakOutsideWindow},
			}
			for i, c := range cases {
				s := valid()
				c.mutate(s)
				_, err := fillwork.Validate(s, now, time.UTC, fillwork.Limits{})
				Expect(bizerror.IsValidation(err, c.kind)).To(BeTrue(), "case %d: %v", i, err)
			}
		})

		It("should accept SMT reports with equipment and company names", func() {
			s := valid()
			s.CompanyCode, s.CompanyName = "", "甲公司"
			s.ProcessName, s.Equipment = "smt line", "SMT-01"
			_, err := fillwork.Validate(s, now, time.UTC, fillwork.Limits{})
			Expect(err).ToNot(HaveOccurred())
		})

		It("should compare the work date with today in the given zone", func() {
			taipei := time.FixedZone("UTC+8", 8*3600)
			s := valid()
			s.WorkDate = "2025-01-07"
			// 2025-01-06 20:00 UTC is already 2025-01-07 in UTC+8
			_, err := fillwork.Validate(s, time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC), taipei, fillwork.Limits{})
			Expect(err).ToNot(HaveOccurred())
		})
	})
})
