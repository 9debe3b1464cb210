package allocation_test

import (
	"math/rand"

	"shopfloor/allocation"
	"shopfloor/bizerror"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func sum(q []int64) int64 {
	var s int64
	for _, v := range q {
		s += v
	}
	return s
}

var _ = Describe("Allocate", func() {
	It("should split by work hours", func() {
		rows := []allocation.Row{{WorkHours: 2}, {WorkHours: 6}, {WorkHours: 0}}
		r, err := allocation.Allocate(rows, 100, allocation.Config{Policy: allocation.PolicyTime})
		Expect(err).To(BeNil())
		Expect(r.Quantities).To(Equal([]int64{25, 75, 0}))
		Expect(r.Weights).To(Equal([]float64{2, 6, 0}))
	})

	It("should split equally with the remainder on the first rows when every weight is zero", func() {
		rows := make([]allocation.Row, 4)
		r, err := allocation.Allocate(rows, 10, allocation.Config{Policy: allocation.PolicyHybrid})
		Expect(err).To(BeNil())
		Expect(r.Quantities).To(Equal([]int64{3, 3, 2, 2}))

		r, err = allocation.Allocate(rows, 10, allocation.Config{Policy: allocation.PolicyTime})
		Expect(err).To(BeNil())
		Expect(r.Quantities).To(Equal([]int64{3, 3, 2, 2}))
	})

	It("should fall back to duration minus break when work hours are missing", func() {
		rows := []allocation.Row{{DurationHours: 5, BreakHours: 1}, {DurationHours: 4}}
		r, err := allocation.Allocate(rows, 8, allocation.Config{})
		Expect(err).To(BeNil())
		Expect(r.Policy).To(Equal(allocation.PolicyTime))
		Expect(r.Quantities).To(Equal([]int64{4, 4}))
	})

	It("should give the remainder to the largest fractional part", func() {
		// shares 10/3*1, 10/3*1.2, 10/3*0.8 => 3.33, 4.0, 2.67
		rows := []allocation.Row{{WorkHours: 1}, {WorkHours: 1.2}, {WorkHours: 0.8}}
		r, err := allocation.Allocate(rows, 10, allocation.Config{Policy: allocation.PolicyTime})
		Expect(err).To(BeNil())
		Expect(r.Quantities).To(Equal([]int64{3, 4, 3}))
	})

	It("should weigh work hours by process complexity", func() {
		rows := []allocation.Row{{WorkHours: 2, ProcessName: "焊接"}, {WorkHours: 2, ProcessName: "出貨包裝"}}
		r, err := allocation.Allocate(rows, 70, allocation.Config{Policy: allocation.PolicyProcess})
		Expect(err).To(BeNil())
		Expect(r.Quantities).To(Equal([]int64{50, 20}))

		r, err = allocation.Allocate(rows, 70, allocation.Config{Policy: allocation.PolicyProcess,
			Complexity: func(string) float64 { return 1 }})
		Expect(err).To(BeNil())
		Expect(r.Quantities).To(Equal([]int64{35, 35}))
	})

	It("should use efficiency with fallbacks", func() {
		rows := []allocation.Row{{Efficiency: 3}, {HistoricalEfficiency: 1}, {OperatorAverage: 0.5}, {}}
		r, err := allocation.Allocate(rows, 110, allocation.Config{Policy: allocation.PolicyEfficiency})
		Expect(err).To(BeNil())
		Expect(r.Weights).To(Equal([]float64{3, 1, 0.5, 1}))
		Expect(r.Quantities).To(Equal([]int64{60, 20, 10, 20}))
	})

	It("should mix normalized weights in hybrid policy", func() {
		rows := []allocation.Row{{WorkHours: 1}, {WorkHours: 3}}
		r, err := allocation.Allocate(rows, 100, allocation.Config{Policy: allocation.PolicyHybrid,
			Hybrid: allocation.HybridWeights{Time: 1}})
		Expect(err).To(BeNil())
		Expect(r.Quantities).To(Equal([]int64{25, 75}))

		r, err = allocation.Allocate(rows, 100, allocation.Config{Policy: allocation.PolicyHybrid})
		Expect(err).To(BeNil())
		// 0.4*(0.25,0.75) + 0.3*(0.25,0.75) + 0.3*(0.5,0.5)
		Expect(r.Quantities).To(Equal([]int64{33, 67}))
	})

	It("should reject invalid input", func() {
		_, err := allocation.Allocate(nil, 10, allocation.Config{})
		Expect(bizerror.IsValidation(err, bizerror.MissingRequired)).To(BeTrue())
		_, err = allocation.Allocate([]allocation.Row{{}}, -1, allocation.Config{})
		Expect(bizerror.IsValidation(err, bizerror.NegativeQuantity)).To(BeTrue())
		_, err = allocation.Allocate([]allocation.Row{{}}, 1, allocation.Config{Policy: "magic"})
		Expect(err).ToNot(BeNil())
	})

	It("should always preserve the total with non negative quantities", func() {
		rnd := rand.New(rand.NewSource(42))
		policies := []allocation.Policy{allocation.PolicyTime, allocation.PolicyProcess, allocation.PolicyEfficiency, allocation.PolicyHybrid}
		names := []string{"熱處理", "welding", "CNC加工", "QC inspection", "組裝", ""}
		for i := 0; i < 500; i++ {
			n := rnd.Intn(8) + 1
			rows := make([]allocation.Row, n)
			for j := range rows {
				rows[j] = allocation.Row{WorkHours: float64(rnd.Intn(5)) * rnd.Float64(), ProcessName: names[rnd.Intn(len(names))],
					Efficiency: float64(rnd.Intn(3)) * rnd.Float64()}
			}
			total := rnd.Int63n(10000)
			r, err := allocation.Allocate(rows, total, allocation.Config{Policy: policies[i%len(policies)]})
			Expect(err).To(BeNil())
			Expect(sum(r.Quantities)).To(Equal(total))
			for _, q := range r.Quantities {
				Expect(q).To(BeNumerically(">=", 0))
			}
		}
	})
})

var _ = Describe("ComplexityOf", func() {
	It("should classify chinese and english process names", func() {
		Expect(allocation.ComplexityOf("熱處理")).To(Equal(3.0))
		Expect(allocation.ComplexityOf("Spot Welding")).To(Equal(2.5))
		Expect(allocation.ComplexityOf("CNC")).To(Equal(2.0))
		Expect(allocation.ComplexityOf("品質檢驗")).To(Equal(1.8))
		Expect(allocation.ComplexityOf("功能測試")).To(Equal(1.5))
		Expect(allocation.ComplexityOf("成品組裝")).To(Equal(1.2))
		Expect(allocation.ComplexityOf("噴漆")).To(Equal(1.3))
		Expect(allocation.ComplexityOf("出貨包裝")).To(Equal(1.0))
		Expect(allocation.ComplexityOf("預設工序")).To(Equal(1.0))
	})
})

var _ = Describe("MeasureAccuracy", func() {
	It("should report quantity accuracy and row errors", func() {
		a := allocation.MeasureAccuracy([]int64{25, 75, 0}, []int64{30, 65, 5})
		Expect(a.QuantityAccuracy).To(Equal(1.0))
		Expect(a.RowErrors).To(Equal([]int64{-5, 10, -5}))
		Expect(a.MaxAbsError).To(Equal(int64(10)))
		Expect(a.MeanAbsError).To(BeNumerically("~", 20.0/3, 1e-9))

		a = allocation.MeasureAccuracy([]int64{50}, []int64{100})
		Expect(a.QuantityAccuracy).To(Equal(0.5))
	})
})
