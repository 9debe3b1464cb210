package allocation

import (
	"fmt"
	"math"
	"sort"

	"shopfloor/bizerror"
)

type Policy string

const (
	PolicyTime       Policy = "time"
	PolicyProcess    Policy = "process"
	PolicyEfficiency Policy = "efficiency"
	PolicyHybrid     Policy = "hybrid"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyTime, PolicyProcess, PolicyEfficiency, PolicyHybrid:
		return p, nil
	case "":
		return PolicyTime, nil
	}
	return "", fmt.Errorf("unknown allocation policy %q", s)
}

// Row is one report sharing the total.
type Row struct {
	WorkHours     float64 `json:"workHours"`
	DurationHours float64 `json:"durationHours"`
	BreakHours    float64 `json:"breakHours"`
	ProcessName   string  `json:"processName"`

	// Efficiency is the known output rate of the row, falling back to the historical then the operator average
	Efficiency           float64 `json:"efficiency"`
	HistoricalEfficiency float64 `json:"historicalEfficiency"`
	OperatorAverage      float64 `json:"operatorAverage"`
}

// HybridWeights mixes the normalized time, process and efficiency weights.
type HybridWeights struct {
	Time       float64 `json:"time"`
	Process    float64 `json:"process"`
	Efficiency float64 `json:"efficiency"`
}

var DefaultHybridWeights = HybridWeights{Time: 0.4, Process: 0.3, Efficiency: 0.3}

type Config struct {
	Policy Policy
	Hybrid HybridWeights
	// Complexity overrides ComplexityOf, e.g. with factors of known process definitions
	Complexity func(processName string) float64
}

type Result struct {
	Policy     Policy    `json:"policy"`
	Weights    []float64 `json:"weights"`
	Quantities []int64   `json:"quantities"`
}

const floorEpsilon = 1e-9

// Allocate distributes total over rows by policy weights. The quantities sum up to total and are never negative.
// Rounding down leaves a remainder that goes one unit at a time to the rows with the largest fractional part,
// ties going to the lower index.
func Allocate(rows []Row, total int64, cfg Config) (*Result, error) {
	if len(rows) == 0 {
		return nil, bizerror.NewValidationError(bizerror.MissingRequired, "rows", "at least one row is required")
	}
	if total < 0 {
		return nil, bizerror.NewValidationError(bizerror.NegativeQuantity, "total", "total quantity %d is negative", total)
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyTime
	}

	weights, err := Weights(rows, policy, cfg)
	if err != nil {
		return nil, err
	}
	return &Result{Policy: policy, Weights: weights, Quantities: Distribute(total, weights)}, nil
}

// Weights computes the raw, non negative weight of every row.
func Weights(rows []Row, policy Policy, cfg Config) ([]float64, error) {
	complexity := cfg.Complexity
	if complexity == nil {
		complexity = ComplexityOf
	}

	switch policy {
	case PolicyTime:
		return mapRows(rows, timeWeight), nil
	case PolicyProcess:
		return mapRows(rows, func(r Row) float64 { return nonNegative(complexity(r.ProcessName)) * timeWeight(r) }), nil
	case PolicyEfficiency:
		return mapRows(rows, efficiencyWeight), nil
	case PolicyHybrid:
		mix := cfg.Hybrid
		if mix == (HybridWeights{}) {
			mix = DefaultHybridWeights
		}
		sum := nonNegative(mix.Time) + nonNegative(mix.Process) + nonNegative(mix.Efficiency)
		if sum == 0 {
			return nil, bizerror.NewValidationError(bizerror.NegativeQuantity, "hybrid", "hybrid weights must not all be zero")
		}
		t := normalize(mapRows(rows, timeWeight))
		p := normalize(mapRows(rows, func(r Row) float64 { return nonNegative(complexity(r.ProcessName)) * timeWeight(r) }))
		e := normalize(mapRows(rows, efficiencyWeight))
		w := make([]float64, len(rows))
		for i := range rows {
			w[i] = (nonNegative(mix.Time)*t[i] + nonNegative(mix.Process)*p[i] + nonNegative(mix.Efficiency)*e[i]) / sum
		}
		return w, nil
	}
	return nil, fmt.Errorf("unknown allocation policy %q", policy)
}

// Distribute splits total proportionally to weights, equal shares when all weights are zero.
func Distribute(total int64, weights []float64) []int64 {
	n := len(weights)
	q := make([]int64, n)
	if n == 0 {
		return q
	}
	w := normalize(weights)

	fractions := make([]float64, n)
	var assigned int64
	for i := range w {
		raw := float64(total) * w[i]
		q[i] = int64(math.Floor(raw + floorEpsilon))
		fractions[i] = math.Max(0, raw-float64(q[i]))
		assigned += q[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fractions[order[a]] > fractions[order[b]]+floorEpsilon
	})

	remainder := total - assigned
	for k := 0; remainder > 0; k++ {
		q[order[k%n]]++
		remainder--
	}
	// floating point may round a row up past its share, take the surplus back from the smallest fractions
	for k := n - 1; remainder < 0; k-- {
		if k < 0 {
			k = n - 1
		}
		if idx := order[k]; q[idx] > 0 {
			q[idx]--
			remainder++
		}
	}
	return q
}

func timeWeight(r Row) float64 {
	if r.WorkHours > 0 {
		return r.WorkHours
	}
	return nonNegative(r.DurationHours - r.BreakHours)
}

func efficiencyWeight(r Row) float64 {
	for _, v := range []float64{r.Efficiency, r.HistoricalEfficiency, r.OperatorAverage} {
		if v > 0 {
			return v
		}
	}
	return 1.0
}

func mapRows(rows []Row, f func(Row) float64) []float64 {
	r := make([]float64, len(rows))
	for i, row := range rows {
		r[i] = nonNegative(f(row))
	}
	return r
}

// normalize scales weights to sum 1, equal weights when they sum to zero
func normalize(weights []float64) []float64 {
	sum := 0.0
	for _, w := range weights {
		sum += nonNegative(w)
	}
	r := make([]float64, len(weights))
	for i, w := range weights {
		if sum == 0 {
			r[i] = 1 / float64(len(weights))
		} else {
			r[i] = nonNegative(w) / sum
		}
	}
	return r
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
