package allocation

import "math"

// Accuracy compares allocated quantities with quantities reported afterwards.
type Accuracy struct {
	QuantityAccuracy float64 `json:"quantityAccuracy"`
	MeanAbsError     float64 `json:"meanAbsError"`
	MaxAbsError      int64   `json:"maxAbsError"`
	RowErrors        []int64 `json:"rowErrors"`
}

func MeasureAccuracy(allocated, actual []int64) Accuracy {
	n := len(allocated)
	if len(actual) < n {
		n = len(actual)
	}
	r := Accuracy{RowErrors: make([]int64, n)}
	var sumAllocated, sumActual, sumAbs int64
	for i := 0; i < n; i++ {
		diff := allocated[i] - actual[i]
		r.RowErrors[i] = diff
		if diff < 0 {
			diff = -diff
		}
		sumAbs += diff
		if diff > r.MaxAbsError {
			r.MaxAbsError = diff
		}
		sumAllocated += allocated[i]
		sumActual += actual[i]
	}
	if n > 0 {
		r.MeanAbsError = float64(sumAbs) / float64(n)
	}
	switch {
	case sumActual == 0 && sumAllocated == 0:
		r.QuantityAccuracy = 1
	case sumActual == 0:
		r.QuantityAccuracy = 0
	default:
		r.QuantityAccuracy = math.Max(0, 1-math.Abs(float64(sumAllocated-sumActual))/float64(sumActual))
	}
	return r
}
