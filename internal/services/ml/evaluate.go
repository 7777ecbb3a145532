package ml

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Metric keys reported for a hold-out split.
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricROCAUC    = "roc_auc"
	MetricBaseRate  = "base_rate"
)

// Evaluate scores probabilities against labels at a 0.5 cut. Values are rounded to 4 places.
// roc_auc is omitted when the labels hold a single class.
func Evaluate(probs []float64, y []int) map[string]float64 {
	out := map[string]float64{}
	if len(probs) == 0 || len(probs) != len(y) {
		return out
	}

	var tp, fp, tn, fn, pos int
	for i, p := range probs {
		pred := 0
		if p >= 0.5 {
			pred = 1
		}
		pos += y[i]
		switch {
		case pred == 1 && y[i] == 1:
			tp++
		case pred == 1 && y[i] == 0:
			fp++
		case pred == 0 && y[i] == 0:
			tn++
		default:
			fn++
		}
	}
	n := float64(len(y))
	out[MetricAccuracy] = round4(float64(tp+tn) / n)
	out[MetricPrecision] = round4(safeDiv(tp, tp+fp))
	out[MetricRecall] = round4(safeDiv(tp, tp+fn))
	out[MetricBaseRate] = round4(float64(pos) / n)
	if auc, ok := rocAUC(probs, y); ok {
		out[MetricROCAUC] = round4(auc)
	}
	return out
}

// rocAUC is the Mann-Whitney statistic with average ranks for ties.
func rocAUC(probs []float64, y []int) (float64, bool) {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	ranks := make([]float64, len(probs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && probs[idx[j+1]] == probs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var nPos, nNeg, sumPos float64
	for i, label := range y {
		if label == 1 {
			nPos++
			sumPos += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, false
	}
	return (sumPos - nPos*(nPos+1)/2) / (nPos * nNeg), true
}

func safeDiv(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func round4(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}
