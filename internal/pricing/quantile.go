package pricing

import (
	"math"
	"slices"
)

// QuantileSummary holds the 25th, 50th and 75th percentiles of a sample.
type QuantileSummary struct {
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
}

// IQR returns the interquartile range.
func (q QuantileSummary) IQR() float64 {
	return q.Q3 - q.Q1
}

// Quantiles computes q1, median and q3 using linear interpolation between
// closest ranks (R type 7). The input slice is not modified.
func Quantiles(values []float64) QuantileSummary {
	if len(values) == 0 {
		return QuantileSummary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return QuantileSummary{
		Q1:     percentile(sorted, 0.25),
		Median: percentile(sorted, 0.5),
		Q3:     percentile(sorted, 0.75),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := float64(len(sorted)-1) * p
	base := int(math.Floor(pos))
	rest := pos - float64(base)
	if base+1 < len(sorted) {
		return sorted[base] + rest*(sorted[base+1]-sorted[base])
	}
	return sorted[base]
}
