package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// zCritical is the two-sided normal critical value for a confidence level.
func zCritical(level float64) float64 {
	return distuv.UnitNormal.Quantile(1 - (1-level)/2)
}

// i2Interval is the Higgins-Thompson test-based confidence interval on I2,
// obtained from an interval on ln H. Undefined below three comparisons.
func i2Interval(q float64, k int, level float64) (lo, hi float64) {
	if k < 3 || math.IsNaN(q) {
		return math.NaN(), math.NaN()
	}
	fk := float64(k)

	var seLnH float64
	if q > fk {
		seLnH = 0.5 * (math.Log(q) - math.Log(fk-1)) / (math.Sqrt(2*q) - math.Sqrt(2*fk-3))
	} else {
		seLnH = math.Sqrt(1 / (2 * (fk - 2)) * (1 - 1/(3*(fk-2)*(fk-2))))
	}

	// H = sqrt(Q/df), floored at 1.
	lnH := 0.5 * math.Max(0, math.Log(q)-math.Log(fk-1))
	z := zCritical(level)
	hLo := math.Max(1, math.Exp(lnH-z*seLnH))
	hHi := math.Max(1, math.Exp(lnH+z*seLnH))
	return i2FromH(hLo), i2FromH(hHi)
}

func i2FromH(h float64) float64 {
	h2 := h * h
	return math.Max(0, (h2-1)/h2) * 100
}
