package effectsize

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData marks a row no schema can serve.
var ErrInsufficientData = errors.New("effectsize: insufficient data")

// hedgesJ is the small-sample bias correction applied to every standardized
// mean difference. df is the comparison-wise degrees of freedom.
func hedgesJ(df float64) float64 {
	return 1 - 3/(4*df-1)
}

// standardizedDifference converts a raw mean difference into Hedges' g with
// its standard error, given two independent arms.
func standardizedDifference(m1, sd1, n1, m2, sd2, n2 float64) (g, se float64, err error) {
	if n1 < 2 || n2 < 2 {
		return 0, 0, fmt.Errorf("%w: need at least 2 per arm (n1=%v, n2=%v)", ErrInsufficientData, n1, n2)
	}
	if sd1 < 0 || sd2 < 0 {
		return 0, 0, fmt.Errorf("%w: negative standard deviation", ErrInsufficientData)
	}
	df := n1 + n2 - 2
	sp := math.Sqrt(((n1-1)*sd1*sd1 + (n2-1)*sd2*sd2) / df)
	if sp <= 0 || math.IsNaN(sp) {
		return 0, 0, fmt.Errorf("%w: pooled standard deviation is zero", ErrInsufficientData)
	}

	d := (m1 - m2) / sp
	j := hedgesJ(df)
	varD := (n1+n2)/(n1*n2) + d*d/(2*(n1+n2))

	g = j * d
	se = math.Sqrt(j * j * varD)
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return 0, 0, fmt.Errorf("%w: standardized difference is not finite", ErrInsufficientData)
	}
	return g, se, nil
}

// logOddsRatio computes the log odds ratio and its variance from responder
// counts, adding the 0.5 continuity correction to every cell when any cell of
// the 2x2 table is zero.
func logOddsRatio(e1, n1, e2, n2 float64) (lor, variance float64, err error) {
	if n1 <= 0 || n2 <= 0 {
		return 0, 0, fmt.Errorf("%w: non-positive arm size", ErrInsufficientData)
	}
	if e1 < 0 || e2 < 0 || e1 > n1 || e2 > n2 {
		return 0, 0, fmt.Errorf("%w: responder count outside [0, n]", ErrInsufficientData)
	}

	a, b := e1, n1-e1
	c, d := e2, n2-e2
	if a == 0 || b == 0 || c == 0 || d == 0 {
		a, b, c, d = a+0.5, b+0.5, c+0.5, d+0.5
	}

	lor = math.Log((a * d) / (b * c))
	variance = 1/a + 1/b + 1/c + 1/d
	return lor, variance, nil
}

// dichotomousDifference maps responder counts onto the standardized mean
// difference scale through the logistic transform, then bias-corrects.
func dichotomousDifference(e1, n1, e2, n2 float64) (g, se float64, err error) {
	if n1 < 2 || n2 < 2 {
		return 0, 0, fmt.Errorf("%w: need at least 2 per arm (n1=%v, n2=%v)", ErrInsufficientData, n1, n2)
	}
	lor, lorVar, err := logOddsRatio(e1, n1, e2, n2)
	if err != nil {
		return 0, 0, err
	}

	d := lor * math.Sqrt(3) / math.Pi
	varD := 3 * lorVar / (math.Pi * math.Pi)

	j := hedgesJ(n1 + n2 - 2)
	g = j * d
	se = math.Sqrt(j * j * varD)
	return g, se, nil
}
