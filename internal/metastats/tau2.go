package metastats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

func estimateTau2(es, se []float64, estimator Estimator) (float64, error) {
	switch estimator {
	case EstimatorDL:
		return tau2DL(es, se), nil
	case EstimatorPM:
		return tau2PM(es, se)
	case EstimatorREML:
		return tau2REML(es, se)
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownEstimator, estimator)
	}
}

// tau2DL is the DerSimonian-Laird moment estimator,
// max(0, (Q - df) / C) with C = sum(w) - sum(w^2)/sum(w).
func tau2DL(es, se []float64) float64 {
	q, df := cochranQ(es, se)
	var sw, sw2 float64
	for _, s := range se {
		w := 1 / (s * s)
		sw += w
		sw2 += w * w
	}
	c := sw - sw2/sw
	if c <= 0 {
		return 0
	}
	return math.Max(0, (q-float64(df))/c)
}

// tau2PM solves the Paule-Mandel estimating equation by bisection: the
// generalized Q at the returned tau2 equals its degrees of freedom.
func tau2PM(es, se []float64) (float64, error) {
	df := float64(len(es) - 1)

	// Generalized Q minus df; strictly decreasing in tau2.
	f := func(tau2 float64) float64 {
		w := make([]float64, len(es))
		for i, s := range se {
			w[i] = 1 / (s*s + tau2)
		}
		mean, _ := weightedMean(es, w)
		var q float64
		for i := range es {
			d := es[i] - mean
			q += w[i] * d * d
		}
		return q - df
	}

	if f(0) <= 0 {
		return 0, nil
	}

	lo, hi := 0.0, 1.0
	for i := 0; f(hi) > 0; i++ {
		if i >= 60 {
			return 0, fmt.Errorf("%w: paule-mandel bracket not found", ErrNoConvergence)
		}
		lo = hi
		hi *= 2
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if hi-lo < 1e-12 {
			return mid, nil
		}
		if f(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// tau2REML minimizes the negative restricted log-likelihood over
// log(tau2), starting from the moment estimate.
func tau2REML(es, se []float64) (float64, error) {
	objective := func(x []float64) float64 {
		return negRestrictedLL(es, se, math.Exp(x[0]))
	}

	start := math.Log(math.Max(tau2DL(es, se), 1e-4))
	problem := optimize.Problem{Func: objective}

	result, err := optimize.Minimize(problem, []float64{start}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, fmt.Errorf("%w: reml: %v", ErrNoConvergence, err)
	}
	if err := result.Status.Err(); err != nil {
		return 0, fmt.Errorf("%w: reml: %v", ErrNoConvergence, err)
	}

	tau2 := math.Exp(result.X[0])
	// The log parameterization cannot reach zero; snap near-zero solutions.
	if tau2 < 1e-8 {
		tau2 = 0
	}
	return tau2, nil
}

// negRestrictedLL is -2 times the restricted log-likelihood of a
// random-effects model, up to an additive constant.
func negRestrictedLL(es, se []float64, tau2 float64) float64 {
	w := make([]float64, len(es))
	var logDet, sumW float64
	for i, s := range se {
		v := s*s + tau2
		w[i] = 1 / v
		logDet += math.Log(v)
		sumW += w[i]
	}
	mean, _ := weightedMean(es, w)
	var quad float64
	for i := range es {
		d := es[i] - mean
		quad += w[i] * d * d
	}
	return logDet + math.Log(sumW) + quad
}
