// Package metastats fits the pooling models the analysis layer orchestrates:
// inverse-variance fixed effect, random effects with selectable
// between-study variance estimators, subgroup fits, weighted meta-regression,
// a three-level nested model, and leave-one-out refits. Estimates arrive as
// standardized mean differences with standard errors; the package never
// touches tables.
package metastats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrTooFewComparisons rejects fits over fewer than two comparisons.
	ErrTooFewComparisons = errors.New("metastats: fewer than two comparisons")
	// ErrBadStandardError rejects non-positive or non-finite standard errors.
	ErrBadStandardError = errors.New("metastats: standard errors must be positive and finite")
	// ErrNoConvergence reports an iterative estimator that did not settle.
	ErrNoConvergence = errors.New("metastats: estimator did not converge")
	// ErrSingular reports a variance structure the solver cannot invert.
	ErrSingular = errors.New("metastats: singular variance structure")
	// ErrUnknownEstimator reports an unrecognized estimator tag.
	ErrUnknownEstimator = errors.New("metastats: unknown estimator")
)

// Estimator selects how the between-study variance is estimated.
type Estimator int

const (
	// EstimatorREML maximizes the restricted likelihood; the default.
	EstimatorREML Estimator = iota
	// EstimatorDL is the DerSimonian-Laird moment estimator.
	EstimatorDL
	// EstimatorPM is the iterative Paule-Mandel estimator.
	EstimatorPM
)

// String returns the canonical estimator tag.
func (e Estimator) String() string {
	switch e {
	case EstimatorDL:
		return "dl"
	case EstimatorPM:
		return "pm"
	case EstimatorREML:
		return "reml"
	default:
		return "unknown"
	}
}

// ParseEstimator resolves an estimator tag.
func ParseEstimator(raw string) (Estimator, error) {
	switch raw {
	case "dl", "DL":
		return EstimatorDL, nil
	case "pm", "PM":
		return EstimatorPM, nil
	case "reml", "REML", "":
		return EstimatorREML, nil
	default:
		return EstimatorREML, fmt.Errorf("%w: %q", ErrUnknownEstimator, raw)
	}
}

// Options tunes a pooling fit.
type Options struct {
	// Estimator picks the between-study variance estimator; REML when unset.
	Estimator Estimator
	// KnappHartung switches to t-based inference with the weighted residual
	// variance adjustment.
	KnappHartung bool
	// Level is the confidence level; 0.95 when zero.
	Level float64
}

func (o Options) level() float64 {
	if o.Level <= 0 || o.Level >= 1 {
		return 0.95
	}
	return o.Level
}

// FitResult is the uniform outcome of a pooled fit.
type FitResult struct {
	K        int // comparisons pooled
	Estimate float64
	SE       float64
	CILower  float64
	CIUpper  float64
	Stat     float64 // z, or t under Knapp-Hartung
	P        float64

	Tau2 float64
	Q    float64
	QDF  int
	QP   float64
	I2   float64 // percent
	H2   float64

	// Prediction interval bounds; NaN below three comparisons.
	PredLower float64
	PredUpper float64

	Estimator    Estimator
	KnappHartung bool
	Level        float64
}

func validate(es, se []float64) error {
	if len(es) != len(se) {
		return fmt.Errorf("metastats: %d estimates but %d standard errors", len(es), len(se))
	}
	if len(es) < 2 {
		return fmt.Errorf("%w: have %d", ErrTooFewComparisons, len(es))
	}
	for i, s := range se {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: se[%d]=%v", ErrBadStandardError, i, s)
		}
		if math.IsNaN(es[i]) || math.IsInf(es[i], 0) {
			return fmt.Errorf("metastats: es[%d]=%v is not finite", i, es[i])
		}
	}
	return nil
}

// weightedMean pools estimates under weights w, returning the mean and the
// weight sum.
func weightedMean(es, w []float64) (mean, sumW float64) {
	var sw, swy float64
	for i := range es {
		sw += w[i]
		swy += w[i] * es[i]
	}
	return swy / sw, sw
}

// cochranQ is the weighted squared deviation of the estimates around their
// inverse-variance pooled mean.
func cochranQ(es, se []float64) (q float64, df int) {
	w := make([]float64, len(es))
	for i, s := range se {
		w[i] = 1 / (s * s)
	}
	mean, _ := weightedMean(es, w)
	for i := range es {
		d := es[i] - mean
		q += w[i] * d * d
	}
	return q, len(es) - 1
}

// heterogeneity derives I2 and H2 from Q.
func heterogeneity(q float64, df int) (i2, h2 float64) {
	if df <= 0 || q <= 0 {
		return 0, 1
	}
	fdf := float64(df)
	i2 = math.Max(0, (q-fdf)/q) * 100
	h2 = math.Max(1, q/fdf)
	return i2, h2
}

// FixedEffect pools with inverse-variance weights and no between-study
// variance.
func FixedEffect(es, se []float64, level float64) (FitResult, error) {
	if err := validate(es, se); err != nil {
		return FitResult{}, err
	}
	if level <= 0 || level >= 1 {
		level = 0.95
	}

	w := make([]float64, len(es))
	for i, s := range se {
		w[i] = 1 / (s * s)
	}
	mean, sumW := weightedMean(es, w)
	pooledSE := math.Sqrt(1 / sumW)

	q, df := cochranQ(es, se)
	i2, h2 := heterogeneity(q, df)

	res := FitResult{
		K:        len(es),
		Estimate: mean,
		SE:       pooledSE,
		Q:        q,
		QDF:      df,
		QP:       chiSquaredP(q, df),
		I2:       i2,
		H2:       h2,
		Tau2:     0,
		Level:    level,
	}
	res.Stat = mean / pooledSE
	res.P = normalP(res.Stat)
	z := zQuantile(level)
	res.CILower = mean - z*pooledSE
	res.CIUpper = mean + z*pooledSE
	res.PredLower = math.NaN()
	res.PredUpper = math.NaN()
	return res, nil
}

// RandomEffects pools under a between-study variance estimated per the
// options. Inference is z-based, or t-based with the Knapp-Hartung
// adjustment.
func RandomEffects(es, se []float64, opts Options) (FitResult, error) {
	if err := validate(es, se); err != nil {
		return FitResult{}, err
	}
	level := opts.level()

	tau2, err := estimateTau2(es, se, opts.Estimator)
	if err != nil {
		return FitResult{}, err
	}

	k := len(es)
	w := make([]float64, k)
	for i, s := range se {
		w[i] = 1 / (s*s + tau2)
	}
	mean, sumW := weightedMean(es, w)
	pooledSE := math.Sqrt(1 / sumW)

	q, df := cochranQ(es, se)
	i2, h2 := heterogeneity(q, df)

	res := FitResult{
		K:            k,
		Estimate:     mean,
		SE:           pooledSE,
		Tau2:         tau2,
		Q:            q,
		QDF:          df,
		QP:           chiSquaredP(q, df),
		I2:           i2,
		H2:           h2,
		Estimator:    opts.Estimator,
		KnappHartung: opts.KnappHartung,
		Level:        level,
	}

	if opts.KnappHartung {
		// Weighted residual variance replaces the naive SE; t with k-1 df.
		var wss float64
		for i := range es {
			d := es[i] - mean
			wss += w[i] * d * d
		}
		khVar := wss / (float64(k-1) * sumW)
		res.SE = math.Sqrt(khVar)
		res.Stat = mean / res.SE
		res.P = studentP(res.Stat, k-1)
		tq := tQuantile(level, k-1)
		res.CILower = mean - tq*res.SE
		res.CIUpper = mean + tq*res.SE
	} else {
		res.Stat = mean / pooledSE
		res.P = normalP(res.Stat)
		z := zQuantile(level)
		res.CILower = mean - z*pooledSE
		res.CIUpper = mean + z*pooledSE
	}

	res.PredLower, res.PredUpper = predictionInterval(mean, res.SE, tau2, k, level)
	return res, nil
}

// predictionInterval follows Higgins and Thompson: a t interval with k-2
// degrees of freedom over the spread of true effects.
func predictionInterval(mean, se, tau2 float64, k int, level float64) (lo, hi float64) {
	if k < 3 {
		return math.NaN(), math.NaN()
	}
	tq := tQuantile(level, k-2)
	spread := math.Sqrt(tau2 + se*se)
	return mean - tq*spread, mean + tq*spread
}

// studentP is the two-sided p-value of a t statistic.
func studentP(t float64, df int) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return 2 * dist.CDF(-math.Abs(t))
}

// tQuantile is the two-sided t critical value for a confidence level.
func tQuantile(level float64, df int) float64 {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}.Quantile(1 - (1-level)/2)
}

// normalP is the two-sided p-value of a standard normal statistic.
func normalP(z float64) float64 {
	return 2 * distuv.UnitNormal.CDF(-math.Abs(z))
}

// zQuantile is the two-sided normal critical value for a confidence level.
func zQuantile(level float64) float64 {
	return distuv.UnitNormal.Quantile(1 - (1-level)/2)
}

// chiSquaredP is the upper-tail p-value of a chi-squared statistic.
func chiSquaredP(x float64, df int) float64 {
	if df <= 0 {
		return math.NaN()
	}
	return distuv.ChiSquared{K: float64(df)}.Survival(x)
}
