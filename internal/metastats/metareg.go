package metastats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Predictor is one moderator column for a meta-regression: exactly one of
// Numeric or Labels must be set. Categorical moderators are dummy-coded
// against their first-encountered level.
type Predictor struct {
	Name    string
	Numeric []float64
	Labels  []string
}

func (p Predictor) len() int {
	if p.Numeric != nil {
		return len(p.Numeric)
	}
	return len(p.Labels)
}

// Coefficient is one fitted regression term.
type Coefficient struct {
	Name     string
	Estimate float64
	SE       float64
	Stat     float64
	P        float64
	CILower  float64
	CIUpper  float64
}

// RegResult is a weighted meta-regression outcome.
type RegResult struct {
	K            int
	Coefficients []Coefficient // intercept first, then terms in input order

	// QM tests all non-intercept terms jointly; QE is residual
	// heterogeneity.
	QM   float64
	QMDF int
	QMP  float64
	QE   float64
	QEDF int
	QEP  float64

	Tau2  float64
	Level float64
}

// MetaRegression fits a mixed-effects meta-regression: weighted least
// squares under inverse-variance weights, residual-moment estimate of the
// between-study variance, then a refit under the combined weights.
func MetaRegression(es, se []float64, predictors []Predictor, opts Options) (RegResult, error) {
	if err := validate(es, se); err != nil {
		return RegResult{}, err
	}
	level := opts.level()
	k := len(es)

	design, names, err := buildDesign(k, predictors)
	if err != nil {
		return RegResult{}, err
	}
	p := len(names)
	if k <= p {
		return RegResult{}, fmt.Errorf("%w: %d comparisons for %d coefficients", ErrTooFewComparisons, k, p)
	}

	// First pass with sampling weights only, to get residual heterogeneity.
	w := make([]float64, k)
	for i, s := range se {
		w[i] = 1 / (s * s)
	}
	beta, _, err := solveWLS(design, es, w)
	if err != nil {
		return RegResult{}, err
	}
	qe := residualQ(design, es, w, beta)
	qeDF := k - p

	tau2 := momentTau2Reg(design, w, qe, qeDF)

	// Refit under combined weights.
	for i, s := range se {
		w[i] = 1 / (s*s + tau2)
	}
	beta, cov, err := solveWLS(design, es, w)
	if err != nil {
		return RegResult{}, err
	}

	res := RegResult{
		K:     k,
		Tau2:  tau2,
		QE:    qe,
		QEDF:  qeDF,
		QEP:   chiSquaredP(qe, qeDF),
		Level: level,
	}

	z := zQuantile(level)
	for j, name := range names {
		b := beta.AtVec(j)
		sej := math.Sqrt(cov.At(j, j))
		c := Coefficient{
			Name:     name,
			Estimate: b,
			SE:       sej,
			Stat:     b / sej,
			CILower:  b - z*sej,
			CIUpper:  b + z*sej,
		}
		c.P = normalP(c.Stat)
		res.Coefficients = append(res.Coefficients, c)
	}

	res.QM, res.QMDF, err = omnibusQM(beta, cov)
	if err != nil {
		return RegResult{}, err
	}
	res.QMP = chiSquaredP(res.QM, res.QMDF)
	return res, nil
}

// buildDesign assembles the design matrix: an intercept column, then one
// column per numeric predictor and one dummy per non-reference level of each
// categorical predictor (levels in encounter order).
func buildDesign(k int, predictors []Predictor) (*mat.Dense, []string, error) {
	cols := [][]float64{onesColumn(k)}
	names := []string{"intercept"}

	for _, p := range predictors {
		if (p.Numeric == nil) == (p.Labels == nil) {
			return nil, nil, fmt.Errorf("metastats: predictor %q needs exactly one of numeric or labels", p.Name)
		}
		if p.len() != k {
			return nil, nil, fmt.Errorf("metastats: predictor %q has %d values for %d comparisons", p.Name, p.len(), k)
		}
		if p.Numeric != nil {
			col := make([]float64, k)
			copy(col, p.Numeric)
			cols = append(cols, col)
			names = append(names, p.Name)
			continue
		}

		levels := distinctInOrder(p.Labels)
		if len(levels) < 2 {
			return nil, nil, fmt.Errorf("metastats: predictor %q has a single level %q", p.Name, levels[0])
		}
		for _, level := range levels[1:] {
			col := make([]float64, k)
			for i, l := range p.Labels {
				if l == level {
					col[i] = 1
				}
			}
			cols = append(cols, col)
			names = append(names, p.Name+"="+level)
		}
	}

	design := mat.NewDense(k, len(cols), nil)
	for j, col := range cols {
		design.SetCol(j, col)
	}
	return design, names, nil
}

func onesColumn(k int) []float64 {
	col := make([]float64, k)
	for i := range col {
		col[i] = 1
	}
	return col
}

func distinctInOrder(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// solveWLS solves the weighted normal equations, returning the coefficient
// vector and its covariance.
func solveWLS(x *mat.Dense, y, w []float64) (*mat.VecDense, *mat.Dense, error) {
	k, p := x.Dims()

	xtwx := mat.NewDense(p, p, nil)
	xtwy := mat.NewVecDense(p, nil)
	for a := 0; a < p; a++ {
		for b := 0; b < p; b++ {
			var s float64
			for i := 0; i < k; i++ {
				s += w[i] * x.At(i, a) * x.At(i, b)
			}
			xtwx.Set(a, b, s)
		}
		var s float64
		for i := 0; i < k; i++ {
			s += w[i] * x.At(i, a) * y[i]
		}
		xtwy.SetVec(a, s)
	}

	cov := mat.NewDense(p, p, nil)
	if err := cov.Inverse(xtwx); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	beta := mat.NewVecDense(p, nil)
	beta.MulVec(cov, xtwy)
	return beta, cov, nil
}

func residualQ(x *mat.Dense, y, w []float64, beta *mat.VecDense) float64 {
	k, p := x.Dims()
	var q float64
	for i := 0; i < k; i++ {
		fitted := 0.0
		for j := 0; j < p; j++ {
			fitted += x.At(i, j) * beta.AtVec(j)
		}
		d := y[i] - fitted
		q += w[i] * d * d
	}
	return q
}

// momentTau2Reg generalizes the DerSimonian-Laird moment estimator to the
// regression setting: tau2 = max(0, (QE - df) / tr(P)) with
// P = W - WX (X'WX)^-1 X'W.
func momentTau2Reg(x *mat.Dense, w []float64, qe float64, df int) float64 {
	if df <= 0 {
		return 0
	}
	k, p := x.Dims()

	var sumW float64
	for _, wi := range w {
		sumW += wi
	}

	// tr(P) = sum(w) - tr((X'WX)^-1 X'W^2X).
	xtwx := mat.NewDense(p, p, nil)
	xtw2x := mat.NewDense(p, p, nil)
	for a := 0; a < p; a++ {
		for b := 0; b < p; b++ {
			var s1, s2 float64
			for i := 0; i < k; i++ {
				s1 += w[i] * x.At(i, a) * x.At(i, b)
				s2 += w[i] * w[i] * x.At(i, a) * x.At(i, b)
			}
			xtwx.Set(a, b, s1)
			xtw2x.Set(a, b, s2)
		}
	}
	inv := mat.NewDense(p, p, nil)
	if err := inv.Inverse(xtwx); err != nil {
		return 0
	}
	prod := mat.NewDense(p, p, nil)
	prod.Mul(inv, xtw2x)
	trace := mat.Trace(prod)

	c := sumW - trace
	if c <= 0 {
		return 0
	}
	return math.Max(0, (qe-float64(df))/c)
}

// omnibusQM is the Wald test of all non-intercept coefficients being zero.
func omnibusQM(beta *mat.VecDense, cov *mat.Dense) (float64, int, error) {
	p := beta.Len()
	if p < 2 {
		return 0, 0, nil
	}
	m := p - 1

	sub := mat.NewDense(m, m, nil)
	for a := 0; a < m; a++ {
		for b := 0; b < m; b++ {
			sub.Set(a, b, cov.At(a+1, b+1))
		}
	}
	inv := mat.NewDense(m, m, nil)
	if err := inv.Inverse(sub); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var qm float64
	for a := 0; a < m; a++ {
		for b := 0; b < m; b++ {
			qm += beta.AtVec(a+1) * inv.At(a, b) * beta.AtVec(b+1)
		}
	}
	return qm, m, nil
}
