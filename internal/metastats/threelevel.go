package metastats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// ThreeLevelResult is the outcome of a nested random-effects fit where
// comparisons cluster within studies.
type ThreeLevelResult struct {
	K        int // comparisons
	Clusters int // studies
	Estimate float64
	SE       float64
	CILower  float64
	CIUpper  float64
	Stat     float64
	P        float64

	// Tau2 is the between-cluster variance, Gamma2 the within-cluster one.
	Tau2   float64
	Gamma2 float64
	// Variance shares on the multilevel I2 decomposition, in percent.
	I2Between float64
	I2Within  float64

	Level float64
}

// ThreeLevel fits a nested random-effects model by restricted maximum
// likelihood over the two variance components, allowing every comparison of
// a multi-arm study to enter the pool without collapsing.
func ThreeLevel(es, se []float64, cluster []string, opts Options) (ThreeLevelResult, error) {
	if len(cluster) != len(es) {
		return ThreeLevelResult{}, fmt.Errorf("metastats: %d cluster labels for %d estimates", len(cluster), len(es))
	}
	if err := validate(es, se); err != nil {
		return ThreeLevelResult{}, err
	}
	level := opts.level()
	k := len(es)

	clusterIdx := make([]int, k)
	order, byCluster := groupIndices(cluster)
	for c, label := range order {
		for _, i := range byCluster[label] {
			clusterIdx[i] = c
		}
	}

	objective := func(x []float64) float64 {
		tau2 := math.Exp(x[0])
		gamma2 := math.Exp(x[1])
		nll, err := negRestrictedLLNested(es, se, clusterIdx, tau2, gamma2)
		if err != nil {
			return math.Inf(1)
		}
		return nll
	}

	start := math.Log(math.Max(tau2DL(es, se)/2, 1e-4))
	problem := optimize.Problem{Func: objective}
	result, err := optimize.Minimize(problem, []float64{start, start}, nil, &optimize.NelderMead{})
	if err != nil {
		return ThreeLevelResult{}, fmt.Errorf("%w: three-level reml: %v", ErrNoConvergence, err)
	}
	if err := result.Status.Err(); err != nil {
		return ThreeLevelResult{}, fmt.Errorf("%w: three-level reml: %v", ErrNoConvergence, err)
	}

	tau2 := math.Exp(result.X[0])
	gamma2 := math.Exp(result.X[1])
	if tau2 < 1e-8 {
		tau2 = 0
	}
	if gamma2 < 1e-8 {
		gamma2 = 0
	}

	mean, pooledSE, err := nestedPooled(es, se, clusterIdx, tau2, gamma2)
	if err != nil {
		return ThreeLevelResult{}, err
	}

	res := ThreeLevelResult{
		K:        k,
		Clusters: len(order),
		Estimate: mean,
		SE:       pooledSE,
		Tau2:     tau2,
		Gamma2:   gamma2,
		Level:    level,
	}
	res.Stat = mean / pooledSE
	res.P = normalP(res.Stat)
	z := zQuantile(level)
	res.CILower = mean - z*pooledSE
	res.CIUpper = mean + z*pooledSE

	res.I2Between, res.I2Within = varianceShares(se, tau2, gamma2)
	return res, nil
}

// marginal covariance: Var(y_i) = v_i + tau2 + gamma2, and comparisons of
// the same cluster share Cov = tau2.
func buildNestedV(se []float64, clusterIdx []int, tau2, gamma2 float64) *mat.SymDense {
	k := len(se)
	v := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		v.SetSym(i, i, se[i]*se[i]+tau2+gamma2)
		for j := i + 1; j < k; j++ {
			if clusterIdx[i] == clusterIdx[j] {
				v.SetSym(i, j, tau2)
			}
		}
	}
	return v
}

// negRestrictedLLNested is -2 times the restricted log-likelihood of the
// nested model, up to an additive constant.
func negRestrictedLLNested(es, se []float64, clusterIdx []int, tau2, gamma2 float64) (float64, error) {
	v := buildNestedV(se, clusterIdx, tau2, gamma2)

	var chol mat.Cholesky
	if !chol.Factorize(v) {
		return 0, ErrSingular
	}

	k := len(es)
	ones := mat.NewVecDense(k, onesColumn(k))
	y := mat.NewVecDense(k, es)

	vinvOnes := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(vinvOnes, ones); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	vinvY := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(vinvY, y); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	sumW := mat.Dot(ones, vinvOnes)  // 1' V^-1 1
	sumWY := mat.Dot(ones, vinvY)    // 1' V^-1 y
	quadY := mat.Dot(y, vinvY)       // y' V^-1 y
	quad := quadY - sumWY*sumWY/sumW // residual quadratic form

	return chol.LogDet() + math.Log(sumW) + quad, nil
}

// nestedPooled computes the GLS mean and its standard error under the fitted
// variance components.
func nestedPooled(es, se []float64, clusterIdx []int, tau2, gamma2 float64) (mean, pooledSE float64, err error) {
	v := buildNestedV(se, clusterIdx, tau2, gamma2)

	var chol mat.Cholesky
	if !chol.Factorize(v) {
		return 0, 0, ErrSingular
	}

	k := len(es)
	ones := mat.NewVecDense(k, onesColumn(k))
	y := mat.NewVecDense(k, es)

	vinvOnes := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(vinvOnes, ones); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	sumW := mat.Dot(ones, vinvOnes)
	mean = mat.Dot(y, vinvOnes) / sumW
	pooledSE = math.Sqrt(1 / sumW)
	return mean, pooledSE, nil
}

// varianceShares splits total variance into the two heterogeneity components
// against the typical sampling variance, the multilevel reading of I2.
func varianceShares(se []float64, tau2, gamma2 float64) (between, within float64) {
	k := float64(len(se))
	var sw, sw2 float64
	for _, s := range se {
		w := 1 / (s * s)
		sw += w
		sw2 += w * w
	}
	typical := (k - 1) * sw / (sw*sw - sw2)
	total := tau2 + gamma2 + typical
	if total <= 0 {
		return 0, 0
	}
	return 100 * tau2 / total, 100 * gamma2 / total
}
