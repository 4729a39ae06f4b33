package metastats

import (
	"fmt"
	"math"
)

// GroupFit is one subgroup's pooled result.
type GroupFit struct {
	Group string
	Fit   FitResult
}

// SubgroupResult carries per-group fits plus the between-group test.
type SubgroupResult struct {
	Groups []GroupFit // first-encounter order

	QBetween   float64
	QBetweenDF int
	QBetweenP  float64
}

// Subgroups pools each label's comparisons separately and tests whether the
// group estimates share one mean. A single-comparison group passes its
// estimate through untouched rather than failing the whole call.
func Subgroups(es, se []float64, labels []string, opts Options) (SubgroupResult, error) {
	if len(es) != len(se) || len(es) != len(labels) {
		return SubgroupResult{}, fmt.Errorf("metastats: subgroup input lengths differ (%d, %d, %d)",
			len(es), len(se), len(labels))
	}
	if err := validate(es, se); err != nil {
		return SubgroupResult{}, err
	}

	order, byGroup := groupIndices(labels)
	res := SubgroupResult{}

	for _, label := range order {
		idx := byGroup[label]
		ges := take(es, idx)
		gse := take(se, idx)

		var fit FitResult
		if len(idx) == 1 {
			fit = singleComparisonFit(ges[0], gse[0], opts)
		} else {
			var err error
			fit, err = RandomEffects(ges, gse, opts)
			if err != nil {
				return SubgroupResult{}, fmt.Errorf("subgroup %q: %w", label, err)
			}
		}
		res.Groups = append(res.Groups, GroupFit{Group: label, Fit: fit})
	}

	res.QBetween, res.QBetweenDF = betweenQ(res.Groups)
	res.QBetweenP = chiSquaredP(res.QBetween, res.QBetweenDF)
	return res, nil
}

// betweenQ is the fixed-effect heterogeneity statistic over the subgroup
// estimates.
func betweenQ(groups []GroupFit) (q float64, df int) {
	if len(groups) < 2 {
		return 0, 0
	}
	es := make([]float64, len(groups))
	se := make([]float64, len(groups))
	for i, g := range groups {
		es[i] = g.Fit.Estimate
		se[i] = g.Fit.SE
	}
	q, df = cochranQ(es, se)
	return q, df
}

// singleComparisonFit shapes one lone estimate as a degenerate fit so a
// subgroup table can still show the row.
func singleComparisonFit(es, se float64, opts Options) FitResult {
	level := opts.level()
	fit := FitResult{
		K:         1,
		Estimate:  es,
		SE:        se,
		Tau2:      0,
		I2:        0,
		H2:        1,
		QDF:       0,
		QP:        math.NaN(),
		PredLower: math.NaN(),
		PredUpper: math.NaN(),
		Estimator: opts.Estimator,
		Level:     level,
	}
	fit.Stat = es / se
	fit.P = normalP(fit.Stat)
	z := zQuantile(level)
	fit.CILower = es - z*se
	fit.CIUpper = es + z*se
	return fit
}

func groupIndices(labels []string) (order []string, byGroup map[string][]int) {
	byGroup = make(map[string][]int)
	for i, l := range labels {
		if _, seen := byGroup[l]; !seen {
			order = append(order, l)
		}
		byGroup[l] = append(byGroup[l], i)
	}
	return order, byGroup
}

func take(xs []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}
