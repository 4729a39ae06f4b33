// Package analysis orchestrates a pooled fit over an effect-size-annotated
// table: it masks unusable rows, collapses multi-arm studies to one
// comparison each (except for the nested model, which wants them all), hands
// the arrays to metastats, and shapes a uniform result whatever the model.
package analysis

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
	"git.home.luguber.info/inful/metapipe/internal/metastats"
	"git.home.luguber.info/inful/metapipe/internal/multiarm"
)

// Spec is the full parameter set of one analysis run.
type Spec struct {
	// Dataset is a display label carried through to the result and run log.
	Dataset string

	Model        Model
	Estimator    metastats.Estimator
	KnappHartung bool
	// Level is the confidence level; 0.95 when zero.
	Level float64

	// CER is the control event rate for the number-needed-to-treat
	// conversion; zero leaves NNT unset.
	CER float64

	// LowRisk lists the risk-of-bias ratings the rob model keeps;
	// {"low"} when empty.
	LowRisk []string

	// SubgroupVars names moderator columns; each gets a stratified fit
	// (categorical) or a meta-regression (numeric).
	SubgroupVars []string

	// Priority breaks ties when a multi-arm study must collapse to a
	// single comparison; nil keeps the first.
	Priority *multiarm.Chain

	// Arms carries the schema and control vocabulary for collapsing.
	Arms multiarm.Options
}

func (s Spec) level() float64 {
	if s.Level <= 0 || s.Level >= 1 {
		return 0.95
	}
	return s.Level
}

func (s Spec) lowRisk() []string {
	if len(s.LowRisk) == 0 {
		return []string{"low"}
	}
	return s.LowRisk
}

func (s Spec) options() metastats.Options {
	return metastats.Options{
		Estimator:    s.Estimator,
		KnappHartung: s.KnappHartung,
		Level:        s.level(),
	}
}

// OutlierInfo describes an outliers-removed refit.
type OutlierInfo struct {
	// Removed lists the studies whose comparison was dropped.
	Removed []string
	// Original is the all-comparisons fit the outliers were judged against.
	Original metastats.FitResult
}

// InfluenceRow is one leave-one-out refit, labeled by the omitted study.
type InfluenceRow struct {
	Study string
	Fit   metastats.FitResult
}

// InfluenceInfo is the leave-one-out table with the largest shift flagged.
type InfluenceInfo struct {
	Rows []InfluenceRow
	// MostInfluential is the study whose omission moves the pooled estimate
	// furthest, with the size of that move.
	MostInfluential string
	Shift           float64
}

// SubgroupRow is one line of the moderator summary table.
type SubgroupRow struct {
	Variable string
	Group    string
	K        int
	Estimate float64
	CILower  float64
	CIUpper  float64
	I2       float64
	NNT      float64
	P        float64
}

// Result is the uniform outcome of a run.
type Result struct {
	RunID   string
	Dataset string
	Model   Model

	K       int // comparisons pooled
	Studies int // distinct studies pooled
	Masked  int // rows dropped for missing effect data

	// Fit is the primary pooled fit, whatever the model.
	Fit metastats.FitResult
	// Fixed is the inverse-variance companion, combined model only.
	Fixed *metastats.FitResult

	// Test-based confidence bounds on I2; NaN when undefined.
	I2Lower float64
	I2Upper float64

	// NNT at the requested control event rate; NaN when none was given.
	NNT float64

	Outliers   *OutlierInfo
	Influence  *InfluenceInfo
	ThreeLevel *metastats.ThreeLevelResult

	Subgroups []SubgroupRow
}

// Run executes one analysis pass over an effect-size-annotated table.
func Run(n dataset.Normalized, spec Spec) (Result, error) {
	if n.Layout != dataset.LayoutWide {
		return Result{}, fmt.Errorf("analysis: need a wide table, got layout %v", n.Layout)
	}

	masked, dropped := maskEffects(n)
	collapsed, err := multiarm.CollapseToOnePerStudy(masked, spec.Priority, spec.Arms)
	if err != nil {
		return Result{}, fmt.Errorf("analysis: collapse: %w", err)
	}

	res := Result{
		RunID:   uuid.NewString(),
		Dataset: spec.Dataset,
		Model:   spec.Model,
		Masked:  dropped,
		NNT:     math.NaN(),
		I2Lower: math.NaN(),
		I2Upper: math.NaN(),
	}

	switch spec.Model {
	case ModelCombined:
		err = res.fitCombined(collapsed, spec)
	case ModelThreeLevel:
		err = res.fitThreeLevel(masked, spec)
	case ModelOutliersRemoved:
		err = res.fitOutliersRemoved(collapsed, spec)
	case ModelInfluence:
		err = res.fitInfluence(collapsed, spec)
	case ModelRobSubset:
		err = res.fitRobSubset(collapsed, spec)
	default:
		err = fmt.Errorf("%w: %v", ErrUnknownModel, spec.Model)
	}
	if err != nil {
		return Result{}, err
	}

	if spec.CER != 0 {
		nnt, err := NNT(res.Fit.Estimate, spec.CER)
		if err != nil {
			return Result{}, err
		}
		res.NNT = nnt
	}

	if len(spec.SubgroupVars) > 0 {
		rows, err := moderatorTable(collapsed, spec)
		if err != nil {
			return Result{}, err
		}
		res.Subgroups = rows
	}

	slog.Info("analysis complete",
		logfields.RunID(res.RunID),
		logfields.Model(spec.Model.String()),
		logfields.Comparisons(res.K),
		logfields.Studies(res.Studies))
	return res, nil
}

func (r *Result) fitCombined(collapsed dataset.Normalized, spec Spec) error {
	es, se, studies := effectArrays(collapsed.Table)
	fit, err := metastats.RandomEffects(es, se, spec.options())
	if err != nil {
		return err
	}
	fixed, err := metastats.FixedEffect(es, se, spec.level())
	if err != nil {
		return err
	}
	r.finish(fit, studies)
	r.Fixed = &fixed
	return nil
}

func (r *Result) fitThreeLevel(masked dataset.Normalized, spec Spec) error {
	es, se, studies := effectArrays(masked.Table)
	tl, err := metastats.ThreeLevel(es, se, studies, spec.options())
	if err != nil {
		return err
	}

	// Shape the nested fit into the uniform slot; Q-based fields have no
	// nested counterpart.
	fit := metastats.FitResult{
		K:         tl.K,
		Estimate:  tl.Estimate,
		SE:        tl.SE,
		CILower:   tl.CILower,
		CIUpper:   tl.CIUpper,
		Stat:      tl.Stat,
		P:         tl.P,
		Tau2:      tl.Tau2,
		I2:        tl.I2Between + tl.I2Within,
		H2:        1,
		QP:        math.NaN(),
		PredLower: math.NaN(),
		PredUpper: math.NaN(),
		Estimator: spec.Estimator,
		Level:     spec.level(),
	}
	r.Fit = fit
	r.K = tl.K
	r.Studies = tl.Clusters
	r.ThreeLevel = &tl
	return nil
}

func (r *Result) fitOutliersRemoved(collapsed dataset.Normalized, spec Spec) error {
	es, se, studies := effectArrays(collapsed.Table)
	full, err := metastats.RandomEffects(es, se, spec.options())
	if err != nil {
		return err
	}

	z := zCritical(spec.level())
	var kes, kse []float64
	var kept, removed []string
	for i := range es {
		lo := es[i] - z*se[i]
		hi := es[i] + z*se[i]
		if lo > full.CIUpper || hi < full.CILower {
			removed = append(removed, studies[i])
			continue
		}
		kes = append(kes, es[i])
		kse = append(kse, se[i])
		kept = append(kept, studies[i])
	}

	refit, err := metastats.RandomEffects(kes, kse, spec.options())
	if err != nil {
		return fmt.Errorf("analysis: refit after removing %d outliers: %w", len(removed), err)
	}
	r.finish(refit, kept)
	r.Outliers = &OutlierInfo{Removed: removed, Original: full}
	return nil
}

func (r *Result) fitInfluence(collapsed dataset.Normalized, spec Spec) error {
	es, se, studies := effectArrays(collapsed.Table)
	full, err := metastats.RandomEffects(es, se, spec.options())
	if err != nil {
		return err
	}
	rows, err := metastats.LeaveOneOut(es, se, spec.options())
	if err != nil {
		return err
	}

	info := &InfluenceInfo{}
	for _, row := range rows {
		info.Rows = append(info.Rows, InfluenceRow{Study: studies[row.Omitted], Fit: row.Fit})
	}
	if omitted, shift := metastats.MostInfluential(full, rows); omitted >= 0 {
		info.MostInfluential = studies[omitted]
		info.Shift = shift
	}

	r.finish(full, studies)
	r.Influence = info
	return nil
}

func (r *Result) fitRobSubset(collapsed dataset.Normalized, spec Spec) error {
	if !collapsed.Table.HasColumn(dataset.FieldRiskOfBias) {
		return fmt.Errorf("analysis: no %q column to subset on", dataset.FieldRiskOfBias)
	}
	low := make(map[string]bool)
	for _, v := range spec.lowRisk() {
		low[strings.ToLower(v)] = true
	}

	subset := collapsed.Table.Filter(func(i int) bool {
		rating, ok := collapsed.Table.Cell(i, dataset.FieldRiskOfBias).AsString()
		return ok && low[strings.ToLower(rating)]
	})

	es, se, studies := effectArrays(subset)
	fit, err := metastats.RandomEffects(es, se, spec.options())
	if err != nil {
		return fmt.Errorf("analysis: low risk-of-bias subset: %w", err)
	}
	r.finish(fit, studies)
	return nil
}

// finish installs the primary fit and the counts derived from it.
func (r *Result) finish(fit metastats.FitResult, studies []string) {
	r.Fit = fit
	r.K = fit.K
	r.Studies = distinctCount(studies)
	r.I2Lower, r.I2Upper = i2Interval(fit.Q, fit.K, fit.Level)
}

// maskEffects drops rows without a finite effect and standard error,
// returning the kept rows and the drop count.
func maskEffects(n dataset.Normalized) (dataset.Normalized, int) {
	t := n.Table
	kept := t.Filter(func(i int) bool {
		es, ok := t.Cell(i, dataset.FieldEffect).AsFloat()
		if !ok || math.IsNaN(es) || math.IsInf(es, 0) {
			return false
		}
		se, ok := t.Cell(i, dataset.FieldEffectSE).AsFloat()
		return ok && se > 0 && !math.IsInf(se, 0)
	})
	dropped := t.NumRows() - kept.NumRows()
	if dropped > 0 {
		slog.Debug("masked rows without usable effect data", logfields.Rows(dropped))
	}
	return dataset.Normalized{Table: kept, Layout: n.Layout}, dropped
}

// effectArrays pulls the pooled columns out of a masked table.
func effectArrays(t *dataset.Table) (es, se []float64, studies []string) {
	for i := 0; i < t.NumRows(); i++ {
		e, _ := t.Cell(i, dataset.FieldEffect).AsFloat()
		s, _ := t.Cell(i, dataset.FieldEffectSE).AsFloat()
		es = append(es, e)
		se = append(se, s)
		studies = append(studies, t.Cell(i, dataset.FieldStudy).String())
	}
	return es, se, studies
}

func distinctCount(labels []string) int {
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		seen[l] = true
	}
	return len(seen)
}

// sortSubgroupRows orders the moderator table by variable name while keeping
// each variable's groups in their encounter order.
func sortSubgroupRows(rows []SubgroupRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Variable < rows[j].Variable
	})
}
