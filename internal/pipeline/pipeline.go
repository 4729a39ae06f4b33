// Package pipeline runs the full analysis flow end to end: ingest, format
// checks, multi-arm expansion, effect sizes, pooling, run history. The CLI
// and the watch server share this one orchestration.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/metapipe/internal/analysis"
	"git.home.luguber.info/inful/metapipe/internal/config"
	"git.home.luguber.info/inful/metapipe/internal/effectsize"
	"git.home.luguber.info/inful/metapipe/internal/ingest"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
	"git.home.luguber.info/inful/metapipe/internal/multiarm"
	"git.home.luguber.info/inful/metapipe/internal/normalize"
	"git.home.luguber.info/inful/metapipe/internal/runlog"
)

// Outcome bundles everything one pipeline pass produces.
type Outcome struct {
	RunID  string
	Result analysis.Result
	// Checks carries the format-check diagnostics from the normalizer pass.
	Checks *normalize.Report
	// Effects summarizes the calculator pass: rows per schema and rows it
	// could not serve.
	Effects   effectsize.Result
	StartedAt time.Time
	Duration  time.Duration
}

// Runner executes pipeline passes for one configuration.
type Runner struct {
	cfg   *config.Config
	store *runlog.Store
}

// New builds a runner. The run store may be nil, in which case no history is
// kept.
func New(cfg *config.Config, store *runlog.Store) *Runner {
	return &Runner{cfg: cfg, store: store}
}

// Run executes one full pass over the configured dataset.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	start := time.Now()

	if r.cfg.Dataset.Path == "" {
		return Outcome{}, fmt.Errorf("pipeline: dataset path is required")
	}
	layout, err := r.cfg.Layout()
	if err != nil {
		return Outcome{}, err
	}
	format, err := r.cfg.Format()
	if err != nil {
		return Outcome{}, err
	}

	tbl, err := ingest.Read(r.cfg.Dataset.Path, format)
	if err != nil {
		return Outcome{}, err
	}

	normalized, checks, err := normalize.Check(tbl, layout, r.cfg.CheckSpec())
	if err != nil {
		return Outcome{}, err
	}
	if n := checks.WarningCount(); n > 0 {
		slog.Warn("format checks found issues",
			logfields.Stage("check"),
			slog.Int("warnings", n))
	}

	expanded, err := multiarm.Expand(normalized, r.cfg.ArmsOptions())
	if err != nil {
		return Outcome{}, err
	}
	slog.Debug("comparisons expanded",
		logfields.Stage("expand"),
		logfields.Rows(expanded.Table.NumRows()))

	effects, err := effectsize.Compute(expanded, r.cfg.EffectOptions())
	if err != nil {
		return Outcome{}, err
	}
	if n := len(effects.Skipped); n > 0 {
		slog.Warn("rows without a usable effect-size schema",
			logfields.Stage("effects"),
			logfields.Rows(n))
	}

	spec, err := r.cfg.AnalysisSpec()
	if err != nil {
		return Outcome{}, err
	}
	res, err := analysis.Run(effects.Data, spec)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		RunID:     res.RunID,
		Result:    res,
		Checks:    checks,
		Effects:   effects,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	r.record(ctx, outcome)

	slog.Info("pipeline complete",
		logfields.RunID(outcome.RunID),
		logfields.Model(res.Model.String()),
		logfields.Comparisons(res.K),
		logfields.Studies(res.Studies),
		logfields.DurationMS(float64(outcome.Duration)/float64(time.Millisecond)))
	return outcome, nil
}

// record persists the run when a store is attached. History is auxiliary: a
// storage failure is logged, not propagated, so the analysis result still
// reaches the caller.
func (r *Runner) record(ctx context.Context, o Outcome) {
	if r.store == nil {
		return
	}
	params, err := json.Marshal(map[string]any{
		"model":              r.cfg.Analysis.Model,
		"estimator":          r.cfg.Analysis.Estimator,
		"knapp_hartung":      r.cfg.Analysis.KnappHartung,
		"flip_sign":          r.cfg.Analysis.FlipSign,
		"level":              r.cfg.Analysis.Level,
		"control_event_rate": r.cfg.Analysis.CER,
		"low_risk":           r.cfg.Analysis.LowRisk,
		"subgroups":          r.cfg.Analysis.Subgroups,
	})
	if err != nil {
		slog.Warn("run parameters not serializable", logfields.Error(err))
	}
	sum := runlog.Summarize(o.Result)
	sum.Warnings = o.Checks.WarningCount()
	rec := runlog.Record{
		RunID:      o.RunID,
		Dataset:    r.cfg.Label(),
		Model:      o.Result.Model.String(),
		Params:     params,
		Summary:    sum,
		StartedAt:  o.StartedAt,
		DurationMS: float64(o.Duration) / float64(time.Millisecond),
	}
	if err := r.store.Append(ctx, rec); err != nil {
		slog.Warn("run history not recorded", logfields.RunID(o.RunID), logfields.Error(err))
	}
}
