package commands

import (
	"context"

	"git.home.luguber.info/inful/metapipe/internal/config"
	"git.home.luguber.info/inful/metapipe/internal/pipeline"
)

// AnalyzeCmd implements the 'analyze' command: one pooling model, report
// on stdout, nothing recorded in the run log.
type AnalyzeCmd struct {
	DatasetFlags
	Model        string   `short:"m" help:"Pooling model: combined, threelevel, outliers-removed, influence, rob (overrides config)"`
	Estimator    string   `short:"e" help:"Between-study variance estimator: dl, pm, reml (overrides config)"`
	KnappHartung bool     `name:"knapp-hartung" help:"Use the Knapp-Hartung adjustment"`
	Level        float64  `help:"Confidence level, e.g. 0.95 (overrides config)"`
	CER          float64  `name:"cer" help:"Control event rate for the NNT conversion (overrides config)"`
	Subgroup     []string `help:"Moderator column for a subgroup or meta-regression fit; repeatable"`
	FlipSign     bool     `name:"flip-sign" help:"Negate every effect so lower scores mean improvement"`
	Title        string   `help:"Report title (overrides config)"`
	Format       string   `short:"f" help:"Report format: text or markdown (overrides config)"`
	Out          string   `short:"o" help:"Write the report to this file instead of stdout"`
}

func (a *AnalyzeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	a.apply(cfg)
	a.applyAnalysis(cfg)

	outcome, err := pipeline.New(cfg, nil).Run(context.Background())
	if err != nil {
		return err
	}
	return emitReport(outcome, cfg, a.Format, a.Out)
}

func (a *AnalyzeCmd) applyAnalysis(cfg *config.Config) {
	if a.Model != "" {
		cfg.Analysis.Model = a.Model
	}
	if a.Estimator != "" {
		cfg.Analysis.Estimator = a.Estimator
	}
	if a.KnappHartung {
		cfg.Analysis.KnappHartung = true
	}
	if a.Level != 0 {
		cfg.Analysis.Level = a.Level
	}
	if a.CER != 0 {
		cfg.Analysis.CER = a.CER
	}
	if len(a.Subgroup) > 0 {
		cfg.Analysis.Subgroups = a.Subgroup
	}
	if a.FlipSign {
		cfg.Analysis.FlipSign = true
	}
	if a.Title != "" {
		cfg.Report.Title = a.Title
	}
}
