package commands

import (
	"context"

	"git.home.luguber.info/inful/metapipe/internal/pipeline"
)

// RunCmd implements the 'run' command: the full pipeline as configured,
// with the outcome recorded in the run log.
type RunCmd struct {
	DatasetFlags
	Format    string `short:"f" help:"Report format: text or markdown (overrides config)"`
	Out       string `short:"o" help:"Write the report to this file instead of stdout"`
	NoHistory bool   `name:"no-history" help:"Skip recording this run in the run log"`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	r.apply(cfg)

	store, err := openStore(cfg, r.NoHistory)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	outcome, err := pipeline.New(cfg, store).Run(context.Background())
	if err != nil {
		return err
	}
	return emitReport(outcome, cfg, r.Format, r.Out)
}
