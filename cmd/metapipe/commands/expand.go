package commands

import (
	"log/slog"

	"git.home.luguber.info/inful/metapipe/internal/logfields"
	"git.home.luguber.info/inful/metapipe/internal/multiarm"
)

// ExpandCmd implements the 'expand' command.
type ExpandCmd struct {
	DatasetFlags
	Out string `short:"o" help:"Write the expanded table to this file instead of stdout"`
}

func (e *ExpandCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	e.apply(cfg)

	n, _, err := checkedDataset(cfg)
	if err != nil {
		return err
	}
	expanded, err := multiarm.Expand(n, cfg.ArmsOptions())
	if err != nil {
		return err
	}
	slog.Info("comparisons expanded",
		logfields.Rows(n.Table.NumRows()),
		logfields.Comparisons(expanded.Table.NumRows()))
	return writeTable(e.Out, expanded.Table)
}
