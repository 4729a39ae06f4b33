package commands

import (
	"log/slog"
	"sort"

	"git.home.luguber.info/inful/metapipe/internal/effectsize"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
	"git.home.luguber.info/inful/metapipe/internal/multiarm"
)

// EffectsCmd implements the 'effects' command.
type EffectsCmd struct {
	DatasetFlags
	FlipSign bool   `name:"flip-sign" help:"Negate every effect so lower scores mean improvement"`
	Out      string `short:"o" help:"Write the annotated table to this file instead of stdout"`
}

func (e *EffectsCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	e.apply(cfg)
	if e.FlipSign {
		cfg.Analysis.FlipSign = true
	}

	n, _, err := checkedDataset(cfg)
	if err != nil {
		return err
	}
	expanded, err := multiarm.Expand(n, cfg.ArmsOptions())
	if err != nil {
		return err
	}
	res, err := effectsize.Compute(expanded, cfg.EffectOptions())
	if err != nil {
		return err
	}

	for _, skip := range res.Skipped {
		slog.Warn("no usable effect-size schema",
			logfields.Study(skip.Study),
			slog.Int("row", skip.Row),
			slog.String("reason", skip.Reason))
	}
	kinds := make([]effectsize.SchemaKind, 0, len(res.Counts))
	for k := range res.Counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		slog.Info("effect sizes computed",
			logfields.Schema(k.String()),
			logfields.Rows(res.Counts[k]))
	}
	return writeTable(e.Out, res.Data.Table)
}
