package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/metapipe/internal/runlog"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int    `short:"n" default:"20" help:"Most recent runs to show"`
	RunID string `name:"run" help:"Show one run by its identifier"`
	JSON  bool   `help:"Emit JSON instead of text"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if cfg.Runlog.Path == "" {
		return fmt.Errorf("no run log configured (runlog.path)")
	}
	store, err := runlog.Open(cfg.Runlog.Path)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if h.RunID != "" {
		rec, err := store.ByRunID(ctx, h.RunID)
		if err != nil {
			return err
		}
		return h.emit([]runlog.Record{rec})
	}
	recs, err := store.History(ctx, h.Limit)
	if err != nil {
		return err
	}
	return h.emit(recs)
}

func (h *HistoryCmd) emit(recs []runlog.Record) error {
	if h.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, rec := range recs {
		sum := rec.Summary
		fmt.Printf("%s  %s  %s/%s  g=%.2f [%.2f, %.2f]  k=%d\n",
			rec.StartedAt.Format(time.RFC3339), rec.RunID,
			rec.Dataset, rec.Model,
			float64(sum.Estimate), float64(sum.CILower), float64(sum.CIUpper), sum.K)
	}
	return nil
}
