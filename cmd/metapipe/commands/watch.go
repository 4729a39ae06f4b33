package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/metapipe/internal/config"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
	"git.home.luguber.info/inful/metapipe/internal/pipeline"
	"git.home.luguber.info/inful/metapipe/internal/serve"
)

// WatchCmd implements the 'watch' command: serve results over HTTP,
// re-running the pipeline when the dataset changes and restarting when the
// configuration file changes. Stops cleanly on SIGINT or SIGTERM.
type WatchCmd struct {
	DatasetFlags
	Listen  string        `help:"HTTP listen address (overrides config)"`
	Every   time.Duration `help:"Periodic re-run interval (overrides config)"`
	NoWatch bool          `name:"no-watch" help:"Serve without watching the dataset file"`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := root.Config
	if configPath == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			configPath = config.DefaultPath
		}
	}

	// Each pass builds a fresh server; a configuration change stops the
	// old one and loops. An invalid rewrite keeps the previous config.
	var prev *config.Config
	for {
		cfg, err := loadConfig(root)
		if err != nil {
			if prev == nil {
				return err
			}
			slog.Error("configuration change rejected, keeping previous", logfields.Error(err))
			cfg = prev
		}
		w.applyOverrides(cfg)
		prev = cfg

		store, err := openStore(cfg, false)
		if err != nil {
			return err
		}
		srv := serve.New(cfg, pipeline.New(cfg, store), store)
		if configPath != "" {
			srv.WatchConfig(configPath)
		}
		err = srv.Run(ctx)
		if store != nil {
			_ = store.Close()
		}
		if errors.Is(err, serve.ErrConfigChanged) {
			slog.Info("configuration changed, restarting")
			continue
		}
		return err
	}
}

func (w *WatchCmd) applyOverrides(cfg *config.Config) {
	w.apply(cfg)
	if w.Listen != "" {
		cfg.Serve.Listen = w.Listen
	}
	if w.Every > 0 {
		cfg.Serve.Every = w.Every.String()
	}
	cfg.Serve.Watch = !w.NoWatch
}
