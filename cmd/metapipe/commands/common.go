// Package commands defines the CLI surface: the kong grammar, shared
// configuration resolution, and one thin Run method per command over the
// internal packages.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/metapipe/internal/config"
	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/ingest"
	"git.home.luguber.info/inful/metapipe/internal/normalize"
	"git.home.luguber.info/inful/metapipe/internal/pipeline"
	"git.home.luguber.info/inful/metapipe/internal/report"
	"git.home.luguber.info/inful/metapipe/internal/runlog"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI is the root grammar: global flags plus one struct per command.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path (metapipe.yaml is picked up when present)"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format: text or json"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init    InitCmd    `cmd:"" help:"Write a starter configuration file"`
	Check   CheckCmd   `cmd:"" help:"Run format checks against the dataset"`
	Expand  ExpandCmd  `cmd:"" help:"Expand multi-arm studies into pairwise comparison rows"`
	Effects EffectsCmd `cmd:"" help:"Compute effect sizes for every comparison"`
	Analyze AnalyzeCmd `cmd:"" help:"Fit one pooling model and print the report"`
	Run     RunCmd     `cmd:"" help:"Run the full pipeline and record the outcome"`
	History HistoryCmd `cmd:"" help:"Show recorded runs"`
	Watch   WatchCmd   `cmd:"" help:"Serve results over HTTP, re-running on dataset changes"`
}

// AfterApply runs after flag parsing; loadConfig refines the level and
// format once a command reads the configuration file.
func (c *CLI) AfterApply() error {
	format, err := config.ParseLogFormat(c.LogFormat)
	if err != nil {
		return err
	}
	level := config.LogLevelInfo
	if c.Verbose {
		level = config.LogLevelDebug
	}
	config.SetupLogging(level, format)
	return nil
}

// loadConfig resolves the configuration file and re-applies logging with
// the configured level and format underneath any flags.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	level := config.NormalizeLogLevel(cfg.Logging.Level)
	if root.Verbose {
		level = config.LogLevelDebug
	}
	format := config.NormalizeLogFormat(cfg.Logging.Format)
	if root.LogFormat != "" {
		format = config.NormalizeLogFormat(root.LogFormat)
	}
	config.SetupLogging(level, format)
	return cfg, nil
}

// DatasetFlags override the configured dataset source on commands that
// read it.
type DatasetFlags struct {
	Dataset       string `short:"d" help:"Dataset file path (overrides config)"`
	Layout        string `short:"l" help:"Dataset layout: wide or long (overrides config)"`
	DatasetFormat string `name:"dataset-format" help:"Dataset file format: auto, csv, stata, sas (overrides config)"`
}

func (f DatasetFlags) apply(cfg *config.Config) {
	if f.Dataset != "" {
		cfg.Dataset.Path = f.Dataset
	}
	if f.Layout != "" {
		cfg.Dataset.Layout = f.Layout
	}
	if f.DatasetFormat != "" {
		cfg.Dataset.Format = f.DatasetFormat
	}
}

// loadDataset reads the configured dataset and resolves its layout.
func loadDataset(cfg *config.Config) (*dataset.Table, dataset.Layout, error) {
	if cfg.Dataset.Path == "" {
		return nil, dataset.LayoutUnknown, fmt.Errorf("a dataset path is required (--dataset or dataset.path in the config)")
	}
	layout, err := cfg.Layout()
	if err != nil {
		return nil, dataset.LayoutUnknown, err
	}
	format, err := cfg.Format()
	if err != nil {
		return nil, dataset.LayoutUnknown, err
	}
	tbl, err := ingest.Read(cfg.Dataset.Path, format)
	if err != nil {
		return nil, dataset.LayoutUnknown, err
	}
	return tbl, layout, nil
}

// checkedDataset ingests the dataset and runs the format checks, logging
// any warnings.
func checkedDataset(cfg *config.Config) (dataset.Normalized, *normalize.Report, error) {
	tbl, layout, err := loadDataset(cfg)
	if err != nil {
		return dataset.Normalized{}, nil, err
	}
	n, rep, err := normalize.Check(tbl, layout, cfg.CheckSpec())
	if err != nil {
		return dataset.Normalized{}, nil, err
	}
	if w := rep.WarningCount(); w > 0 {
		slog.Warn("format checks found issues", slog.Int("warnings", w))
	}
	return n, rep, nil
}

// openStore opens the run log unless disabled or unconfigured.
func openStore(cfg *config.Config, disabled bool) (*runlog.Store, error) {
	if disabled || cfg.Runlog.Path == "" {
		return nil, nil
	}
	store, err := runlog.Open(cfg.Runlog.Path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return store, nil
}

// emitReport renders the outcome in the requested format and writes it to
// path, or stdout when path is empty.
func emitReport(o pipeline.Outcome, cfg *config.Config, format, path string) error {
	if format == "" {
		format = cfg.Report.Format
	}
	opts := report.Options{Title: cfg.Report.Title, Diagnostics: o.Checks}
	var body string
	switch format {
	case "", "text":
		body = report.RenderText(o.Result, opts)
	case "markdown":
		body = report.RenderMarkdown(o.Result, opts)
	default:
		return fmt.Errorf("unknown report format %q (valid: text, markdown)", format)
	}
	if path == "" {
		_, err := io.WriteString(os.Stdout, body)
		return err
	}
	return os.WriteFile(path, []byte(body), 0o644)
}

// writeTable emits the table as CSV to path, or stdout when path is empty.
func writeTable(path string, tbl *dataset.Table) error {
	if path == "" {
		return ingest.WriteCSV(os.Stdout, tbl)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ingest.WriteCSV(f, tbl); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
