// Package config loads, validates, and materializes pipeline configuration.
// A single YAML file drives every stage; builder methods hand each stage its
// typed piece so stages never parse raw strings themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/metapipe/internal/analysis"
	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/effectsize"
	"git.home.luguber.info/inful/metapipe/internal/ingest"
	"git.home.luguber.info/inful/metapipe/internal/metastats"
	"git.home.luguber.info/inful/metapipe/internal/multiarm"
	"git.home.luguber.info/inful/metapipe/internal/normalize"
)

// DefaultPath is the conventional config file name looked up when no path is
// given explicitly.
const DefaultPath = "metapipe.yaml"

// Config is the root configuration document.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Checks   ChecksConfig   `yaml:"checks"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Report   ReportConfig   `yaml:"report"`
	Serve    ServeConfig    `yaml:"serve"`
	Runlog   RunlogConfig   `yaml:"runlog"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatasetConfig locates and describes the input table.
type DatasetConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
	// Layout must name the input shape explicitly; loading fails without it.
	Layout  string `yaml:"layout"`
	Label   string `yaml:"label"`
	Suffix1 string `yaml:"suffix1"`
	Suffix2 string `yaml:"suffix2"`
	// ControlConditions overrides the built-in control-like condition labels
	// used to orient comparisons.
	ControlConditions []string `yaml:"control_conditions"`
}

// ChecksConfig overrides the standard format checks.
type ChecksConfig struct {
	Required []string            `yaml:"required"`
	Allowed  map[string][]string `yaml:"allowed"`
}

// PriorityRule is one step of the multi-arm collapse chain.
type PriorityRule struct {
	Rule   string   `yaml:"rule"`
	Values []string `yaml:"values,omitempty"`
	Column string   `yaml:"column,omitempty"`
}

// AnalysisConfig selects the model and its tuning.
type AnalysisConfig struct {
	Model        string `yaml:"model"`
	Estimator    string `yaml:"estimator"`
	KnappHartung bool   `yaml:"knapp_hartung"`
	// FlipSign negates every effect size, for outcomes where higher scores
	// mean worse results.
	FlipSign  bool           `yaml:"flip_sign"`
	Level     float64        `yaml:"level"`
	CER       float64        `yaml:"control_event_rate"`
	LowRisk   []string       `yaml:"low_risk"`
	Subgroups []string       `yaml:"subgroups"`
	Priority  []PriorityRule `yaml:"priority"`
}

// ReportConfig tunes report rendering.
type ReportConfig struct {
	Title  string `yaml:"title"`
	Format string `yaml:"format"`
}

// ServeConfig tunes the watch server.
type ServeConfig struct {
	Listen string `yaml:"listen"`
	Watch  bool   `yaml:"watch"`
	Every  string `yaml:"every"`
}

// RunlogConfig locates the run history database.
type RunlogConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig tunes the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a fully populated configuration; loading overlays the YAML
// document on top of it.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Format:  "auto",
			Suffix1: dataset.DefaultSuffix1,
			Suffix2: dataset.DefaultSuffix2,
		},
		Analysis: AnalysisConfig{
			Model:     "combined",
			Estimator: "reml",
			Level:     0.95,
		},
		Report: ReportConfig{Format: "text"},
		Serve:  ServeConfig{Listen: ":8080"},
		Runlog: RunlogConfig{Path: "metapipe.db"},
		Logging: LoggingConfig{
			Level:  string(LogLevelInfo),
			Format: string(LogFormatText),
		},
	}
}

// Load reads the configuration at path. An empty path falls back to
// DefaultPath when that file exists and to pure defaults otherwise; an
// explicit path must exist. Environment variables referenced as ${VAR} in
// the document are expanded, with a .env file honored first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No conventional file; defaults apply.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no stage could act on. The dataset layout is
// deliberately not validated here: commands that do not touch the dataset
// may run without one, and Layout() enforces it where it matters.
func (c *Config) Validate() error {
	if _, err := ingest.ParseFormat(c.Dataset.Format); err != nil {
		return err
	}
	if c.Dataset.Layout != "" {
		if _, err := dataset.ParseLayout(c.Dataset.Layout); err != nil {
			return err
		}
	}
	if c.Dataset.Suffix1 == c.Dataset.Suffix2 {
		return fmt.Errorf("config: arm suffixes must differ, both are %q", c.Dataset.Suffix1)
	}
	if _, err := analysis.ParseModel(c.Analysis.Model); err != nil {
		return err
	}
	if _, err := metastats.ParseEstimator(c.Analysis.Estimator); err != nil {
		return err
	}
	if l := c.Analysis.Level; l <= 0 || l >= 1 {
		return fmt.Errorf("config: confidence level must be in (0, 1), got %v", l)
	}
	if cer := c.Analysis.CER; cer < 0 || cer >= 1 {
		return fmt.Errorf("config: control event rate must be in [0, 1), got %v", cer)
	}
	if _, err := c.Chain(); err != nil {
		return err
	}
	switch c.Report.Format {
	case "", "text", "markdown":
	default:
		return fmt.Errorf("config: report format must be text or markdown, got %q", c.Report.Format)
	}
	if c.Serve.Every != "" {
		d, err := time.ParseDuration(c.Serve.Every)
		if err != nil {
			return fmt.Errorf("config: parse serve.every: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config: serve.every must be positive, got %v", d)
		}
	}
	if _, err := logLevelNormalizer.NormalizeWithError(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	if _, err := logFormatNormalizer.NormalizeWithError(c.Logging.Format); err != nil {
		return fmt.Errorf("config: logging.format: %w", err)
	}
	return nil
}

// Schema builds the column schema for the configured arm suffixes.
func (c *Config) Schema() *dataset.Schema {
	return dataset.NewSchema(c.Dataset.Suffix1, c.Dataset.Suffix2)
}

// Layout resolves the configured dataset layout; it is required.
func (c *Config) Layout() (dataset.Layout, error) {
	if c.Dataset.Layout == "" {
		return dataset.LayoutUnknown, fmt.Errorf("config: dataset layout is required (wide or long)")
	}
	return dataset.ParseLayout(c.Dataset.Layout)
}

// Format resolves the configured dataset format.
func (c *Config) Format() (ingest.Format, error) {
	return ingest.ParseFormat(c.Dataset.Format)
}

// Label returns the dataset label, falling back to the file name.
func (c *Config) Label() string {
	if c.Dataset.Label != "" {
		return c.Dataset.Label
	}
	if c.Dataset.Path != "" {
		return filepath.Base(c.Dataset.Path)
	}
	return "dataset"
}

// CheckSpec builds the format-check specification, applying configured
// overrides on top of the standard set.
func (c *Config) CheckSpec() normalize.CheckSpec {
	spec := normalize.DefaultCheckSpec(c.Schema())
	if len(c.Checks.Required) > 0 {
		spec.Required = append([]string(nil), c.Checks.Required...)
	}
	for col, vals := range c.Checks.Allowed {
		spec.Allowed[col] = append([]string(nil), vals...)
	}
	return spec
}

// ArmsOptions builds the multi-arm expansion options.
func (c *Config) ArmsOptions() multiarm.Options {
	return multiarm.Options{
		Schema:            c.Schema(),
		ControlConditions: c.Dataset.ControlConditions,
	}
}

// EffectOptions builds the effect-size calculator options.
func (c *Config) EffectOptions() effectsize.Options {
	return effectsize.Options{
		Schema:   c.Schema(),
		FlipSign: c.Analysis.FlipSign,
	}
}

// Chain builds the configured priority-rule chain, nil when no rules are
// configured.
func (c *Config) Chain() (*multiarm.Chain, error) {
	if len(c.Analysis.Priority) == 0 {
		return nil, nil
	}
	schema := c.Schema()
	rules := make([]multiarm.Rule, 0, len(c.Analysis.Priority))
	for i, pr := range c.Analysis.Priority {
		switch pr.Rule {
		case "prefer-condition":
			if len(pr.Values) == 0 {
				return nil, fmt.Errorf("config: priority rule %d: prefer-condition needs values", i+1)
			}
			rules = append(rules, multiarm.PreferCondition(schema, pr.Values...))
		case "prefer-primary-outcome":
			rules = append(rules, multiarm.PreferPrimaryOutcome(schema))
		case "prefer-lowest":
			if pr.Column == "" {
				return nil, fmt.Errorf("config: priority rule %d: prefer-lowest needs a column", i+1)
			}
			rules = append(rules, multiarm.PreferLowest(pr.Column))
		case "prefer-highest":
			if pr.Column == "" {
				return nil, fmt.Errorf("config: priority rule %d: prefer-highest needs a column", i+1)
			}
			rules = append(rules, multiarm.PreferHighest(pr.Column))
		default:
			return nil, fmt.Errorf("config: priority rule %d: unknown rule %q (valid: prefer-condition, prefer-primary-outcome, prefer-lowest, prefer-highest)", i+1, pr.Rule)
		}
	}
	return multiarm.NewChain(rules...), nil
}

// AnalysisSpec materializes the analysis specification.
func (c *Config) AnalysisSpec() (analysis.Spec, error) {
	model, err := analysis.ParseModel(c.Analysis.Model)
	if err != nil {
		return analysis.Spec{}, err
	}
	est, err := metastats.ParseEstimator(c.Analysis.Estimator)
	if err != nil {
		return analysis.Spec{}, err
	}
	chain, err := c.Chain()
	if err != nil {
		return analysis.Spec{}, err
	}
	return analysis.Spec{
		Dataset:      c.Label(),
		Model:        model,
		Estimator:    est,
		KnappHartung: c.Analysis.KnappHartung,
		Level:        c.Analysis.Level,
		CER:          c.Analysis.CER,
		LowRisk:      c.Analysis.LowRisk,
		SubgroupVars: c.Analysis.Subgroups,
		Priority:     chain,
		Arms:         c.ArmsOptions(),
	}, nil
}

// WatchInterval returns the configured periodic re-run interval, zero when
// disabled.
func (c *Config) WatchInterval() (time.Duration, error) {
	if c.Serve.Every == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Serve.Every)
}
