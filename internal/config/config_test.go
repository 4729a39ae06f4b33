package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metapipe/internal/analysis"
	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/metastats"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metapipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Dataset.Format)
	assert.Equal(t, dataset.DefaultSuffix1, cfg.Dataset.Suffix1)
	assert.Equal(t, dataset.DefaultSuffix2, cfg.Dataset.Suffix2)
	assert.Equal(t, "combined", cfg.Analysis.Model)
	assert.Equal(t, "reml", cfg.Analysis.Estimator)
	assert.Equal(t, 0.95, cfg.Analysis.Level)
	assert.Equal(t, ":8080", cfg.Serve.Listen)
	assert.Equal(t, "metapipe.db", cfg.Runlog.Path)
	assert.Equal(t, "text", cfg.Report.Format)
}

func TestLoadExplicitMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dataset:
  path: trials.csv
  layout: long
  label: anxiety
analysis:
  model: threelevel
  estimator: pm
  level: 0.9
serve:
  listen: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "long", cfg.Dataset.Layout)
	assert.Equal(t, "anxiety", cfg.Dataset.Label)
	assert.Equal(t, "threelevel", cfg.Analysis.Model)
	assert.Equal(t, "pm", cfg.Analysis.Estimator)
	assert.Equal(t, 0.9, cfg.Analysis.Level)
	assert.Equal(t, ":9090", cfg.Serve.Listen)
	// Untouched keys keep their defaults.
	assert.Equal(t, dataset.DefaultSuffix1, cfg.Dataset.Suffix1)
	assert.Equal(t, "metapipe.db", cfg.Runlog.Path)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("METAPIPE_DATA", "/srv/data/trials.csv")
	path := writeConfig(t, "dataset:\n  path: ${METAPIPE_DATA}\n  layout: wide\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data/trials.csv", cfg.Dataset.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Dataset.Format = "parquet" },
			wantErr: "unknown dataset format",
		},
		{
			name:    "bad layout",
			mutate:  func(c *Config) { c.Dataset.Layout = "diagonal" },
			wantErr: "layout",
		},
		{
			name:    "equal suffixes",
			mutate:  func(c *Config) { c.Dataset.Suffix1 = "_a"; c.Dataset.Suffix2 = "_a" },
			wantErr: "suffixes must differ",
		},
		{
			name:    "bad model",
			mutate:  func(c *Config) { c.Analysis.Model = "bayesian" },
			wantErr: "model",
		},
		{
			name:    "bad estimator",
			mutate:  func(c *Config) { c.Analysis.Estimator = "sj" },
			wantErr: "estimator",
		},
		{
			name:    "level too high",
			mutate:  func(c *Config) { c.Analysis.Level = 1.5 },
			wantErr: "confidence level",
		},
		{
			name:    "negative cer",
			mutate:  func(c *Config) { c.Analysis.CER = -0.1 },
			wantErr: "control event rate",
		},
		{
			name: "unknown priority rule",
			mutate: func(c *Config) {
				c.Analysis.Priority = []PriorityRule{{Rule: "prefer-newest"}}
			},
			wantErr: "unknown rule",
		},
		{
			name: "prefer-condition without values",
			mutate: func(c *Config) {
				c.Analysis.Priority = []PriorityRule{{Rule: "prefer-condition"}}
			},
			wantErr: "needs values",
		},
		{
			name: "prefer-lowest without column",
			mutate: func(c *Config) {
				c.Analysis.Priority = []PriorityRule{{Rule: "prefer-lowest"}}
			},
			wantErr: "needs a column",
		},
		{
			name:    "bad report format",
			mutate:  func(c *Config) { c.Report.Format = "pdf" },
			wantErr: "report format",
		},
		{
			name:    "bad serve interval",
			mutate:  func(c *Config) { c.Serve.Every = "often" },
			wantErr: "serve.every",
		},
		{
			name:    "negative serve interval",
			mutate:  func(c *Config) { c.Serve.Every = "-5m" },
			wantErr: "must be positive",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, Default().Validate())
	})
}

func TestEffectOptions(t *testing.T) {
	cfg := Default()
	cfg.Analysis.FlipSign = true

	opts := cfg.EffectOptions()
	assert.True(t, opts.FlipSign)
	require.NotNil(t, opts.Schema)
	assert.Equal(t, dataset.DefaultSuffix1, opts.Schema.Suffix1)
}

func TestSchemaUsesConfiguredSuffixes(t *testing.T) {
	cfg := Default()
	cfg.Dataset.Suffix1 = "_ig"
	cfg.Dataset.Suffix2 = "_cg"

	s := cfg.Schema()
	f, ok := s.Field(dataset.FieldMean)
	require.True(t, ok)
	assert.Equal(t, "mean_ig", f.Arm1)
	assert.Equal(t, "mean_cg", f.Arm2)
}

func TestLayoutRequired(t *testing.T) {
	cfg := Default()
	_, err := cfg.Layout()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout is required")

	cfg.Dataset.Layout = "wide"
	l, err := cfg.Layout()
	require.NoError(t, err)
	assert.Equal(t, dataset.LayoutWide, l)
}

func TestLabelFallback(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "dataset", cfg.Label())

	cfg.Dataset.Path = "/srv/data/trials.csv"
	assert.Equal(t, "trials.csv", cfg.Label())

	cfg.Dataset.Label = "depression"
	assert.Equal(t, "depression", cfg.Label())
}

func TestCheckSpecOverrides(t *testing.T) {
	cfg := Default()
	cfg.Checks.Required = []string{dataset.FieldStudy}
	cfg.Checks.Allowed = map[string][]string{
		dataset.FieldRiskOfBias: {"low", "high"},
		"format":                {"group", "individual"},
	}

	spec := cfg.CheckSpec()
	assert.Equal(t, []string{dataset.FieldStudy}, spec.Required)
	assert.Equal(t, []string{"low", "high"}, spec.Allowed[dataset.FieldRiskOfBias])
	assert.Equal(t, []string{"group", "individual"}, spec.Allowed["format"])
	// Untouched defaults survive.
	assert.Contains(t, spec.Allowed, dataset.FieldOutcomeType)
}

func TestChain(t *testing.T) {
	cfg := Default()
	chain, err := cfg.Chain()
	require.NoError(t, err)
	assert.Nil(t, chain)

	cfg.Analysis.Priority = []PriorityRule{
		{Rule: "prefer-condition", Values: []string{"cau"}},
		{Rule: "prefer-primary-outcome"},
		{Rule: "prefer-highest", Column: "n_trt1"},
	}
	chain, err = cfg.Chain()
	require.NoError(t, err)
	assert.NotNil(t, chain)
}

func TestAnalysisSpec(t *testing.T) {
	cfg := Default()
	cfg.Dataset.Label = "depression"
	cfg.Dataset.ControlConditions = []string{"cau"}
	cfg.Analysis.Model = "outliers-removed"
	cfg.Analysis.Estimator = "dl"
	cfg.Analysis.KnappHartung = true
	cfg.Analysis.CER = 0.2
	cfg.Analysis.Subgroups = []string{"format"}
	cfg.Analysis.Priority = []PriorityRule{{Rule: "prefer-primary-outcome"}}

	spec, err := cfg.AnalysisSpec()
	require.NoError(t, err)

	assert.Equal(t, "depression", spec.Dataset)
	assert.Equal(t, analysis.ModelOutliersRemoved, spec.Model)
	assert.Equal(t, metastats.EstimatorDL, spec.Estimator)
	assert.True(t, spec.KnappHartung)
	assert.Equal(t, 0.95, spec.Level)
	assert.Equal(t, 0.2, spec.CER)
	assert.Equal(t, []string{"format"}, spec.SubgroupVars)
	assert.NotNil(t, spec.Priority)
	assert.Equal(t, []string{"cau"}, spec.Arms.ControlConditions)
}

func TestWatchInterval(t *testing.T) {
	cfg := Default()
	d, err := cfg.WatchInterval()
	require.NoError(t, err)
	assert.Zero(t, d)

	cfg.Serve.Every = "90s"
	d, err = cfg.WatchInterval()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metapipe.yaml")

	require.NoError(t, Init(path, false))

	err := Init(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, Init(path, true))

	// The generated example must load and validate cleanly.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wide", cfg.Dataset.Layout)
	assert.Equal(t, "depression-psychotherapy", cfg.Dataset.Label)
	require.Len(t, cfg.Analysis.Priority, 2)
	assert.Equal(t, "prefer-condition", cfg.Analysis.Priority[0].Rule)
}
