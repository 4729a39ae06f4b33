package report

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metapipe/internal/analysis"
	"git.home.luguber.info/inful/metapipe/internal/metastats"
	"git.home.luguber.info/inful/metapipe/internal/normalize"
)

func sampleResult() analysis.Result {
	return analysis.Result{
		RunID:   "run-00001",
		Dataset: "depression-trials",
		Model:   analysis.ModelCombined,
		K:       17,
		Studies: 16,
		Masked:  1,
		Fit: metastats.FitResult{
			K:         17,
			Estimate:  0.52,
			SE:        0.107,
			CILower:   0.31,
			CIUpper:   0.73,
			Stat:      4.86,
			P:         0.0001,
			Tau2:      0.04,
			Q:         43.2,
			QDF:       16,
			QP:        0.014,
			I2:        63.1,
			H2:        2.7,
			PredLower: -0.11,
			PredUpper: 1.15,
			Estimator: metastats.EstimatorREML,
			Level:     0.95,
		},
		I2Lower: 41.2,
		I2Upper: 77.9,
		NNT:     6.2,
	}
}

func TestRenderText(t *testing.T) {
	out := RenderText(sampleResult(), Options{})

	assert.Contains(t, out, "META-ANALYSIS")
	assert.Contains(t, out, "Dataset: depression-trials")
	assert.Contains(t, out, "Model: combined   Estimator: reml   Level: 95%")
	assert.Contains(t, out, "Comparisons: 17   Studies: 16   Masked rows: 1")
	assert.Contains(t, out, "g = 0.52 [0.31; 0.73], p <0.001")
	assert.Contains(t, out, "tau2 = 0.0400")
	assert.Contains(t, out, "I2 = 63.1% [41.2%; 77.9%]")
	assert.Contains(t, out, "Q = 43.20 (df 16, p = 0.014)")
	assert.Contains(t, out, "Prediction interval: [-0.11; 1.15]")
	assert.Contains(t, out, "NNT = 6.2")
}

func TestRenderText_OmitsUndefinedValues(t *testing.T) {
	res := sampleResult()
	res.NNT = math.NaN()
	res.I2Lower = math.NaN()
	res.I2Upper = math.NaN()
	res.Fit.PredLower = math.NaN()
	res.Fit.PredUpper = math.NaN()

	out := RenderText(res, Options{})
	assert.NotContains(t, out, "NNT")
	assert.NotContains(t, out, "Prediction interval")
	assert.Contains(t, out, "I2 = 63.1%\n", "interval dropped, point estimate kept")
}

func TestRenderText_Moderators(t *testing.T) {
	res := sampleResult()
	res.Subgroups = []analysis.SubgroupRow{
		{Variable: "format", Group: "grp", K: 9, Estimate: 0.61, CILower: 0.4, CIUpper: 0.82, I2: 55, NNT: 5.1, P: 0.002},
		{Variable: "format", Group: "ind", K: 8, Estimate: 0.44, CILower: 0.2, CIUpper: 0.68, I2: 41, NNT: 7.3, P: 0.01},
		{Variable: "format", Group: analysis.BetweenGroupsLabel, K: 17, Estimate: math.NaN(),
			CILower: math.NaN(), CIUpper: math.NaN(), I2: math.NaN(), NNT: math.NaN(), P: 0.29},
		{Variable: "year", Group: "slope", K: 17, Estimate: 0.01, CILower: -0.005, CIUpper: 0.025,
			I2: math.NaN(), NNT: math.NaN(), P: 0.18},
	}

	out := RenderText(res, Options{})
	assert.Contains(t, out, "MODERATORS")
	assert.Contains(t, out, "grp")
	assert.Contains(t, out, "(between groups)")
	assert.Contains(t, out, "slope")

	// Undefined cells render as placeholders, not NaN.
	assert.NotContains(t, out, "NaN")
}

func TestRenderText_DiagnosticsAppendix(t *testing.T) {
	rep := &normalize.Report{Diagnostics: []normalize.Diagnostic{
		{Column: "study", Check: normalize.CheckColumnPresent, Severity: normalize.SeverityOK, Message: "present"},
		{Column: "rob", Check: normalize.CheckAllowedValues, Severity: normalize.SeverityWarning,
			Message: "2 value(s) outside the allowed set", Detail: "moderate, severe"},
	}}

	out := RenderText(sampleResult(), Options{Diagnostics: rep})
	assert.Contains(t, out, "FORMAT CHECKS")
	assert.Contains(t, out, "2 checks, 1 warnings")
	assert.Contains(t, out, "WARNING")
	assert.Contains(t, out, "moderate, severe")
	assert.NotContains(t, out, "present", "only warnings are listed")
}

func TestRenderMarkdown(t *testing.T) {
	res := sampleResult()
	res.Subgroups = []analysis.SubgroupRow{
		{Variable: "format", Group: "grp", K: 9, Estimate: 0.61, CILower: 0.4, CIUpper: 0.82, I2: 55, NNT: 5.1, P: 0.002},
	}

	out := RenderMarkdown(res, Options{Title: "Depression trials"})

	assert.True(t, strings.HasPrefix(out, "# Depression trials\n"))
	assert.Contains(t, out, "**Model:** combined")
	assert.Contains(t, out, "- g = **0.52** [0.31; 0.73], p <0.001")
	assert.Contains(t, out, "| variable | group | n | g | 95% CI | I2 | NNT | p |")
	assert.Contains(t, out, "| format | grp | 9 | 0.61 | [0.40; 0.82] | 55.0% | 5.1 | = 0.002 |")
}

func TestRenderMarkdown_ModelSections(t *testing.T) {
	res := sampleResult()
	res.Model = analysis.ModelOutliersRemoved
	res.Outliers = &analysis.OutlierInfo{
		Removed:  []string{"cuijpers-2011"},
		Original: metastats.FitResult{K: 18, Estimate: 0.61, CILower: 0.35, CIUpper: 0.87},
	}
	res.Influence = &analysis.InfluenceInfo{
		Rows: []analysis.InfluenceRow{
			{Study: "watts-2015", Fit: metastats.FitResult{Estimate: 0.5, CILower: 0.3, CIUpper: 0.7, I2: 60}},
		},
		MostInfluential: "watts-2015",
		Shift:           0.08,
	}

	out := RenderMarkdown(res, Options{})
	assert.Contains(t, out, "## Outliers removed")
	assert.Contains(t, out, "cuijpers-2011")
	assert.Contains(t, out, "Before removal: g = 0.61 [0.35; 0.87] (k = 18)")
	assert.Contains(t, out, "## Leave-one-out")
	assert.Contains(t, out, "Most influential: **watts-2015** (shift 0.080)")
	assert.Contains(t, out, "| watts-2015 | 0.50 | [0.30; 0.70] | 60.0% |")
}

func TestRenderText_ThreeLevelSection(t *testing.T) {
	res := sampleResult()
	res.Model = analysis.ModelThreeLevel
	res.ThreeLevel = &metastats.ThreeLevelResult{
		K: 24, Clusters: 16, Estimate: 0.48, Tau2: 0.03, Gamma2: 0.012,
		I2Between: 44.1, I2Within: 17.6,
	}

	out := RenderText(res, Options{})
	assert.Contains(t, out, "VARIANCE COMPONENTS")
	assert.Contains(t, out, "tau2 = 0.0300 (44.1% of total)")
	assert.Contains(t, out, "gamma2 = 0.0120 (17.6% of total)")

	require.NotPanics(t, func() { RenderMarkdown(res, Options{}) })
}
