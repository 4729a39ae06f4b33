// Package report renders an analysis result for people: a plain-text view
// for terminals and a markdown view for the serve layer. Both show the same
// content; only the framing differs.
package report

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/metapipe/internal/analysis"
	"git.home.luguber.info/inful/metapipe/internal/normalize"
)

// Options frames a rendering.
type Options struct {
	// Title heads the report; a generic one is used when empty.
	Title string
	// Diagnostics, when set, adds the format-check appendix.
	Diagnostics *normalize.Report
}

func (o Options) title() string {
	if o.Title != "" {
		return o.Title
	}
	return "Meta-analysis"
}

var summaryHeader = []string{"variable", "group", "n", "g", "95% CI", "I2", "NNT", "p"}

// RenderText renders the result for a terminal.
func RenderText(res analysis.Result, opts Options) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString(strings.ToUpper(opts.title()) + "\n")
	if res.Dataset != "" {
		b.WriteString(p.Sprintf("Dataset: %s\n", res.Dataset))
	}
	b.WriteString(p.Sprintf("Model: %s   Estimator: %s   Level: %.0f%%\n",
		res.Model, res.Fit.Estimator, res.Fit.Level*100))
	b.WriteString(p.Sprintf("Comparisons: %d   Studies: %d   Masked rows: %d\n",
		res.K, res.Studies, res.Masked))
	b.WriteString(p.Sprintf("Run: %s\n", res.RunID))

	b.WriteString("\nPOOLED EFFECT\n")
	b.WriteString(p.Sprintf("  g = %s %s, p %s\n",
		num(p, res.Fit.Estimate, 2), ci(p, res.Fit.CILower, res.Fit.CIUpper), pval(p, res.Fit.P)))
	b.WriteString(p.Sprintf("  Heterogeneity: tau2 = %s, I2 = %s%s\n",
		num(p, res.Fit.Tau2, 4), percent(p, res.Fit.I2), percentCI(p, res.I2Lower, res.I2Upper)))
	if res.Fit.QDF > 0 {
		b.WriteString(p.Sprintf("  Q = %s (df %d, p %s)\n",
			num(p, res.Fit.Q, 2), res.Fit.QDF, pval(p, res.Fit.QP)))
	}
	if !math.IsNaN(res.Fit.PredLower) {
		b.WriteString(p.Sprintf("  Prediction interval: %s\n", ci(p, res.Fit.PredLower, res.Fit.PredUpper)))
	}
	if !math.IsNaN(res.NNT) {
		b.WriteString(p.Sprintf("  NNT = %s\n", num(p, res.NNT, 1)))
	}
	if res.Fixed != nil {
		b.WriteString(p.Sprintf("  Inverse-variance companion: g = %s %s\n",
			num(p, res.Fixed.Estimate, 2), ci(p, res.Fixed.CILower, res.Fixed.CIUpper)))
	}

	if res.ThreeLevel != nil {
		tl := res.ThreeLevel
		b.WriteString("\nVARIANCE COMPONENTS\n")
		b.WriteString(p.Sprintf("  Between studies: tau2 = %s (%s of total)\n",
			num(p, tl.Tau2, 4), percent(p, tl.I2Between)))
		b.WriteString(p.Sprintf("  Within studies:  gamma2 = %s (%s of total)\n",
			num(p, tl.Gamma2, 4), percent(p, tl.I2Within)))
	}

	if res.Outliers != nil {
		b.WriteString("\nOUTLIERS REMOVED\n")
		if len(res.Outliers.Removed) == 0 {
			b.WriteString("  none detected\n")
		} else {
			b.WriteString(p.Sprintf("  Removed %d: %s\n",
				len(res.Outliers.Removed), strings.Join(res.Outliers.Removed, ", ")))
		}
		b.WriteString(p.Sprintf("  Before removal: g = %s %s (k = %d)\n",
			num(p, res.Outliers.Original.Estimate),
			ci(p, res.Outliers.Original.CILower, res.Outliers.Original.CIUpper),
			res.Outliers.Original.K))
	}

	if res.Influence != nil {
		b.WriteString("\nLEAVE-ONE-OUT\n")
		if res.Influence.MostInfluential != "" {
			b.WriteString(p.Sprintf("  Most influential: %s (shift %s)\n",
				res.Influence.MostInfluential, num(p, res.Influence.Shift, 3)))
		}
		rows := make([][]string, 0, len(res.Influence.Rows))
		for _, r := range res.Influence.Rows {
			rows = append(rows, []string{
				r.Study, num(p, r.Fit.Estimate, 2), ci(p, r.Fit.CILower, r.Fit.CIUpper), percent(p, r.Fit.I2),
			})
		}
		writeColumns(&b, "  ", append([][]string{{"omitted", "g", "95% CI", "I2"}}, rows...))
	}

	if len(res.Subgroups) > 0 {
		b.WriteString("\nMODERATORS\n")
		writeColumns(&b, "  ", append([][]string{summaryHeader}, summaryCells(p, res.Subgroups)...))
	}

	if opts.Diagnostics != nil {
		b.WriteString("\nFORMAT CHECKS\n")
		b.WriteString(p.Sprintf("  %d checks, %d warnings\n",
			len(opts.Diagnostics.Diagnostics), opts.Diagnostics.WarningCount()))
		for _, d := range opts.Diagnostics.Warnings() {
			b.WriteString("  " + d.String() + "\n")
		}
	}

	return b.String()
}

// RenderMarkdown renders the result as a markdown document.
func RenderMarkdown(res analysis.Result, opts Options) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString("# " + opts.title() + "\n\n")
	if res.Dataset != "" {
		b.WriteString(p.Sprintf("**Dataset:** %s  \n", res.Dataset))
	}
	b.WriteString(p.Sprintf("**Model:** %s · **Estimator:** %s · **Level:** %.0f%%  \n",
		res.Model, res.Fit.Estimator, res.Fit.Level*100))
	b.WriteString(p.Sprintf("**Comparisons:** %d · **Studies:** %d · **Masked rows:** %d  \n",
		res.K, res.Studies, res.Masked))
	b.WriteString(p.Sprintf("**Run:** `%s`\n", res.RunID))

	b.WriteString("\n## Pooled effect\n\n")
	b.WriteString(p.Sprintf("- g = **%s** %s, p %s\n",
		num(p, res.Fit.Estimate, 2), ci(p, res.Fit.CILower, res.Fit.CIUpper), pval(p, res.Fit.P)))
	b.WriteString(p.Sprintf("- tau2 = %s, I2 = %s%s\n",
		num(p, res.Fit.Tau2, 4), percent(p, res.Fit.I2), percentCI(p, res.I2Lower, res.I2Upper)))
	if res.Fit.QDF > 0 {
		b.WriteString(p.Sprintf("- Q = %s (df %d, p %s)\n",
			num(p, res.Fit.Q, 2), res.Fit.QDF, pval(p, res.Fit.QP)))
	}
	if !math.IsNaN(res.Fit.PredLower) {
		b.WriteString(p.Sprintf("- Prediction interval: %s\n", ci(p, res.Fit.PredLower, res.Fit.PredUpper)))
	}
	if !math.IsNaN(res.NNT) {
		b.WriteString(p.Sprintf("- NNT = %s\n", num(p, res.NNT, 1)))
	}
	if res.Fixed != nil {
		b.WriteString(p.Sprintf("- Inverse-variance companion: g = %s %s\n",
			num(p, res.Fixed.Estimate, 2), ci(p, res.Fixed.CILower, res.Fixed.CIUpper)))
	}

	if res.ThreeLevel != nil {
		tl := res.ThreeLevel
		b.WriteString("\n## Variance components\n\n")
		b.WriteString(p.Sprintf("- Between studies: tau2 = %s (%s of total)\n",
			num(p, tl.Tau2, 4), percent(p, tl.I2Between)))
		b.WriteString(p.Sprintf("- Within studies: gamma2 = %s (%s of total)\n",
			num(p, tl.Gamma2, 4), percent(p, tl.I2Within)))
	}

	if res.Outliers != nil {
		b.WriteString("\n## Outliers removed\n\n")
		if len(res.Outliers.Removed) == 0 {
			b.WriteString("- none detected\n")
		} else {
			b.WriteString(p.Sprintf("- Removed %d: %s\n",
				len(res.Outliers.Removed), strings.Join(res.Outliers.Removed, ", ")))
		}
		b.WriteString(p.Sprintf("- Before removal: g = %s %s (k = %d)\n",
			num(p, res.Outliers.Original.Estimate),
			ci(p, res.Outliers.Original.CILower, res.Outliers.Original.CIUpper),
			res.Outliers.Original.K))
	}

	if res.Influence != nil {
		b.WriteString("\n## Leave-one-out\n\n")
		if res.Influence.MostInfluential != "" {
			b.WriteString(p.Sprintf("Most influential: **%s** (shift %s)\n\n",
				res.Influence.MostInfluential, num(p, res.Influence.Shift, 3)))
		}
		rows := make([][]string, 0, len(res.Influence.Rows))
		for _, r := range res.Influence.Rows {
			rows = append(rows, []string{
				r.Study, num(p, r.Fit.Estimate, 2), ci(p, r.Fit.CILower, r.Fit.CIUpper), percent(p, r.Fit.I2),
			})
		}
		writeMarkdownTable(&b, []string{"omitted", "g", "95% CI", "I2"}, rows)
	}

	if len(res.Subgroups) > 0 {
		b.WriteString("\n## Moderators\n\n")
		writeMarkdownTable(&b, summaryHeader, summaryCells(p, res.Subgroups))
	}

	if opts.Diagnostics != nil {
		b.WriteString("\n## Format checks\n\n")
		b.WriteString(p.Sprintf("%d checks, %d warnings\n\n",
			len(opts.Diagnostics.Diagnostics), opts.Diagnostics.WarningCount()))
		for _, d := range opts.Diagnostics.Warnings() {
			b.WriteString("- " + d.String() + "\n")
		}
	}

	return b.String()
}

// summaryCells shapes moderator rows into the shared summary-table columns.
func summaryCells(p *message.Printer, rows []analysis.SubgroupRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Variable,
			r.Group,
			p.Sprintf("%d", r.K),
			num(p, r.Estimate, 2),
			ci(p, r.CILower, r.CIUpper),
			percent(p, r.I2),
			num(p, r.NNT, 1),
			pval(p, r.P),
		})
	}
	return out
}

// writeColumns pads a header-plus-rows block into aligned columns.
func writeColumns(b *strings.Builder, indent string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	for _, row := range rows {
		b.WriteString(indent)
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			}
		}
		b.WriteString("\n")
	}
}

func writeMarkdownTable(b *strings.Builder, header []string, rows [][]string) {
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
}

// num formats a float at the given precision; empty slots render as "-".
func num(p *message.Printer, v float64, prec ...int) string {
	if math.IsNaN(v) {
		return "-"
	}
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	pr := 2
	if len(prec) > 0 {
		pr = prec[0]
	}
	return p.Sprintf("%.*f", pr, v)
}

func ci(p *message.Printer, lo, hi float64) string {
	if math.IsNaN(lo) && math.IsNaN(hi) {
		return "-"
	}
	return "[" + num(p, lo, 2) + "; " + num(p, hi, 2) + "]"
}

func percent(p *message.Printer, v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return num(p, v, 1) + "%"
}

// percentCI renders with a leading space so callers can splice it after the
// point estimate, or drop it entirely when undefined.
func percentCI(p *message.Printer, lo, hi float64) string {
	if math.IsNaN(lo) && math.IsNaN(hi) {
		return ""
	}
	return " [" + percent(p, lo) + "; " + percent(p, hi) + "]"
}

// pval renders a p-value, collapsing tiny ones to a threshold.
func pval(p *message.Printer, v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	if v < 0.001 {
		return "<0.001"
	}
	return "= " + p.Sprintf("%.3f", v)
}
