package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyStage       = "stage"
	KeyStudy       = "study"
	KeyColumn      = "column"
	KeyCheck       = "check"
	KeyRule        = "rule"
	KeyModel       = "model"
	KeyLayout      = "layout"
	KeySchema      = "schema"
	KeyRows        = "rows"
	KeyComparisons = "comparisons"
	KeyStudies     = "studies"
	KeyRunID       = "run_id"
	KeyDataset     = "dataset"
	KeyDurationMS  = "duration_ms"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Study(label string) slog.Attr    { return slog.String(KeyStudy, label) }
func Column(name string) slog.Attr    { return slog.String(KeyColumn, name) }
func Check(name string) slog.Attr     { return slog.String(KeyCheck, name) }
func Rule(name string) slog.Attr      { return slog.String(KeyRule, name) }
func Model(name string) slog.Attr     { return slog.String(KeyModel, name) }
func Layout(name string) slog.Attr    { return slog.String(KeyLayout, name) }
func Schema(name string) slog.Attr    { return slog.String(KeySchema, name) }
func Rows(n int) slog.Attr            { return slog.Int(KeyRows, n) }
func Comparisons(n int) slog.Attr     { return slog.Int(KeyComparisons, n) }
func Studies(n int) slog.Attr         { return slog.Int(KeyStudies, n) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Dataset(path string) slog.Attr   { return slog.String(KeyDataset, path) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
