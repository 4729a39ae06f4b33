// Package normalize validates a raw dataset against the expected column
// layout, value sets, and types, reporting findings as per-column diagnostics
// rather than errors. Validation never stops the pipeline: cells are coerced
// best-effort and every conversion outcome is recorded. The only fatal
// condition is an unrecognized layout tag.
package normalize

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
)

// CheckSpec configures one normalizer pass. All maps are keyed by logical
// field name; the Schema resolves those to concrete columns per layout.
type CheckSpec struct {
	Schema   *dataset.Schema
	Required []string
	Allowed  map[string][]string
	Types    map[string]ColumnType
}

// DefaultCheckSpec returns the standard check set for clinical-trial
// comparison datasets.
func DefaultCheckSpec(schema *dataset.Schema) CheckSpec {
	return CheckSpec{
		Schema:   schema,
		Required: []string{dataset.FieldStudy, dataset.FieldCondition},
		Allowed: map[string][]string{
			dataset.FieldRiskOfBias:  {"low", "high", "unclear", "some-concerns"},
			dataset.FieldOutcomeType: {"msd", "change", "binary"},
		},
		Types: map[string]ColumnType{
			dataset.FieldStudy:          TypeString,
			dataset.FieldCondition:      TypeString,
			dataset.FieldSpec:           TypeString,
			dataset.FieldTime:           TypeNumeric,
			dataset.FieldPrimaryOutcome: TypeBool,
			dataset.FieldN:              TypeNumeric,
			dataset.FieldMean:           TypeNumeric,
			dataset.FieldSD:             TypeNumeric,
			dataset.FieldNChange:        TypeNumeric,
			dataset.FieldMeanChange:     TypeNumeric,
			dataset.FieldSDChange:       TypeNumeric,
			dataset.FieldEvent:          TypeNumeric,
			dataset.FieldEffect:         TypeNumeric,
			dataset.FieldEffectSE:       TypeNumeric,
			dataset.FieldEffectVar:      TypeNumeric,
		},
	}
}

// Check validates and coerces a table for the given layout. The returned
// table is a coerced copy; the input is never mutated. Every finding lands in
// the Report; the call fails only when the layout tag is unrecognized or the
// table is nil.
func Check(tbl *dataset.Table, layout dataset.Layout, spec CheckSpec) (dataset.Normalized, *Report, error) {
	if tbl == nil {
		return dataset.Normalized{}, nil, fmt.Errorf("check: nil table")
	}
	switch layout {
	case dataset.LayoutLong, dataset.LayoutWide:
	default:
		return dataset.Normalized{}, nil, fmt.Errorf("check: %w: %v", dataset.ErrUnknownLayout, layout)
	}
	if spec.Schema == nil {
		spec.Schema = dataset.DefaultSchema()
	}

	out := tbl.Clone()
	report := &Report{}

	checkRequired(out, layout, spec, report)
	checkAllowed(out, layout, spec, report)
	coerceTypes(out, layout, spec, report)

	slog.Debug("normalizer pass complete",
		logfields.Stage("normalize"),
		logfields.Layout(layout.String()),
		logfields.Rows(out.NumRows()),
		slog.Int("warnings", report.WarningCount()),
	)
	return dataset.Normalized{Table: out, Layout: layout}, report, nil
}

// columnsFor resolves a logical field to the concrete columns the layout
// stores it in.
func columnsFor(schema *dataset.Schema, layout dataset.Layout, field string) []string {
	f, ok := schema.Field(field)
	if !ok || !f.PerArm || layout == dataset.LayoutLong {
		return []string{schema.LongColumn(field)}
	}
	return []string{f.Arm1, f.Arm2}
}

// checkRequired verifies each required logical field is present. Per-arm
// fields in the wide layout satisfy the check when either suffixed variant
// exists; the diagnostic names whichever variant is absent.
func checkRequired(t *dataset.Table, layout dataset.Layout, spec CheckSpec, report *Report) {
	for _, field := range spec.Required {
		cols := columnsFor(spec.Schema, layout, field)
		present := false
		for _, col := range cols {
			if t.HasColumn(col) {
				present = true
				break
			}
		}
		label := strings.Join(cols, "/")
		if present {
			report.ok(label, CheckColumnPresent, "column present")
			continue
		}
		report.warn(label, CheckColumnPresent, "required column missing", "")
	}
}

// checkAllowed scans columns with a constrained value set and reports the
// distinct unexpected spellings. Matching is case-insensitive; missing cells
// are ignored.
func checkAllowed(t *dataset.Table, layout dataset.Layout, spec CheckSpec, report *Report) {
	for _, field := range sortedKeys(spec.Allowed) {
		allowed := make(map[string]struct{}, len(spec.Allowed[field]))
		for _, v := range spec.Allowed[field] {
			allowed[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
		}
		for _, col := range columnsFor(spec.Schema, layout, field) {
			if !t.HasColumn(col) {
				continue
			}
			var offenders []string
			seen := make(map[string]bool)
			for i := 0; i < t.NumRows(); i++ {
				v := t.Cell(i, col)
				if v.IsMissing() {
					continue
				}
				s := strings.ToLower(strings.TrimSpace(v.String()))
				if _, ok := allowed[s]; ok || seen[s] {
					continue
				}
				seen[s] = true
				offenders = append(offenders, v.String())
			}
			if len(offenders) == 0 {
				report.ok(col, CheckAllowedValues, "all values recognized")
				continue
			}
			report.warn(col, CheckAllowedValues,
				fmt.Sprintf("%d unexpected value(s)", len(offenders)),
				strings.Join(offenders, ", "))
		}
	}
}

// coerceTypes rewrites cells toward their required types in place and emits
// one diagnostic per concrete column summarizing the conversion outcomes.
func coerceTypes(t *dataset.Table, layout dataset.Layout, spec CheckSpec, report *Report) {
	for _, field := range sortedKeys(spec.Types) {
		want := spec.Types[field]
		for _, col := range columnsFor(spec.Schema, layout, field) {
			if !t.HasColumn(col) {
				continue
			}
			var convertedN int
			var kept []string
			for i := 0; i < t.NumRows(); i++ {
				v, c := coerceValue(t.Cell(i, col), want)
				switch c.Outcome {
				case CoercionConverted:
					convertedN++
					t.SetCell(i, col, v) //nolint:errcheck // column existence checked above
				case CoercionKeptOriginal:
					kept = append(kept, fmt.Sprintf("row %d: %s", i, c.Reason))
				}
			}
			switch {
			case convertedN == 0 && len(kept) == 0:
				report.ok(col, CheckColumnType, fmt.Sprintf("already %s", want))
			case len(kept) == 0:
				report.warn(col, CheckColumnType,
					fmt.Sprintf("converted %d value(s) to %s", convertedN, want), "")
			default:
				report.warn(col, CheckColumnType,
					fmt.Sprintf("converted %d value(s) to %s, kept %d original", convertedN, want, len(kept)),
					strings.Join(kept, "; "))
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
