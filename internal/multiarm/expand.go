// Package multiarm turns trials with more than two arms into complete sets of
// pairwise comparison rows and, when a pooling step needs one row per trial,
// collapses each trial to a single representative comparison through an
// ordered priority-rule chain.
package multiarm

import (
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
)

// Options configures expansion.
type Options struct {
	// Schema resolves logical fields to columns; DefaultSchema when nil.
	Schema *dataset.Schema
	// ControlConditions overrides the control-like condition set used to
	// orient generated pairs.
	ControlConditions []string
}

func (o Options) schema() *dataset.Schema {
	if o.Schema != nil {
		return o.Schema
	}
	return dataset.DefaultSchema()
}

func (o Options) orientation() dataset.ReshapeOptions {
	return dataset.ReshapeOptions{ControlConditions: o.ControlConditions}
}

// comparison-level fields describe one pair, not the trial; generated rows
// must not inherit them from an existing row.
var comparisonLevelFields = map[string]bool{
	dataset.FieldEffect:    true,
	dataset.FieldEffectSE:  true,
	dataset.FieldEffectVar: true,
}

// arm is one trial arm reconstructed from the suffixed half of a comparison
// row.
type arm struct {
	condition string
	spec      string
	cells     map[string]dataset.Value
}

// key identifies an arm within its study. Two arm blocks with the same
// condition and specification are the same arm.
func (a arm) key() string {
	return strings.ToLower(strings.TrimSpace(a.condition)) + "\x1f" +
		strings.ToLower(strings.TrimSpace(a.spec))
}

// pairKey identifies an unordered comparison within a study.
func pairKey(a, b arm) string {
	k1, k2 := a.key(), b.key()
	if k1 > k2 {
		k1, k2 = k2, k1
	}
	return k1 + "\x1e" + k2
}

// Expand generates the missing pairwise comparisons for every multi-arm
// study. Long input is first reshaped to the wide comparison layout, which
// already yields every pairing. Wide input keeps its rows untouched and gains
// one appended row per absent pair, so the output row count is never below
// the input's. Comparisons already present are not regenerated.
func Expand(n dataset.Normalized, opts Options) (dataset.Normalized, error) {
	if n.Table == nil {
		return dataset.Normalized{}, fmt.Errorf("expand: nil table")
	}
	schema := opts.schema()

	switch n.Layout {
	case dataset.LayoutLong:
		wide, err := dataset.ReshapeLongToWide(n.Table, schema, opts.orientation())
		if err != nil {
			return dataset.Normalized{}, fmt.Errorf("expand: %w", err)
		}
		// The reshape pairs interventions against controls; the wide pass
		// fills in the remaining pairings so every study reaches C(N,2).
		out, err := expandWide(wide, schema, opts)
		if err != nil {
			return dataset.Normalized{}, err
		}
		return dataset.Normalized{Table: out, Layout: dataset.LayoutWide}, nil
	case dataset.LayoutWide:
		out, err := expandWide(n.Table, schema, opts)
		if err != nil {
			return dataset.Normalized{}, err
		}
		return dataset.Normalized{Table: out, Layout: dataset.LayoutWide}, nil
	default:
		return dataset.Normalized{}, fmt.Errorf("expand: %w: %v", dataset.ErrUnknownLayout, n.Layout)
	}
}

func expandWide(t *dataset.Table, schema *dataset.Schema, opts Options) (*dataset.Table, error) {
	studyCol := schema.LongColumn(dataset.FieldStudy)
	if !t.HasColumn(studyCol) {
		return nil, fmt.Errorf("expand: %w: %q", dataset.ErrNoSuchColumn, studyCol)
	}

	out := t.Clone()
	ori := opts.orientation()
	generated := 0

	for _, study := range studyLabels(t, studyCol) {
		rows := rowsOf(t, studyCol, study)
		arms, present := collectArms(t, schema, rows)
		if len(arms) <= 2 {
			continue
		}

		for i := 0; i < len(arms); i++ {
			for j := i + 1; j < len(arms); j++ {
				a1, a2 := arms[i], arms[j]
				if present[pairKey(a1, a2)] {
					continue
				}
				// A control-like arm takes the second slot.
				if ori.IsControlCondition(a1.condition) && !ori.IsControlCondition(a2.condition) {
					a1, a2 = a2, a1
				}
				if err := appendComparison(out, t, schema, rows[0], a1, a2); err != nil {
					return nil, err
				}
				generated++
			}
		}
	}

	if generated > 0 {
		slog.Info("expanded multi-arm studies",
			logfields.Stage("expand"),
			logfields.Rows(t.NumRows()),
			logfields.Comparisons(generated),
		)
	}
	return out, nil
}

// collectArms reconstructs the distinct arms of one study from its comparison
// rows, in encounter order, together with the set of pairs already present.
func collectArms(t *dataset.Table, schema *dataset.Schema, rows []int) ([]arm, map[string]bool) {
	cond1, cond2 := schema.ArmColumns(dataset.FieldCondition)
	spec1, spec2 := schema.ArmColumns(dataset.FieldSpec)

	var arms []arm
	seen := make(map[string]int)
	present := make(map[string]bool)

	addArm := func(a arm) arm {
		if idx, ok := seen[a.key()]; ok {
			// Fill cells a later row may carry that the first sighting lacked.
			for k, v := range a.cells {
				if arms[idx].cells[k].IsMissing() && !v.IsMissing() {
					arms[idx].cells[k] = v
				}
			}
			return arms[idx]
		}
		seen[a.key()] = len(arms)
		arms = append(arms, a)
		return a
	}

	for _, ri := range rows {
		a1 := armFromRow(t, schema, ri, 1, cond1, spec1)
		a2 := armFromRow(t, schema, ri, 2, cond2, spec2)
		a1 = addArm(a1)
		a2 = addArm(a2)
		present[pairKey(a1, a2)] = true
	}
	return arms, present
}

// armFromRow reads the suffixed half of one comparison row into an arm.
func armFromRow(t *dataset.Table, schema *dataset.Schema, row, slot int, condCol, specCol string) arm {
	a := arm{
		condition: t.Cell(row, condCol).String(),
		cells:     make(map[string]dataset.Value),
	}
	if v := t.Cell(row, specCol); !v.IsMissing() {
		a.spec = v.String()
	}
	for _, f := range schema.PerArmFields() {
		col := f.Arm1
		if slot == 2 {
			col = f.Arm2
		}
		a.cells[f.Name] = t.Cell(row, col)
	}
	return a
}

// appendComparison writes one generated pairwise row: trial-level fields come
// from the study's first input row, arm blocks from the two arms, and
// comparison-level fields stay missing so the effect-size stage recomputes
// them.
func appendComparison(out, src *dataset.Table, schema *dataset.Schema, protoRow int, a1, a2 arm) error {
	cells := make([]dataset.Value, 0, out.NumCols())
	for _, col := range out.Columns() {
		cells = append(cells, generatedCell(src, schema, protoRow, col, a1, a2))
	}
	return out.AppendRow(cells...)
}

func generatedCell(src *dataset.Table, schema *dataset.Schema, protoRow int, col string, a1, a2 arm) dataset.Value {
	for _, f := range schema.PerArmFields() {
		switch col {
		case f.Arm1:
			return a1.cells[f.Name]
		case f.Arm2:
			return a2.cells[f.Name]
		}
	}
	if f, ok := fieldByColumn(schema, col); ok && comparisonLevelFields[f.Name] {
		return dataset.Missing()
	}
	return src.Cell(protoRow, col)
}

func fieldByColumn(schema *dataset.Schema, col string) (dataset.Field, bool) {
	for _, f := range schema.Fields() {
		if f.Long == col || f.Arm1 == col || f.Arm2 == col {
			return f, true
		}
	}
	return dataset.Field{}, false
}

// studyLabels lists distinct study labels in first-encounter order.
func studyLabels(t *dataset.Table, studyCol string) []string {
	seen := make(map[string]bool)
	var order []string
	for i := 0; i < t.NumRows(); i++ {
		label := t.Cell(i, studyCol).String()
		if !seen[label] {
			seen[label] = true
			order = append(order, label)
		}
	}
	return order
}

// rowsOf lists the row indices of one study, in input order.
func rowsOf(t *dataset.Table, studyCol, study string) []int {
	var rows []int
	for i := 0; i < t.NumRows(); i++ {
		if t.Cell(i, studyCol).String() == study {
			rows = append(rows, i)
		}
	}
	return rows
}

// ArmCount reports the number of distinct arms per study, useful for
// diagnostics and reporting.
func ArmCount(n dataset.Normalized, opts Options) (map[string]int, error) {
	if n.Table == nil {
		return nil, fmt.Errorf("arm count: nil table")
	}
	schema := opts.schema()
	counts := make(map[string]int)

	switch n.Layout {
	case dataset.LayoutLong:
		studyCol := schema.LongColumn(dataset.FieldStudy)
		for i := 0; i < n.Table.NumRows(); i++ {
			counts[n.Table.Cell(i, studyCol).String()]++
		}
	case dataset.LayoutWide:
		studyCol := schema.LongColumn(dataset.FieldStudy)
		for _, study := range studyLabels(n.Table, studyCol) {
			arms, _ := collectArms(n.Table, schema, rowsOf(n.Table, studyCol, study))
			counts[study] = len(arms)
		}
	default:
		return nil, fmt.Errorf("arm count: %w: %v", dataset.ErrUnknownLayout, n.Layout)
	}
	return counts, nil
}
