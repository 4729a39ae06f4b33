package dataset

import (
	"fmt"
	"strings"
)

// DefaultControlConditions are the condition labels treated as control-like
// when orienting comparisons: a control-like arm always takes the second
// (suffix2) slot.
var DefaultControlConditions = []string{
	"cg", "control", "wl", "waitlist", "cau", "tau", "pla", "placebo",
}

// ReshapeOptions configures the long-to-wide reshape.
type ReshapeOptions struct {
	// ControlConditions overrides DefaultControlConditions when non-empty.
	// Matching is case-insensitive.
	ControlConditions []string
}

func (o ReshapeOptions) controlSet() map[string]struct{} {
	src := o.ControlConditions
	if len(src) == 0 {
		src = DefaultControlConditions
	}
	set := make(map[string]struct{}, len(src))
	for _, c := range src {
		set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return set
}

// IsControlCondition reports whether a condition label is control-like under
// the options.
func (o ReshapeOptions) IsControlCondition(label string) bool {
	_, ok := o.controlSet()[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

// ReshapeLongToWide converts an arm-per-row table into a comparison-per-row
// table. Within each study, every intervention arm is paired with every
// control-like arm; studies without a control-like arm (or with only
// control-like arms) fall back to all pairings in encounter order. The
// control-like arm of a pair takes the suffix2 slot. Trial-level fields are
// copied from the suffix1 arm's row.
func ReshapeLongToWide(t *Table, schema *Schema, opts ReshapeOptions) (*Table, error) {
	studyCol := schema.LongColumn(FieldStudy)
	condCol := schema.LongColumn(FieldCondition)
	for _, col := range []string{studyCol, condCol} {
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("%w: %q (required for long layout)", ErrNoSuchColumn, col)
		}
	}

	perArm, trial := splitFields(t, schema)
	out := New(wideColumnOrder(trial, perArm)...)

	controls := opts.controlSet()
	for _, study := range studyOrder(t, studyCol) {
		rows := studyRows(t, studyCol, study)
		var ctrl, intv []int
		for _, ri := range rows {
			label := t.Cell(ri, condCol).String()
			if _, ok := controls[strings.ToLower(strings.TrimSpace(label))]; ok {
				ctrl = append(ctrl, ri)
			} else {
				intv = append(intv, ri)
			}
		}

		var pairs [][2]int
		if len(ctrl) > 0 && len(intv) > 0 {
			for _, i := range intv {
				for _, c := range ctrl {
					pairs = append(pairs, [2]int{i, c})
				}
			}
		} else {
			for a := 0; a < len(rows); a++ {
				for b := a + 1; b < len(rows); b++ {
					pairs = append(pairs, [2]int{rows[a], rows[b]})
				}
			}
		}

		for _, p := range pairs {
			cells := make([]Value, 0, out.NumCols())
			for _, f := range trial {
				cells = append(cells, t.Cell(p[0], f.Long))
			}
			for _, f := range perArm {
				cells = append(cells, t.Cell(p[0], f.Long), t.Cell(p[1], f.Long))
			}
			if err := out.AppendRow(cells...); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// splitFields partitions the input's columns into per-arm schema fields and
// everything else. Columns the schema does not know are carried through as
// trial-level.
func splitFields(t *Table, schema *Schema) (perArm, trial []Field) {
	known := make(map[string]bool)
	for _, f := range schema.Fields() {
		if !t.HasColumn(f.Long) {
			continue
		}
		known[f.Long] = true
		if f.PerArm {
			perArm = append(perArm, f)
		} else {
			trial = append(trial, f)
		}
	}
	for _, col := range t.Columns() {
		if !known[col] {
			trial = append(trial, Field{Name: col, Long: col, Arm1: col, Arm2: col})
		}
	}
	return perArm, trial
}

func wideColumnOrder(trial, perArm []Field) []string {
	cols := make([]string, 0, len(trial)+2*len(perArm))
	for _, f := range trial {
		cols = append(cols, f.Long)
	}
	for _, f := range perArm {
		cols = append(cols, f.Arm1, f.Arm2)
	}
	return cols
}

// studyOrder lists distinct study labels in first-encounter order.
func studyOrder(t *Table, studyCol string) []string {
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

// studyRows lists the row indices belonging to one study, in input order.
func studyRows(t *Table, studyCol, study string) []int {
	var rows []int
	for i := 0; i < t.NumRows(); i++ {
		if t.Cell(i, studyCol).String() == study {
			rows = append(rows, i)
		}
	}
	return rows
}
