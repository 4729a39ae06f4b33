package multiarm

import (
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
)

// Rule narrows the candidate comparison rows of one study. A rule that would
// eliminate every candidate is skipped; a rule that narrows to exactly one
// row decides the selection.
type Rule interface {
	Name() string
	Select(t *dataset.Table, rows []int) []int
}

// Chain applies rules in order. Ties surviving every rule break by input row
// order: the first remaining row wins. That tie-break is deliberate and
// deterministic, not an error.
type Chain struct {
	rules []Rule
}

// NewChain builds a priority chain from rules in application order.
func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: rules}
}

// Select picks the single representative row among candidates.
func (c *Chain) Select(t *dataset.Table, rows []int) int {
	candidates := rows
	if c != nil {
		for _, rule := range c.rules {
			if len(candidates) == 1 {
				break
			}
			narrowed := rule.Select(t, candidates)
			if len(narrowed) == 0 {
				continue
			}
			if len(narrowed) == 1 {
				slog.Debug("priority rule decided selection",
					logfields.Stage("collapse"),
					logfields.Rule(rule.Name()),
				)
			}
			candidates = narrowed
		}
	}
	return candidates[0]
}

// PreferCondition keeps comparisons involving any of the given condition
// labels (either arm, case-insensitive).
func PreferCondition(schema *dataset.Schema, labels ...string) Rule {
	if schema == nil {
		schema = dataset.DefaultSchema()
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	cond1, cond2 := schema.ArmColumns(dataset.FieldCondition)
	return conditionRule{set: set, cond1: cond1, cond2: cond2}
}

type conditionRule struct {
	set          map[string]struct{}
	cond1, cond2 string
}

func (r conditionRule) Name() string { return "prefer-condition" }

func (r conditionRule) Select(t *dataset.Table, rows []int) []int {
	var kept []int
	for _, ri := range rows {
		if r.matches(t.Cell(ri, r.cond1)) || r.matches(t.Cell(ri, r.cond2)) {
			kept = append(kept, ri)
		}
	}
	return kept
}

func (r conditionRule) matches(v dataset.Value) bool {
	if v.IsMissing() {
		return false
	}
	_, ok := r.set[strings.ToLower(strings.TrimSpace(v.String()))]
	return ok
}

// PreferPrimaryOutcome keeps comparisons flagged as the trial's primary
// outcome.
func PreferPrimaryOutcome(schema *dataset.Schema) Rule {
	if schema == nil {
		schema = dataset.DefaultSchema()
	}
	return primaryOutcomeRule{col: schema.LongColumn(dataset.FieldPrimaryOutcome)}
}

type primaryOutcomeRule struct {
	col string
}

func (r primaryOutcomeRule) Name() string { return "prefer-primary-outcome" }

func (r primaryOutcomeRule) Select(t *dataset.Table, rows []int) []int {
	var kept []int
	for _, ri := range rows {
		if b, ok := t.Cell(ri, r.col).AsBool(); ok && b {
			kept = append(kept, ri)
		}
	}
	return kept
}

// PreferLowest keeps the rows carrying the smallest numeric value in a
// column, e.g. the earliest timepoint or the lowest dose.
func PreferLowest(column string) Rule {
	return extremumRule{column: column, lowest: true}
}

// PreferHighest keeps the rows carrying the largest numeric value in a
// column.
func PreferHighest(column string) Rule {
	return extremumRule{column: column, lowest: false}
}

type extremumRule struct {
	column string
	lowest bool
}

func (r extremumRule) Name() string {
	if r.lowest {
		return "prefer-lowest " + r.column
	}
	return "prefer-highest " + r.column
}

func (r extremumRule) Select(t *dataset.Table, rows []int) []int {
	best := 0.0
	found := false
	for _, ri := range rows {
		f, ok := t.Cell(ri, r.column).AsFloat()
		if !ok {
			continue
		}
		if !found || (r.lowest && f < best) || (!r.lowest && f > best) {
			best, found = f, true
		}
	}
	if !found {
		return nil
	}
	var kept []int
	for _, ri := range rows {
		if f, ok := t.Cell(ri, r.column).AsFloat(); ok && f == best {
			kept = append(kept, ri)
		}
	}
	return kept
}

// CollapseToOnePerStudy reduces a wide comparison table to one row per study
// using the priority chain. Studies keep their first-encounter order; a nil
// chain keeps each study's first row.
func CollapseToOnePerStudy(n dataset.Normalized, chain *Chain, opts Options) (dataset.Normalized, error) {
	if n.Table == nil {
		return dataset.Normalized{}, fmt.Errorf("collapse: nil table")
	}
	if n.Layout != dataset.LayoutWide {
		return dataset.Normalized{}, fmt.Errorf("collapse: %w: need wide layout, have %v",
			dataset.ErrUnknownLayout, n.Layout)
	}
	schema := opts.schema()
	studyCol := schema.LongColumn(dataset.FieldStudy)
	if !n.Table.HasColumn(studyCol) {
		return dataset.Normalized{}, fmt.Errorf("collapse: %w: %q", dataset.ErrNoSuchColumn, studyCol)
	}

	out := dataset.New(n.Table.Columns()...)
	for _, study := range studyLabels(n.Table, studyCol) {
		rows := rowsOf(n.Table, studyCol, study)
		winner := chain.Select(n.Table, rows)
		if err := out.AppendRowFrom(n.Table, winner); err != nil {
			return dataset.Normalized{}, err
		}
	}
	return dataset.Normalized{Table: out, Layout: dataset.LayoutWide}, nil
}
