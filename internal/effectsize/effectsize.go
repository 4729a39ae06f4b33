// Package effectsize computes standardized effect sizes (Hedges' g) for wide
// comparison rows. Each row is served by exactly one outcome-data schema,
// chosen by a fixed precedence when several are populated: a pre-computed
// effect size wins over post-test means, post-test means over change scores,
// change scores over responder counts. Rows no schema can serve keep missing
// effect cells and are reported, never fatal.
package effectsize

import (
	"fmt"
	"log/slog"
	"math"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
)

// SchemaKind names the outcome-data schema that produced a row's effect size.
type SchemaKind int

const (
	// SchemaNone means no schema had the required fields.
	SchemaNone SchemaKind = iota
	// SchemaPrecomputed passes a supplied effect size through unchanged.
	SchemaPrecomputed
	// SchemaPostTest derives g from post-test means and SDs.
	SchemaPostTest
	// SchemaChangeScore derives g from pre-post change means and SDs.
	SchemaChangeScore
	// SchemaDichotomous derives g from responder counts via the log odds
	// ratio.
	SchemaDichotomous
)

// String returns the schema tag written into the output column.
func (k SchemaKind) String() string {
	switch k {
	case SchemaPrecomputed:
		return "precomputed"
	case SchemaPostTest:
		return "post-test"
	case SchemaChangeScore:
		return "change-score"
	case SchemaDichotomous:
		return "dichotomous"
	default:
		return "none"
	}
}

// SchemaColumn is the supplemental output column naming each row's schema.
const SchemaColumn = "es.schema"

// Options configures one calculator pass.
type Options struct {
	// Schema resolves logical fields to columns; DefaultSchema when nil.
	Schema *dataset.Schema
	// FlipSign negates every computed g, for outcomes where a higher score
	// means a worse result. Pre-computed effect sizes flip too, so one
	// orientation holds across the table.
	FlipSign bool
}

func (o Options) schema() *dataset.Schema {
	if o.Schema != nil {
		return o.Schema
	}
	return dataset.DefaultSchema()
}

// RowDiagnostic reports one row the calculator could not serve.
type RowDiagnostic struct {
	Row    int
	Study  string
	Reason string
}

// Result carries the annotated table plus what happened per row group.
type Result struct {
	Data    dataset.Normalized
	Counts  map[SchemaKind]int
	Skipped []RowDiagnostic
}

// Compute annotates every comparison row with es, se.es, and es.schema. The
// input table is not mutated. Wide layout is required; rows without any
// usable schema keep missing effect cells and land in Result.Skipped.
func Compute(n dataset.Normalized, opts Options) (Result, error) {
	if n.Table == nil {
		return Result{}, fmt.Errorf("effect sizes: nil table")
	}
	if n.Layout != dataset.LayoutWide {
		return Result{}, fmt.Errorf("effect sizes: %w: need wide layout, have %v",
			dataset.ErrUnknownLayout, n.Layout)
	}

	schema := opts.schema()
	out := n.Table.Clone()
	for _, col := range []string{dataset.FieldEffect, dataset.FieldEffectSE, SchemaColumn} {
		if !out.HasColumn(col) {
			if err := out.AddColumn(col, dataset.Missing()); err != nil {
				return Result{}, fmt.Errorf("effect sizes: %w", err)
			}
		}
	}

	res := Result{Counts: make(map[SchemaKind]int)}
	studyCol := schema.LongColumn(dataset.FieldStudy)

	for i := 0; i < out.NumRows(); i++ {
		kind, g, se, err := computeRow(out, schema, i)
		if err != nil {
			res.Counts[SchemaNone]++
			res.Skipped = append(res.Skipped, RowDiagnostic{
				Row:    i,
				Study:  out.Cell(i, studyCol).String(),
				Reason: err.Error(),
			})
			setEffect(out, i, dataset.Missing(), dataset.Missing(), SchemaNone)
			continue
		}
		if opts.FlipSign {
			g = -g
		}
		res.Counts[kind]++
		setEffect(out, i, dataset.Float(g), dataset.Float(se), kind)
	}

	for _, kind := range []SchemaKind{SchemaPrecomputed, SchemaPostTest, SchemaChangeScore, SchemaDichotomous, SchemaNone} {
		if c := res.Counts[kind]; c > 0 {
			slog.Info("computed effect sizes",
				logfields.Stage("effectsize"),
				logfields.Schema(kind.String()),
				logfields.Rows(c),
			)
		}
	}

	res.Data = dataset.Normalized{Table: out, Layout: dataset.LayoutWide}
	return res, nil
}

func setEffect(t *dataset.Table, row int, es, se dataset.Value, kind SchemaKind) {
	_ = t.SetCell(row, dataset.FieldEffect, es)
	_ = t.SetCell(row, dataset.FieldEffectSE, se)
	_ = t.SetCell(row, SchemaColumn, dataset.String(kind.String()))
}

// computeRow picks the highest-precedence populated schema and evaluates it.
func computeRow(t *dataset.Table, schema *dataset.Schema, row int) (SchemaKind, float64, float64, error) {
	if g, se, ok := precomputed(t, row); ok {
		return SchemaPrecomputed, g, se, nil
	}
	if in, ok := postTestInput(t, schema, row); ok {
		g, se, err := standardizedDifference(in.m1, in.sd1, in.n1, in.m2, in.sd2, in.n2)
		return SchemaPostTest, g, se, err
	}
	if in, ok := changeScoreInput(t, schema, row); ok {
		g, se, err := standardizedDifference(in.m1, in.sd1, in.n1, in.m2, in.sd2, in.n2)
		return SchemaChangeScore, g, se, err
	}
	if in, ok := dichotomousInput(t, schema, row); ok {
		g, se, err := dichotomousDifference(in.e1, in.n1, in.e2, in.n2)
		return SchemaDichotomous, g, se, err
	}
	return SchemaNone, 0, 0, fmt.Errorf("%w: no schema has its required fields", ErrInsufficientData)
}

// precomputed serves rows that already carry an effect size plus its standard
// error or variance. The value passes through without recomputation.
func precomputed(t *dataset.Table, row int) (g, se float64, ok bool) {
	g, ok = t.Cell(row, dataset.FieldEffect).AsFloat()
	if !ok {
		return 0, 0, false
	}
	if se, sok := t.Cell(row, dataset.FieldEffectSE).AsFloat(); sok && se >= 0 {
		return g, se, true
	}
	if v, vok := t.Cell(row, dataset.FieldEffectVar).AsFloat(); vok && v >= 0 {
		return g, math.Sqrt(v), true
	}
	return 0, 0, false
}

type armsInput struct {
	m1, sd1, n1 float64
	m2, sd2, n2 float64
}

func postTestInput(t *dataset.Table, schema *dataset.Schema, row int) (armsInput, bool) {
	n1c, n2c := schema.ArmColumns(dataset.FieldN)
	m1c, m2c := schema.ArmColumns(dataset.FieldMean)
	s1c, s2c := schema.ArmColumns(dataset.FieldSD)
	return numericSextet(t, row, m1c, s1c, n1c, m2c, s2c, n2c)
}

// changeScoreInput mirrors postTestInput over the change-score block; arm
// sizes fall back to the post-test n when no change-specific n is recorded.
func changeScoreInput(t *dataset.Table, schema *dataset.Schema, row int) (armsInput, bool) {
	m1c, m2c := schema.ArmColumns(dataset.FieldMeanChange)
	s1c, s2c := schema.ArmColumns(dataset.FieldSDChange)
	nc1, nc2 := schema.ArmColumns(dataset.FieldNChange)
	n1c, n2c := schema.ArmColumns(dataset.FieldN)

	var in armsInput
	var ok bool
	if in.n1, ok = t.Cell(row, nc1).AsFloat(); !ok {
		if in.n1, ok = t.Cell(row, n1c).AsFloat(); !ok {
			return armsInput{}, false
		}
	}
	if in.n2, ok = t.Cell(row, nc2).AsFloat(); !ok {
		if in.n2, ok = t.Cell(row, n2c).AsFloat(); !ok {
			return armsInput{}, false
		}
	}
	if in.m1, ok = t.Cell(row, m1c).AsFloat(); !ok {
		return armsInput{}, false
	}
	if in.m2, ok = t.Cell(row, m2c).AsFloat(); !ok {
		return armsInput{}, false
	}
	if in.sd1, ok = t.Cell(row, s1c).AsFloat(); !ok {
		return armsInput{}, false
	}
	if in.sd2, ok = t.Cell(row, s2c).AsFloat(); !ok {
		return armsInput{}, false
	}
	return in, true
}

func numericSextet(t *dataset.Table, row int, m1c, s1c, n1c, m2c, s2c, n2c string) (armsInput, bool) {
	var in armsInput
	var ok bool
	if in.m1, ok = t.Cell(row, m1c).AsFloat(); !ok {
		return armsInput{}, false
	}
	if in.sd1, ok = t.Cell(row, s1c).AsFloat(); !ok {
		return armsInput{}, false
	}
	if in.n1, ok = t.Cell(row, n1c).AsFloat(); !ok {
		return armsInput{}, false
	}
	if in.m2, ok = t.Cell(row, m2c).AsFloat(); !ok {
		return armsInput{}, false
	}
	if in.sd2, ok = t.Cell(row, s2c).AsFloat(); !ok {
		return armsInput{}, false
	}
	if in.n2, ok = t.Cell(row, n2c).AsFloat(); !ok {
		return armsInput{}, false
	}
	return in, true
}

type countsInput struct {
	e1, n1, e2, n2 float64
}

func dichotomousInput(t *dataset.Table, schema *dataset.Schema, row int) (countsInput, bool) {
	e1c, e2c := schema.ArmColumns(dataset.FieldEvent)
	n1c, n2c := schema.ArmColumns(dataset.FieldN)

	var in countsInput
	var ok bool
	if in.e1, ok = t.Cell(row, e1c).AsFloat(); !ok {
		return countsInput{}, false
	}
	if in.e2, ok = t.Cell(row, e2c).AsFloat(); !ok {
		return countsInput{}, false
	}
	if in.n1, ok = t.Cell(row, n1c).AsFloat(); !ok {
		return countsInput{}, false
	}
	if in.n2, ok = t.Cell(row, n2c).AsFloat(); !ok {
		return countsInput{}, false
	}
	return in, true
}
