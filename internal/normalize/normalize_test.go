package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
)

func wideFixture(t *testing.T) *dataset.Table {
	t.Helper()
	tbl := dataset.New(
		"study", "condition_trt1", "condition_trt2",
		"n_trt1", "n_trt2", "mean_trt1", "mean_trt2",
		"rob", "primary_outcome",
	)
	rows := [][]dataset.Value{
		{
			dataset.String("Smith 2020"), dataset.String("ig"), dataset.String("cg"),
			dataset.String("40"), dataset.Int(41), dataset.Float(10.2), dataset.Float(12.4),
			dataset.String("low"), dataset.String("yes"),
		},
		{
			dataset.String("Jones 2021"), dataset.String("ig"), dataset.String("wl"),
			dataset.Int(55), dataset.Int(54), dataset.Float(9.8), dataset.Float(11.9),
			dataset.String("moderate"), dataset.Bool(false),
		},
	}
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r...))
	}
	return tbl
}

func TestCheck_UnknownLayoutFails(t *testing.T) {
	_, _, err := Check(dataset.New("study"), dataset.LayoutUnknown, CheckSpec{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrUnknownLayout)
}

func TestCheck_NilTableFails(t *testing.T) {
	_, _, err := Check(nil, dataset.LayoutWide, CheckSpec{})
	require.Error(t, err)
}

func TestCheck_DoesNotMutateInput(t *testing.T) {
	tbl := wideFixture(t)
	before := tbl.Clone()

	_, _, err := Check(tbl, dataset.LayoutWide, DefaultCheckSpec(dataset.DefaultSchema()))
	require.NoError(t, err)
	assert.True(t, tbl.Equal(before))
}

func TestCheck_CoercesNumericStrings(t *testing.T) {
	norm, report, err := Check(wideFixture(t), dataset.LayoutWide, DefaultCheckSpec(dataset.DefaultSchema()))
	require.NoError(t, err)

	n, ok := norm.Table.Cell(0, "n_trt1").AsInt()
	require.True(t, ok, "string \"40\" should coerce to a number")
	assert.Equal(t, int64(40), n)

	var typeDiag *Diagnostic
	for i := range report.Diagnostics {
		d := report.Diagnostics[i]
		if d.Column == "n_trt1" && d.Check == CheckColumnType {
			typeDiag = &d
			break
		}
	}
	require.NotNil(t, typeDiag)
	assert.Equal(t, SeverityWarning, typeDiag.Severity)
	assert.Contains(t, typeDiag.Message, "converted 1")
}

func TestCheck_CoercesBooleanSpellings(t *testing.T) {
	norm, _, err := Check(wideFixture(t), dataset.LayoutWide, DefaultCheckSpec(dataset.DefaultSchema()))
	require.NoError(t, err)

	b, ok := norm.Table.Cell(0, "primary_outcome").AsBool()
	require.True(t, ok)
	assert.True(t, b)
}

func TestCheck_KeepsUnconvertibleOriginal(t *testing.T) {
	tbl := dataset.New("study", "n_trt1")
	require.NoError(t, tbl.AppendRow(dataset.String("A"), dataset.String("forty")))

	norm, report, err := Check(tbl, dataset.LayoutWide, DefaultCheckSpec(dataset.DefaultSchema()))
	require.NoError(t, err)

	s, ok := norm.Table.Cell(0, "n_trt1").AsString()
	require.True(t, ok, "unconvertible cell keeps its original value")
	assert.Equal(t, "forty", s)

	found := false
	for _, d := range report.Warnings() {
		if d.Column == "n_trt1" && d.Check == CheckColumnType {
			found = true
			assert.Contains(t, d.Detail, "forty")
		}
	}
	assert.True(t, found, "kept-original outcome must be reported")
}

func TestCheck_ReportsUnexpectedValues(t *testing.T) {
	_, report, err := Check(wideFixture(t), dataset.LayoutWide, DefaultCheckSpec(dataset.DefaultSchema()))
	require.NoError(t, err)

	found := false
	for _, d := range report.Warnings() {
		if d.Column == "rob" && d.Check == CheckAllowedValues {
			found = true
			assert.Contains(t, d.Detail, "moderate")
		}
	}
	assert.True(t, found, "out-of-set rob value must be reported")
}

func TestCheck_RequiredUnionAcrossArmSuffixes(t *testing.T) {
	// condition only present via its suffixed variants; the union check must
	// accept that in the wide layout.
	tbl := dataset.New("study", "condition_trt1", "condition_trt2")
	require.NoError(t, tbl.AppendRow(dataset.String("A"), dataset.String("ig"), dataset.String("cg")))

	_, report, err := Check(tbl, dataset.LayoutWide, DefaultCheckSpec(dataset.DefaultSchema()))
	require.NoError(t, err)

	for _, d := range report.Diagnostics {
		if d.Check == CheckColumnPresent {
			assert.Equal(t, SeverityOK, d.Severity, d.Column)
		}
	}
}

func TestCheck_ReportsMissingRequiredColumn(t *testing.T) {
	tbl := dataset.New("condition_trt1", "condition_trt2")
	require.NoError(t, tbl.AppendRow(dataset.String("ig"), dataset.String("cg")))

	_, report, err := Check(tbl, dataset.LayoutWide, DefaultCheckSpec(dataset.DefaultSchema()))
	require.NoError(t, err)

	found := false
	for _, d := range report.Warnings() {
		if d.Check == CheckColumnPresent {
			found = true
			assert.Contains(t, d.Column, "study")
		}
	}
	assert.True(t, found)
}

func TestCheck_LongLayoutUsesUnsuffixedColumns(t *testing.T) {
	tbl := dataset.New("study", "condition", "n")
	require.NoError(t, tbl.AppendRow(dataset.String("A"), dataset.String("ig"), dataset.String("30")))

	norm, report, err := Check(tbl, dataset.LayoutLong, DefaultCheckSpec(dataset.DefaultSchema()))
	require.NoError(t, err)
	assert.Equal(t, dataset.LayoutLong, norm.Layout)

	for _, d := range report.Diagnostics {
		if d.Check == CheckColumnPresent {
			assert.Equal(t, SeverityOK, d.Severity, d.Column)
		}
	}
	n, ok := norm.Table.Cell(0, "n").AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(30), n)
}

// Running the normalizer on its own output must be a no-op: all-OK
// diagnostics and an unchanged table.
func TestCheck_Idempotent(t *testing.T) {
	spec := CheckSpec{
		Schema:   dataset.DefaultSchema(),
		Required: []string{dataset.FieldStudy},
		Types: map[string]ColumnType{
			dataset.FieldN:              TypeNumeric,
			dataset.FieldPrimaryOutcome: TypeBool,
		},
	}
	tbl := dataset.New("study", "n_trt1", "primary_outcome")
	require.NoError(t, tbl.AppendRow(dataset.String("A"), dataset.String("40"), dataset.String("yes")))

	for _, layout := range []dataset.Layout{dataset.LayoutWide, dataset.LayoutLong} {
		first, firstReport, err := Check(tbl, layout, spec)
		require.NoError(t, err)
		require.False(t, firstReport.OK(), "fixture should need coercion on the first pass")

		second, secondReport, err := Check(first.Table, layout, spec)
		require.NoError(t, err)

		assert.True(t, secondReport.OK(), "second pass must be all OK (%s)", layout)
		assert.True(t, first.Table.Equal(second.Table), "second pass must not change the table (%s)", layout)
	}
}

func TestReport_Accessors(t *testing.T) {
	r := &Report{}
	r.ok("a", CheckColumnPresent, "present")
	assert.True(t, r.OK())
	assert.Equal(t, 0, r.WarningCount())

	r.warn("b", CheckAllowedValues, "bad", "x, y")
	assert.False(t, r.OK())
	assert.Equal(t, 1, r.WarningCount())
	assert.Len(t, r.Warnings(), 1)
	assert.Contains(t, r.Warnings()[0].String(), "WARNING")
}

func TestCoerceValue_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		in      dataset.Value
		want    ColumnType
		outcome CoercionOutcome
	}{
		{"numeric stays", dataset.Float(1.5), TypeNumeric, CoercionConformed},
		{"string to number", dataset.String("2.5"), TypeNumeric, CoercionConverted},
		{"bool to number", dataset.Bool(true), TypeNumeric, CoercionConverted},
		{"word stays original", dataset.String("forty"), TypeNumeric, CoercionKeptOriginal},
		{"missing conforms", dataset.Missing(), TypeNumeric, CoercionConformed},
		{"int to bool", dataset.Int(1), TypeBool, CoercionConverted},
		{"two is not bool", dataset.Int(2), TypeBool, CoercionKeptOriginal},
		{"number to string", dataset.Int(7), TypeString, CoercionConverted},
		{"any accepts all", dataset.String("x"), TypeAny, CoercionConformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, c := coerceValue(tc.in, tc.want)
			assert.Equal(t, tc.outcome, c.Outcome)
			if tc.outcome == CoercionKeptOriginal {
				assert.NotEmpty(t, c.Reason)
			}
		})
	}
}
