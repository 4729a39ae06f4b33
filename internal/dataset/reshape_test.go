package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longFixture(t *testing.T) *Table {
	t.Helper()
	tbl := New("study", "condition", "n", "mean", "sd", "primary_outcome")
	rows := [][]Value{
		{String("Adams 2019"), String("guided"), Int(30), Float(11.2), Float(4.1), Bool(true)},
		{String("Adams 2019"), String("unguided"), Int(28), Float(12.0), Float(4.4), Bool(true)},
		{String("Adams 2019"), String("wl"), Int(31), Float(15.3), Float(4.0), Bool(true)},
		{String("Berg 2020"), String("ig"), Int(50), Float(9.9), Float(3.2), Bool(false)},
		{String("Berg 2020"), String("cg"), Int(52), Float(13.1), Float(3.5), Bool(false)},
	}
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r...))
	}
	return tbl
}

func TestReshapeLongToWide_PairsInterventionsWithControls(t *testing.T) {
	wide, err := ReshapeLongToWide(longFixture(t), DefaultSchema(), ReshapeOptions{})
	require.NoError(t, err)

	// Adams has two interventions and one control, Berg one of each.
	require.Equal(t, 3, wide.NumRows())

	assert.Equal(t, "guided", wide.Cell(0, "condition_trt1").String())
	assert.Equal(t, "wl", wide.Cell(0, "condition_trt2").String())
	assert.Equal(t, "unguided", wide.Cell(1, "condition_trt1").String())
	assert.Equal(t, "wl", wide.Cell(1, "condition_trt2").String())
	assert.Equal(t, "ig", wide.Cell(2, "condition_trt1").String())
	assert.Equal(t, "cg", wide.Cell(2, "condition_trt2").String())
}

func TestReshapeLongToWide_CarriesArmAndTrialFields(t *testing.T) {
	wide, err := ReshapeLongToWide(longFixture(t), DefaultSchema(), ReshapeOptions{})
	require.NoError(t, err)

	n1, ok := wide.Cell(2, "n_trt1").AsInt()
	require.True(t, ok)
	n2, ok := wide.Cell(2, "n_trt2").AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(50), n1)
	assert.Equal(t, int64(52), n2)

	prim, ok := wide.Cell(0, "primary_outcome").AsBool()
	require.True(t, ok)
	assert.True(t, prim)
}

func TestReshapeLongToWide_NoControlFallsBackToAllPairs(t *testing.T) {
	tbl := New("study", "condition", "n")
	for _, r := range [][]Value{
		{String("Cole 2018"), String("a"), Int(10)},
		{String("Cole 2018"), String("b"), Int(11)},
		{String("Cole 2018"), String("c"), Int(12)},
	} {
		require.NoError(t, tbl.AppendRow(r...))
	}

	wide, err := ReshapeLongToWide(tbl, DefaultSchema(), ReshapeOptions{})
	require.NoError(t, err)

	// C(3,2) pairings in encounter order.
	require.Equal(t, 3, wide.NumRows())
	assert.Equal(t, "a", wide.Cell(0, "condition_trt1").String())
	assert.Equal(t, "b", wide.Cell(0, "condition_trt2").String())
	assert.Equal(t, "a", wide.Cell(1, "condition_trt1").String())
	assert.Equal(t, "c", wide.Cell(1, "condition_trt2").String())
	assert.Equal(t, "b", wide.Cell(2, "condition_trt1").String())
	assert.Equal(t, "c", wide.Cell(2, "condition_trt2").String())
}

func TestReshapeLongToWide_CustomControlSet(t *testing.T) {
	tbl := New("study", "condition", "n")
	for _, r := range [][]Value{
		{String("Dietz 2022"), String("app"), Int(20)},
		{String("Dietz 2022"), String("usual-care"), Int(22)},
	} {
		require.NoError(t, tbl.AppendRow(r...))
	}

	opts := ReshapeOptions{ControlConditions: []string{"usual-care"}}
	wide, err := ReshapeLongToWide(tbl, DefaultSchema(), opts)
	require.NoError(t, err)

	require.Equal(t, 1, wide.NumRows())
	assert.Equal(t, "app", wide.Cell(0, "condition_trt1").String())
	assert.Equal(t, "usual-care", wide.Cell(0, "condition_trt2").String())
}

func TestReshapeLongToWide_RequiresStudyAndCondition(t *testing.T) {
	tbl := New("study", "n")
	_, err := ReshapeLongToWide(tbl, DefaultSchema(), ReshapeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSuchColumn)
}

func TestIsControlCondition(t *testing.T) {
	opts := ReshapeOptions{}
	assert.True(t, opts.IsControlCondition("WL"))
	assert.True(t, opts.IsControlCondition(" placebo "))
	assert.False(t, opts.IsControlCondition("guided"))
}
