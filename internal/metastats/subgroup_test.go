package metastats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubgroups_TwoGroups(t *testing.T) {
	es := []float64{0.1, 0.5, 0.9, 0.2, 0.4}
	se := []float64{0.1, 0.1, 0.1, 0.1, 0.1}
	labels := []string{"cbt", "cbt", "cbt", "act", "act"}

	res, err := Subgroups(es, se, labels, Options{Estimator: EstimatorDL})
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)

	assert.Equal(t, "cbt", res.Groups[0].Group, "groups keep first-encounter order")
	assert.Equal(t, "act", res.Groups[1].Group)

	cbt := res.Groups[0].Fit
	assert.Equal(t, 3, cbt.K)
	assert.InDelta(t, 0.5, cbt.Estimate, 1e-10)
	assert.InDelta(t, 0.15, cbt.Tau2, 1e-10)
	assert.InDelta(t, 0.2309401, cbt.SE, 1e-6)

	act := res.Groups[1].Fit
	assert.Equal(t, 2, act.K)
	assert.InDelta(t, 0.3, act.Estimate, 1e-10)
	assert.InDelta(t, 0.01, act.Tau2, 1e-10)
	assert.InDelta(t, 0.1, act.SE, 1e-10)

	assert.InDelta(t, 0.6315790, res.QBetween, 1e-6)
	assert.Equal(t, 1, res.QBetweenDF)
	assert.False(t, math.IsNaN(res.QBetweenP))
	assert.Greater(t, res.QBetweenP, 0.05, "these groups do not differ significantly")
}

func TestSubgroups_SingleComparisonGroup(t *testing.T) {
	es := []float64{0.2, 0.4, 0.9}
	se := []float64{0.1, 0.1, 0.2}
	labels := []string{"low", "low", "high"}

	res, err := Subgroups(es, se, labels, Options{Estimator: EstimatorDL})
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)

	lone := res.Groups[1].Fit
	assert.Equal(t, "high", res.Groups[1].Group)
	assert.Equal(t, 1, lone.K)
	assert.InDelta(t, 0.9, lone.Estimate, 1e-10)
	assert.InDelta(t, 0.2, lone.SE, 1e-10)
	assert.InDelta(t, 0.5080072, lone.CILower, 1e-6)
	assert.InDelta(t, 1.2919928, lone.CIUpper, 1e-6)
	assert.Zero(t, lone.Tau2)
	assert.True(t, math.IsNaN(lone.QP))
	assert.True(t, math.IsNaN(lone.PredLower))
}

func TestSubgroups_SingleGroupHasNoBetweenTest(t *testing.T) {
	res, err := Subgroups(
		[]float64{0.2, 0.4},
		[]float64{0.1, 0.1},
		[]string{"only", "only"},
		Options{Estimator: EstimatorDL},
	)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Zero(t, res.QBetween)
	assert.Zero(t, res.QBetweenDF)
	assert.True(t, math.IsNaN(res.QBetweenP))
}

func TestSubgroups_InputErrors(t *testing.T) {
	t.Run("label length mismatch", func(t *testing.T) {
		_, err := Subgroups([]float64{0.2, 0.4}, []float64{0.1, 0.1}, []string{"a"}, Options{})
		require.Error(t, err)
	})

	t.Run("bad standard error", func(t *testing.T) {
		_, err := Subgroups([]float64{0.2, 0.4}, []float64{0.1, 0}, []string{"a", "b"}, Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBadStandardError)
	})
}
