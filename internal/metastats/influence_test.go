package metastats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaveOneOut(t *testing.T) {
	es := []float64{0.1, 0.5, 0.9}
	se := []float64{0.1, 0.1, 0.1}
	opts := Options{Estimator: EstimatorDL}

	rows, err := LeaveOneOut(es, se, opts)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	wantEstimates := []float64{0.7, 0.5, 0.3}
	wantTau2 := []float64{0.07, 0.31, 0.07}
	for i, row := range rows {
		assert.Equal(t, i, row.Omitted)
		assert.Equal(t, 2, row.Fit.K)
		assert.InDelta(t, wantEstimates[i], row.Fit.Estimate, 1e-10)
		assert.InDelta(t, wantTau2[i], row.Fit.Tau2, 1e-10)
	}
}

func TestLeaveOneOut_TwoComparisons(t *testing.T) {
	rows, err := LeaveOneOut([]float64{0.2, 0.6}, []float64{0.1, 0.2}, Options{Estimator: EstimatorDL})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Omitting one of two leaves a lone estimate, passed through untouched.
	assert.Equal(t, 1, rows[0].Fit.K)
	assert.InDelta(t, 0.6, rows[0].Fit.Estimate, 1e-10)
	assert.InDelta(t, 0.2, rows[0].Fit.SE, 1e-10)
	assert.Equal(t, 1, rows[1].Fit.K)
	assert.InDelta(t, 0.2, rows[1].Fit.Estimate, 1e-10)
}

func TestLeaveOneOut_RejectsTooFew(t *testing.T) {
	_, err := LeaveOneOut([]float64{0.2}, []float64{0.1}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooFewComparisons)
}

func TestMostInfluential(t *testing.T) {
	es := []float64{0.1, 0.5, 0.9}
	se := []float64{0.1, 0.1, 0.1}
	opts := Options{Estimator: EstimatorDL}

	full, err := RandomEffects(es, se, opts)
	require.NoError(t, err)
	rows, err := LeaveOneOut(es, se, opts)
	require.NoError(t, err)

	omitted, shift := MostInfluential(full, rows)
	// The two extremes tie at a 0.2 shift; the earlier row wins.
	assert.Equal(t, 0, omitted)
	assert.InDelta(t, 0.2, shift, 1e-10)
}

func TestMostInfluential_NoRows(t *testing.T) {
	omitted, shift := MostInfluential(FitResult{Estimate: 0.5}, nil)
	assert.Equal(t, -1, omitted)
	assert.Zero(t, shift)
}
