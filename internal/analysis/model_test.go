package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModel(t *testing.T) {
	tests := []struct {
		raw  string
		want Model
	}{
		{"combined", ModelCombined},
		{"", ModelCombined},
		{"threelevel", ModelThreeLevel},
		{"three-level", ModelThreeLevel},
		{"outliers-removed", ModelOutliersRemoved},
		{"outliers", ModelOutliersRemoved},
		{"influence", ModelInfluence},
		{"influence-sensitivity", ModelInfluence},
		{"rob", ModelRobSubset},
		{"rob-subset", ModelRobSubset},
		{"risk-of-bias", ModelRobSubset},
		{" Combined ", ModelCombined},
	}

	for _, tc := range tests {
		t.Run("raw="+tc.raw, func(t *testing.T) {
			got, err := ParseModel(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseModel_Unknown(t *testing.T) {
	_, err := ParseModel("bayesian")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestModelString(t *testing.T) {
	for _, m := range []Model{ModelCombined, ModelThreeLevel, ModelOutliersRemoved, ModelInfluence, ModelRobSubset} {
		parsed, err := ParseModel(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	assert.Equal(t, "unknown", Model(99).String())
}
