package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MissingSpellings(t *testing.T) {
	missing := []string{"", "NA", "na", "N/A", "NaN", ".", "  NA  "}

	for _, raw := range missing {
		t.Run(raw, func(t *testing.T) {
			v := Parse(raw)
			assert.Equal(t, KindMissing, v.Kind())
			assert.True(t, v.IsMissing())
		})
	}
}

func TestParse_Numbers(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{"42", KindInt},
		{"-7", KindInt},
		{"3.14", KindFloat},
		{"-0.5", KindFloat},
		{"1e3", KindFloat},
		{" 12 ", KindInt},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			v := Parse(tc.raw)
			assert.Equal(t, tc.kind, v.Kind())
			f, ok := v.AsFloat()
			require.True(t, ok)
			assert.NotEqual(t, 0.0, f)
		})
	}
}

func TestParse_Booleans(t *testing.T) {
	b, ok := Parse("TRUE").AsBool()
	require.True(t, ok)
	assert.True(t, b)

	b, ok = Parse("false").AsBool()
	require.True(t, ok)
	assert.False(t, b)
}

func TestParse_FallsBackToString(t *testing.T) {
	v := Parse("guided")
	assert.Equal(t, KindString, v.Kind())
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "guided", s)
}

func TestAsFloat_WidensInt(t *testing.T) {
	f, ok := Int(9).AsFloat()
	require.True(t, ok)
	assert.Equal(t, 9.0, f)
}

func TestAsFloat_RejectsStringAndMissing(t *testing.T) {
	_, ok := String("abc").AsFloat()
	assert.False(t, ok)

	_, ok = Missing().AsFloat()
	assert.False(t, ok)
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"missing", Missing(), "NA"},
		{"int", Int(3), "3"},
		{"float", Float(0.25), "0.25"},
		{"bool true", Bool(true), "TRUE"},
		{"bool false", Bool(false), "FALSE"},
		{"string", String("ig"), "ig"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.v.String())
		})
	}
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Int(2).Equal(Int(2)))
	assert.True(t, Missing().Equal(Missing()))
	assert.False(t, Int(2).Equal(Float(2)))
	assert.False(t, String("a").Equal(String("b")))
}

func TestIsMissingToken(t *testing.T) {
	assert.True(t, IsMissingToken("NA"))
	assert.True(t, IsMissingToken(""))
	assert.False(t, IsMissingToken("0"))
	assert.False(t, IsMissingToken("none"))
}
