package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePredicate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Predicate
	}{
		{"less equal", "q-value <= 0.05", Predicate{"q-value", OpLessEqual, 0.05}},
		{"no spaces", "q-value<=0.05", Predicate{"q-value", OpLessEqual, 0.05}},
		{"greater", "XCorr > 2.5", Predicate{"XCorr", OpGreater, 2.5}},
		{"equal", "charge == 2", Predicate{"charge", OpEqual, 2}},
		{"not equal", "rank != 1", Predicate{"rank", OpNotEqual, 1}},
		{"negative value", "delta < -0.5", Predicate{"delta", OpLess, -0.5}},
		{"scientific notation", "e-value <= 1e-5", Predicate{"e-value", OpLessEqual, 1e-5}},
		{"name with spaces", "posterior error prob < 0.01", Predicate{"posterior error prob", OpLess, 0.01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePredicate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePredicateErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"q-value",
		"<= 0.05",
		"q-value <= banana",
		"q-value <=",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePredicate(input)
			assert.Error(t, err)
		})
	}
}

func TestParseFilterConjunction(t *testing.T) {
	f, err := Parse("q-value <= 0.05; XCorr > 2")
	require.NoError(t, err)

	require.Len(t, f, 2)
	assert.Equal(t, Predicate{"q-value", OpLessEqual, 0.05}, f[0])
	assert.Equal(t, Predicate{"XCorr", OpGreater, 2}, f[1])
}

func TestParseEmptyFilter(t *testing.T) {
	f, err := Parse("  ")
	require.NoError(t, err)
	assert.Empty(t, f)

	f, err = Parse("q-value <= 0.05; ")
	require.NoError(t, err)
	assert.Len(t, f, 1)
}

func TestPredicateEval(t *testing.T) {
	tests := []struct {
		name string
		p    Predicate
		v    float64
		want bool
	}{
		{"less true", Predicate{Op: OpLess, Value: 1}, 0.5, true},
		{"less false at boundary", Predicate{Op: OpLess, Value: 1}, 1, false},
		{"less equal at boundary", Predicate{Op: OpLessEqual, Value: 1}, 1, true},
		{"greater true", Predicate{Op: OpGreater, Value: 1}, 2, true},
		{"greater equal at boundary", Predicate{Op: OpGreaterEqual, Value: 1}, 1, true},
		{"equal", Predicate{Op: OpEqual, Value: 2}, 2, true},
		{"not equal", Predicate{Op: OpNotEqual, Value: 2}, 3, true},
		{"not equal false", Predicate{Op: OpNotEqual, Value: 2}, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Eval(tt.v))
		})
	}
}

func TestFilterStringRoundTrip(t *testing.T) {
	f, err := Parse("q-value <= 0.05; XCorr > 2")
	require.NoError(t, err)

	again, err := Parse(f.String())
	require.NoError(t, err)
	assert.Equal(t, f, again)
}
