package ident

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceFreez3r/OpenMS/internal/meta"
)

const (
	qValue ScoreTypeRef = 1
	xcorr  ScoreTypeRef = 2
	pep    ScoreTypeRef = 3

	stepA ProcessingStepRef = 1
	stepB ProcessingStepRef = 2
	stepC ProcessingStepRef = 3
)

func TestAddProcessingStepAppendsNewKeys(t *testing.T) {
	var r ScoredProcessingResult

	r.AddStep(stepA, ScoreMap{qValue: 0.01})
	r.AddStep(stepB, ScoreMap{qValue: 0.02})

	require.Equal(t, 2, r.Steps().Len())
	assert.Equal(t, stepA, r.Steps().At(0).Step)
	assert.Equal(t, stepB, r.Steps().At(1).Step)
}

func TestAddProcessingStepMergesExistingKey(t *testing.T) {
	var r ScoredProcessingResult

	r.AddStep(stepA, ScoreMap{qValue: 0.01})
	r.AddStep(stepB, ScoreMap{xcorr: 3.5})
	r.AddStep(stepA, ScoreMap{qValue: 0.05, pep: 0.2})

	// Still two records; stepA kept its original position.
	require.Equal(t, 2, r.Steps().Len())
	first := r.Steps().At(0)
	assert.Equal(t, stepA, first.Step)
	assert.Equal(t, ScoreMap{qValue: 0.05, pep: 0.2}, first.Scores)
}

func TestAddScoreNoStepRecordsCollapse(t *testing.T) {
	var r ScoredProcessingResult

	r.AddScore(qValue, 0.01, NoStep)
	r.AddScore(xcorr, 2.0, NoStep)

	require.Equal(t, 1, r.Steps().Len())
	rec, ok := r.Steps().ForStep(NoStep)
	require.True(t, ok)
	assert.Equal(t, ScoreMap{qValue: 0.01, xcorr: 2.0}, rec.Scores)
}

func TestAddScoreIdempotent(t *testing.T) {
	var once, twice ScoredProcessingResult

	once.AddScore(qValue, 0.01, stepA)

	twice.AddScore(qValue, 0.01, stepA)
	twice.AddScore(qValue, 0.01, stepA)

	assert.True(t, once.Equal(&twice))
}

func TestAddStepNilScores(t *testing.T) {
	var r ScoredProcessingResult

	r.AddStep(stepA, nil)
	r.AddStep(stepA, ScoreMap{qValue: 0.01})

	require.Equal(t, 1, r.Steps().Len())
	v, ok := r.Score(qValue)
	require.True(t, ok)
	assert.Equal(t, 0.01, v)
}

func TestScoreMostRecentWins(t *testing.T) {
	var r ScoredProcessingResult

	// Only the first and third steps assign qValue.
	r.AddStep(stepA, ScoreMap{qValue: 0.5})
	r.AddStep(stepB, ScoreMap{xcorr: 3.5})
	r.AddStep(stepC, ScoreMap{qValue: 0.01})

	v, ok := r.Score(qValue)
	require.True(t, ok)
	assert.Equal(t, 0.01, v)

	v, step, ok := r.ScoreAndStep(qValue)
	require.True(t, ok)
	assert.Equal(t, 0.01, v)
	assert.Equal(t, stepC, step)
}

func TestScoreForStepIgnoresPrecedence(t *testing.T) {
	var r ScoredProcessingResult

	r.AddStep(stepA, ScoreMap{qValue: 0.5})
	r.AddStep(stepC, ScoreMap{qValue: 0.01})

	// The older step's value is still addressable directly.
	v, ok := r.ScoreForStep(qValue, stepA)
	require.True(t, ok)
	assert.Equal(t, 0.5, v)

	// Missing score type on a present step.
	_, ok = r.ScoreForStep(xcorr, stepA)
	assert.False(t, ok)

	// Missing step.
	_, ok = r.ScoreForStep(qValue, stepB)
	assert.False(t, ok)
}

func TestScoreForStepAddressesNoStepRecord(t *testing.T) {
	var r ScoredProcessingResult

	r.AddScore(qValue, 0.01, NoStep)
	r.AddStep(stepA, ScoreMap{qValue: 0.5})

	v, ok := r.ScoreForStep(qValue, NoStep)
	require.True(t, ok)
	assert.Equal(t, 0.01, v)
}

func TestScoreNotFound(t *testing.T) {
	var r ScoredProcessingResult
	r.AddStep(stepA, ScoreMap{qValue: 0.5})

	v, ok := r.Score(pep)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(v))

	v, step, ok := r.ScoreAndStep(pep)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(v))
	assert.Equal(t, NoStep, step)
}

func TestScoreNaNValueIsStillFound(t *testing.T) {
	var r ScoredProcessingResult
	r.AddScore(qValue, math.NaN(), stepA)

	v, ok := r.Score(qValue)
	assert.True(t, ok)
	assert.True(t, math.IsNaN(v))
}

func TestMergeFoldsStepsInApplicationOrder(t *testing.T) {
	var a, b ScoredProcessingResult

	a.AddStep(stepA, ScoreMap{qValue: 0.5})
	b.AddStep(stepB, ScoreMap{xcorr: 3.5})
	b.AddStep(stepA, ScoreMap{qValue: 0.01})

	got := a.Merge(&b)

	assert.Same(t, &a, got)
	require.Equal(t, 2, a.Steps().Len())
	// stepA stays first (its original position in a); stepB appended.
	assert.Equal(t, stepA, a.Steps().At(0).Step)
	assert.Equal(t, stepB, a.Steps().At(1).Step)
	// stepA's score was updated by b's later record.
	v, ok := a.Score(qValue)
	require.True(t, ok)
	assert.Equal(t, 0.01, v)
}

func TestMergeSequenceMatchesConcatenatedFold(t *testing.T) {
	build := func() (a, b, c ScoredProcessingResult) {
		a.AddStep(stepA, ScoreMap{qValue: 0.5})
		b.AddStep(stepB, ScoreMap{xcorr: 1})
		b.AddStep(stepA, ScoreMap{qValue: 0.2})
		c.AddStep(stepC, ScoreMap{pep: 0.9})
		c.AddStep(stepB, ScoreMap{xcorr: 2})
		return
	}

	// Merge b then c into a.
	a1, b1, c1 := build()
	a1.Merge(&b1)
	a1.Merge(&c1)

	// Replay b's and c's records into a in one pass, in the same order.
	a2, b2, c2 := build()
	for i := 0; i < b2.Steps().Len(); i++ {
		a2.AddProcessingStep(b2.Steps().At(i))
	}
	for i := 0; i < c2.Steps().Len(); i++ {
		a2.AddProcessingStep(c2.Steps().At(i))
	}

	assert.True(t, a1.Equal(&a2))
}

func TestMergeOverwritesAllMetadataKeys(t *testing.T) {
	var a, b ScoredProcessingResult

	a.SetMetaValue(1, meta.String("mine"))
	a.SetMetaValue(2, meta.Int(7))
	b.SetMetaValue(1, meta.String("theirs"))
	b.SetMetaValue(3, meta.Float(0.5))

	a.Merge(&b)

	v, _ := a.MetaValue(1)
	assert.Equal(t, meta.String("theirs"), v)
	v, _ = a.MetaValue(2)
	assert.Equal(t, meta.Int(7), v)
	v, _ = a.MetaValue(3)
	assert.Equal(t, meta.Float(0.5), v)
}

func TestMergeCopiesMetadataLists(t *testing.T) {
	var a, b ScoredProcessingResult
	b.SetMetaValue(1, meta.FloatList{1, 2})

	a.Merge(&b)

	v, _ := a.MetaValue(1)
	v.(meta.FloatList)[0] = 99

	orig, _ := b.MetaValue(1)
	assert.Equal(t, meta.FloatList{1, 2}, orig)
}

func TestMergeWithSelfIsIdempotent(t *testing.T) {
	var r ScoredProcessingResult
	r.AddStep(stepA, ScoreMap{qValue: 0.5})
	r.AddScore(xcorr, 2.0, NoStep)
	r.SetMetaValue(1, meta.String("x"))

	want := r.Clone()
	r.Merge(&r)

	assert.True(t, r.Equal(want))
}

func TestCloneIsDeep(t *testing.T) {
	var r ScoredProcessingResult
	r.AddStep(stepA, ScoreMap{qValue: 0.5})
	r.SetMetaValue(1, meta.String("x"))

	c := r.Clone()
	c.AddStep(stepA, ScoreMap{qValue: 0.9})
	c.AddStep(stepB, ScoreMap{xcorr: 1})
	c.SetMetaValue(1, meta.String("y"))

	assert.Equal(t, 1, r.Steps().Len())
	v, _ := r.Score(qValue)
	assert.Equal(t, 0.5, v)
	mv, _ := r.MetaValue(1)
	assert.Equal(t, meta.String("x"), mv)
}

// The worked example: one unattached score, then the same step applied
// twice with a score update in between.
func TestLedgerScenario(t *testing.T) {
	var r ScoredProcessingResult

	r.AddScore(qValue, 0.01, NoStep)
	r.AddStep(stepA, ScoreMap{xcorr: 5.0})
	r.AddStep(stepA, ScoreMap{xcorr: 7.0})

	require.Equal(t, 2, r.Steps().Len())
	assert.Equal(t, NoStep, r.Steps().At(0).Step)
	assert.Equal(t, ScoreMap{qValue: 0.01}, r.Steps().At(0).Scores)
	assert.Equal(t, stepA, r.Steps().At(1).Step)
	assert.Equal(t, ScoreMap{xcorr: 7.0}, r.Steps().At(1).Scores)

	v, ok := r.Score(xcorr)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)

	v, ok = r.Score(qValue)
	require.True(t, ok)
	assert.Equal(t, 0.01, v)

	v, ok = r.Score(pep)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(v))
}

func TestStepsByStepOrdersByKey(t *testing.T) {
	var r ScoredProcessingResult
	r.AddStep(stepC, ScoreMap{pep: 0.9})
	r.AddScore(qValue, 0.01, NoStep)
	r.AddStep(stepA, ScoreMap{xcorr: 1})

	got := r.StepsByStep()

	require.Len(t, got, 3)
	assert.Equal(t, NoStep, got[0].Step)
	assert.Equal(t, stepA, got[1].Step)
	assert.Equal(t, stepC, got[2].Step)
}
