package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
)

func TestBankResultGetOrCreate(t *testing.T) {
	b := NewBank()

	r1 := b.Result("PEP1")
	r2 := b.Result("PEP1")

	assert.Same(t, r1, r2)
	assert.Equal(t, 1, b.Len())

	_, ok := b.Lookup("PEP2")
	assert.False(t, ok)
}

func TestBankKeysSorted(t *testing.T) {
	b := NewBank()
	b.Result("zz")
	b.Result("aa")
	b.Result("mm")

	assert.Equal(t, []string{"aa", "mm", "zz"}, b.Keys())
}

func TestBankKeysEmptyNotNil(t *testing.T) {
	b := NewBank()

	keys := b.Keys()

	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestBankRevisionMovesOnMutation(t *testing.T) {
	b := NewBank()
	before := b.Revision()

	st, err := b.Registry().RegisterScoreType(ident.ScoreType{Name: "q-value"})
	require.NoError(t, err)
	require.NoError(t, b.AddScore("PEP1", st, 0.01, ident.NoStep))

	assert.Greater(t, b.Revision(), before)
}

func TestBankAddScoreValidatesRefs(t *testing.T) {
	b := NewBank()

	err := b.AddScore("PEP1", 42, 0.01, ident.NoStep)
	require.Error(t, err)
	assert.True(t, IsUnknownRef(err))

	st, err := b.Registry().RegisterScoreType(ident.ScoreType{Name: "q-value"})
	require.NoError(t, err)

	err = b.AddScore("PEP1", st, 0.01, 7)
	require.Error(t, err)
	assert.True(t, IsUnknownRef(err))
}

func TestBankAddStepRecordsHistory(t *testing.T) {
	b := NewBank()
	refs, err := b.Registry().ApplySpec(testPipelineSpec())
	require.NoError(t, err)

	xcorr := refs.ScoreTypes["XCorr"]
	search := refs.Steps["search"]

	require.NoError(t, b.AddStep("PEP1", search, ident.ScoreMap{xcorr: 5.0}))
	require.NoError(t, b.AddStep("PEP1", search, ident.ScoreMap{xcorr: 7.0}))

	r, ok := b.Lookup("PEP1")
	require.True(t, ok)
	assert.Equal(t, 1, r.Steps().Len())

	v, ok := r.Score(xcorr)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestBankSetMetaInternsName(t *testing.T) {
	b := NewBank()

	b.SetMeta("PEP1", "retention_time", meta.Float(812.5))

	k, ok := b.Registry().MetaKeys().Lookup("retention_time")
	require.True(t, ok)

	r, _ := b.Lookup("PEP1")
	v, ok := r.MetaValue(k)
	require.True(t, ok)
	assert.Equal(t, meta.Float(812.5), v)
}

// Two banks that registered the same descriptors in different orders get
// different refs; merging must fold by content, not by ref value.
func TestBankMergeRemapsRefs(t *testing.T) {
	left := NewBank()
	lq, err := left.Registry().RegisterScoreType(ident.ScoreType{Name: "q-value"})
	require.NoError(t, err)
	lx, err := left.Registry().RegisterScoreType(ident.ScoreType{Name: "XCorr", HigherBetter: true})
	require.NoError(t, err)

	right := NewBank()
	rx, err := right.Registry().RegisterScoreType(ident.ScoreType{Name: "XCorr", HigherBetter: true})
	require.NoError(t, err)
	rq, err := right.Registry().RegisterScoreType(ident.ScoreType{Name: "q-value"})
	require.NoError(t, err)
	require.NotEqual(t, lq, rq)
	require.NotEqual(t, lx, rx)

	rsw, err := right.Registry().RegisterSoftware(ident.ProcessingSoftware{Name: "percolator", Version: "3.6"})
	require.NoError(t, err)
	rstep, err := right.Registry().RegisterStep(ident.ProcessingStep{Software: rsw, Actions: []string{"rescoring"}})
	require.NoError(t, err)

	require.NoError(t, left.AddScore("PEP1", lx, 5.0, ident.NoStep))
	require.NoError(t, right.AddStep("PEP1", rstep, ident.ScoreMap{rq: 0.01, rx: 7.0}))
	require.NoError(t, right.AddScore("PEP2", rq, 0.2, ident.NoStep))

	require.NoError(t, left.Merge(right))

	// PEP1 has the unattached record plus the remapped rescoring step.
	r, ok := left.Lookup("PEP1")
	require.True(t, ok)
	require.Equal(t, 2, r.Steps().Len())

	v, ok := r.Score(lq)
	require.True(t, ok)
	assert.Equal(t, 0.01, v)
	v, step, ok := r.ScoreAndStep(lx)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
	assert.NotEqual(t, ident.NoStep, step)

	resolved, err := left.Registry().Step(step)
	require.NoError(t, err)
	sw, err := left.Registry().Software(resolved.Software)
	require.NoError(t, err)
	assert.Equal(t, "percolator", sw.Name)

	// PEP2 came over whole.
	r, ok = left.Lookup("PEP2")
	require.True(t, ok)
	v, ok = r.Score(lq)
	require.True(t, ok)
	assert.Equal(t, 0.2, v)
}

func TestBankMergeIdempotent(t *testing.T) {
	left := NewBank()
	right := NewBank()

	st, err := right.Registry().RegisterScoreType(ident.ScoreType{Name: "q-value"})
	require.NoError(t, err)
	require.NoError(t, right.AddScore("PEP1", st, 0.01, ident.NoStep))
	right.SetMeta("PEP1", "charge", meta.Int(2))

	require.NoError(t, left.Merge(right))
	once, err := left.Snapshot()
	require.NoError(t, err)

	require.NoError(t, left.Merge(right))
	twice, err := left.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, string(once), string(twice))
}

func TestBankMergeMetadataOverwritesAll(t *testing.T) {
	left := NewBank()
	left.SetMeta("PEP1", "charge", meta.Int(2))
	left.SetMeta("PEP1", "note", meta.String("mine"))

	right := NewBank()
	right.SetMeta("PEP1", "note", meta.String("theirs"))

	require.NoError(t, left.Merge(right))

	r, _ := left.Lookup("PEP1")
	noteKey, _ := left.Registry().MetaKeys().Lookup("note")
	v, _ := r.MetaValue(noteKey)
	assert.Equal(t, meta.String("theirs"), v)

	chargeKey, _ := left.Registry().MetaKeys().Lookup("charge")
	v, _ = r.MetaValue(chargeKey)
	assert.Equal(t, meta.Int(2), v)
}

func TestBankMergeConflictAborts(t *testing.T) {
	left := NewBank()
	_, err := left.Registry().RegisterScoreType(ident.ScoreType{Name: "XCorr", HigherBetter: true})
	require.NoError(t, err)

	right := NewBank()
	st, err := right.Registry().RegisterScoreType(ident.ScoreType{Name: "XCorr", HigherBetter: false})
	require.NoError(t, err)
	require.NoError(t, right.AddScore("PEP1", st, 1.0, ident.NoStep))

	err = left.Merge(right)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	// No result data crossed over.
	assert.Equal(t, 0, left.Len())
}
