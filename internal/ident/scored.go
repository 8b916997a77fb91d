package ident

import (
	"math"

	"github.com/IceFreez3r/OpenMS/internal/meta"
)

// ScoredProcessingResult is the base entity higher-level identification
// types compose: a ledger of applied processing steps plus a metadata
// side-table. The zero value is an empty, usable result.
//
// The ledger only grows. Records keep the position of their first
// insertion; later score updates to the same step never reorder them.
type ScoredProcessingResult struct {
	steps AppliedProcessingSteps
	meta  meta.Info
}

// AddProcessingStep records rec in the ledger. This is the single
// mutation primitive: every other mutator routes through it, which is
// what keeps the one-record-per-step invariant intact.
//
// If no record is keyed by rec.Step, rec is appended at the end of the
// application order. Otherwise each (type, value) pair of rec.Scores is
// written into the existing record, inserting or overwriting per type,
// and the record stays where it first appeared.
func (r *ScoredProcessingResult) AddProcessingStep(rec AppliedProcessingStep) {
	merged := r.steps.modifyByStep(rec.Step, func(existing *AppliedProcessingStep) {
		if existing.Scores == nil && len(rec.Scores) > 0 {
			existing.Scores = make(ScoreMap, len(rec.Scores))
		}
		for t, v := range rec.Scores {
			existing.Scores[t] = v
		}
	})
	if !merged {
		r.steps.insertOrdered(rec.Clone())
	}
}

// AddStep records the given step with the given scores. Shorthand for
// AddProcessingStep with a freshly built record; scores may be nil.
func (r *ScoredProcessingResult) AddStep(step ProcessingStepRef, scores ScoreMap) {
	r.AddProcessingStep(AppliedProcessingStep{Step: step, Scores: scores})
}

// AddScore records a single score value, attached to step. Pass NoStep
// for scores not produced by any specific processing step.
func (r *ScoredProcessingResult) AddScore(t ScoreTypeRef, value float64, step ProcessingStepRef) {
	r.AddProcessingStep(AppliedProcessingStep{Step: step, Scores: ScoreMap{t: value}})
}

// Merge folds other into r and returns r. Other's records are replayed
// through AddProcessingStep in other's application order, so no step or
// score is lost and r's existing order is preserved. Then every metadata
// key of other is written into r: all of other's keys win, regardless of
// which side wrote them more recently.
func (r *ScoredProcessingResult) Merge(other *ScoredProcessingResult) *ScoredProcessingResult {
	for i := 0; i < other.steps.Len(); i++ {
		r.AddProcessingStep(other.steps.At(i))
	}
	for _, k := range other.meta.Keys() {
		v, _ := other.meta.Value(k)
		r.meta.Set(k, meta.CloneValue(v))
	}
	return r
}

// Score resolves the current value of score type t: the ledger is
// scanned from the most recently applied record backwards, and the first
// record whose scores contain t wins. Later processing steps supersede
// earlier ones for the same type.
//
// Returns (NaN, false) when no record carries t. The boolean is the
// authoritative absence signal; NaN alone is just its companion sentinel.
func (r *ScoredProcessingResult) Score(t ScoreTypeRef) (float64, bool) {
	for i := r.steps.Len() - 1; i >= 0; i-- {
		if v, ok := r.steps.At(i).Scores[t]; ok {
			return v, true
		}
	}
	return math.NaN(), false
}

// ScoreForStep returns the value of t recorded for exactly the given
// step, with no recency precedence involved. step may be NoStep to
// address the unattached-scores record. Returns (NaN, false) when the
// record or the score type is missing.
func (r *ScoredProcessingResult) ScoreForStep(t ScoreTypeRef, step ProcessingStepRef) (float64, bool) {
	rec, ok := r.steps.ForStep(step)
	if !ok {
		return math.NaN(), false
	}
	v, ok := rec.Scores[t]
	if !ok {
		return math.NaN(), false
	}
	return v, true
}

// ScoreAndStep resolves t like Score and additionally reports which step
// produced the winning value, so callers can trace the provenance of the
// current score. The step is NoStep both when the winning record is the
// unattached one and when nothing was found; the boolean disambiguates.
func (r *ScoredProcessingResult) ScoreAndStep(t ScoreTypeRef) (float64, ProcessingStepRef, bool) {
	for i := r.steps.Len() - 1; i >= 0; i-- {
		rec := r.steps.At(i)
		if v, ok := rec.Scores[t]; ok {
			return v, rec.Step, true
		}
	}
	return math.NaN(), NoStep, false
}

// Steps returns the ledger in application order. The view is live and
// read-only.
func (r *ScoredProcessingResult) Steps() *AppliedProcessingSteps {
	return &r.steps
}

// StepsByStep returns the records ordered by step key rather than by
// application order, for callers that iterate the key view.
func (r *ScoredProcessingResult) StepsByStep() []AppliedProcessingStep {
	return r.steps.StepOrder()
}

// MetaValue returns the metadata entry for k.
func (r *ScoredProcessingResult) MetaValue(k meta.Key) (meta.Value, bool) {
	return r.meta.Value(k)
}

// SetMetaValue inserts or overwrites the metadata entry for k.
func (r *ScoredProcessingResult) SetMetaValue(k meta.Key, v meta.Value) {
	r.meta.Set(k, v)
}

// MetaKeys returns the present metadata keys in ascending order.
func (r *ScoredProcessingResult) MetaKeys() []meta.Key {
	return r.meta.Keys()
}

// Clone returns a deep copy: the ledger's records and the metadata table
// are copied, the refs they hold are not resolved or duplicated.
func (r *ScoredProcessingResult) Clone() *ScoredProcessingResult {
	return &ScoredProcessingResult{
		steps: r.steps.clone(),
		meta:  r.meta.Clone(),
	}
}

// Equal reports whether two results hold equal ledgers (same records,
// same application order) and equal metadata.
func (r *ScoredProcessingResult) Equal(other *ScoredProcessingResult) bool {
	return r.steps.Equal(&other.steps) && r.meta.Equal(&other.meta)
}
