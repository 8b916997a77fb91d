package ident

import (
	"maps"
	"slices"
)

// ScoreMap maps score types to the values a processing step assigned.
type ScoreMap map[ScoreTypeRef]float64

// ScoreEntry is one (type, value) pair in ref order, for deterministic
// iteration over a ScoreMap.
type ScoreEntry struct {
	Type  ScoreTypeRef
	Value float64
}

// AppliedProcessingStep is one ledger record: an optional processing step
// (NoStep when the scores are unattached) and the scores it produced.
type AppliedProcessingStep struct {
	Step   ProcessingStepRef
	Scores ScoreMap
}

// NewAppliedProcessingStep builds a record with its own copy of scores.
func NewAppliedProcessingStep(step ProcessingStepRef, scores ScoreMap) AppliedProcessingStep {
	return AppliedProcessingStep{Step: step, Scores: maps.Clone(scores)}
}

// Equal reports structural equality: same step and same score map.
func (a AppliedProcessingStep) Equal(b AppliedProcessingStep) bool {
	return a.Step == b.Step && maps.Equal(a.Scores, b.Scores)
}

// Clone returns a copy with its own score map.
func (a AppliedProcessingStep) Clone() AppliedProcessingStep {
	return AppliedProcessingStep{Step: a.Step, Scores: maps.Clone(a.Scores)}
}

// SortedScores returns the record's scores ordered by score type ref.
func (a AppliedProcessingStep) SortedScores() []ScoreEntry {
	entries := make([]ScoreEntry, 0, len(a.Scores))
	for t, v := range a.Scores {
		entries = append(entries, ScoreEntry{Type: t, Value: v})
	}
	slices.SortFunc(entries, func(x, y ScoreEntry) int {
		return int(x.Type) - int(y.Type)
	})
	return entries
}

// AppliedProcessingSteps is the ledger: records in application order plus
// a step-keyed index over the same records. At most one record exists per
// step key; NoStep counts as one key like any other.
//
// Both views always agree. Mutation happens only through the unexported
// primitives below, which ScoredProcessingResult routes through its
// deduplicating AddProcessingStep; reads are exported. The ledger owns
// its records' score maps.
type AppliedProcessingSteps struct {
	seq   []AppliedProcessingStep
	index map[ProcessingStepRef]int
}

// Len returns the number of records.
func (l *AppliedProcessingSteps) Len() int {
	return len(l.seq)
}

// At returns the record at position i in application order. The record's
// score map is the ledger's own; callers must not modify it.
func (l *AppliedProcessingSteps) At(i int) AppliedProcessingStep {
	return l.seq[i]
}

// ForStep returns the record keyed by step, if present.
func (l *AppliedProcessingSteps) ForStep(step ProcessingStepRef) (AppliedProcessingStep, bool) {
	i, ok := l.index[step]
	if !ok {
		return AppliedProcessingStep{}, false
	}
	return l.seq[i], true
}

// StepOrder returns the records sorted by step key, NoStep first. Never
// nil. The records share the ledger's score maps.
func (l *AppliedProcessingSteps) StepOrder() []AppliedProcessingStep {
	out := make([]AppliedProcessingStep, len(l.seq))
	copy(out, l.seq)
	slices.SortFunc(out, func(a, b AppliedProcessingStep) int {
		return int(a.Step) - int(b.Step)
	})
	return out
}

// Equal reports whether two ledgers hold equal records in the same
// application order.
func (l *AppliedProcessingSteps) Equal(other *AppliedProcessingSteps) bool {
	if len(l.seq) != len(other.seq) {
		return false
	}
	for i := range l.seq {
		if !l.seq[i].Equal(other.seq[i]) {
			return false
		}
	}
	return true
}

// insertOrdered appends rec at the end of the application order.
// Precondition: no record is keyed by rec.Step; callers go through
// ScoredProcessingResult.AddProcessingStep to guarantee it.
func (l *AppliedProcessingSteps) insertOrdered(rec AppliedProcessingStep) {
	if l.index == nil {
		l.index = make(map[ProcessingStepRef]int)
	}
	l.index[rec.Step] = len(l.seq)
	l.seq = append(l.seq, rec)
}

// modifyByStep applies mutate to the record keyed by step, in place. The
// record keeps its position in application order. Returns false when no
// record has that key. mutate must not change the record's Step.
func (l *AppliedProcessingSteps) modifyByStep(step ProcessingStepRef, mutate func(rec *AppliedProcessingStep)) bool {
	i, ok := l.index[step]
	if !ok {
		return false
	}
	mutate(&l.seq[i])
	return true
}

// clone returns a deep copy: fresh sequence, fresh index, fresh score maps.
func (l *AppliedProcessingSteps) clone() AppliedProcessingSteps {
	if len(l.seq) == 0 {
		return AppliedProcessingSteps{}
	}
	out := AppliedProcessingSteps{
		seq:   make([]AppliedProcessingStep, len(l.seq)),
		index: make(map[ProcessingStepRef]int, len(l.index)),
	}
	for i, rec := range l.seq {
		out.seq[i] = rec.Clone()
		out.index[rec.Step] = i
	}
	return out
}
