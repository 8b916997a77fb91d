package registry

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
)

// Bank groups one Registry with the scored results built on its refs,
// keyed by entity (a peptide, protein, or spectrum identifier). It is
// the unit the store persists and the merge operation folds.
type Bank struct {
	reg     *Registry
	results map[string]*ident.ScoredProcessingResult
	rev     atomic.Uint64
}

// NewBank creates an empty bank with its own registry.
func NewBank() *Bank {
	return &Bank{
		reg:     NewRegistry(),
		results: make(map[string]*ident.ScoredProcessingResult),
	}
}

// Registry returns the bank's registry.
func (b *Bank) Registry() *Registry {
	return b.reg
}

// Result returns the result for key, creating an empty one on first use.
func (b *Bank) Result(key string) *ident.ScoredProcessingResult {
	if r, ok := b.results[key]; ok {
		return r
	}
	r := &ident.ScoredProcessingResult{}
	b.results[key] = r
	b.rev.Add(1)
	return r
}

// Lookup returns the result for key without creating it.
func (b *Bank) Lookup(key string) (*ident.ScoredProcessingResult, bool) {
	r, ok := b.results[key]
	return r, ok
}

// Keys returns all entity keys in sorted order. Never nil.
func (b *Bank) Keys() []string {
	keys := make([]string, 0, len(b.results))
	for k := range b.results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of results.
func (b *Bank) Len() int {
	return len(b.results)
}

// Revision returns a counter that moves on every mutation made through
// the bank. Watchers compare revisions to detect staleness; the value
// itself carries no meaning.
func (b *Bank) Revision() uint64 {
	return b.rev.Load()
}

// AddProcessingStep records rec on key's result after checking that the
// record's refs belong to this bank's registry.
func (b *Bank) AddProcessingStep(key string, rec ident.AppliedProcessingStep) error {
	if err := b.checkRecord(rec); err != nil {
		return err
	}
	b.Result(key).AddProcessingStep(rec)
	b.rev.Add(1)
	return nil
}

// AddStep records the given step and scores on key's result.
func (b *Bank) AddStep(key string, step ident.ProcessingStepRef, scores ident.ScoreMap) error {
	return b.AddProcessingStep(key, ident.AppliedProcessingStep{Step: step, Scores: scores})
}

// AddScore records a single score on key's result. Pass ident.NoStep for
// a score not attached to any processing step.
func (b *Bank) AddScore(key string, t ident.ScoreTypeRef, value float64, step ident.ProcessingStepRef) error {
	return b.AddProcessingStep(key, ident.AppliedProcessingStep{Step: step, Scores: ident.ScoreMap{t: value}})
}

// SetMeta sets a metadata attribute on key's result, interning name in
// the bank's key registry.
func (b *Bank) SetMeta(key, name string, v meta.Value) {
	mk := b.reg.MetaKeys().Register(name)
	b.Result(key).SetMetaValue(mk, v)
	b.rev.Add(1)
}

func (b *Bank) checkRecord(rec ident.AppliedProcessingStep) error {
	if rec.Step != ident.NoStep {
		if _, err := b.reg.Step(rec.Step); err != nil {
			return err
		}
	}
	for t := range rec.Scores {
		if _, err := b.reg.ScoreType(t); err != nil {
			return err
		}
	}
	return nil
}

// Merge folds other into b: other's descriptors are re-registered here
// (conflicts abort the merge), every record is remapped onto this bank's
// refs and replayed through the ledger's deduplicating insert, and each
// result's metadata is applied overwrite-all, same as the single-result
// merge. Other is left untouched.
func (b *Bank) Merge(other *Bank) error {
	remap, err := b.remapFrom(other.reg)
	if err != nil {
		return err
	}

	for _, key := range other.Keys() {
		src, _ := other.Lookup(key)
		dst := b.Result(key)

		for i := 0; i < src.Steps().Len(); i++ {
			rec := src.Steps().At(i)
			step, err := remap.mapStep(rec.Step)
			if err != nil {
				return fmt.Errorf("result %q: %w", key, err)
			}
			scores, err := remap.mapScores(rec.Scores)
			if err != nil {
				return fmt.Errorf("result %q: %w", key, err)
			}
			dst.AddProcessingStep(ident.AppliedProcessingStep{Step: step, Scores: scores})
		}

		for _, mk := range src.MetaKeys() {
			name, ok := other.reg.MetaKeys().Name(mk)
			if !ok {
				return unknownRefError("result %q references meta key %d outside its registry", key, mk)
			}
			v, _ := src.MetaValue(mk)
			dst.SetMetaValue(b.reg.MetaKeys().Register(name), meta.CloneValue(v))
		}
	}

	b.rev.Add(1)
	return nil
}

// refRemap translates another registry's refs into this bank's.
type refRemap struct {
	scoreTypes map[ident.ScoreTypeRef]ident.ScoreTypeRef
	steps      map[ident.ProcessingStepRef]ident.ProcessingStepRef
}

func (m *refRemap) mapStep(step ident.ProcessingStepRef) (ident.ProcessingStepRef, error) {
	if step == ident.NoStep {
		return ident.NoStep, nil
	}
	mapped, ok := m.steps[step]
	if !ok {
		return 0, unknownRefError("record references step %d outside its registry", step)
	}
	return mapped, nil
}

func (m *refRemap) mapScores(scores ident.ScoreMap) (ident.ScoreMap, error) {
	if scores == nil {
		return nil, nil
	}
	out := make(ident.ScoreMap, len(scores))
	for t, v := range scores {
		mapped, ok := m.scoreTypes[t]
		if !ok {
			return nil, unknownRefError("record references score type %d outside its registry", t)
		}
		out[mapped] = v
	}
	return out, nil
}

// remapFrom registers src's descriptors into b's registry in src's arena
// order and returns the ref translation tables.
func (b *Bank) remapFrom(src *Registry) (*refRemap, error) {
	remap := &refRemap{
		scoreTypes: make(map[ident.ScoreTypeRef]ident.ScoreTypeRef, len(src.scoreTypes)),
		steps:      make(map[ident.ProcessingStepRef]ident.ProcessingStepRef, len(src.steps)),
	}

	for i, st := range src.scoreTypes {
		ref, err := b.reg.RegisterScoreType(st)
		if err != nil {
			return nil, fmt.Errorf("merge score types: %w", err)
		}
		remap.scoreTypes[ident.ScoreTypeRef(i+1)] = ref
	}

	software := make(map[ident.SoftwareRef]ident.SoftwareRef, len(src.software))
	for i, sw := range src.software {
		assigned := make([]ident.ScoreTypeRef, len(sw.AssignedScores))
		for j, aref := range sw.AssignedScores {
			mapped, ok := remap.scoreTypes[aref]
			if !ok {
				return nil, unknownRefError("software %q assigns score type %d outside its registry", sw.Name, aref)
			}
			assigned[j] = mapped
		}
		ref, err := b.reg.RegisterSoftware(ident.ProcessingSoftware{
			Name:           sw.Name,
			Version:        sw.Version,
			AssignedScores: assigned,
		})
		if err != nil {
			return nil, fmt.Errorf("merge software: %w", err)
		}
		software[ident.SoftwareRef(i+1)] = ref
	}

	inputFiles := make(map[ident.InputFileRef]ident.InputFileRef, len(src.inputFiles))
	for i, f := range src.inputFiles {
		ref, err := b.reg.RegisterInputFile(f)
		if err != nil {
			return nil, fmt.Errorf("merge input files: %w", err)
		}
		inputFiles[ident.InputFileRef(i+1)] = ref
	}

	for i, step := range src.steps {
		sw, ok := software[step.Software]
		if !ok {
			return nil, unknownRefError("step %d references software %d outside its registry", i+1, step.Software)
		}
		files := make([]ident.InputFileRef, len(step.InputFiles))
		for j, fref := range step.InputFiles {
			mapped, ok := inputFiles[fref]
			if !ok {
				return nil, unknownRefError("step %d references input file %d outside its registry", i+1, fref)
			}
			files[j] = mapped
		}
		ref, err := b.reg.RegisterStep(ident.ProcessingStep{
			Software:    sw,
			InputFiles:  files,
			CompletedAt: step.CompletedAt,
			Actions:     step.Actions,
		})
		if err != nil {
			return nil, fmt.Errorf("merge steps: %w", err)
		}
		remap.steps[ident.ProcessingStepRef(i+1)] = ref
	}

	return remap, nil
}
