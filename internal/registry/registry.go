package registry

import (
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
)

type softwareKey struct {
	name    string
	version string
}

// Registry holds the descriptor arenas and issues refs into them.
// Arenas are append-only; a ref, once issued, addresses the same entry
// for the Registry's lifetime.
//
// Registry carries no locking: like the results built on top of it, one
// registry belongs to one bank and is mutated under the caller's
// exclusive access.
type Registry struct {
	scoreTypes  []ident.ScoreType
	scoreByName map[string]ident.ScoreTypeRef

	software      []ident.ProcessingSoftware
	softwareByKey map[softwareKey]ident.SoftwareRef

	inputFiles  []ident.InputFile
	inputByPath map[string]ident.InputFileRef

	steps        []ident.ProcessingStep
	stepDigests  []string
	stepByDigest map[string]ident.ProcessingStepRef

	metaKeys *meta.Registry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		scoreByName:   make(map[string]ident.ScoreTypeRef),
		softwareByKey: make(map[softwareKey]ident.SoftwareRef),
		inputByPath:   make(map[string]ident.InputFileRef),
		stepByDigest:  make(map[string]ident.ProcessingStepRef),
		metaKeys:      meta.NewRegistry(),
	}
}

// MetaKeys returns the metadata key interner shared by this registry's
// results.
func (r *Registry) MetaKeys() *meta.Registry {
	return r.metaKeys
}

// RegisterScoreType registers st, deduplicating by NFC-normalized name.
// Re-registering the same name with the same orientation returns the
// existing ref; the opposite orientation is a conflict.
func (r *Registry) RegisterScoreType(st ident.ScoreType) (ident.ScoreTypeRef, error) {
	name := norm.NFC.String(st.Name)
	if name == "" {
		return 0, badSpecError("", "score type name is empty")
	}
	if ref, ok := r.scoreByName[name]; ok {
		if r.scoreTypes[ref-1].HigherBetter != st.HigherBetter {
			return 0, conflictError(name, "score type already registered with opposite orientation")
		}
		return ref, nil
	}
	st.Name = name
	r.scoreTypes = append(r.scoreTypes, st)
	ref := ident.ScoreTypeRef(len(r.scoreTypes))
	r.scoreByName[name] = ref
	return ref, nil
}

// RegisterSoftware registers sw, deduplicating by (name, version).
// Assigned score refs must already be valid in this registry.
func (r *Registry) RegisterSoftware(sw ident.ProcessingSoftware) (ident.SoftwareRef, error) {
	name := norm.NFC.String(sw.Name)
	if name == "" {
		return 0, badSpecError("", "software name is empty")
	}
	for _, sref := range sw.AssignedScores {
		if _, err := r.ScoreType(sref); err != nil {
			return 0, fmt.Errorf("software %q assigned scores: %w", name, err)
		}
	}
	key := softwareKey{name: name, version: sw.Version}
	if ref, ok := r.softwareByKey[key]; ok {
		if !slices.Equal(r.software[ref-1].AssignedScores, sw.AssignedScores) {
			return 0, conflictError(name, "software %s already registered with different assigned scores", sw.Version)
		}
		return ref, nil
	}
	sw.Name = name
	sw.AssignedScores = slices.Clone(sw.AssignedScores)
	r.software = append(r.software, sw)
	ref := ident.SoftwareRef(len(r.software))
	r.softwareByKey[key] = ref
	return ref, nil
}

// RegisterInputFile registers f, deduplicating by path. A checksum seen
// for the first time is recorded on the existing entry; a different
// checksum for the same path is a conflict.
func (r *Registry) RegisterInputFile(f ident.InputFile) (ident.InputFileRef, error) {
	if f.Path == "" {
		return 0, badSpecError("", "input file path is empty")
	}
	if ref, ok := r.inputByPath[f.Path]; ok {
		existing := &r.inputFiles[ref-1]
		switch {
		case f.Checksum == "" || existing.Checksum == f.Checksum:
			return ref, nil
		case existing.Checksum == "":
			existing.Checksum = f.Checksum
			return ref, nil
		default:
			return 0, conflictError(f.Path, "input file already registered with different checksum")
		}
	}
	r.inputFiles = append(r.inputFiles, f)
	ref := ident.InputFileRef(len(r.inputFiles))
	r.inputByPath[f.Path] = ref
	return ref, nil
}

// RegisterStep registers step, deduplicating by content digest: the
// digest covers the resolved software name and version, input file paths
// in order, completion time, and actions. Re-registering a step with an
// identical digest returns the existing ref.
func (r *Registry) RegisterStep(step ident.ProcessingStep) (ident.ProcessingStepRef, error) {
	identity, err := r.stepIdentity(step)
	if err != nil {
		return 0, err
	}
	digest, err := identity.Digest()
	if err != nil {
		return 0, fmt.Errorf("register step: %w", err)
	}
	if ref, ok := r.stepByDigest[digest]; ok {
		return ref, nil
	}
	step.InputFiles = slices.Clone(step.InputFiles)
	step.Actions = slices.Clone(step.Actions)
	r.steps = append(r.steps, step)
	ref := ident.ProcessingStepRef(len(r.steps))
	r.stepDigests = append(r.stepDigests, digest)
	r.stepByDigest[digest] = ref
	return ref, nil
}

func (r *Registry) stepIdentity(step ident.ProcessingStep) (ident.StepIdentity, error) {
	sw, err := r.Software(step.Software)
	if err != nil {
		return ident.StepIdentity{}, fmt.Errorf("step software: %w", err)
	}
	files := make([]string, len(step.InputFiles))
	for i, fref := range step.InputFiles {
		f, err := r.InputFile(fref)
		if err != nil {
			return ident.StepIdentity{}, fmt.Errorf("step input file: %w", err)
		}
		files[i] = f.Path
	}
	return ident.StepIdentity{
		Software:    sw.Name,
		Version:     sw.Version,
		InputFiles:  files,
		CompletedAt: step.CompletedAt,
		Actions:     step.Actions,
	}, nil
}

// ScoreType resolves ref to its descriptor.
func (r *Registry) ScoreType(ref ident.ScoreTypeRef) (ident.ScoreType, error) {
	if ref == 0 || int(ref) > len(r.scoreTypes) {
		return ident.ScoreType{}, unknownRefError("score type ref %d out of range", ref)
	}
	return r.scoreTypes[ref-1], nil
}

// Software resolves ref to its descriptor.
func (r *Registry) Software(ref ident.SoftwareRef) (ident.ProcessingSoftware, error) {
	if ref == 0 || int(ref) > len(r.software) {
		return ident.ProcessingSoftware{}, unknownRefError("software ref %d out of range", ref)
	}
	sw := r.software[ref-1]
	sw.AssignedScores = slices.Clone(sw.AssignedScores)
	return sw, nil
}

// InputFile resolves ref to its descriptor.
func (r *Registry) InputFile(ref ident.InputFileRef) (ident.InputFile, error) {
	if ref == 0 || int(ref) > len(r.inputFiles) {
		return ident.InputFile{}, unknownRefError("input file ref %d out of range", ref)
	}
	return r.inputFiles[ref-1], nil
}

// Step resolves ref to its descriptor.
func (r *Registry) Step(ref ident.ProcessingStepRef) (ident.ProcessingStep, error) {
	if ref == 0 || int(ref) > len(r.steps) {
		return ident.ProcessingStep{}, unknownRefError("processing step ref %d out of range", ref)
	}
	step := r.steps[ref-1]
	step.InputFiles = slices.Clone(step.InputFiles)
	step.Actions = slices.Clone(step.Actions)
	return step, nil
}

// StepDigest returns the content digest recorded for ref.
func (r *Registry) StepDigest(ref ident.ProcessingStepRef) (string, error) {
	if ref == 0 || int(ref) > len(r.steps) {
		return "", unknownRefError("processing step ref %d out of range", ref)
	}
	return r.stepDigests[ref-1], nil
}

// ScoreTypeByName resolves an NFC-normalized name to its ref.
func (r *Registry) ScoreTypeByName(name string) (ident.ScoreTypeRef, bool) {
	ref, ok := r.scoreByName[norm.NFC.String(name)]
	return ref, ok
}

// SoftwareByNameVersion resolves a (name, version) pair to its ref.
func (r *Registry) SoftwareByNameVersion(name, version string) (ident.SoftwareRef, bool) {
	ref, ok := r.softwareByKey[softwareKey{name: norm.NFC.String(name), version: version}]
	return ref, ok
}

// InputFileByPath resolves a path to its ref.
func (r *Registry) InputFileByPath(path string) (ident.InputFileRef, bool) {
	ref, ok := r.inputByPath[path]
	return ref, ok
}

// StepByDigest resolves a content digest to its ref.
func (r *Registry) StepByDigest(digest string) (ident.ProcessingStepRef, bool) {
	ref, ok := r.stepByDigest[digest]
	return ref, ok
}

// NumScoreTypes returns the number of registered score types. Refs run
// from 1 to NumScoreTypes.
func (r *Registry) NumScoreTypes() int { return len(r.scoreTypes) }

// NumSoftware returns the number of registered software descriptors.
func (r *Registry) NumSoftware() int { return len(r.software) }

// NumInputFiles returns the number of registered input files.
func (r *Registry) NumInputFiles() int { return len(r.inputFiles) }

// NumSteps returns the number of registered processing steps.
func (r *Registry) NumSteps() int { return len(r.steps) }

// PipelineRefs maps a pipeline spec's names and labels to the refs
// ApplySpec issued for them. Keys use the spec's own spellings.
type PipelineRefs struct {
	ScoreTypes map[string]ident.ScoreTypeRef
	Software   map[string]ident.SoftwareRef
	InputFiles map[string]ident.InputFileRef
	Steps      map[string]ident.ProcessingStepRef
}

// ApplySpec registers everything a compiled pipeline spec declares, in
// dependency order: score types, then software, input files, and steps.
// Steps resolve their software by name against the same spec.
func (r *Registry) ApplySpec(spec ident.PipelineSpec) (*PipelineRefs, error) {
	refs := &PipelineRefs{
		ScoreTypes: make(map[string]ident.ScoreTypeRef, len(spec.ScoreTypes)),
		Software:   make(map[string]ident.SoftwareRef, len(spec.Software)),
		InputFiles: make(map[string]ident.InputFileRef, len(spec.InputFiles)),
		Steps:      make(map[string]ident.ProcessingStepRef, len(spec.Steps)),
	}

	for _, sts := range spec.ScoreTypes {
		ref, err := r.RegisterScoreType(ident.ScoreType{Name: sts.Name, HigherBetter: sts.HigherBetter})
		if err != nil {
			return nil, fmt.Errorf("score type %q: %w", sts.Name, err)
		}
		refs.ScoreTypes[sts.Name] = ref
	}

	for _, sw := range spec.Software {
		if _, dup := refs.Software[sw.Name]; dup {
			return nil, badSpecError(sw.Name, "duplicate software name in pipeline %q", spec.Name)
		}
		assigned := make([]ident.ScoreTypeRef, len(sw.AssignedScores))
		for i, name := range sw.AssignedScores {
			ref, ok := r.ScoreTypeByName(name)
			if !ok {
				return nil, unknownNameError(name, "software %q assigns an undeclared score type", sw.Name)
			}
			assigned[i] = ref
		}
		ref, err := r.RegisterSoftware(ident.ProcessingSoftware{
			Name:           sw.Name,
			Version:        sw.Version,
			AssignedScores: assigned,
		})
		if err != nil {
			return nil, fmt.Errorf("software %q: %w", sw.Name, err)
		}
		refs.Software[sw.Name] = ref
	}

	for _, f := range spec.InputFiles {
		ref, err := r.RegisterInputFile(ident.InputFile{Path: f.Path, Checksum: f.Checksum})
		if err != nil {
			return nil, fmt.Errorf("input file %q: %w", f.Path, err)
		}
		refs.InputFiles[f.Path] = ref
	}

	for _, ss := range spec.Steps {
		if ss.ID == "" {
			return nil, badSpecError("", "step without id in pipeline %q", spec.Name)
		}
		if _, dup := refs.Steps[ss.ID]; dup {
			return nil, badSpecError(ss.ID, "duplicate step id in pipeline %q", spec.Name)
		}
		swRef, ok := refs.Software[ss.Software]
		if !ok {
			return nil, unknownNameError(ss.Software, "step %q uses undeclared software", ss.ID)
		}
		fileRefs := make([]ident.InputFileRef, len(ss.InputFiles))
		for i, path := range ss.InputFiles {
			fref, ok := refs.InputFiles[path]
			if !ok {
				fref, ok = r.InputFileByPath(path)
			}
			if !ok {
				return nil, unknownNameError(path, "step %q uses undeclared input file", ss.ID)
			}
			fileRefs[i] = fref
		}
		ref, err := r.RegisterStep(ident.ProcessingStep{
			Software:    swRef,
			InputFiles:  fileRefs,
			CompletedAt: ss.CompletedAt,
			Actions:     ss.Actions,
		})
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", ss.ID, err)
		}
		refs.Steps[ss.ID] = ref
	}

	return refs, nil
}
