package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/IceFreez3r/OpenMS/internal/ident"
)

// CompilePipeline parses a CUE value into a PipelineSpec.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the pipeline struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`pipelines: search: { ... }`)
//	spec, err := CompilePipeline(v.LookupPath(cue.ParsePath("pipelines.search")))
func CompilePipeline(v cue.Value) (*ident.PipelineSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ident.PipelineSpec{}

	// Pipeline name comes from the struct label unless an explicit
	// name field overrides it.
	if labels := v.Path().Selectors(); len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}
	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Name = name
	}
	if spec.Name == "" {
		return nil, &CompileError{
			Field:   "name",
			Message: "pipeline has no name",
			Pos:     v.Pos(),
		}
	}

	var err error
	if spec.ScoreTypes, err = parseScoreTypes(v); err != nil {
		return nil, err
	}
	if spec.Software, err = parseSoftware(v); err != nil {
		return nil, err
	}
	if spec.InputFiles, err = parseInputFiles(v); err != nil {
		return nil, err
	}
	if spec.Steps, err = parseSteps(v); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseScoreTypes(v cue.Value) ([]ident.ScoreTypeSpec, error) {
	listVal := v.LookupPath(cue.ParsePath("score_types"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ident.ScoreTypeSpec
	for iter.Next() {
		item := iter.Value()
		name, err := requiredString(item, "name")
		if err != nil {
			return nil, err
		}
		st := ident.ScoreTypeSpec{Name: name}
		if hbVal := item.LookupPath(cue.ParsePath("higher_better")); hbVal.Exists() {
			hb, err := hbVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
			st.HigherBetter = hb
		}
		out = append(out, st)
	}
	return out, nil
}

func parseSoftware(v cue.Value) ([]ident.SoftwareSpec, error) {
	listVal := v.LookupPath(cue.ParsePath("software"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ident.SoftwareSpec
	for iter.Next() {
		item := iter.Value()
		name, err := requiredString(item, "name")
		if err != nil {
			return nil, err
		}
		version, err := requiredString(item, "version")
		if err != nil {
			return nil, err
		}
		assigned, err := stringList(item, "assigned_scores")
		if err != nil {
			return nil, err
		}
		out = append(out, ident.SoftwareSpec{
			Name:           name,
			Version:        version,
			AssignedScores: assigned,
		})
	}
	return out, nil
}

func parseInputFiles(v cue.Value) ([]ident.InputFileSpec, error) {
	listVal := v.LookupPath(cue.ParsePath("input_files"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ident.InputFileSpec
	for iter.Next() {
		item := iter.Value()
		path, err := requiredString(item, "path")
		if err != nil {
			return nil, err
		}
		f := ident.InputFileSpec{Path: path}
		if csVal := item.LookupPath(cue.ParsePath("checksum")); csVal.Exists() {
			cs, err := csVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			f.Checksum = cs
		}
		out = append(out, f)
	}
	return out, nil
}

func parseSteps(v cue.Value) ([]ident.StepSpec, error) {
	listVal := v.LookupPath(cue.ParsePath("steps"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ident.StepSpec
	for iter.Next() {
		item := iter.Value()
		id, err := requiredString(item, "id")
		if err != nil {
			return nil, err
		}
		software, err := requiredString(item, "software")
		if err != nil {
			return nil, err
		}
		step := ident.StepSpec{ID: id, Software: software}
		if step.InputFiles, err = stringList(item, "input_files"); err != nil {
			return nil, err
		}
		if caVal := item.LookupPath(cue.ParsePath("completed_at")); caVal.Exists() {
			ca, err := caVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			step.CompletedAt = ca
		}
		if step.Actions, err = stringList(item, "actions"); err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{
			Field:   field,
			Message: field + " is empty",
			Pos:     fieldVal.Pos(),
		}
	}
	return s, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
