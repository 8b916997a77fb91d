package compiler

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/IceFreez3r/OpenMS/internal/ident"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedSpecType = "E100" // unsupported spec type for validation

	// PipelineSpec errors (E101-E119)
	ErrPipelineNameEmpty  = "E101" // pipeline name is required
	ErrDuplicateScoreType = "E102" // duplicate score type name
	ErrDuplicateSoftware  = "E103" // duplicate software name
	ErrDuplicateInputFile = "E104" // duplicate input file path
	ErrDuplicateStepID    = "E105" // duplicate step id
	ErrStepIDEmpty        = "E106" // step id is required
	ErrUnknownSoftware    = "E107" // step references undeclared software
	ErrUnknownInputFile   = "E108" // step references undeclared input file
	ErrUnknownScoreType   = "E109" // assigned score type not declared
	ErrBadTimestamp       = "E110" // completed_at is not RFC 3339
	ErrBadChecksum        = "E111" // checksum is not algo:hex
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled pipeline against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ident.PipelineSpec:
		return validatePipelineSpec(spec)
	case ident.PipelineSpec:
		return validatePipelineSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported spec type: %T", v),
			Code:    ErrUnsupportedSpecType,
		}}
	}
}

// validatePipelineSpec validates a pipeline specification.
func validatePipelineSpec(spec *ident.PipelineSpec) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "pipeline name is required and must be non-empty",
			Code:    ErrPipelineNameEmpty,
		})
	}

	// Track declared names for duplicate and reference checks
	scoreTypes := make(map[string]bool)
	software := make(map[string]bool)
	inputFiles := make(map[string]bool)
	stepIDs := make(map[string]bool)

	for i, st := range spec.ScoreTypes {
		// E102: duplicate score type name
		if scoreTypes[st.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("score_types[%d].name", i),
				Message: fmt.Sprintf("duplicate score type name: %q", st.Name),
				Code:    ErrDuplicateScoreType,
			})
		}
		scoreTypes[st.Name] = true
	}

	for i, sw := range spec.Software {
		// E103: duplicate software name
		if software[sw.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("software[%d].name", i),
				Message: fmt.Sprintf("duplicate software name: %q", sw.Name),
				Code:    ErrDuplicateSoftware,
			})
		}
		software[sw.Name] = true

		// E109: assigned score types must be declared
		for j, score := range sw.AssignedScores {
			if !scoreTypes[score] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("software[%d].assigned_scores[%d]", i, j),
					Message: fmt.Sprintf("software %q assigns undeclared score type %q", sw.Name, score),
					Code:    ErrUnknownScoreType,
				})
			}
		}
	}

	for i, f := range spec.InputFiles {
		// E104: duplicate input file path
		if inputFiles[f.Path] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("input_files[%d].path", i),
				Message: fmt.Sprintf("duplicate input file path: %q", f.Path),
				Code:    ErrDuplicateInputFile,
			})
		}
		inputFiles[f.Path] = true

		// E111: checksum must look like "algo:hex" when present
		if f.Checksum != "" && !isValidChecksum(f.Checksum) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("input_files[%d].checksum", i),
				Message: fmt.Sprintf("invalid checksum %q, expected format \"algo:hex\"", f.Checksum),
				Code:    ErrBadChecksum,
			})
		}
	}

	for i, step := range spec.Steps {
		// E106: step id is required
		if strings.TrimSpace(step.ID) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].id", i),
				Message: "step id is required and must be non-empty",
				Code:    ErrStepIDEmpty,
			})
		}

		// E105: duplicate step id
		if stepIDs[step.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].id", i),
				Message: fmt.Sprintf("duplicate step id: %q", step.ID),
				Code:    ErrDuplicateStepID,
			})
		}
		stepIDs[step.ID] = true

		// E107: step software must be declared
		if !software[step.Software] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].software", i),
				Message: fmt.Sprintf("step %q uses undeclared software %q", step.ID, step.Software),
				Code:    ErrUnknownSoftware,
			})
		}

		// E108: step input files must be declared
		for j, path := range step.InputFiles {
			if !inputFiles[path] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("steps[%d].input_files[%d]", i, j),
					Message: fmt.Sprintf("step %q uses undeclared input file %q", step.ID, path),
					Code:    ErrUnknownInputFile,
				})
			}
		}

		// E110: completed_at must be RFC 3339 when present
		if step.CompletedAt != "" {
			if _, err := time.Parse(time.RFC3339, step.CompletedAt); err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("steps[%d].completed_at", i),
					Message: fmt.Sprintf("invalid timestamp %q, expected RFC 3339", step.CompletedAt),
					Code:    ErrBadTimestamp,
				})
			}
		}
	}

	return errs
}

// checksumPattern matches "algo:hex" checksums, e.g. "sha1:9f2c".
var checksumPattern = regexp.MustCompile(`^[a-z0-9]+:[0-9a-fA-F]+$`)

// isValidChecksum checks if a checksum string has valid format.
func isValidChecksum(cs string) bool {
	return checksumPattern.MatchString(cs)
}
