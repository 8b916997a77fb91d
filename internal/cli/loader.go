package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/IceFreez3r/OpenMS/internal/compiler"
	"github.com/IceFreez3r/OpenMS/internal/ident"
)

// LoadMode controls how errors are handled during pipeline loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading pipelines from a directory.
type LoadResult struct {
	Pipelines []ident.PipelineSpec
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during pipeline loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads and compiles CUE pipeline files from a directory.
// Each file is compiled independently; its top-level "pipelines" struct
// contributes one PipelineSpec per field. Files without a pipelines
// field are skipped.
//
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
//
// A nil result means loading never reached the CUE files (bad directory,
// nothing to load); a non-nil result with errors means some pipelines
// failed to compile.
func LoadSpecs(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("pipelines directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing pipelines directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	var errs []error
	result := &LoadResult{FileCount: len(cueFiles)}
	cuectx := cuecontext.New()

	// Pipeline names must be unique across the whole directory; the
	// first definition wins and later ones are reported.
	seen := make(map[string]string)

	for _, path := range cueFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)})
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}

		root := cuectx.CompileBytes(data, cue.Filename(path))
		if err := root.Err(); err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("%s: %v", path, err)})
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}

		pipelines := root.LookupPath(cue.ParsePath("pipelines"))
		if !pipelines.Exists() {
			continue
		}

		iter, iterErr := pipelines.Fields()
		if iterErr != nil {
			errs = append(errs, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("%s: iterating pipelines: %v", path, iterErr)})
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}

		for iter.Next() {
			spec, compileErr := compiler.CompilePipeline(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, path+": pipelines."+iter.Selector().String()))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}

			if prev, dup := seen[spec.Name]; dup {
				errs = append(errs, &LoadError{
					Code:    ErrCodeGeneric,
					Message: fmt.Sprintf("duplicate pipeline %q in %s (already defined in %s)", spec.Name, path, prev),
				})
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			seen[spec.Name] = path

			result.Pipelines = append(result.Pipelines, *spec)
		}
	}

	if len(result.Pipelines) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("no pipelines found in %s", dir)})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeReadFailed  = "E004" // File read failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
)

// MapFieldToErrorCode maps a compiler error field to a validation error
// code from the compiler's code space.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "name":
		return compiler.ErrPipelineNameEmpty
	case "id":
		return compiler.ErrStepIDEmpty
	case "software":
		return compiler.ErrUnknownSoftware
	case "completed_at":
		return compiler.ErrBadTimestamp
	case "checksum":
		return compiler.ErrBadChecksum
	default:
		return ErrCodeGeneric
	}
}
