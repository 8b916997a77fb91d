package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceFreez3r/OpenMS/internal/ident"
)

func validSpec() *ident.PipelineSpec {
	return &ident.PipelineSpec{
		Name: "search_rescore",
		ScoreTypes: []ident.ScoreTypeSpec{
			{Name: "XCorr", HigherBetter: true},
			{Name: "q-value"},
		},
		Software: []ident.SoftwareSpec{
			{Name: "comet", Version: "2024.01", AssignedScores: []string{"XCorr"}},
			{Name: "percolator", Version: "3.6", AssignedScores: []string{"q-value"}},
		},
		InputFiles: []ident.InputFileSpec{
			{Path: "run1.mzML", Checksum: "sha1:9f2c"},
		},
		Steps: []ident.StepSpec{
			{
				ID:          "search",
				Software:    "comet",
				InputFiles:  []string{"run1.mzML"},
				CompletedAt: "2024-03-01T10:00:00Z",
				Actions:     []string{"peptide_search"},
			},
			{ID: "rescore", Software: "percolator"},
		},
	}
}

func TestValidatePipelineSpecValid(t *testing.T) {
	errs := Validate(validSpec())
	assert.Empty(t, errs, "valid spec should have no errors")
}

func TestValidatePipelineSpecValueReceiver(t *testing.T) {
	errs := Validate(*validSpec())
	assert.Empty(t, errs)
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate(42)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedSpecType, errs[0].Code)
}

func TestValidatePipelineSpecMissingName(t *testing.T) {
	spec := validSpec()
	spec.Name = ""

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrPipelineNameEmpty, errs[0].Code)
	assert.Contains(t, errs[0].Message, "name")
}

func TestValidatePipelineSpecWhitespaceName(t *testing.T) {
	spec := validSpec()
	spec.Name = "   "

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrPipelineNameEmpty, errs[0].Code)
}

func TestValidatePipelineSpecDuplicateScoreType(t *testing.T) {
	spec := validSpec()
	spec.ScoreTypes = append(spec.ScoreTypes, ident.ScoreTypeSpec{Name: "XCorr"})

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateScoreType, errs[0].Code)
	assert.Contains(t, errs[0].Message, "XCorr")
	assert.Equal(t, "score_types[2].name", errs[0].Field)
}

func TestValidatePipelineSpecDuplicateSoftware(t *testing.T) {
	spec := validSpec()
	spec.Software = append(spec.Software, ident.SoftwareSpec{Name: "comet", Version: "9.9"})

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateSoftware, errs[0].Code)
	assert.Contains(t, errs[0].Message, "comet")
}

func TestValidatePipelineSpecDuplicateInputFile(t *testing.T) {
	spec := validSpec()
	spec.InputFiles = append(spec.InputFiles, ident.InputFileSpec{Path: "run1.mzML"})

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateInputFile, errs[0].Code)
	assert.Contains(t, errs[0].Message, "run1.mzML")
}

func TestValidatePipelineSpecDuplicateStepID(t *testing.T) {
	spec := validSpec()
	spec.Steps = append(spec.Steps, ident.StepSpec{ID: "search", Software: "comet"})

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateStepID, errs[0].Code)
	assert.Contains(t, errs[0].Message, "search")
}

func TestValidatePipelineSpecEmptyStepID(t *testing.T) {
	spec := validSpec()
	spec.Steps = append(spec.Steps, ident.StepSpec{ID: "", Software: "comet"})

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrStepIDEmpty, errs[0].Code)
}

func TestValidatePipelineSpecUnknownSoftware(t *testing.T) {
	spec := validSpec()
	spec.Steps = append(spec.Steps, ident.StepSpec{ID: "extra", Software: "ghost"})

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownSoftware, errs[0].Code)
	assert.Contains(t, errs[0].Message, "ghost")
}

func TestValidatePipelineSpecUnknownInputFile(t *testing.T) {
	spec := validSpec()
	spec.Steps[0].InputFiles = append(spec.Steps[0].InputFiles, "missing.mzML")

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownInputFile, errs[0].Code)
	assert.Contains(t, errs[0].Message, "missing.mzML")
	assert.Equal(t, "steps[0].input_files[1]", errs[0].Field)
}

func TestValidatePipelineSpecUnknownAssignedScore(t *testing.T) {
	spec := validSpec()
	spec.Software[0].AssignedScores = append(spec.Software[0].AssignedScores, "NoSuchScore")

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownScoreType, errs[0].Code)
	assert.Contains(t, errs[0].Message, "NoSuchScore")
}

func TestValidatePipelineSpecBadTimestamp(t *testing.T) {
	spec := validSpec()
	spec.Steps[0].CompletedAt = "yesterday at noon"

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrBadTimestamp, errs[0].Code)
	assert.Contains(t, errs[0].Message, "RFC 3339")
}

func TestValidatePipelineSpecEmptyTimestampOK(t *testing.T) {
	spec := validSpec()
	spec.Steps[0].CompletedAt = ""

	errs := Validate(spec)
	assert.Empty(t, errs)
}

func TestValidatePipelineSpecBadChecksum(t *testing.T) {
	spec := validSpec()
	spec.InputFiles[0].Checksum = "not a checksum"

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrBadChecksum, errs[0].Code)
}

func TestValidatePipelineSpecEmptyChecksumOK(t *testing.T) {
	spec := validSpec()
	spec.InputFiles[0].Checksum = ""

	errs := Validate(spec)
	assert.Empty(t, errs)
}

func TestValidatePipelineSpecCollectsAllErrors(t *testing.T) {
	spec := &ident.PipelineSpec{
		Name: "",
		Steps: []ident.StepSpec{
			{ID: "a", Software: "ghost1"},
			{ID: "a", Software: "ghost2"},
		},
	}

	errs := Validate(spec)
	// Missing name, duplicate step id, two undeclared software refs
	require.Len(t, errs, 4)

	codes := make(map[string]int)
	for _, e := range errs {
		codes[e.Code]++
	}
	assert.Equal(t, 1, codes[ErrPipelineNameEmpty])
	assert.Equal(t, 1, codes[ErrDuplicateStepID])
	assert.Equal(t, 2, codes[ErrUnknownSoftware])
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{
		Field:   "steps[0].software",
		Message: "step \"run\" uses undeclared software \"ghost\"",
		Code:    ErrUnknownSoftware,
	}

	assert.Equal(t, `[E107] steps[0].software: step "run" uses undeclared software "ghost"`, err.Error())
}
