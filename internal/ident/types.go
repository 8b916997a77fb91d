package ident

// ScoreType describes a named numeric metric assigned by processing steps.
type ScoreType struct {
	// Name is the score's display name, e.g. "q-value" or "XCorr".
	// Unique within a registry after NFC normalization.
	Name string `json:"name"`

	// HigherBetter reports the score's orientation: true when larger
	// values indicate better results.
	HigherBetter bool `json:"higher_better"`
}

// ProcessingSoftware describes one tool in the pipeline.
type ProcessingSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	// AssignedScores lists the score types this tool assigns, most
	// significant first.
	AssignedScores []ScoreTypeRef `json:"assigned_scores,omitempty"`
}

// InputFile describes a primary input consumed by a processing step.
type InputFile struct {
	Path string `json:"path"`

	// Checksum is the hex SHA-256 of the file contents, when known.
	Checksum string `json:"checksum,omitempty"`
}

// ProcessingStep describes one stage of computation: which software ran,
// over which inputs, and what it did.
type ProcessingStep struct {
	Software   SoftwareRef    `json:"software"`
	InputFiles []InputFileRef `json:"input_files,omitempty"`

	// CompletedAt is an RFC 3339 timestamp recorded by the tool, kept as
	// a string so step digests stay byte-stable.
	CompletedAt string `json:"completed_at,omitempty"`

	// Actions names what the step did, e.g. "search" or "rescoring".
	Actions []string `json:"actions,omitempty"`
}

// PipelineSpec is the declarative, name-based form of a pipeline
// definition. The compiler produces it from a CUE file; the registry
// resolves its names into refs via ApplySpec.
type PipelineSpec struct {
	Name       string          `json:"name"`
	Software   []SoftwareSpec  `json:"software,omitempty"`
	ScoreTypes []ScoreTypeSpec `json:"score_types,omitempty"`
	InputFiles []InputFileSpec `json:"input_files,omitempty"`
	Steps      []StepSpec      `json:"steps,omitempty"`
}

// SoftwareSpec declares one tool by name.
type SoftwareSpec struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	AssignedScores []string `json:"assigned_scores,omitempty"`
}

// ScoreTypeSpec declares one score type by name.
type ScoreTypeSpec struct {
	Name         string `json:"name"`
	HigherBetter bool   `json:"higher_better"`
}

// InputFileSpec declares one input file by path.
type InputFileSpec struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum,omitempty"`
}

// StepSpec declares one processing step. ID is the label scenarios and
// commands use to address the step; it is not part of the step's content
// identity.
type StepSpec struct {
	ID          string   `json:"id"`
	Software    string   `json:"software"`
	InputFiles  []string `json:"input_files,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
	Actions     []string `json:"actions,omitempty"`
}
