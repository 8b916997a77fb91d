package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a ledger conformance scenario.
// Scenarios declare pipelines, apply recording operations, and assert
// on the bank that comes back from a save/load round trip.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pipelines lists CUE pipeline files to compile and register.
	// Paths are relative to the scenario file location.
	Pipelines []string `yaml:"pipelines"`

	// Ops contains the recording operations, applied in order.
	Ops []Op `yaml:"ops"`

	// Assertions validate the bank after the round trip.
	Assertions []Assertion `yaml:"assertions"`

	// RunToken is an optional fixed token for the import row. If empty,
	// it defaults to "test-run-default" so golden output stays
	// deterministic.
	RunToken string `yaml:"run_token,omitempty"`
}

// Op is a single recording operation. Type selects the operation; which
// of the remaining fields apply follows from the type.
type Op struct {
	// Type: add_step, add_score, set_meta, merge_result.
	Type string `yaml:"op"`

	// Entity is the result key the operation targets.
	Entity string `yaml:"entity,omitempty"`

	// Step names a pipeline step id. Empty on add_score means the
	// score is recorded without a step.
	Step string `yaml:"step,omitempty"`

	// Scores maps score type names to values (add_step).
	Scores map[string]float64 `yaml:"scores,omitempty"`

	// Score names a single score type (add_score).
	Score string `yaml:"score,omitempty"`

	// Name is the metadata attribute name (set_meta).
	Name string `yaml:"name,omitempty"`

	// Value is the score value (add_score) or metadata value (set_meta).
	Value any `yaml:"value,omitempty"`

	// From and Into are entity keys (merge_result): Into's result
	// absorbs From's history and metadata.
	From string `yaml:"from,omitempty"`
	Into string `yaml:"into,omitempty"`
}

// Op type constants.
const (
	OpAddStep     = "add_step"
	OpAddScore    = "add_score"
	OpSetMeta     = "set_meta"
	OpMergeResult = "merge_result"
)

// Assertion validates the bank after the round trip.
type Assertion struct {
	// Type specifies the assertion:
	//   - "score_equals": most recent value of a score type
	//   - "score_at_step": value recorded at one exact step
	//   - "score_and_step": most recent value plus the step that set it
	//   - "score_missing": no record carries the score type
	//   - "history_count": number of ledger records
	//   - "history_order": step ids in application order
	//   - "meta_equals": metadata attribute value
	//   - "entity_count": number of results in the bank
	Type string `yaml:"type"`

	// Entity is the result key under test.
	Entity string `yaml:"entity,omitempty"`

	// Score names a score type.
	Score string `yaml:"score,omitempty"`

	// Value is the expected score or metadata value.
	Value any `yaml:"value,omitempty"`

	// Step names a pipeline step id; empty means step-free.
	Step string `yaml:"step,omitempty"`

	// Name is the metadata attribute name (meta_equals).
	Name string `yaml:"name,omitempty"`

	// Count is the expected number (history_count, entity_count).
	Count int `yaml:"count,omitempty"`

	// Steps is the expected step id sequence (history_order). Use ""
	// for a step-free record.
	Steps []string `yaml:"steps,omitempty"`
}

// Assertion type constants.
const (
	AssertScoreEquals  = "score_equals"
	AssertScoreAtStep  = "score_at_step"
	AssertScoreAndStep = "score_and_step"
	AssertScoreMissing = "score_missing"
	AssertHistoryCount = "history_count"
	AssertHistoryOrder = "history_order"
	AssertMetaEquals   = "meta_equals"
	AssertEntityCount  = "entity_count"
)

// LoadScenario reads and parses a scenario YAML file. Pipeline paths
// are resolved relative to the scenario file's directory. Returns an
// error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" for
	// "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Pipelines {
		if !filepath.IsAbs(p) {
			scenario.Pipelines[i] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Pipelines) == 0 {
		return fmt.Errorf("pipelines list is required and must be non-empty")
	}

	if len(s.Ops) == 0 {
		return fmt.Errorf("ops list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, p := range s.Pipelines {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("pipeline file not found: %s", p)
		}
	}

	for i, op := range s.Ops {
		if err := validateOp(i, &op); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateOp validates a single operation based on its type.
func validateOp(index int, op *Op) error {
	if op.Type == "" {
		return fmt.Errorf("ops[%d]: op is required", index)
	}

	switch op.Type {
	case OpAddStep:
		if op.Entity == "" {
			return fmt.Errorf("ops[%d]: entity is required for add_step", index)
		}
		if op.Step == "" {
			return fmt.Errorf("ops[%d]: step is required for add_step", index)
		}
	case OpAddScore:
		if op.Entity == "" {
			return fmt.Errorf("ops[%d]: entity is required for add_score", index)
		}
		if op.Score == "" {
			return fmt.Errorf("ops[%d]: score is required for add_score", index)
		}
		if op.Value == nil {
			return fmt.Errorf("ops[%d]: value is required for add_score", index)
		}
	case OpSetMeta:
		if op.Entity == "" {
			return fmt.Errorf("ops[%d]: entity is required for set_meta", index)
		}
		if op.Name == "" {
			return fmt.Errorf("ops[%d]: name is required for set_meta", index)
		}
		if op.Value == nil {
			return fmt.Errorf("ops[%d]: value is required for set_meta", index)
		}
	case OpMergeResult:
		if op.From == "" {
			return fmt.Errorf("ops[%d]: from is required for merge_result", index)
		}
		if op.Into == "" {
			return fmt.Errorf("ops[%d]: into is required for merge_result", index)
		}
	default:
		return fmt.Errorf("ops[%d]: unknown op type %q", index, op.Type)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertScoreEquals, AssertScoreAndStep, AssertScoreAtStep:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for %s", index, a.Type)
		}
		if a.Score == "" {
			return fmt.Errorf("assertions[%d]: score is required for %s", index, a.Type)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	case AssertScoreMissing:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for score_missing", index)
		}
		if a.Score == "" {
			return fmt.Errorf("assertions[%d]: score is required for score_missing", index)
		}
	case AssertHistoryCount:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for history_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
	case AssertHistoryOrder:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for history_order", index)
		}
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for history_order", index)
		}
	case AssertMetaEquals:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for meta_equals", index)
		}
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for meta_equals", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for meta_equals", index)
		}
	case AssertEntityCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for entity_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
