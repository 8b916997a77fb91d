package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
	"github.com/IceFreez3r/OpenMS/internal/registry"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Entity   string // Result key under test, empty for bank-level assertions
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	if e.Entity != "" {
		fmt.Fprintf(&buf, "  Entity: %s\n", e.Entity)
	}
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)

	return buf.String()
}

// AssertionContext carries the reloaded bank plus the step name
// mapping assertions resolve against. Step refs differ between the
// recording bank and the reloaded one, so ids travel via content
// digests rather than refs.
type AssertionContext struct {
	Bank  *registry.Bank
	Steps map[string]ident.ProcessingStepRef
	IDs   map[ident.ProcessingStepRef]string
}

// stepRef resolves a scenario step id. The empty id means step-free.
func (actx *AssertionContext) stepRef(id string) (ident.ProcessingStepRef, bool) {
	if id == "" {
		return ident.NoStep, true
	}
	ref, ok := actx.Steps[id]
	return ref, ok
}

// stepID names a step ref for messages and order comparison. NoStep
// maps to the empty id.
func (actx *AssertionContext) stepID(ref ident.ProcessingStepRef) string {
	if ref == ident.NoStep {
		return ""
	}
	if id, ok := actx.IDs[ref]; ok {
		return id
	}
	return fmt.Sprintf("step#%d", ref)
}

// EvaluateAssertions evaluates all assertions against the reloaded
// bank. Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertScoreEquals:
			err = assertScoreEquals(actx, assertion)
		case AssertScoreAtStep:
			err = assertScoreAtStep(actx, assertion)
		case AssertScoreAndStep:
			err = assertScoreAndStep(actx, assertion)
		case AssertScoreMissing:
			err = assertScoreMissing(actx, assertion)
		case AssertHistoryCount:
			err = assertHistoryCount(actx, assertion)
		case AssertHistoryOrder:
			err = assertHistoryOrder(actx, assertion)
		case AssertMetaEquals:
			err = assertMetaEquals(actx, assertion)
		case AssertEntityCount:
			err = assertEntityCount(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// lookupEntity resolves the assertion's entity key, failing the
// assertion if the result is not in the bank.
func lookupEntity(actx *AssertionContext, a Assertion) (*ident.ScoredProcessingResult, error) {
	r, ok := actx.Bank.Lookup(a.Entity)
	if !ok {
		return nil, &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: "entity present in bank",
			Actual:   "entity not found",
		}
	}
	return r, nil
}

// lookupScoreType resolves the assertion's score type name.
func lookupScoreType(actx *AssertionContext, a Assertion) (ident.ScoreTypeRef, error) {
	ref, ok := actx.Bank.Registry().ScoreTypeByName(a.Score)
	if !ok {
		return 0, &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("score type %q registered", a.Score),
			Actual:   "score type not registered",
		}
	}
	return ref, nil
}

// assertScoreEquals checks the most recent value of a score type.
func assertScoreEquals(actx *AssertionContext, a Assertion) error {
	r, err := lookupEntity(actx, a)
	if err != nil {
		return err
	}
	tref, err := lookupScoreType(actx, a)
	if err != nil {
		return err
	}
	want, err := scoreValue(a.Value)
	if err != nil {
		return fmt.Errorf("score_equals: %w", err)
	}

	got, ok := r.Score(tref)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v", a.Score, want),
			Actual:   "no record carries this score type",
		}
	}
	if got != want {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v", a.Score, want),
			Actual:   fmt.Sprintf("%s = %v", a.Score, got),
		}
	}
	return nil
}

// assertScoreAtStep checks the value recorded at one exact step,
// ignoring recency.
func assertScoreAtStep(actx *AssertionContext, a Assertion) error {
	r, err := lookupEntity(actx, a)
	if err != nil {
		return err
	}
	tref, err := lookupScoreType(actx, a)
	if err != nil {
		return err
	}
	want, err := scoreValue(a.Value)
	if err != nil {
		return fmt.Errorf("score_at_step: %w", err)
	}

	step, ok := actx.stepRef(a.Step)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("step %q declared by a pipeline", a.Step),
			Actual:   "unknown step id",
		}
	}

	got, ok := r.ScoreForStep(tref, step)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v at step %q", a.Score, want, a.Step),
			Actual:   "no record at this step carries the score type",
		}
	}
	if got != want {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v at step %q", a.Score, want, a.Step),
			Actual:   fmt.Sprintf("%s = %v", a.Score, got),
		}
	}
	return nil
}

// assertScoreAndStep checks the most recent value of a score type and
// the step that recorded it.
func assertScoreAndStep(actx *AssertionContext, a Assertion) error {
	r, err := lookupEntity(actx, a)
	if err != nil {
		return err
	}
	tref, err := lookupScoreType(actx, a)
	if err != nil {
		return err
	}
	want, err := scoreValue(a.Value)
	if err != nil {
		return fmt.Errorf("score_and_step: %w", err)
	}

	got, stepRef, ok := r.ScoreAndStep(tref)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v from step %q", a.Score, want, a.Step),
			Actual:   "no record carries this score type",
		}
	}

	gotStep := actx.stepID(stepRef)
	if got != want || gotStep != a.Step {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v from step %q", a.Score, want, a.Step),
			Actual:   fmt.Sprintf("%s = %v from step %q", a.Score, got, gotStep),
		}
	}
	return nil
}

// assertScoreMissing checks that no record carries the score type. An
// unregistered score type passes trivially.
func assertScoreMissing(actx *AssertionContext, a Assertion) error {
	r, err := lookupEntity(actx, a)
	if err != nil {
		return err
	}

	tref, ok := actx.Bank.Registry().ScoreTypeByName(a.Score)
	if !ok {
		return nil
	}

	if got, ok := r.Score(tref); ok {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("no record carrying %s", a.Score),
			Actual:   fmt.Sprintf("%s = %v", a.Score, got),
		}
	}
	return nil
}

// assertHistoryCount checks the number of ledger records.
func assertHistoryCount(actx *AssertionContext, a Assertion) error {
	r, err := lookupEntity(actx, a)
	if err != nil {
		return err
	}

	if got := r.Steps().Len(); got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%d ledger records", a.Count),
			Actual:   fmt.Sprintf("%d ledger records", got),
		}
	}
	return nil
}

// assertHistoryOrder checks the step id sequence in application order.
func assertHistoryOrder(actx *AssertionContext, a Assertion) error {
	r, err := lookupEntity(actx, a)
	if err != nil {
		return err
	}

	ledger := r.Steps()
	got := make([]string, ledger.Len())
	for i := 0; i < ledger.Len(); i++ {
		got[i] = actx.stepID(ledger.At(i).Step)
	}

	if !slices.Equal(got, a.Steps) {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("step order %v", a.Steps),
			Actual:   fmt.Sprintf("step order %v", got),
		}
	}
	return nil
}

// assertMetaEquals checks a metadata attribute value.
func assertMetaEquals(actx *AssertionContext, a Assertion) error {
	r, err := lookupEntity(actx, a)
	if err != nil {
		return err
	}

	want, err := convertMetaValue(a.Value)
	if err != nil {
		return fmt.Errorf("meta_equals: %w", err)
	}

	key, ok := actx.Bank.Registry().MetaKeys().Lookup(a.Name)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v", a.Name, want),
			Actual:   "attribute never set on any result",
		}
	}

	got, ok := r.MetaValue(key)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v", a.Name, want),
			Actual:   "attribute not set",
		}
	}
	if !meta.EqualValues(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s = %v", a.Name, want),
			Actual:   fmt.Sprintf("%s = %v", a.Name, got),
		}
	}
	return nil
}

// assertEntityCount checks the number of results in the bank.
func assertEntityCount(actx *AssertionContext, a Assertion) error {
	if got := actx.Bank.Len(); got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d entities", a.Count),
			Actual:   fmt.Sprintf("%d entities", got),
		}
	}
	return nil
}
