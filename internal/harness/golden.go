package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares the reloaded bank's
// canonical snapshot against a golden file. The golden file lives at
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Snapshot bytes come from the canonical JSON encoder, so byte
// comparison is exact: map iteration order, float formatting, and key
// escaping cannot drift between runs.
//
// Returns an error if scenario execution fails. Assertion failures and
// snapshot mismatches fail the test instead.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, result.Snapshot)

	return nil
}

// AssertGolden compares an already-executed result's snapshot against
// a golden file. Useful when a test wants to inspect the result and
// compare it without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, result.Snapshot)
}
