package harness

import (
	"fmt"
	"os"
	"path/filepath"
)

// SuiteResult contains results from running a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure describes one failed scenario.
type ScenarioFailure struct {
	Scenario string `json:"scenario"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

// FindScenarioFiles returns all scenario YAML files under dir.
// filepath.Walk visits lexically, so the order is deterministic.
func FindScenarioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan scenario directory: %w", err)
	}
	return files, nil
}

// RunSuite loads and runs every scenario file under dir.
//
// A scenario that fails to load, fails to execute, or fails an
// assertion counts as one failure; the suite keeps going so a single
// broken scenario doesn't hide the rest.
func RunSuite(dir string) (*SuiteResult, error) {
	paths, err := FindScenarioFiles(dir)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: filepath.Base(path),
				Path:     path,
				Error:    fmt.Sprintf("failed to load scenario: %v", err),
			})
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Error:    fmt.Sprintf("scenario execution failed: %v", err),
			})
			continue
		}

		if !runResult.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Error:    fmt.Sprintf("scenario assertions failed: %v", runResult.Errors),
			})
			continue
		}

		result.Passed++
	}

	return result, nil
}
