// Package testutil provides shared fixtures for tests that need a
// compiled pipeline on disk.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// StandardPipeline is a two-step search-and-rescore pipeline used as a
// shared fixture. It declares score types with opposite orientations,
// software for each, one input file, and two steps, which covers every
// descriptor kind the registry tracks.
const StandardPipeline = `pipelines: search_rescore: {
	score_types: [
		{name: "XCorr", higher_better: true},
		{name: "q-value", higher_better: false},
	]
	software: [
		{name: "comet", version: "2024.01", assigned_scores: ["XCorr"]},
		{name: "percolator", version: "3.6", assigned_scores: ["q-value"]},
	]
	input_files: [
		{path: "data/run1.mzML", checksum: "sha1:9f2c"},
	]
	steps: [
		{
			id:           "search"
			software:     "comet"
			input_files: ["data/run1.mzML"]
			completed_at: "2024-03-01T10:00:00Z"
			actions: ["search"]
		},
		{
			id:           "rescore"
			software:     "percolator"
			completed_at: "2024-03-01T11:30:00Z"
			actions: ["rescore"]
		},
	]
}
`

// WritePipelineFile writes the standard pipeline definition into dir
// and returns its path.
func WritePipelineFile(t *testing.T, dir string) string {
	t.Helper()
	return WriteFile(t, filepath.Join(dir, "pipelines.cue"), StandardPipeline)
}

// WriteFile writes content to path, creating parent directories, and
// returns path.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
