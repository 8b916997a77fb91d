package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
	"github.com/IceFreez3r/OpenMS/internal/registry"
)

// createTestStore creates a store backed by a fresh database file.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testPipeline declares the descriptors the fixture bank records against.
func testPipeline() ident.PipelineSpec {
	return ident.PipelineSpec{
		Name: "search_rescore",
		ScoreTypes: []ident.ScoreTypeSpec{
			{Name: "XCorr", HigherBetter: true},
			{Name: "q-value", HigherBetter: false},
		},
		Software: []ident.SoftwareSpec{
			{Name: "comet", Version: "2024.01", AssignedScores: []string{"XCorr"}},
			{Name: "percolator", Version: "3.6", AssignedScores: []string{"q-value"}},
		},
		InputFiles: []ident.InputFileSpec{
			{Path: "data/run1.mzML", Checksum: "sha1:9f2c"},
		},
		Steps: []ident.StepSpec{
			{
				ID:          "search",
				Software:    "comet",
				InputFiles:  []string{"data/run1.mzML"},
				CompletedAt: "2024-03-01T10:00:00Z",
				Actions:     []string{"search"},
			},
			{
				ID:          "rescore",
				Software:    "percolator",
				CompletedAt: "2024-03-01T11:30:00Z",
				Actions:     []string{"rescore"},
			},
		},
	}
}

// createTestBank builds a bank holding two scored entities:
//
//	PEP1: XCorr 2.41 at search, q-value 0.009 at rescore, charge meta
//	PEP2: XCorr 1.13 at search
//
// Three ledger records in total.
func createTestBank(t *testing.T) (*registry.Bank, *registry.PipelineRefs) {
	t.Helper()
	bank := registry.NewBank()
	refs, err := bank.Registry().ApplySpec(testPipeline())
	if err != nil {
		t.Fatalf("ApplySpec() failed: %v", err)
	}

	xcorr := refs.ScoreTypes["XCorr"]
	qvalue := refs.ScoreTypes["q-value"]

	mustAdd(t, bank.AddStep("PEP1", refs.Steps["search"], ident.ScoreMap{xcorr: 2.41}))
	mustAdd(t, bank.AddStep("PEP1", refs.Steps["rescore"], ident.ScoreMap{qvalue: 0.009}))
	mustAdd(t, bank.AddStep("PEP2", refs.Steps["search"], ident.ScoreMap{xcorr: 1.13}))
	bank.SetMeta("PEP1", "charge", meta.Int(2))

	return bank, refs
}

func mustAdd(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("building fixture bank: %v", err)
	}
}

// saveTestBank builds the fixture bank and persists it as run-1.
func saveTestBank(t *testing.T, s *Store) (*registry.Bank, *registry.PipelineRefs) {
	t.Helper()
	bank, refs := createTestBank(t)
	if err := s.SaveBank(context.Background(), bank, "run-1"); err != nil {
		t.Fatalf("SaveBank() failed: %v", err)
	}
	return bank, refs
}

// countRows returns the number of rows in table.
func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
