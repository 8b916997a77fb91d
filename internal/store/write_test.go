package store

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/registry"
)

func TestSaveBank_PersistsDescriptors(t *testing.T) {
	s := createTestStore(t)
	saveTestBank(t, s)

	counts := map[string]int{
		"score_types":      2,
		"software":         2,
		"software_scores":  2,
		"input_files":      1,
		"processing_steps": 2,
		"step_input_files": 1,
	}
	for table, want := range counts {
		if got := countRows(t, s, table); got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	var higherBetter bool
	err := s.db.QueryRow("SELECT higher_better FROM score_types WHERE name = 'XCorr'").Scan(&higherBetter)
	if err != nil {
		t.Fatalf("query XCorr failed: %v", err)
	}
	if !higherBetter {
		t.Error("XCorr higher_better = false, want true")
	}

	var checksum string
	err = s.db.QueryRow("SELECT checksum FROM input_files WHERE path = 'data/run1.mzML'").Scan(&checksum)
	if err != nil {
		t.Fatalf("query input file failed: %v", err)
	}
	if checksum != "sha1:9f2c" {
		t.Errorf("checksum = %q, want %q", checksum, "sha1:9f2c")
	}
}

func TestSaveBank_PersistsResults(t *testing.T) {
	s := createTestStore(t)
	saveTestBank(t, s)

	if got := countRows(t, s, "results"); got != 2 {
		t.Errorf("results rows = %d, want 2", got)
	}
	if got := countRows(t, s, "applied_steps"); got != 3 {
		t.Errorf("applied_steps rows = %d, want 3", got)
	}
	if got := countRows(t, s, "applied_scores"); got != 3 {
		t.Errorf("applied_scores rows = %d, want 3", got)
	}
	if got := countRows(t, s, "meta_values"); got != 1 {
		t.Errorf("meta_values rows = %d, want 1", got)
	}

	// PEP1's records sit at positions 0 and 1 in application order.
	rows, err := s.db.Query(`
		SELECT a.position FROM applied_steps a
		JOIN results r ON a.result_id = r.id
		WHERE r.entity_key = 'PEP1'
		ORDER BY a.position ASC
	`)
	if err != nil {
		t.Fatalf("query positions failed: %v", err)
	}
	defer rows.Close()

	var positions []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			t.Fatalf("scan position failed: %v", err)
		}
		positions = append(positions, p)
	}
	if len(positions) != 2 || positions[0] != 0 || positions[1] != 1 {
		t.Errorf("PEP1 positions = %v, want [0 1]", positions)
	}

	var hash string
	err = s.db.QueryRow("SELECT content_hash FROM results WHERE entity_key = 'PEP1'").Scan(&hash)
	if err != nil {
		t.Fatalf("query content_hash failed: %v", err)
	}
	if hash == "" {
		t.Error("content_hash is empty, want result digest")
	}
}

func TestSaveBank_Idempotent(t *testing.T) {
	s := createTestStore(t)
	bank, _ := saveTestBank(t, s)

	tables := []string{
		"score_types", "software", "input_files", "processing_steps",
		"results", "applied_steps", "applied_scores", "meta_values",
	}
	before := make(map[string]int, len(tables))
	for _, table := range tables {
		before[table] = countRows(t, s, table)
	}

	if err := s.SaveBank(context.Background(), bank, "run-2"); err != nil {
		t.Fatalf("second SaveBank() failed: %v", err)
	}

	for _, table := range tables {
		if got := countRows(t, s, table); got != before[table] {
			t.Errorf("%s rows changed on resave: %d -> %d", table, before[table], got)
		}
	}
}

func TestSaveBank_ImportRowPerRunToken(t *testing.T) {
	s := createTestStore(t)
	bank, _ := saveTestBank(t, s)

	var resultCount, recordCount int
	var createdAt string
	err := s.db.QueryRow(`
		SELECT result_count, record_count, created_at FROM imports WHERE run_token = 'run-1'
	`).Scan(&resultCount, &recordCount, &createdAt)
	if err != nil {
		t.Fatalf("query import row failed: %v", err)
	}
	if resultCount != 2 {
		t.Errorf("result_count = %d, want 2", resultCount)
	}
	if recordCount != 3 {
		t.Errorf("record_count = %d, want 3", recordCount)
	}
	if _, err := time.Parse(time.RFC3339, createdAt); err != nil {
		t.Errorf("created_at %q is not RFC 3339: %v", createdAt, err)
	}

	// Same token again: no second row.
	if err := s.SaveBank(context.Background(), bank, "run-1"); err != nil {
		t.Fatalf("resave failed: %v", err)
	}
	if got := countRows(t, s, "imports"); got != 1 {
		t.Errorf("imports rows = %d, want 1", got)
	}

	// A fresh token gets its own row.
	if err := s.SaveBank(context.Background(), bank, "run-2"); err != nil {
		t.Fatalf("resave with new token failed: %v", err)
	}
	if got := countRows(t, s, "imports"); got != 2 {
		t.Errorf("imports rows = %d, want 2", got)
	}
}

func TestSaveBank_AppendsNewRecords(t *testing.T) {
	s := createTestStore(t)
	bank, refs := saveTestBank(t, s)

	err := bank.AddStep("PEP2", refs.Steps["rescore"], ident.ScoreMap{refs.ScoreTypes["q-value"]: 0.2})
	if err != nil {
		t.Fatalf("AddStep() failed: %v", err)
	}
	if err := s.SaveBank(context.Background(), bank, "run-2"); err != nil {
		t.Fatalf("second SaveBank() failed: %v", err)
	}

	if got := countRows(t, s, "applied_steps"); got != 4 {
		t.Errorf("applied_steps rows = %d, want 4", got)
	}

	var position int
	err = s.db.QueryRow(`
		SELECT a.position FROM applied_steps a
		JOIN results r ON a.result_id = r.id
		JOIN processing_steps p ON a.step_id = p.id
		JOIN software w ON p.software_id = w.id
		WHERE r.entity_key = 'PEP2' AND w.name = 'percolator'
	`).Scan(&position)
	if err != nil {
		t.Fatalf("query new record failed: %v", err)
	}
	if position != 1 {
		t.Errorf("new record position = %d, want 1", position)
	}
}

func TestSaveBank_ScoreOverwriteKeepsPosition(t *testing.T) {
	s := createTestStore(t)
	bank, refs := saveTestBank(t, s)

	// Rescoring the same step merges into the existing record.
	err := bank.AddScore("PEP1", refs.ScoreTypes["XCorr"], 3.0, refs.Steps["search"])
	if err != nil {
		t.Fatalf("AddScore() failed: %v", err)
	}
	if err := s.SaveBank(context.Background(), bank, "run-2"); err != nil {
		t.Fatalf("second SaveBank() failed: %v", err)
	}

	if got := countRows(t, s, "applied_steps"); got != 3 {
		t.Errorf("applied_steps rows = %d, want 3", got)
	}

	var value float64
	var position int
	err = s.db.QueryRow(`
		SELECT sc.value, a.position FROM applied_scores sc
		JOIN applied_steps a ON sc.applied_step_id = a.id
		JOIN results r ON a.result_id = r.id
		JOIN score_types st ON sc.score_type_id = st.id
		WHERE r.entity_key = 'PEP1' AND st.name = 'XCorr'
	`).Scan(&value, &position)
	if err != nil {
		t.Fatalf("query overwritten score failed: %v", err)
	}
	if value != 3.0 {
		t.Errorf("value = %v, want 3.0", value)
	}
	if position != 0 {
		t.Errorf("position = %d, want 0", position)
	}
}

func TestSaveBank_StepFreeRecord(t *testing.T) {
	s := createTestStore(t)

	bank := registry.NewBank()
	st, err := bank.Registry().RegisterScoreType(ident.ScoreType{Name: "q-value"})
	if err != nil {
		t.Fatalf("RegisterScoreType() failed: %v", err)
	}
	if err := bank.AddScore("PEP1", st, 0.01, ident.NoStep); err != nil {
		t.Fatalf("AddScore() failed: %v", err)
	}

	if err := s.SaveBank(context.Background(), bank, "run-1"); err != nil {
		t.Fatalf("SaveBank() failed: %v", err)
	}

	var stepID any
	err = s.db.QueryRow("SELECT step_id FROM applied_steps").Scan(&stepID)
	if err != nil {
		t.Fatalf("query step-free record failed: %v", err)
	}
	if stepID != nil {
		t.Errorf("step_id = %v, want NULL", stepID)
	}
}

func TestSaveBank_ChecksumConflict(t *testing.T) {
	s := createTestStore(t)
	saveTestBank(t, s)

	other := registry.NewBank()
	_, err := other.Registry().RegisterInputFile(ident.InputFile{Path: "data/run1.mzML", Checksum: "sha1:ffff"})
	if err != nil {
		t.Fatalf("RegisterInputFile() failed: %v", err)
	}

	err = s.SaveBank(context.Background(), other, "run-2")
	if err == nil {
		t.Fatal("expected checksum conflict, got nil")
	}
	if !strings.Contains(err.Error(), "checksum differs") {
		t.Errorf("error = %q, want checksum conflict", err)
	}
}

func TestSaveBank_ChecksumBackfill(t *testing.T) {
	s := createTestStore(t)

	first := registry.NewBank()
	_, err := first.Registry().RegisterInputFile(ident.InputFile{Path: "data/run2.mzML"})
	if err != nil {
		t.Fatalf("RegisterInputFile() failed: %v", err)
	}
	if err := s.SaveBank(context.Background(), first, "run-1"); err != nil {
		t.Fatalf("first SaveBank() failed: %v", err)
	}

	second := registry.NewBank()
	_, err = second.Registry().RegisterInputFile(ident.InputFile{Path: "data/run2.mzML", Checksum: "sha1:abcd"})
	if err != nil {
		t.Fatalf("RegisterInputFile() failed: %v", err)
	}
	if err := s.SaveBank(context.Background(), second, "run-2"); err != nil {
		t.Fatalf("second SaveBank() failed: %v", err)
	}

	var checksum string
	err = s.db.QueryRow("SELECT checksum FROM input_files WHERE path = 'data/run2.mzML'").Scan(&checksum)
	if err != nil {
		t.Fatalf("query checksum failed: %v", err)
	}
	if checksum != "sha1:abcd" {
		t.Errorf("checksum = %q, want backfilled %q", checksum, "sha1:abcd")
	}
}

func TestSaveBank_OrientationConflict(t *testing.T) {
	s := createTestStore(t)
	saveTestBank(t, s)

	other := registry.NewBank()
	_, err := other.Registry().RegisterScoreType(ident.ScoreType{Name: "XCorr", HigherBetter: false})
	if err != nil {
		t.Fatalf("RegisterScoreType() failed: %v", err)
	}

	err = s.SaveBank(context.Background(), other, "run-2")
	if err == nil {
		t.Fatal("expected orientation conflict, got nil")
	}
	if !strings.Contains(err.Error(), "orientation differs") {
		t.Errorf("error = %q, want orientation conflict", err)
	}
}

func TestSaveBank_RejectsNonFiniteScores(t *testing.T) {
	s := createTestStore(t)

	bank := registry.NewBank()
	st, err := bank.Registry().RegisterScoreType(ident.ScoreType{Name: "q-value"})
	if err != nil {
		t.Fatalf("RegisterScoreType() failed: %v", err)
	}
	if err := bank.AddScore("PEP1", st, math.NaN(), ident.NoStep); err != nil {
		t.Fatalf("AddScore() failed: %v", err)
	}

	// NaN lives in memory as a value like any other, but it has no
	// canonical form, so the content hash and the save both refuse it.
	err = s.SaveBank(context.Background(), bank, "run-1")
	if err == nil {
		t.Fatal("expected error saving NaN score, got nil")
	}
}

func TestSaveBank_ContextCancelled(t *testing.T) {
	s := createTestStore(t)
	bank, _ := createTestBank(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.SaveBank(ctx, bank, "run-1"); err == nil {
		t.Error("expected error from cancelled context, got nil")
	}
}
