package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM results").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"score_types", "software", "software_scores",
		"input_files", "processing_steps", "step_input_files",
		"results", "applied_steps", "applied_scores",
		"meta_values", "imports",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}

	// Second close must not panic.
	_ = s.Close()
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)

	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestStore(t)

	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Schema tests

func TestSchema_ResultsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "results")
	for _, col := range []string{"id", "entity_key", "content_hash"} {
		if !slices.Contains(columns, col) {
			t.Errorf("results table missing column %q", col)
		}
	}
}

func TestSchema_AppliedStepsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "applied_steps")
	for _, col := range []string{"id", "result_id", "step_id", "position"} {
		if !slices.Contains(columns, col) {
			t.Errorf("applied_steps table missing column %q", col)
		}
	}
}

func TestSchema_AppliedStepsIndexes(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "applied_steps")
	expected := []string{
		"idx_applied_steps_result_position",
		"idx_applied_steps_record_unique",
	}
	for _, idx := range expected {
		if !slices.Contains(indexes, idx) {
			t.Errorf("applied_steps table missing index %q", idx)
		}
	}
}

// Constraint tests

func TestConstraint_OneStepFreeRecordPerResult(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO results (entity_key) VALUES ('PEP1')`)
	if err != nil {
		t.Fatalf("failed to insert result: %v", err)
	}

	_, err = s.db.Exec(`INSERT INTO applied_steps (result_id, step_id, position) VALUES (1, NULL, 0)`)
	if err != nil {
		t.Fatalf("failed to insert first step-free record: %v", err)
	}

	// A second step-free record for the same result collides on the
	// IFNULL(step_id, 0) key.
	_, err = s.db.Exec(`INSERT INTO applied_steps (result_id, step_id, position) VALUES (1, NULL, 1)`)
	if err == nil {
		t.Error("expected UNIQUE constraint violation, got nil")
	}
}

func TestConstraint_OneRecordPerPosition(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO results (entity_key) VALUES ('PEP1')`)
	if err != nil {
		t.Fatalf("failed to insert result: %v", err)
	}
	_, err = s.db.Exec(`INSERT INTO software (name, version) VALUES ('comet', '2024.01')`)
	if err != nil {
		t.Fatalf("failed to insert software: %v", err)
	}
	_, err = s.db.Exec(`INSERT INTO processing_steps (software_id, digest) VALUES (1, 'd1')`)
	if err != nil {
		t.Fatalf("failed to insert step: %v", err)
	}

	_, err = s.db.Exec(`INSERT INTO applied_steps (result_id, step_id, position) VALUES (1, NULL, 0)`)
	if err != nil {
		t.Fatalf("failed to insert first record: %v", err)
	}

	_, err = s.db.Exec(`INSERT INTO applied_steps (result_id, step_id, position) VALUES (1, 1, 0)`)
	if err == nil {
		t.Error("expected UNIQUE constraint violation on position, got nil")
	}
}

func TestConstraint_ForeignKeyRecordToResult(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO applied_steps (result_id, step_id, position) VALUES (999, NULL, 0)`)
	if err == nil {
		t.Error("expected foreign key constraint violation, got nil")
	}
}

func TestConstraint_ScoreTypeNameUnique(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO score_types (name, higher_better) VALUES ('XCorr', 1)`)
	if err != nil {
		t.Fatalf("failed to insert score type: %v", err)
	}

	_, err = s.db.Exec(`INSERT INTO score_types (name, higher_better) VALUES ('XCorr', 0)`)
	if err == nil {
		t.Error("expected UNIQUE constraint violation on name, got nil")
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}

	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_IdempotentUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}

		var version int
		err = s.db.QueryRow("PRAGMA user_version").Scan(&version)
		if err != nil {
			t.Fatalf("failed to get user_version: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("iteration %d: user_version = %d, want %d", i, version, currentSchemaVersion)
		}

		s.Close()
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Build a pre-migration database by hand: schema without migrations.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	err = s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}

	indexes := getTableIndexes(t, s.db, "applied_steps")
	if !slices.Contains(indexes, "idx_applied_steps_record_unique") {
		t.Errorf("expected unique record index after migration, got indexes: %v", indexes)
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
