package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/registry"
)

// descriptorIDs maps a bank's refs onto database row ids for one save.
type descriptorIDs struct {
	scoreTypes map[ident.ScoreTypeRef]int64
	software   map[ident.SoftwareRef]int64
	inputFiles map[ident.InputFileRef]int64
	steps      map[ident.ProcessingStepRef]int64
}

// SaveBank persists a bank in a single transaction. Every write is an
// upsert keyed on content identity, so saving the same bank twice is a
// no-op, and saving a grown bank appends without rewriting history.
//
// SaveBank assumes stored rows for overlapping entities came from this
// bank's own lineage (LoadBank, mutate, SaveBank). Folding a foreign
// bank into a stored one goes through LoadBank and Bank.Merge first.
//
// The run token labels this save in the imports table; generate it with
// a registry.RunTokenGenerator.
func (s *Store) SaveBank(ctx context.Context, b *registry.Bank, runToken string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save bank: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	ids, err := saveDescriptors(ctx, tx, b.Registry())
	if err != nil {
		return fmt.Errorf("save bank: %w", err)
	}

	records, err := saveResults(ctx, tx, b, ids)
	if err != nil {
		return fmt.Errorf("save bank: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO imports (run_token, result_count, record_count, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_token) DO NOTHING
	`, runToken, b.Len(), records, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save bank: write import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save bank: commit: %w", err)
	}
	return nil
}

// saveDescriptors upserts the registry arenas in arena order and returns
// the ref-to-row-id maps the record writes need.
func saveDescriptors(ctx context.Context, tx *sql.Tx, reg *registry.Registry) (*descriptorIDs, error) {
	ids := &descriptorIDs{
		scoreTypes: make(map[ident.ScoreTypeRef]int64, reg.NumScoreTypes()),
		software:   make(map[ident.SoftwareRef]int64, reg.NumSoftware()),
		inputFiles: make(map[ident.InputFileRef]int64, reg.NumInputFiles()),
		steps:      make(map[ident.ProcessingStepRef]int64, reg.NumSteps()),
	}

	for i := 1; i <= reg.NumScoreTypes(); i++ {
		ref := ident.ScoreTypeRef(i)
		st, err := reg.ScoreType(ref)
		if err != nil {
			return nil, err
		}
		id, err := saveScoreType(ctx, tx, st)
		if err != nil {
			return nil, err
		}
		ids.scoreTypes[ref] = id
	}

	for i := 1; i <= reg.NumSoftware(); i++ {
		ref := ident.SoftwareRef(i)
		sw, err := reg.Software(ref)
		if err != nil {
			return nil, err
		}
		id, err := saveSoftware(ctx, tx, sw, ids)
		if err != nil {
			return nil, err
		}
		ids.software[ref] = id
	}

	for i := 1; i <= reg.NumInputFiles(); i++ {
		ref := ident.InputFileRef(i)
		f, err := reg.InputFile(ref)
		if err != nil {
			return nil, err
		}
		id, err := saveInputFile(ctx, tx, f)
		if err != nil {
			return nil, err
		}
		ids.inputFiles[ref] = id
	}

	for i := 1; i <= reg.NumSteps(); i++ {
		ref := ident.ProcessingStepRef(i)
		step, err := reg.Step(ref)
		if err != nil {
			return nil, err
		}
		digest, err := reg.StepDigest(ref)
		if err != nil {
			return nil, err
		}
		id, err := saveStep(ctx, tx, step, digest, ids)
		if err != nil {
			return nil, err
		}
		ids.steps[ref] = id
	}

	return ids, nil
}

func saveScoreType(ctx context.Context, tx *sql.Tx, st ident.ScoreType) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO score_types (name, higher_better)
		VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, st.Name, st.HigherBetter)
	if err != nil {
		return 0, fmt.Errorf("write score type %q: %w", st.Name, err)
	}

	var id int64
	var higherBetter bool
	err = tx.QueryRowContext(ctx, `
		SELECT id, higher_better FROM score_types WHERE name = ?
	`, st.Name).Scan(&id, &higherBetter)
	if err != nil {
		return 0, fmt.Errorf("read score type %q: %w", st.Name, err)
	}
	if higherBetter != st.HigherBetter {
		return 0, fmt.Errorf("score type %q: stored orientation differs", st.Name)
	}
	return id, nil
}

func saveSoftware(ctx context.Context, tx *sql.Tx, sw ident.ProcessingSoftware, ids *descriptorIDs) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO software (name, version)
		VALUES (?, ?)
		ON CONFLICT(name, version) DO NOTHING
	`, sw.Name, sw.Version)
	if err != nil {
		return 0, fmt.Errorf("write software %q: %w", sw.Name, err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM software WHERE name = ? AND version = ?
	`, sw.Name, sw.Version).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read software %q: %w", sw.Name, err)
	}

	for pos, sref := range sw.AssignedScores {
		scoreID, ok := ids.scoreTypes[sref]
		if !ok {
			return 0, fmt.Errorf("software %q assigns unknown score type ref %d", sw.Name, sref)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO software_scores (software_id, score_type_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(software_id, position) DO NOTHING
		`, id, scoreID, pos)
		if err != nil {
			return 0, fmt.Errorf("write software %q assigned scores: %w", sw.Name, err)
		}
	}
	return id, nil
}

func saveInputFile(ctx context.Context, tx *sql.Tx, f ident.InputFile) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO input_files (path, checksum)
		VALUES (?, ?)
		ON CONFLICT(path) DO NOTHING
	`, f.Path, f.Checksum)
	if err != nil {
		return 0, fmt.Errorf("write input file %q: %w", f.Path, err)
	}

	var id int64
	var stored string
	err = tx.QueryRowContext(ctx, `
		SELECT id, checksum FROM input_files WHERE path = ?
	`, f.Path).Scan(&id, &stored)
	if err != nil {
		return 0, fmt.Errorf("read input file %q: %w", f.Path, err)
	}

	// Same backfill rule as the registry: a first checksum is recorded,
	// a different one is a conflict.
	switch {
	case f.Checksum == "" || stored == f.Checksum:
	case stored == "":
		if _, err := tx.ExecContext(ctx, `
			UPDATE input_files SET checksum = ? WHERE id = ?
		`, f.Checksum, id); err != nil {
			return 0, fmt.Errorf("update input file %q checksum: %w", f.Path, err)
		}
	default:
		return 0, fmt.Errorf("input file %q: stored checksum differs", f.Path)
	}
	return id, nil
}

func saveStep(ctx context.Context, tx *sql.Tx, step ident.ProcessingStep, digest string, ids *descriptorIDs) (int64, error) {
	softwareID, ok := ids.software[step.Software]
	if !ok {
		return 0, fmt.Errorf("step %s references unknown software ref %d", digest, step.Software)
	}
	actionsJSON, err := marshalActions(step.Actions)
	if err != nil {
		return 0, fmt.Errorf("step %s: %w", digest, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO processing_steps (software_id, completed_at, actions, digest)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`, softwareID, step.CompletedAt, actionsJSON, digest)
	if err != nil {
		return 0, fmt.Errorf("write step %s: %w", digest, err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM processing_steps WHERE digest = ?
	`, digest).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read step %s: %w", digest, err)
	}

	for pos, fref := range step.InputFiles {
		fileID, ok := ids.inputFiles[fref]
		if !ok {
			return 0, fmt.Errorf("step %s references unknown input file ref %d", digest, fref)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO step_input_files (step_id, input_file_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(step_id, position) DO NOTHING
		`, id, fileID, pos)
		if err != nil {
			return 0, fmt.Errorf("write step %s input files: %w", digest, err)
		}
	}
	return id, nil
}

// saveResults writes every result's ledger and metadata, returning the
// total number of ledger records written.
func saveResults(ctx context.Context, tx *sql.Tx, b *registry.Bank, ids *descriptorIDs) (int, error) {
	records := 0
	for _, key := range b.Keys() {
		hash, err := b.ResultDigest(key)
		if err != nil {
			return 0, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO results (entity_key, content_hash)
			VALUES (?, ?)
			ON CONFLICT(entity_key) DO UPDATE SET content_hash = excluded.content_hash
		`, key, hash)
		if err != nil {
			return 0, fmt.Errorf("write result %q: %w", key, err)
		}

		var resultID int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM results WHERE entity_key = ?
		`, key).Scan(&resultID)
		if err != nil {
			return 0, fmt.Errorf("read result %q: %w", key, err)
		}

		r, _ := b.Lookup(key)
		n, err := saveLedger(ctx, tx, resultID, r, ids)
		if err != nil {
			return 0, fmt.Errorf("result %q: %w", key, err)
		}
		records += n

		if err := saveMeta(ctx, tx, resultID, r, b.Registry()); err != nil {
			return 0, fmt.Errorf("result %q: %w", key, err)
		}
	}
	return records, nil
}

func saveLedger(ctx context.Context, tx *sql.Tx, resultID int64, r *ident.ScoredProcessingResult, ids *descriptorIDs) (int, error) {
	ledger := r.Steps()
	for i := 0; i < ledger.Len(); i++ {
		rec := ledger.At(i)

		var stepID any
		if rec.Step != ident.NoStep {
			id, ok := ids.steps[rec.Step]
			if !ok {
				return 0, fmt.Errorf("record references unknown step ref %d", rec.Step)
			}
			stepID = id
		}

		// Position is written once; a record merged into an existing
		// step key keeps the stored position, same as the ledger.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO applied_steps (result_id, step_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(result_id, IFNULL(step_id, 0)) DO NOTHING
		`, resultID, stepID, i)
		if err != nil {
			return 0, fmt.Errorf("write applied step: %w", err)
		}

		var appliedID int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM applied_steps
			WHERE result_id = ? AND IFNULL(step_id, 0) = IFNULL(?, 0)
		`, resultID, stepID).Scan(&appliedID)
		if err != nil {
			return 0, fmt.Errorf("read applied step: %w", err)
		}

		for _, entry := range rec.SortedScores() {
			scoreID, ok := ids.scoreTypes[entry.Type]
			if !ok {
				return 0, fmt.Errorf("record references unknown score type ref %d", entry.Type)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO applied_scores (applied_step_id, score_type_id, value)
				VALUES (?, ?, ?)
				ON CONFLICT(applied_step_id, score_type_id) DO UPDATE SET value = excluded.value
			`, appliedID, scoreID, entry.Value)
			if err != nil {
				return 0, fmt.Errorf("write applied score: %w", err)
			}
		}
	}
	return ledger.Len(), nil
}

func saveMeta(ctx context.Context, tx *sql.Tx, resultID int64, r *ident.ScoredProcessingResult, reg *registry.Registry) error {
	for _, mk := range r.MetaKeys() {
		name, ok := reg.MetaKeys().Name(mk)
		if !ok {
			return fmt.Errorf("meta key %d outside the bank's registry", mk)
		}
		v, _ := r.MetaValue(mk)
		envelope, err := marshalMetaValue(v)
		if err != nil {
			return fmt.Errorf("meta %q: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO meta_values (result_id, name, value)
			VALUES (?, ?, ?)
			ON CONFLICT(result_id, name) DO UPDATE SET value = excluded.value
		`, resultID, name, envelope)
		if err != nil {
			return fmt.Errorf("write meta %q: %w", name, err)
		}
	}
	return nil
}
