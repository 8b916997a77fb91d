package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/IceFreez3r/OpenMS/internal/filter"
	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/registry"
)

// LoadBank rebuilds a bank from storage: descriptor tables repopulate
// the registry arenas in row-id order, then every ledger is replayed in
// stored application order. Step digests are recomputed during the
// rebuild and checked against the stored column, so a corrupted
// descriptor fails the load instead of producing a silently different
// bank.
func (s *Store) LoadBank(ctx context.Context) (*registry.Bank, error) {
	bank := registry.NewBank()
	reg := bank.Registry()

	scoreRefs, err := s.loadScoreTypes(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	softwareRefs, err := s.loadSoftware(ctx, reg, scoreRefs)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	fileRefs, err := s.loadInputFiles(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	stepRefs, err := s.loadSteps(ctx, reg, softwareRefs, fileRefs)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	if err := s.loadResults(ctx, bank, stepRefs, scoreRefs); err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	if err := s.loadMeta(ctx, bank); err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}

	return bank, nil
}

func (s *Store) loadScoreTypes(ctx context.Context, reg *registry.Registry) (map[int64]ident.ScoreTypeRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, higher_better
		FROM score_types
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query score types: %w", err)
	}
	defer rows.Close()

	refs := make(map[int64]ident.ScoreTypeRef)
	for rows.Next() {
		var id int64
		var st ident.ScoreType
		if err := rows.Scan(&id, &st.Name, &st.HigherBetter); err != nil {
			return nil, fmt.Errorf("scan score type: %w", err)
		}
		ref, err := reg.RegisterScoreType(st)
		if err != nil {
			return nil, fmt.Errorf("register score type %q: %w", st.Name, err)
		}
		refs[id] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score types: %w", err)
	}
	return refs, nil
}

func (s *Store) loadSoftware(ctx context.Context, reg *registry.Registry, scoreRefs map[int64]ident.ScoreTypeRef) (map[int64]ident.SoftwareRef, error) {
	// Assigned score lists first, keyed by software row.
	assigned := make(map[int64][]ident.ScoreTypeRef)
	rows, err := s.db.QueryContext(ctx, `
		SELECT software_id, score_type_id
		FROM software_scores
		ORDER BY software_id ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query software scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var softwareID, scoreID int64
		if err := rows.Scan(&softwareID, &scoreID); err != nil {
			return nil, fmt.Errorf("scan software score: %w", err)
		}
		ref, ok := scoreRefs[scoreID]
		if !ok {
			return nil, fmt.Errorf("software %d assigns unknown score type row %d", softwareID, scoreID)
		}
		assigned[softwareID] = append(assigned[softwareID], ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate software scores: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, name, version
		FROM software
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query software: %w", err)
	}
	defer rows.Close()

	refs := make(map[int64]ident.SoftwareRef)
	for rows.Next() {
		var id int64
		var sw ident.ProcessingSoftware
		if err := rows.Scan(&id, &sw.Name, &sw.Version); err != nil {
			return nil, fmt.Errorf("scan software: %w", err)
		}
		sw.AssignedScores = assigned[id]
		ref, err := reg.RegisterSoftware(sw)
		if err != nil {
			return nil, fmt.Errorf("register software %q: %w", sw.Name, err)
		}
		refs[id] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate software: %w", err)
	}
	return refs, nil
}

func (s *Store) loadInputFiles(ctx context.Context, reg *registry.Registry) (map[int64]ident.InputFileRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, checksum
		FROM input_files
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query input files: %w", err)
	}
	defer rows.Close()

	refs := make(map[int64]ident.InputFileRef)
	for rows.Next() {
		var id int64
		var f ident.InputFile
		if err := rows.Scan(&id, &f.Path, &f.Checksum); err != nil {
			return nil, fmt.Errorf("scan input file: %w", err)
		}
		ref, err := reg.RegisterInputFile(f)
		if err != nil {
			return nil, fmt.Errorf("register input file %q: %w", f.Path, err)
		}
		refs[id] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate input files: %w", err)
	}
	return refs, nil
}

func (s *Store) loadSteps(ctx context.Context, reg *registry.Registry, softwareRefs map[int64]ident.SoftwareRef, fileRefs map[int64]ident.InputFileRef) (map[int64]ident.ProcessingStepRef, error) {
	// Input file lists first, keyed by step row.
	files := make(map[int64][]ident.InputFileRef)
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, input_file_id
		FROM step_input_files
		ORDER BY step_id ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query step input files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stepID, fileID int64
		if err := rows.Scan(&stepID, &fileID); err != nil {
			return nil, fmt.Errorf("scan step input file: %w", err)
		}
		ref, ok := fileRefs[fileID]
		if !ok {
			return nil, fmt.Errorf("step %d references unknown input file row %d", stepID, fileID)
		}
		files[stepID] = append(files[stepID], ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step input files: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, software_id, completed_at, actions, digest
		FROM processing_steps
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	refs := make(map[int64]ident.ProcessingStepRef)
	for rows.Next() {
		var id, softwareID int64
		var completedAt, actionsJSON, digest string
		if err := rows.Scan(&id, &softwareID, &completedAt, &actionsJSON, &digest); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		swRef, ok := softwareRefs[softwareID]
		if !ok {
			return nil, fmt.Errorf("step %d references unknown software row %d", id, softwareID)
		}
		actions, err := unmarshalActions(actionsJSON)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", id, err)
		}

		ref, err := reg.RegisterStep(ident.ProcessingStep{
			Software:    swRef,
			InputFiles:  files[id],
			CompletedAt: completedAt,
			Actions:     actions,
		})
		if err != nil {
			return nil, fmt.Errorf("register step %d: %w", id, err)
		}

		computed, err := reg.StepDigest(ref)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", id, err)
		}
		if computed != digest {
			return nil, fmt.Errorf("step %d: stored digest %s does not match content (%s)", id, digest, computed)
		}
		refs[id] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return refs, nil
}

func (s *Store) loadResults(ctx context.Context, bank *registry.Bank, stepRefs map[int64]ident.ProcessingStepRef, scoreRefs map[int64]ident.ScoreTypeRef) error {
	// Create every result first so entities without records survive the
	// round trip.
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_key
		FROM results
		ORDER BY entity_key COLLATE BINARY ASC
	`)
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("scan result: %w", err)
		}
		bank.Result(key)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate results: %w", err)
	}

	// Score maps, keyed by ledger record row.
	scores := make(map[int64]ident.ScoreMap)
	rows, err = s.db.QueryContext(ctx, `
		SELECT applied_step_id, score_type_id, value
		FROM applied_scores
		ORDER BY applied_step_id ASC, score_type_id ASC
	`)
	if err != nil {
		return fmt.Errorf("query applied scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var appliedID, scoreID int64
		var value float64
		if err := rows.Scan(&appliedID, &scoreID, &value); err != nil {
			return fmt.Errorf("scan applied score: %w", err)
		}
		ref, ok := scoreRefs[scoreID]
		if !ok {
			return fmt.Errorf("record %d references unknown score type row %d", appliedID, scoreID)
		}
		if scores[appliedID] == nil {
			scores[appliedID] = make(ident.ScoreMap)
		}
		scores[appliedID][ref] = value
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate applied scores: %w", err)
	}

	// Replay ledgers in stored application order.
	rows, err = s.db.QueryContext(ctx, `
		SELECT a.id, r.entity_key, a.step_id
		FROM applied_steps a
		JOIN results r ON a.result_id = r.id
		ORDER BY r.entity_key COLLATE BINARY ASC, a.position ASC
	`)
	if err != nil {
		return fmt.Errorf("query applied steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var appliedID int64
		var key string
		var stepID sql.NullInt64
		if err := rows.Scan(&appliedID, &key, &stepID); err != nil {
			return fmt.Errorf("scan applied step: %w", err)
		}

		stepRef := ident.NoStep
		if stepID.Valid {
			ref, ok := stepRefs[stepID.Int64]
			if !ok {
				return fmt.Errorf("result %q references unknown step row %d", key, stepID.Int64)
			}
			stepRef = ref
		}

		if err := bank.AddStep(key, stepRef, scores[appliedID]); err != nil {
			return fmt.Errorf("result %q: %w", key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate applied steps: %w", err)
	}
	return nil
}

func (s *Store) loadMeta(ctx context.Context, bank *registry.Bank) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.entity_key, m.name, m.value
		FROM meta_values m
		JOIN results r ON m.result_id = r.id
		ORDER BY r.entity_key COLLATE BINARY ASC, m.name COLLATE BINARY ASC
	`)
	if err != nil {
		return fmt.Errorf("query meta values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, name, envelope string
		if err := rows.Scan(&key, &name, &envelope); err != nil {
			return fmt.Errorf("scan meta value: %w", err)
		}
		v, err := unmarshalMetaValue(envelope)
		if err != nil {
			return fmt.Errorf("result %q meta %q: %w", key, name, err)
		}
		bank.SetMeta(key, name, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate meta values: %w", err)
	}
	return nil
}

// ScoreRow is one current-score listing entry: the value that a reverse
// scan of the entity's ledger would report for the score type.
type ScoreRow struct {
	EntityKey string
	ScoreType string
	Value     float64
}

// ListScores returns the current score of every (entity, score type)
// pair, resolved store-side: for each pair, the value at the highest
// application position wins, matching the ledger's reverse scan.
func (s *Store) ListScores(ctx context.Context) ([]ScoreRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.entity_key, st.name, sc.value
		FROM results r
		JOIN applied_steps a ON a.result_id = r.id
		JOIN applied_scores sc ON sc.applied_step_id = a.id
		JOIN score_types st ON st.id = sc.score_type_id
		WHERE a.position = (
			SELECT MAX(a2.position)
			FROM applied_steps a2
			JOIN applied_scores sc2 ON sc2.applied_step_id = a2.id
			WHERE a2.result_id = r.id
			  AND sc2.score_type_id = sc.score_type_id
		)
		ORDER BY r.entity_key COLLATE BINARY ASC, st.name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []ScoreRow
	for rows.Next() {
		var row ScoreRow
		if err := rows.Scan(&row.EntityKey, &row.ScoreType, &row.Value); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}

	if out == nil {
		out = []ScoreRow{}
	}
	return out, nil
}

// FilterKeys returns the entity keys whose current scores satisfy every
// predicate of f, evaluated store-side via the filter's SQL form.
func (s *Store) FilterKeys(ctx context.Context, f filter.Filter) ([]string, error) {
	query, params, err := filter.CompileSQL(f)
	if err != nil {
		return nil, fmt.Errorf("filter keys: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("filter keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan entity key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity keys: %w", err)
	}

	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}
