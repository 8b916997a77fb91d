package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/IceFreez3r/OpenMS/internal/compiler"
	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
	"github.com/IceFreez3r/OpenMS/internal/registry"
	"github.com/IceFreez3r/OpenMS/internal/store"
)

// defaultRunToken keeps import rows deterministic when a scenario does
// not pin its own token.
const defaultRunToken = "test-run-default"

// Harness executes one scenario against a fresh in-memory store.
type Harness struct {
	store *store.Store
	bank  *registry.Bank

	// steps maps pipeline step ids to refs in the recording bank.
	steps map[string]ident.ProcessingStepRef

	// digests maps pipeline step ids to content digests. Assertions
	// resolve step ids against the reloaded bank through these, since
	// row ids differ between banks but digests do not.
	digests map[string]string

	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Compile and register the scenario's pipelines
//  3. Apply the recording operations in order
//  4. Save the bank, then load it back from the store
//  5. Evaluate assertions against the reloaded bank
//
// Asserting on the reloaded bank rather than the recording bank means
// every scenario also exercises the persistence round trip: a bug that
// loses or reorders ledger records on save or load fails the scenario
// even when the in-memory semantics were right.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:   st,
		bank:    registry.NewBank(),
		steps:   make(map[string]ident.ProcessingStepRef),
		digests: make(map[string]string),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if err := h.loadPipelines(scenario.Pipelines); err != nil {
		return nil, err
	}

	if err := h.executeOps(scenario.Ops); err != nil {
		return nil, err
	}

	runToken := scenario.RunToken
	if runToken == "" {
		runToken = defaultRunToken
	}

	ctx := context.Background()
	if err := h.store.SaveBank(ctx, h.bank, runToken); err != nil {
		return nil, fmt.Errorf("failed to save bank: %w", err)
	}

	loaded, err := h.store.LoadBank(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reload bank: %w", err)
	}

	actx, err := h.assertionContext(loaded)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	result.Entities = loaded.Len()
	for _, key := range loaded.Keys() {
		r, _ := loaded.Lookup(key)
		result.Records += r.Steps().Len()
	}

	snap, err := loaded.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot bank: %w", err)
	}
	result.Snapshot = snap

	return result, nil
}

// loadPipelines compiles each pipeline file and registers its
// descriptors into the recording bank.
func (h *Harness) loadPipelines(paths []string) error {
	cuectx := cuecontext.New()
	reg := h.bank.Registry()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read pipeline file: %w", err)
		}

		root := cuectx.CompileBytes(data, cue.Filename(path))
		if err := root.Err(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		pipelines := root.LookupPath(cue.ParsePath("pipelines"))
		if !pipelines.Exists() {
			return fmt.Errorf("%s: no pipelines field", path)
		}

		iter, err := pipelines.Fields()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		for iter.Next() {
			spec, err := compiler.CompilePipeline(iter.Value())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if verrs := compiler.Validate(spec); len(verrs) > 0 {
				return fmt.Errorf("%s: pipeline %q: %s", path, spec.Name, verrs[0].Error())
			}

			refs, err := reg.ApplySpec(*spec)
			if err != nil {
				return fmt.Errorf("%s: pipeline %q: %w", path, spec.Name, err)
			}

			for id, ref := range refs.Steps {
				digest, err := reg.StepDigest(ref)
				if err != nil {
					return fmt.Errorf("step %q: %w", id, err)
				}
				h.steps[id] = ref
				h.digests[id] = digest
			}

			h.logger.Info("pipeline registered",
				"file", path,
				"pipeline", spec.Name,
				"steps", len(refs.Steps),
			)
		}
	}

	return nil
}

// executeOps applies the scenario's recording operations in order.
// Execution errors abort the scenario; they are setup mistakes, not
// assertion failures.
func (h *Harness) executeOps(ops []Op) error {
	reg := h.bank.Registry()

	for i, op := range ops {
		switch op.Type {
		case OpAddStep:
			ref, ok := h.steps[op.Step]
			if !ok {
				return fmt.Errorf("ops[%d]: unknown step %q", i, op.Step)
			}
			scores := make(ident.ScoreMap, len(op.Scores))
			for name, val := range op.Scores {
				tref, ok := reg.ScoreTypeByName(name)
				if !ok {
					return fmt.Errorf("ops[%d]: unknown score type %q", i, name)
				}
				scores[tref] = val
			}
			if err := h.bank.AddStep(op.Entity, ref, scores); err != nil {
				return fmt.Errorf("ops[%d]: add_step: %w", i, err)
			}

		case OpAddScore:
			tref, ok := reg.ScoreTypeByName(op.Score)
			if !ok {
				return fmt.Errorf("ops[%d]: unknown score type %q", i, op.Score)
			}
			val, err := scoreValue(op.Value)
			if err != nil {
				return fmt.Errorf("ops[%d]: %w", i, err)
			}
			step := ident.NoStep
			if op.Step != "" {
				ref, ok := h.steps[op.Step]
				if !ok {
					return fmt.Errorf("ops[%d]: unknown step %q", i, op.Step)
				}
				step = ref
			}
			if err := h.bank.AddScore(op.Entity, tref, val, step); err != nil {
				return fmt.Errorf("ops[%d]: add_score: %w", i, err)
			}

		case OpSetMeta:
			v, err := convertMetaValue(op.Value)
			if err != nil {
				return fmt.Errorf("ops[%d]: %w", i, err)
			}
			h.bank.SetMeta(op.Entity, op.Name, v)

		case OpMergeResult:
			src, ok := h.bank.Lookup(op.From)
			if !ok {
				return fmt.Errorf("ops[%d]: unknown entity %q", i, op.From)
			}
			h.bank.Result(op.Into).Merge(src)

		default:
			return fmt.Errorf("ops[%d]: unknown op type %q", i, op.Type)
		}

		h.logger.Info("op applied", "index", i, "op", op.Type, "entity", op.Entity)
	}

	return nil
}

// assertionContext resolves the recording-time step ids against the
// reloaded bank.
func (h *Harness) assertionContext(loaded *registry.Bank) (*AssertionContext, error) {
	actx := &AssertionContext{
		Bank:  loaded,
		Steps: make(map[string]ident.ProcessingStepRef, len(h.digests)),
		IDs:   make(map[ident.ProcessingStepRef]string, len(h.digests)),
	}

	reg := loaded.Registry()
	for id, digest := range h.digests {
		ref, ok := reg.StepByDigest(digest)
		if !ok {
			return nil, fmt.Errorf("step %q: digest %s not found after reload", id, digest)
		}
		actx.Steps[id] = ref
		actx.IDs[ref] = id
	}

	return actx, nil
}

// scoreValue converts a YAML-parsed value to a score float.
func scoreValue(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("score value must be a number, got %T", val)
	}
}

// convertMetaValue converts a YAML-parsed value to a metadata value.
// YAML integers arrive as int, floats as float64, and lists as []any.
// A list's element types decide the list kind; a single float promotes
// the whole list to floats.
func convertMetaValue(val any) (meta.Value, error) {
	switch v := val.(type) {
	case string:
		return meta.String(v), nil
	case int:
		return meta.Int(v), nil
	case int64:
		return meta.Int(v), nil
	case float64:
		return meta.Float(v), nil
	case []any:
		return convertMetaList(v)
	default:
		return nil, fmt.Errorf("unsupported metadata value type %T", val)
	}
}

func convertMetaList(list []any) (meta.Value, error) {
	if len(list) == 0 {
		return meta.StringList(nil), nil
	}

	switch list[0].(type) {
	case string:
		out := make(meta.StringList, len(list))
		for i, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("list[%d]: mixed element types", i)
			}
			out[i] = s
		}
		return out, nil

	case int, int64, float64:
		ints := make(meta.IntList, len(list))
		floats := make(meta.FloatList, len(list))
		isFloat := false
		for i, elem := range list {
			switch n := elem.(type) {
			case int:
				ints[i] = int64(n)
				floats[i] = float64(n)
			case int64:
				ints[i] = n
				floats[i] = float64(n)
			case float64:
				isFloat = true
				floats[i] = n
			default:
				return nil, fmt.Errorf("list[%d]: mixed element types", i)
			}
		}
		if isFloat {
			return floats, nil
		}
		return ints, nil

	default:
		return nil, fmt.Errorf("unsupported list element type %T", list[0])
	}
}
