package registry

import (
	"fmt"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
)

// Snapshot returns the bank's canonical export: every result with its
// application history and metadata, refs resolved to names, encoded as
// canonical JSON. Equal bank content always produces identical bytes,
// which is what golden tests and bank digests compare.
func (b *Bank) Snapshot() ([]byte, error) {
	results := make(map[string]any, len(b.results))
	for _, key := range b.Keys() {
		obj, err := b.resultObject(b.results[key])
		if err != nil {
			return nil, fmt.Errorf("result %q: %w", key, err)
		}
		results[key] = obj
	}
	doc := map[string]any{
		"schema_version": int64(ident.SchemaVersion),
		"results":        results,
	}
	return ident.MarshalCanonical(doc)
}

// Digest returns the content digest of the whole bank's snapshot.
func (b *Bank) Digest() (string, error) {
	payload, err := b.Snapshot()
	if err != nil {
		return "", err
	}
	return ident.DigestHex(ident.DomainBank, payload), nil
}

// ResultDigest returns the content digest of one result's canonical
// form. The store records it at save time; verification recomputes it
// after load.
func (b *Bank) ResultDigest(key string) (string, error) {
	r, ok := b.Lookup(key)
	if !ok {
		return "", unknownNameError(key, "no result for entity")
	}
	obj, err := b.resultObject(r)
	if err != nil {
		return "", fmt.Errorf("result %q: %w", key, err)
	}
	payload, err := ident.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("result %q: %w", key, err)
	}
	return ident.DigestHex(ident.DomainResult, payload), nil
}

func (b *Bank) resultObject(r *ident.ScoredProcessingResult) (map[string]any, error) {
	ledger := r.Steps()
	history := make([]any, 0, ledger.Len())
	for i := 0; i < ledger.Len(); i++ {
		rec := ledger.At(i)
		entry := make(map[string]any, 2)

		if rec.Step == ident.NoStep {
			entry["step"] = nil
		} else {
			step, err := b.reg.Step(rec.Step)
			if err != nil {
				return nil, err
			}
			identity, err := b.reg.stepIdentity(step)
			if err != nil {
				return nil, err
			}
			entry["step"] = map[string]any{
				"software":     identity.Software,
				"version":      identity.Version,
				"input_files":  identity.InputFiles,
				"completed_at": identity.CompletedAt,
				"actions":      identity.Actions,
			}
		}

		scores := make(map[string]any, len(rec.Scores))
		for t, v := range rec.Scores {
			st, err := b.reg.ScoreType(t)
			if err != nil {
				return nil, err
			}
			scores[st.Name] = v
		}
		entry["scores"] = scores
		history = append(history, entry)
	}

	obj := map[string]any{"history": history}

	if keys := r.MetaKeys(); len(keys) > 0 {
		metaObj := make(map[string]any, len(keys))
		for _, mk := range keys {
			name, ok := b.reg.MetaKeys().Name(mk)
			if !ok {
				return nil, unknownRefError("meta key %d outside the bank's registry", mk)
			}
			v, _ := r.MetaValue(mk)
			metaObj[name] = metaValueTree(v)
		}
		obj["meta"] = metaObj
	}

	return obj, nil
}

// metaValueTree converts a side-table value into the canonical encoder's
// input shapes.
func metaValueTree(v meta.Value) any {
	switch val := v.(type) {
	case meta.String:
		return string(val)
	case meta.Int:
		return int64(val)
	case meta.Float:
		return float64(val)
	case meta.StringList:
		return []string(val)
	case meta.IntList:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = x
		}
		return out
	case meta.FloatList:
		return []float64(val)
	default:
		return nil
	}
}
