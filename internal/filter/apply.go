package filter

import (
	"fmt"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/registry"
)

// Apply evaluates the filter against every result in the bank and
// returns the matching entity keys in sorted order. A predicate naming a
// score type the bank's registry has never seen is an error, since it is
// almost always a typo rather than an empty match.
func Apply(f Filter, b *registry.Bank) ([]string, error) {
	refs := make([]ident.ScoreTypeRef, len(f))
	for i, p := range f {
		ref, ok := b.Registry().ScoreTypeByName(p.Score)
		if !ok {
			return nil, fmt.Errorf("filter: unknown score type %q", p.Score)
		}
		refs[i] = ref
	}

	matched := make([]string, 0, b.Len())
	for _, key := range b.Keys() {
		r, _ := b.Lookup(key)
		if matches(f, refs, r) {
			matched = append(matched, key)
		}
	}
	return matched, nil
}

func matches(f Filter, refs []ident.ScoreTypeRef, r *ident.ScoredProcessingResult) bool {
	for i, p := range f {
		v, ok := r.Score(refs[i])
		if !ok || !p.Eval(v) {
			return false
		}
	}
	return true
}
