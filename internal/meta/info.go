package meta

import "slices"

// Info is the side-table itself: a mapping from interned Key to Value.
// The zero value is ready to use.
//
// Info carries no locking. A result and its side-table are mutated under
// the caller's exclusive access, same as the ledger they belong to.
type Info struct {
	m map[Key]Value
}

// Value returns the entry for k. The boolean reports presence; a present
// entry is never nil.
func (in *Info) Value(k Key) (Value, bool) {
	v, ok := in.m[k]
	return v, ok
}

// Set inserts or overwrites the entry for k.
func (in *Info) Set(k Key, v Value) {
	if in.m == nil {
		in.m = make(map[Key]Value)
	}
	in.m[k] = v
}

// Keys returns all present keys in ascending order.
func (in *Info) Keys() []Key {
	keys := make([]Key, 0, len(in.m))
	for k := range in.m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of entries.
func (in *Info) Len() int {
	return len(in.m)
}

// Clone returns a deep copy: list values get fresh backing arrays.
func (in *Info) Clone() Info {
	if len(in.m) == 0 {
		return Info{}
	}
	m := make(map[Key]Value, len(in.m))
	for k, v := range in.m {
		m[k] = CloneValue(v)
	}
	return Info{m: m}
}

// Equal reports whether two tables hold the same keys and values.
func (in *Info) Equal(other *Info) bool {
	if len(in.m) != len(other.m) {
		return false
	}
	for k, v := range in.m {
		ov, ok := other.m[k]
		if !ok || !EqualValues(v, ov) {
			return false
		}
	}
	return true
}
