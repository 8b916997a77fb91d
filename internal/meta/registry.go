package meta

import (
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Key identifies an interned attribute name. Keys are issued by a Registry
// starting at 1; the zero value never names an entry.
type Key uint32

// Registry interns attribute names and issues stable Keys for them.
// Names are NFC-normalized before interning, so visually identical names
// with different Unicode compositions map to the same Key.
//
// A Registry is safe for concurrent use. Keys are only meaningful within
// the Registry that issued them.
type Registry struct {
	mu     sync.RWMutex
	names  []string // index = Key - 1
	byName map[string]Key
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Key)}
}

// Register returns the Key for name, interning it on first use.
func (r *Registry) Register(name string) Key {
	name = norm.NFC.String(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if k, ok := r.byName[name]; ok {
		return k
	}
	r.names = append(r.names, name)
	k := Key(len(r.names))
	r.byName[name] = k
	return k
}

// Lookup returns the Key for name without interning it.
func (r *Registry) Lookup(name string) (Key, bool) {
	name = norm.NFC.String(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.byName[name]
	return k, ok
}

// Name returns the interned name for k.
func (r *Registry) Name(k Key) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if k == 0 || int(k) > len(r.names) {
		return "", false
	}
	return r.names[k-1], true
}

// Len returns the number of interned names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
