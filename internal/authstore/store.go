// Package authstore holds the in-memory, read-mostly mapping from credential
// to principal used by the authentication middleware layer (spec.md §4.6
// item 2). Reload swaps the backing mapping atomically; in-flight requests
// continue to see the snapshot they started with (spec.md §5, §9 "Global
// state").
//
// The swap itself is a single atomic.Pointer store -- there is no
// third-party library candidate in the retrieval pack that does less than
// this for a plain credential map (see DESIGN.md for the per-dependency
// justification), and a stdlib atomic pointer swap is exactly what "swapped
// atomically" in spec.md §5 calls for.
package authstore

import "sync/atomic"

// Store is a read-mostly credential -> principal lookup.
type Store struct {
	snapshot atomic.Pointer[map[string]string]
}

// New creates a Store seeded with the given credential -> principal mapping.
func New(initial map[string]string) *Store {
	s := &Store{}
	s.Reload(initial)
	return s
}

// Reload atomically swaps the backing mapping. A Lookup already in progress
// keeps reading the snapshot it loaded before the swap.
func (s *Store) Reload(mapping map[string]string) {
	cp := make(map[string]string, len(mapping))
	for k, v := range mapping {
		cp[k] = v
	}
	s.snapshot.Store(&cp)
}

// Lookup resolves a credential to a principal. ok is false if the credential
// is not present in the current snapshot.
func (s *Store) Lookup(credential string) (principal string, ok bool) {
	m := s.snapshot.Load()
	if m == nil {
		return "", false
	}
	principal, ok = (*m)[credential]
	return principal, ok
}
