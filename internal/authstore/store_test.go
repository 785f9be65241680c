package authstore

import "testing"

func TestLookup(t *testing.T) {
	s := New(map[string]string{"k1": "p1"})

	if p, ok := s.Lookup("k1"); !ok || p != "p1" {
		t.Fatalf("expected (p1, true), got (%q, %v)", p, ok)
	}
	if _, ok := s.Lookup("missing"); ok {
		t.Fatal("expected missing credential to miss")
	}
}

func TestReload_SwapsAtomically(t *testing.T) {
	s := New(map[string]string{"k1": "p1"})

	s.Reload(map[string]string{"k2": "p2"})

	if _, ok := s.Lookup("k1"); ok {
		t.Fatal("expected old credential to be gone after reload")
	}
	if p, ok := s.Lookup("k2"); !ok || p != "p2" {
		t.Fatalf("expected (p2, true), got (%q, %v)", p, ok)
	}
}

func TestReload_MutatingInputDoesNotAffectStore(t *testing.T) {
	src := map[string]string{"k1": "p1"}
	s := New(src)
	src["k1"] = "mutated"

	if p, _ := s.Lookup("k1"); p != "p1" {
		t.Fatalf("expected store to hold its own copy, got %q", p)
	}
}
