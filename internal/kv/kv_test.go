package kv

import (
	"errors"
	"testing"

	"github.com/distributed-docstore/docstore/internal/docerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("absent")
	if !errors.Is(err, docerr.ErrNotFound) {
		t.Fatalf("Get(absent) err = %v, want ErrNotFound", err)
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("a", []byte(`{"hello":"world"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"hello":"world"}` {
		t.Fatalf("Get(a) = %q", got)
	}
}

func TestDelIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Del("never-existed"); err != nil {
		t.Fatalf("Del on absent key returned error: %v", err)
	}
	if err := s.Put("b", []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Del("b"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := s.Del("b"); err != nil {
		t.Fatalf("second Del returned error: %v", err)
	}
	if _, err := s.Get("b"); !errors.Is(err, docerr.ErrNotFound) {
		t.Fatalf("Get after Del = %v, want ErrNotFound", err)
	}
}

func TestKeysOrderedAndLimited(t *testing.T) {
	s := newTestStore(t)
	for _, k := range []string{"c", "a", "b"} {
		if err := s.Put(k, []byte("v")); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}
	keys, err := s.Keys(2)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("Keys(2) = %v, want [a b]", keys)
	}
}
