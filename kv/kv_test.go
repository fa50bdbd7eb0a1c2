package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "murmur.sqlite")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteGetMissing(t *testing.T) {
	s, _ := openTemp(t)
	v, ok, err := s.Get(context.Background(), "transcriptions")
	if err != nil {
		t.Fatal(err)
	}
	if ok || v != "" {
		t.Errorf("Get missing = (%q, %v), want empty, false", v, ok)
	}
}

func TestSQLiteSetOverwrites(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	for _, v := range []string{"[]", `[{"id":"a"}]`} {
		if err := s.Set(ctx, "transcriptions", v); err != nil {
			t.Fatalf("Set(%q): %v", v, err)
		}
	}
	v, ok, err := s.Get(ctx, "transcriptions")
	if err != nil || !ok {
		t.Fatalf("Get: %q %v %v", v, ok, err)
	}
	if v != `[{"id":"a"}]` {
		t.Errorf("Get = %q, want latest value", v)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	v, ok, err := s2.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("after reopen Get = (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}
}

func TestMemoryFailureInjection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	m.SetFailure(boom)
	if err := m.Set(ctx, "k", "v"); !errors.Is(err, boom) {
		t.Errorf("Set err = %v, want boom", err)
	}
	if m.Writes() != 0 {
		t.Errorf("Writes() = %d after failed Set", m.Writes())
	}

	m.SetFailure(nil)
	if err := m.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := m.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("Get = %q %v", v, ok)
	}

	m.GetErr = boom
	if _, _, err := m.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("Get err = %v, want boom", err)
	}
}
