package transcript

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"murmur/kv"
	"murmur/session"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	s := session.NewStore(kv.NewMemory())
	t.Cleanup(s.Close)
	return s
}

func seq() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("u%d", n)
	}
}

func selected(t *testing.T, s *session.Store) session.Group {
	t.Helper()
	snap := s.Snapshot()
	if snap.Selected == nil {
		t.Fatal("nothing selected")
	}
	return *snap.Selected
}

func TestMerge(t *testing.T) {
	tests := []struct {
		prev, frag, want string
	}{
		{"", "hello", "hello"},
		{"hello", "world", "hello world"},
		{"hello", "  world  ", "hello world"},
		{"hello", "", "hello"},
		{"hello", "   ", "hello"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := Merge(tt.prev, tt.frag); got != tt.want {
			t.Errorf("Merge(%q, %q) = %q, want %q", tt.prev, tt.frag, got, tt.want)
		}
	}
}

func TestSingleFragment(t *testing.T) {
	s := newStore(t)
	s.CreateGroup()
	a := New(s, WithIDs(seq()))

	if id := a.OnArmed(); id != "u1" {
		t.Fatalf("OnArmed() = %q, want u1", id)
	}
	if !a.OnFragment("hello") {
		t.Fatal("fragment not applied")
	}
	g := selected(t, s)
	if len(g.Utterances) != 1 || g.Utterances[0].Text != "hello" {
		t.Errorf("utterances = %+v, want one with %q", g.Utterances, "hello")
	}
}

func TestMultipleFragments(t *testing.T) {
	s := newStore(t)
	s.CreateGroup()
	a := New(s)
	a.OnArmed()

	words := []string{"the", "quick", " brown ", "fox"}
	for _, w := range words {
		a.OnFragment(w)
	}
	got := selected(t, s).Utterances[0].Text
	if got != "the quick brown fox" {
		t.Errorf("text = %q", got)
	}
	if strings.HasPrefix(got, " ") || strings.Contains(got, "  ") {
		t.Errorf("bad spacing in %q", got)
	}
}

func TestFragmentsIgnored(t *testing.T) {
	t.Run("nothing selected", func(t *testing.T) {
		s := newStore(t)
		a := New(s)
		if a.OnArmed() != "" {
			t.Error("OnArmed with no selection returned an id")
		}
		if a.OnFragment("hello") {
			t.Error("fragment applied with no selection")
		}
		if len(s.Snapshot().Groups) != 0 {
			t.Error("store changed")
		}
	})
	t.Run("before arm", func(t *testing.T) {
		s := newStore(t)
		s.CreateGroup()
		a := New(s)
		if a.OnFragment("hello") {
			t.Error("fragment applied to a group with no utterances")
		}
		if n := len(selected(t, s).Utterances); n != 0 {
			t.Errorf("utterances = %d, want 0", n)
		}
	})
	t.Run("empty text", func(t *testing.T) {
		s := newStore(t)
		s.CreateGroup()
		a := New(s)
		a.OnArmed()
		for _, frag := range []string{"", "  ", "\n\t"} {
			if a.OnFragment(frag) {
				t.Errorf("OnFragment(%q) applied", frag)
			}
		}
		if txt := selected(t, s).Utterances[0].Text; txt != "" {
			t.Errorf("text = %q, want empty", txt)
		}
	})
}

func TestOnlyLastUtteranceGrows(t *testing.T) {
	s := newStore(t)
	s.CreateGroup()
	a := New(s, WithIDs(seq()))

	a.OnArmed()
	a.OnFragment("first take")
	a.OnArmed()
	a.OnFragment("second")
	a.OnFragment("take")

	g := selected(t, s)
	if len(g.Utterances) != 2 {
		t.Fatalf("utterances = %+v", g.Utterances)
	}
	if g.Utterances[0] != (session.Utterance{ID: "u1", Text: "first take"}) {
		t.Errorf("first = %+v", g.Utterances[0])
	}
	if g.Utterances[1] != (session.Utterance{ID: "u2", Text: "second take"}) {
		t.Errorf("second = %+v", g.Utterances[1])
	}
}

func TestFragmentsFollowSelection(t *testing.T) {
	s := newStore(t)
	a := New(s)

	older := s.CreateGroup()
	a.OnArmed()
	a.OnFragment("in older")

	s.CreateGroup()
	a.OnArmed()
	a.OnFragment("in newer")

	s.Select(older)
	a.OnFragment("again")

	for _, g := range s.Snapshot().Groups {
		text := g.Utterances[len(g.Utterances)-1].Text
		if g.ID == older && text != "in older again" {
			t.Errorf("older = %q", text)
		}
		if g.ID != older && text != "in newer" {
			t.Errorf("newer = %q", text)
		}
	}
}

func TestConcurrentFragmentsKeepEveryWord(t *testing.T) {
	s := newStore(t)
	s.CreateGroup()
	a := New(s)
	a.OnArmed()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.OnFragment(fmt.Sprintf("w%d", i))
		}(i)
	}
	wg.Wait()

	words := strings.Fields(selected(t, s).Utterances[0].Text)
	if len(words) != n {
		t.Fatalf("got %d words, want %d", len(words), n)
	}
	seen := make(map[string]bool)
	for _, w := range words {
		if seen[w] {
			t.Errorf("duplicate %q", w)
		}
		seen[w] = true
	}
}
