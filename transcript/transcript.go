// Package transcript appends recognized text to the utterance being recorded.
package transcript

import (
	"strings"

	"github.com/google/uuid"

	"murmur/log"
	"murmur/session"
)

// Mutator applies a read-modify-write to the selected group. The store runs
// these one at a time against the latest committed state.
type Mutator interface {
	MutateSelected(fn func(session.Group) (session.Group, bool)) bool
}

type Option func(*Assembler)

// WithIDs replaces the utterance id generator.
func WithIDs(fn func() string) Option {
	return func(a *Assembler) { a.newID = fn }
}

type Assembler struct {
	store Mutator
	newID func() string
}

func New(store Mutator, opts ...Option) *Assembler {
	a := &Assembler{store: store, newID: uuid.NewString}
	for _, o := range opts {
		o(a)
	}
	return a
}

// OnArmed starts a new empty utterance in the selected group and returns its
// id, or "" when nothing is selected.
func (a *Assembler) OnArmed() string {
	id := a.newID()
	ok := a.store.MutateSelected(func(g session.Group) (session.Group, bool) {
		g.Utterances = append(g.Utterances, session.Utterance{ID: id})
		return g, true
	})
	if !ok {
		log.Warn("recording started with no group selected")
		return ""
	}
	return id
}

// OnFragment appends text to the last utterance of the selected group. It
// reports whether anything changed; empty text, no selection and a group with
// no utterances are all ignored.
func (a *Assembler) OnFragment(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	var groupID, uttID string
	ok := a.store.MutateSelected(func(g session.Group) (session.Group, bool) {
		n := len(g.Utterances)
		if n == 0 {
			return g, false
		}
		last := &g.Utterances[n-1]
		last.Text = Merge(last.Text, text)
		groupID, uttID = g.ID, last.ID
		return g, true
	})
	if ok {
		log.Fragment(groupID, uttID, text)
	}
	return ok
}

// Merge joins a fragment onto existing text with exactly one space.
func Merge(prev, frag string) string {
	frag = strings.TrimSpace(frag)
	if frag == "" {
		return prev
	}
	if prev == "" {
		return frag
	}
	return prev + " " + frag
}
