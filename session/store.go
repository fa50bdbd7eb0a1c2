package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/kv"
	"murmur/log"
)

// Key is the persistent-store key holding the serialized groups.
const Key = "transcriptions"

const persistTimeout = 5 * time.Second

var (
	ErrPersistence = errors.New("session: persistence")
	ErrClosed      = errors.New("session: store closed")
)

// Snapshot is a deep copy of the store state.
type Snapshot struct {
	Groups   []Group
	Selected *Group
}

type state struct {
	groups   []Group
	selected string
}

func (st *state) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range st.groups {
		if st.groups[i].ID == id {
			return i
		}
	}
	return -1
}

type Option func(*Store)

// WithIDs replaces the id generator.
func WithIDs(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithNotify registers a callback run after every state change. It is called
// from the store goroutine and must not call back into the store.
func WithNotify(fn func()) Option {
	return func(s *Store) { s.notify = fn }
}

// Store owns the group list. All reads and writes run one at a time on a
// single goroutine, so every update sees the state committed by the previous one.
type Store struct {
	backend kv.Store
	newID   func() string
	notify  func()

	ops       chan func(*state)
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewStore(backend kv.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		newID:   uuid.NewString,
		ops:     make(chan func(*state)),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.stopped)
	st := &state{}
	for {
		select {
		case op := <-s.ops:
			op(st)
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the store goroutine and waits for it.
func (s *Store) do(fn func(*state)) error {
	done := make(chan struct{})
	select {
	case s.ops <- func(st *state) { defer close(done); fn(st) }:
	case <-s.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// Close stops the store goroutine. Later calls are no-ops.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.stopped
}

// Restore loads persisted groups, dropping empty ones, and then seeds a fresh
// selected group. Read or decode failures are logged and the store starts
// empty; the returned error reports them.
func (s *Store) Restore(ctx context.Context) (string, error) {
	var restoreErr error
	var id string
	err := s.do(func(st *state) {
		groups, err := s.load(ctx)
		if err != nil {
			restoreErr = err
			log.Errorf("session restore: %v", err)
		}
		st.groups = append(st.groups, groups...)
		log.Infof("session restore: %d groups", len(groups))
		id = s.create(st)
	})
	if err != nil {
		return "", err
	}
	return id, restoreErr
}

func (s *Store) load(ctx context.Context) ([]Group, error) {
	raw, ok, err := s.backend.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrPersistence, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	groups, err := Decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return groups, nil
}

// CreateGroup prepends a new empty group, selects it and returns its id.
func (s *Store) CreateGroup() string {
	var id string
	s.do(func(st *state) { id = s.create(st) })
	return id
}

func (s *Store) create(st *state) string {
	g := Group{ID: s.newID(), Utterances: []Utterance{}}
	st.groups = append([]Group{g}, st.groups...)
	st.selected = g.ID
	s.changed(st)
	return g.ID
}

// Select makes the group with id the selected one. Unknown ids are ignored.
func (s *Store) Select(id string) bool {
	var ok bool
	s.do(func(st *state) {
		if st.index(id) < 0 {
			return
		}
		ok = true
		if st.selected == id {
			return
		}
		st.selected = id
		s.changed(st)
	})
	return ok
}

// MutateSelected applies fn to the selected group and writes the result back.
// fn reports whether it changed anything; it runs on the store goroutine and
// must not call the store.
func (s *Store) MutateSelected(fn func(Group) (Group, bool)) bool {
	var applied bool
	s.do(func(st *state) {
		i := st.index(st.selected)
		if i < 0 {
			return
		}
		next, changed := fn(st.groups[i].Clone())
		if !changed {
			return
		}
		next.ID = st.groups[i].ID
		st.groups[i] = next
		applied = true
		s.changed(st)
	})
	return applied
}

// Snapshot returns a deep copy of groups and the selected group.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	s.do(func(st *state) {
		snap.Groups = cloneAll(st.groups)
		if i := st.index(st.selected); i >= 0 {
			g := st.groups[i].Clone()
			snap.Selected = &g
		}
	})
	return snap
}

// changed persists the full group list and notifies observers. A failed write
// is logged and the in-memory state is kept.
func (s *Store) changed(st *state) {
	if err := s.persist(st.groups); err != nil {
		log.Persist(len(st.groups), 0, err)
	}
	if s.notify != nil {
		s.notify()
	}
}

func (s *Store) persist(groups []Group) error {
	data, err := Encode(groups)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.backend.Set(ctx, Key, string(data)); err != nil {
		return fmt.Errorf("%w: write: %v", ErrPersistence, err)
	}
	log.Persist(len(groups), len(data), nil)
	return nil
}
