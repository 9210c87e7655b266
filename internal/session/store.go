package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no session exists under an id.
var ErrNotFound = errors.New("session not found")

// Store keeps editing sessions between requests. Session ids are opaque
// strings: the form id for existing forms, a minted key for forms that have
// not been saved yet.
type Store interface {
	Read(ctx context.Context, id string) (*Snapshot, error)
	Write(ctx context.Context, id string, s *Snapshot) error
	Clear(ctx context.Context, id string) error

	// Update reads the session (an empty snapshot if there is none), applies
	// fn and writes the result, without losing concurrent updates. fn may
	// run more than once.
	Update(ctx context.Context, id string, fn func(*Snapshot) error) error
}

// MemoryStore is an in-process Store.
//
// Thread-safety: safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Snapshot)}
}

func (m *MemoryStore) Read(_ context.Context, id string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) Write(_ context.Context, id string, s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s.clone()
	return nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Snapshot) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{}
	if cur, ok := m.sessions[id]; ok {
		s = cur.clone()
	}
	if err := fn(s); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.sessions[id] = s.clone()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// clone copies the entry lists so callers cannot mutate stored state. Props
// maps are shared; reconciliation copies before it rewrites them.
func (s *Snapshot) clone() *Snapshot {
	return &Snapshot{
		Fields:         append([]Entry(nil), s.Fields...),
		Actions:        append([]Entry(nil), s.Actions...),
		DeletedFields:  append([]string(nil), s.DeletedFields...),
		DeletedActions: append([]string(nil), s.DeletedActions...),
	}
}
