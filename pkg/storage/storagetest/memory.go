// Package storagetest provides an in-memory storage.EventStore for tests.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"githubevents/pkg/model"
	"githubevents/pkg/storage"
)

// MemoryStore keeps events in insertion order. Setting one of the *Err fields
// makes the matching operation fail.
type MemoryStore struct {
	mu     sync.Mutex
	events []model.Event
	nextID int
	closed bool

	InsertErr error
	ListErr   error
	CountErr  error
	PingErr   error
}

var _ storage.EventStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertEvent(_ context.Context, event model.Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return "", m.InsertErr
	}
	m.nextID++
	event.ID = fmt.Sprintf("evt-%d", m.nextID)
	m.events = append(m.events, event)
	return event.ID, nil
}

func (m *MemoryStore) ListEvents(_ context.Context, limit int) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	out := make([]model.Event, len(m.events))
	copy(out, m.events)
	// Reverse first so that equal timestamps come back newest insert first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountEvents(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return int64(len(m.events)), nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns a copy of everything stored, in insertion order.
func (m *MemoryStore) Events() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Closed reports whether Close was called.
func (m *MemoryStore) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
