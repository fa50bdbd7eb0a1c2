package kv

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Failures can be injected for tests.
type Memory struct {
	mu     sync.Mutex
	data   map[string]string
	writes int
	GetErr error
	SetErr error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = value
	m.writes++
	return nil
}

// SetFailure replaces the injected write error.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	m.SetErr = err
	m.mu.Unlock()
}

// Writes returns how many successful Set calls happened.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Close() error { return nil }
