package storage

import (
	"context"
	"fmt"
	"sync"

	"pdfbot/internal/document"
)

// Memory is a process-local Store. Saved records are cloned in and out.
type Memory struct {
	mu    sync.Mutex
	st    document.State
	saves int
	err   error
}

func NewMemory() *Memory {
	return &Memory{st: document.NewState()}
}

func (m *Memory) Load(context.Context) document.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Clone()
}

func (m *Memory) Save(_ context.Context, st document.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return fmt.Errorf("%w: %v", ErrStateSave, m.err)
	}
	m.st = st.Clone()
	m.saves++
	return nil
}

// Saves returns how many successful saves happened.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailSaves makes subsequent saves return err (nil restores normal behavior).
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }
