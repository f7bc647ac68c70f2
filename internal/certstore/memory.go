package certstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rcook/rust-tool-action/internal/credential"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Name() string { return BackendMemory }

func (m *MemoryStore) Add(ctx context.Context, id *credential.Identity) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validIdentity(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := newEntry(id, m.now())
	if _, ok := m.entries[e.Thumbprint]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, e.Thumbprint)
	}
	m.entries[e.Thumbprint] = e

	cp := *e
	return &cp, nil
}

func (m *MemoryStore) Get(ctx context.Context, thumbprint string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[thumbprint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, thumbprint)
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) Remove(ctx context.Context, thumbprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[thumbprint]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, thumbprint)
	}
	delete(m.entries, thumbprint)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	sortEntries(out)
	return out, nil
}
