// Package certstore holds identities while a signing operation needs them.
//
// A Store is always supplied by the caller; nothing in this package keeps
// global state. Identities are staged through a Lease whose Release removes
// them again, and an optional journal lets a later run purge entries left
// behind by a crash.
package certstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rcook/rust-tool-action/internal/credential"
)

var (
	ErrStoreUnavailable = errors.New("certificate store unavailable")
	ErrNotFound         = errors.New("certificate not found in store")
	ErrAlreadyExists    = errors.New("certificate already in store")
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendDir    = "dir"
)

// Entry is an identity held by a store.
type Entry struct {
	Thumbprint string
	Subject    string
	NotAfter   time.Time
	AddedAt    time.Time
	Identity   *credential.Identity
}

func newEntry(id *credential.Identity, now time.Time) *Entry {
	return &Entry{
		Thumbprint: id.Thumbprint(),
		Subject:    id.Subject(),
		NotAfter:   id.Certificate.NotAfter,
		AddedAt:    now.UTC(),
		Identity:   id,
	}
}

// Store is the capability set a certificate store backend provides.
type Store interface {
	// Name identifies the backend in messages.
	Name() string
	// Add stores id and returns the new entry.
	Add(ctx context.Context, id *credential.Identity) (*Entry, error)
	// Get returns the entry with the given thumbprint or ErrNotFound.
	Get(ctx context.Context, thumbprint string) (*Entry, error)
	// Remove deletes the entry or returns ErrNotFound.
	Remove(ctx context.Context, thumbprint string) error
	// List returns all entries ordered by thumbprint.
	List(ctx context.Context) ([]Entry, error)
}

// Open returns the backend named by backend. dir is used by BackendDir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendDir:
		return NewDirStore(dir)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrStoreUnavailable, backend)
	}
}

// FindBySubject returns every entry whose subject common name equals subject.
func FindBySubject(ctx context.Context, s Store, subject string) ([]Entry, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Thumbprint < entries[j].Thumbprint
	})
}

func validIdentity(id *credential.Identity) error {
	if id == nil || id.Certificate == nil || id.PrivateKey == nil {
		return errors.New("identity is incomplete")
	}
	return nil
}
