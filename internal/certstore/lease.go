package certstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/transaction"
)

// releaseTimeout bounds how long Release may spend purging an entry. It
// runs on a context detached from the caller's so that a cancelled or
// expired operation still cleans up.
const releaseTimeout = 30 * time.Second

// StageOptions configures Stage.
type StageOptions struct {
	// JournalDir, when set, records the entry before it is added so that
	// Recover can purge it if this process dies before Release.
	JournalDir string
	Operation  transaction.Operation
	Logger     logging.Logger
}

// Lease is a store entry that must be released. Release is idempotent;
// callers defer it immediately after a successful Stage.
type Lease struct {
	mu       sync.Mutex
	store    Store
	entry    *Entry
	journal  *transaction.Journal
	opts     StageOptions
	released bool
}

// Stage adds id to store and returns the lease guarding it.
func Stage(ctx context.Context, store Store, id *credential.Identity, opts StageOptions) (*Lease, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Operation == "" {
		opts.Operation = transaction.OperationSign
	}
	if err := validIdentity(id); err != nil {
		return nil, err
	}

	var journal *transaction.Journal
	if opts.JournalDir != "" {
		journal = transaction.New(opts.Operation)
		journal.Track(id.Thumbprint(), id.Subject())
		if err := journal.Save(opts.JournalDir); err != nil {
			return nil, fmt.Errorf("%w: record journal: %v", ErrStoreUnavailable, err)
		}
	}

	entry, err := store.Add(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Someone else owns that entry; leave it alone.
			if journal != nil {
				journal.Discard(opts.JournalDir)
			}
			return nil, fmt.Errorf("stage certificate in %s: %w", store.Name(), err)
		}
		// The add may have partially happened; purge whatever is there.
		l := &Lease{store: store, entry: newEntry(id, time.Now()), journal: journal, opts: opts}
		if relErr := l.Release(ctx); relErr != nil {
			err = multierror.Append(err, relErr)
		}
		return nil, fmt.Errorf("stage certificate in %s: %w", store.Name(), err)
	}

	if journal != nil {
		journal.UpdateState(entry.Thumbprint, transaction.StateStaged, nil)
		if err := journal.Save(opts.JournalDir); err != nil {
			opts.Logger.Warn("failed to update journal", "journal", journal.ID, "error", err)
		}
	}

	opts.Logger.Debug("staged certificate", "store", store.Name(), "thumbprint", entry.Thumbprint, "subject", entry.Subject)

	return &Lease{store: store, entry: entry, journal: journal, opts: opts}, nil
}

// Entry returns the staged entry.
func (l *Lease) Entry() *Entry {
	return l.entry
}

// Identity returns the staged identity as read back from the store.
func (l *Lease) Identity(ctx context.Context) (*credential.Identity, error) {
	e, err := l.store.Get(ctx, l.entry.Thumbprint)
	if err != nil {
		return nil, err
	}
	return e.Identity, nil
}

// Release removes the entry from the store. A missing entry counts as
// removed. Calls after the first successful one return nil.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	err := l.store.Remove(rctx, l.entry.Thumbprint)
	if err != nil && !errors.Is(err, ErrNotFound) {
		if l.journal != nil {
			l.journal.UpdateState(l.entry.Thumbprint, transaction.StateFailed, err)
			if saveErr := l.journal.Save(l.opts.JournalDir); saveErr != nil {
				err = multierror.Append(err, saveErr)
			}
		}
		return fmt.Errorf("purge certificate %s from %s: %w", l.entry.Thumbprint, l.store.Name(), err)
	}

	l.released = true
	l.opts.Logger.Debug("purged certificate", "store", l.store.Name(), "thumbprint", l.entry.Thumbprint)

	if l.journal != nil {
		l.journal.UpdateState(l.entry.Thumbprint, transaction.StateCompleted, nil)
		if err := l.journal.Discard(l.opts.JournalDir); err != nil {
			l.opts.Logger.Warn("failed to remove journal", "journal", l.journal.ID, "error", err)
		}
	}

	return nil
}
