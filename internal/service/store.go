package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rcook/rust-tool-action/internal/certstore"
	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/logging"
)

// OpenStore opens the transient store cfg selects.
func OpenStore(cfg config.Store) (certstore.Store, error) {
	return certstore.Open(cfg.Backend, cfg.Dir)
}

// recoverLeftovers purges entries an earlier crashed run left behind. It
// only logs: a failed recovery must not block the current operation.
func recoverLeftovers(ctx context.Context, store certstore.Store, journalDir string, logger logging.Logger) {
	if journalDir == "" {
		return
	}
	res, err := certstore.Recover(ctx, store, journalDir, logger)
	if err != nil {
		logger.Warn("recovery of unfinished journals incomplete", "dir", journalDir, "error", err)
	}
	if res != nil && len(res.Purged) > 0 {
		logger.Info("purged certificates left by an earlier run", "count", len(res.Purged))
	}
}

// StoreEntry is one certificate held by the transient store.
type StoreEntry struct {
	Thumbprint string    `json:"thumbprint"`
	Subject    string    `json:"subject"`
	NotAfter   time.Time `json:"not_after"`
	AddedAt    time.Time `json:"added_at"`
}

// StoreService lists and purges the transient store.
type StoreService struct {
	store      certstore.Store
	journalDir string
	logger     logging.Logger
}

// NewStoreService creates a store service.
func NewStoreService(store certstore.Store, journalDir string, logger logging.Logger) *StoreService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StoreService{store: store, journalDir: journalDir, logger: logger}
}

// Name identifies the backing store.
func (s *StoreService) Name() string {
	return s.store.Name()
}

// List returns every entry in the store.
func (s *StoreService) List(ctx context.Context) ([]StoreEntry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.store.Name(), err)
	}
	out := make([]StoreEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, StoreEntry{
			Thumbprint: e.Thumbprint,
			Subject:    e.Subject,
			NotAfter:   e.NotAfter,
			AddedAt:    e.AddedAt,
		})
	}
	return out, nil
}

// PurgeResult reports what Purge removed.
type PurgeResult struct {
	Journals int      `json:"journals"`
	Purged   []string `json:"purged"`
}

// Purge removes every entry an unfinished journal still records.
func (s *StoreService) Purge(ctx context.Context) (*PurgeResult, error) {
	if s.journalDir == "" {
		return nil, errors.New("no journal directory configured; set codesign.store.journal_dir")
	}
	res, err := certstore.Recover(ctx, s.store, s.journalDir, s.logger)
	out := &PurgeResult{}
	if res != nil {
		out.Journals = res.Journals
		out.Purged = res.Purged
	}
	if err != nil {
		return out, fmt.Errorf("purge %s: %w", s.store.Name(), err)
	}
	return out, nil
}
