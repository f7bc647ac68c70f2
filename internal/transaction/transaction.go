// Package transaction provides the lock and journal that keep transient
// certificate store entries from outliving the run that created them.
package transaction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// State represents the current state of a journal entry.
type State string

const (
	StatePending   State = "pending"
	StateStaged    State = "staged"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Operation names the command that opened a journal.
type Operation string

const (
	OperationCert Operation = "cert"
	OperationSign Operation = "sign"
)

const journalPrefix = "txn-"

// Journal records every identity a run puts into the transient store.
// An entry is completed once it has been purged again.
type Journal struct {
	Version   int        `json:"version"`
	ID        string     `json:"id"`
	Operation Operation  `json:"operation"`
	Timestamp time.Time  `json:"timestamp"`
	Entries   []EntryTxn `json:"entries"`
}

// EntryTxn is the journal state of one store entry.
type EntryTxn struct {
	Thumbprint string `json:"thumbprint"`
	Subject    string `json:"subject"`
	State      State  `json:"state"`
	LastError  string `json:"last_error,omitempty"`
}

// New creates an empty journal for op.
func New(op Operation) *Journal {
	return &Journal{
		Version:   1,
		ID:        uuid.New().String(),
		Operation: op,
		Timestamp: time.Now().UTC(),
		Entries:   []EntryTxn{},
	}
}

// FileName is the journal's file name inside its directory.
func (j *Journal) FileName() string {
	return fmt.Sprintf("%s%s-%s.json", journalPrefix, j.Operation, j.ID)
}

// Track adds a pending entry. Tracking the same thumbprint twice is a no-op.
func (j *Journal) Track(thumbprint, subject string) {
	for _, e := range j.Entries {
		if e.Thumbprint == thumbprint {
			return
		}
	}
	j.Entries = append(j.Entries, EntryTxn{
		Thumbprint: thumbprint,
		Subject:    subject,
		State:      StatePending,
	})
}

// UpdateState updates the state of the entry for thumbprint.
func (j *Journal) UpdateState(thumbprint string, state State, err error) {
	for i := range j.Entries {
		if j.Entries[i].Thumbprint == thumbprint {
			j.Entries[i].State = state
			if err != nil {
				j.Entries[i].LastError = err.Error()
			} else {
				j.Entries[i].LastError = ""
			}
			break
		}
	}
}

// Outstanding returns entries that may still be present in the store.
func (j *Journal) Outstanding() []EntryTxn {
	var out []EntryTxn
	for _, e := range j.Entries {
		if e.State != StateCompleted {
			out = append(out, e)
		}
	}
	return out
}

// AllCompleted returns true if every tracked entry has been purged.
func (j *Journal) AllCompleted() bool {
	for _, e := range j.Entries {
		if e.State != StateCompleted {
			return false
		}
	}
	return true
}

// Save writes the journal to dir atomically.
// Uses write-then-rename pattern for atomicity.
func (j *Journal) Save(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	finalPath := filepath.Join(dir, j.FileName())
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary journal file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename journal file: %w", err)
	}

	// Sync directory for durability
	df, err := os.Open(dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync directory: %w", syncErr)
		}
		df.Close()
	}

	return nil
}

// Discard deletes the journal file from dir.
func (j *Journal) Discard(dir string) error {
	err := os.Remove(filepath.Join(dir, j.FileName()))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove journal file: %w", err)
	}
	return nil
}

// Load reads a journal from disk.
func Load(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal journal: %w", err)
	}

	return &j, nil
}

// LoadAll returns every journal in dir, oldest first. Unreadable files are
// returned as errors alongside the journals that did load.
func LoadAll(dir string) ([]*Journal, []error) {
	matches, err := filepath.Glob(filepath.Join(dir, journalPrefix+"*.json"))
	if err != nil {
		return nil, []error{fmt.Errorf("list journals: %w", err)}
	}

	var (
		journals []*Journal
		errs     []error
	)
	for _, m := range matches {
		j, err := Load(m)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(m), err))
			continue
		}
		journals = append(journals, j)
	}

	sort.Slice(journals, func(a, b int) bool {
		return journals[a].Timestamp.Before(journals[b].Timestamp)
	})

	return journals, errs
}
