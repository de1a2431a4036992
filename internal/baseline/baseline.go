// Package baseline persists the set of fingerprints an operator has
// accepted as known.
//
// The file is a JSON array ordered by fingerprint so that it diffs cleanly
// in version control. Entries are never removed automatically.
package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/sieve/internal/fingerprint"
)

// DefaultFile is the baseline file name in the working directory.
const DefaultFile = ".sieve.baseline.json"

var (
	// ErrCorrupt indicates the baseline file exists but is not valid.
	ErrCorrupt = errors.New("baseline file is corrupt")

	// ErrInvalidFingerprint indicates an entry with a malformed fingerprint.
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
)

// Entry is one accepted finding.
type Entry struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	AddedAt     time.Time               `json:"added_at"`
	Note        string                  `json:"note"`
	RuleID      string                  `json:"rule_id,omitempty"`
	FilePath    string                  `json:"file_path,omitempty"`
}

// Subject is the part of a finding the store records alongside its
// fingerprint.
type Subject interface {
	ID() fingerprint.Fingerprint
	Rule() string
	Path() string
}

// Store is an ordered set of entries keyed by fingerprint. It is safe for
// concurrent reads; callers mutate it only between scan passes.
type Store struct {
	mu      sync.RWMutex
	entries map[fingerprint.Fingerprint]Entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used by Add.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[fingerprint.Fingerprint]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads a baseline file. A missing file yields an empty store. A file
// that cannot be decoded returns an error wrapping ErrCorrupt.
func Load(path string, opts ...Option) (*Store, error) {
	s := New(opts...)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading baseline %s: %w", path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	for i, e := range entries {
		if !e.Fingerprint.Valid() {
			return nil, fmt.Errorf("%w: %s: entry %d: %w", ErrCorrupt, path, i, ErrInvalidFingerprint)
		}
		if _, dup := s.entries[e.Fingerprint]; dup {
			continue
		}
		s.entries[e.Fingerprint] = e
	}
	return s, nil
}

// Contains reports whether fp is baselined.
func (s *Store) Contains(fp fingerprint.Fingerprint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[fp]
	return ok
}

// Add records fp. It is idempotent and reports whether fp was new.
func (s *Store) Add(fp fingerprint.Fingerprint, note string) bool {
	return s.add(Entry{Fingerprint: fp, Note: note})
}

// AddFinding records a finding together with its rule and path.
func (s *Store) AddFinding(f Subject, note string) bool {
	return s.add(Entry{
		Fingerprint: f.ID(),
		Note:        note,
		RuleID:      f.Rule(),
		FilePath:    f.Path(),
	})
}

func (s *Store) add(e Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Fingerprint]; ok {
		return false
	}
	e.AddedAt = s.now().UTC()
	s.entries[e.Fingerprint] = e
	return true
}

// Remove deletes fp and reports whether it was present. Removal is only ever
// an explicit operator action.
func (s *Store) Remove(fp fingerprint.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[fp]; !ok {
		return false
	}
	delete(s.entries, fp)
	return true
}

// Lookup returns the entry for fp.
func (s *Store) Lookup(fp fingerprint.Fingerprint) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[fp]
	return e, ok
}

// Resolve returns the single entry whose fingerprint starts with prefix.
func (s *Store) Resolve(prefix string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found Entry
		n     int
	)
	for fp, e := range s.entries {
		if len(prefix) <= len(fp) && string(fp[:len(prefix)]) == prefix {
			found = e
			n++
		}
	}
	return found, n == 1
}

// Entries returns all entries ordered by fingerprint.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save writes the store to path as an indented JSON array ordered by
// fingerprint. The file is written to a sibling temp file and renamed into
// place so readers never observe a partial baseline.
func (s *Store) Save(path string) error {
	entries := s.Entries()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding baseline: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp baseline: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing baseline: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing baseline: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("setting baseline mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replacing baseline %s: %w", path, err)
	}
	return nil
}
