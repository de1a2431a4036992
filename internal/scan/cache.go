package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/sieve/internal/fingerprint"
	"github.com/fyrsmithlabs/sieve/internal/scanner"
)

// DefaultCacheFile is where the last scan's findings are cached so a later
// command can refer to them by index.
const DefaultCacheFile = ".sieve_cache.json"

const cacheVersion = 1

var (
	// ErrNoCache indicates no cached scan exists.
	ErrNoCache = errors.New("no cached scan; run a scan first")

	// ErrCacheMismatch indicates a cached finding no longer matches the
	// file on disk.
	ErrCacheMismatch = errors.New("cached finding no longer matches file")
)

// CacheEntry is a cached finding. It holds location and identity only;
// the secret itself is never written to the cache.
type CacheEntry struct {
	Index       int                     `json:"index"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	RuleID      string                  `json:"rule_id"`
	FilePath    string                  `json:"file_path"`
	Line        int                     `json:"line"`
	Span        scanner.Span            `json:"span"`
	Score       int                     `json:"score"`
	Preview     string                  `json:"preview"`
}

// Cache is the on-disk findings cache.
type Cache struct {
	Version  int          `json:"version"`
	Root     string       `json:"root"`
	Mode     string       `json:"mode"`
	Findings []CacheEntry `json:"findings"`
}

// NewCache builds a cache from a report. Indexes are 1-based and follow
// report order.
func NewCache(root string, r *Report) *Cache {
	c := &Cache{Version: cacheVersion, Root: root, Mode: r.Mode, Findings: []CacheEntry{}}
	for i, f := range r.Findings {
		c.Findings = append(c.Findings, entryOf(i+1, f))
	}
	return c
}

func entryOf(index int, f Finding) CacheEntry {
	return CacheEntry{
		Index:       index,
		Fingerprint: f.Fingerprint,
		RuleID:      f.RuleID,
		FilePath:    f.FilePath,
		Line:        f.Line,
		Span:        f.Span,
		Score:       f.Score,
		Preview:     f.Preview,
	}
}

// Entry returns the finding with the given 1-based index.
func (c *Cache) Entry(index int) (CacheEntry, error) {
	if index < 1 || index > len(c.Findings) {
		return CacheEntry{}, fmt.Errorf("finding %d out of range (1-%d)", index, len(c.Findings))
	}
	return c.Findings[index-1], nil
}

// WriteCache writes c to path, owner-readable only.
func WriteCache(path string, c *Cache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// ReadCache reads the cache at path.
func ReadCache(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding cache %s: %w", path, err)
	}
	if c.Version != cacheVersion {
		return nil, fmt.Errorf("cache %s has version %d, want %d", path, c.Version, cacheVersion)
	}
	return &c, nil
}

// Rehydrate re-scans the file behind a cached entry and returns the live
// finding with the same fingerprint and span, preferring the one nearest
// the cached line. The returned finding carries MatchedText and can be
// handed to repair.
func (o *Orchestrator) Rehydrate(ctx context.Context, root string, e CacheEntry) (Finding, error) {
	path := e.FilePath
	if root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, filepath.FromSlash(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Finding{}, fmt.Errorf("reading %s: %w", e.FilePath, err)
	}
	if err := ctx.Err(); err != nil {
		return Finding{}, err
	}

	var (
		best  Finding
		found bool
	)
	for _, v := range o.scanLines(e.FilePath, string(data)) {
		if !v.Emitted() || v.Span != e.Span {
			continue
		}
		f := NewFinding(v.RawFinding)
		if f.Fingerprint != e.Fingerprint {
			continue
		}
		if !found || distance(f.Line, e.Line) < distance(best.Line, e.Line) {
			best, found = f, true
		}
	}
	if !found {
		return Finding{}, fmt.Errorf("%w: %s:%d", ErrCacheMismatch, e.FilePath, e.Line)
	}
	return best, nil
}

// Locate re-finds f in its file under root, as Rehydrate does for a cached
// entry. Diff-mode line numbers are counted from the hunk header and can sit
// one past the line git reports, so findings from a diff are located before
// anything reads or rewrites the file.
func (o *Orchestrator) Locate(ctx context.Context, root string, f Finding) (Finding, error) {
	return o.Rehydrate(ctx, root, entryOf(0, f))
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
