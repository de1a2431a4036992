// Package allowlist loads path and content exclusions from TOML files.
//
// The file format is compatible with the [allowlist] table of a gitleaks
// configuration, so an existing .gitleaks.toml can be reused as-is:
//
//	[allowlist]
//	paths = ['''testdata/.*''']
//	regexes = ['''EXAMPLE_SECRET_.*''']
package allowlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Project-level file names, loaded in this order when present.
const (
	ProjectFile  = ".sieve.toml"
	GitleaksFile = ".gitleaks.toml"
)

var (
	// ErrInvalidRegex indicates a regex pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates a TOML file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)

// Allowlist holds compiled path and content patterns. The zero value and a
// nil *Allowlist allow nothing.
type Allowlist struct {
	paths   []*regexp.Regexp
	regexes []*regexp.Regexp
}

// Load merges the project allowlists found in dir with the file at
// extraPath using union logic. Missing files are skipped; invalid TOML or
// regex patterns return errors. Either argument may be empty.
func Load(dir, extraPath string) (*Allowlist, error) {
	var files []string
	if dir != "" {
		files = append(files, filepath.Join(dir, ProjectFile), filepath.Join(dir, GitleaksFile))
	}
	if extraPath != "" {
		files = append(files, extraPath)
	}

	merged := &Allowlist{}
	for _, f := range files {
		a, err := loadTOML(f)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		merged.paths = append(merged.paths, a.paths...)
		merged.regexes = append(merged.regexes, a.regexes...)
	}
	return merged, nil
}

// New compiles an allowlist from raw patterns.
func New(paths, regexes []string) (*Allowlist, error) {
	a := &Allowlist{}
	for _, p := range paths {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid path pattern '%s': %v", ErrInvalidRegex, p, err)
		}
		a.paths = append(a.paths, re)
	}
	for _, p := range regexes {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid content pattern '%s': %v", ErrInvalidRegex, p, err)
		}
		a.regexes = append(a.regexes, re)
	}
	return a, nil
}

// loadTOML loads and validates a single allowlist file.
func loadTOML(path string) (*Allowlist, error) {
	var config struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	a, err := New(config.Allowlist.Paths, config.Allowlist.Regexes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// PathAllowed reports whether a slash-separated relative path is excluded.
func (a *Allowlist) PathAllowed(path string) bool {
	if a == nil {
		return false
	}
	p := filepath.ToSlash(path)
	for _, re := range a.paths {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// ContentAllowed reports whether a matched value or its line is excluded.
func (a *Allowlist) ContentAllowed(text string) bool {
	if a == nil {
		return false
	}
	for _, re := range a.regexes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Len returns the total number of patterns.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.paths) + len(a.regexes)
}
