// Package ignore decides which paths a tree scan skips.
//
// A Matcher combines a fixed set of directory names that are never scanned
// with the gitignore-style rules found in the project's ignore files.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultDirs are directory names skipped at any depth.
var DefaultDirs = []string{"node_modules", "target", "dist", ".git", "vendor"}

// DefaultFiles are the ignore files read from the project root.
var DefaultFiles = []string{".gitignore", ".sieveignore"}

// ReadRules returns the rules from each of files found in root, in order.
// Missing files are skipped.
func ReadRules(root string, files ...string) ([]string, error) {
	var rules []string
	for _, name := range files {
		f, err := os.Open(filepath.Join(root, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading ignore file: %w", err)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if r := ruleOf(sc.Text()); r != "" {
				rules = append(rules, r)
			}
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}
	return rules, nil
}

// ruleOf returns the rule on a line, or "" for comments and blank lines.
// Negations are kept; the matcher applies rules in order.
func ruleOf(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || line[0] == '#' {
		return ""
	}
	return line
}

// Matcher answers skip decisions for slash-separated paths relative to the
// scan root. It is read-only after construction and safe for concurrent use.
type Matcher struct {
	dirs  map[string]bool
	rules *gitignore.GitIgnore
	n     int
}

// New builds a Matcher from DefaultDirs, the DefaultFiles found in root and
// any extra patterns.
func New(root string, extra ...string) (*Matcher, error) {
	patterns, err := ReadRules(root, DefaultFiles...)
	if err != nil {
		return nil, err
	}
	return NewMatcher(DefaultDirs, append(patterns, extra...)), nil
}

// NewMatcher builds a Matcher from explicit directory names and rules.
func NewMatcher(dirs, patterns []string) *Matcher {
	m := &Matcher{dirs: make(map[string]bool, len(dirs)), n: len(patterns)}
	for _, d := range dirs {
		m.dirs[d] = true
	}
	if len(patterns) > 0 {
		m.rules = gitignore.CompileIgnoreLines(patterns...)
	}
	return m
}

// SkipDir reports whether the directory at rel is excluded.
func (m *Matcher) SkipDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	if m.dirs[pathBase(rel)] {
		return true
	}
	if m.rules == nil || rel == "." || rel == "" {
		return false
	}
	// Directory-only rules ("build/") match the path with a trailing slash.
	return m.rules.MatchesPath(rel) || m.rules.MatchesPath(rel+"/")
}

// Ignored reports whether the file at rel is excluded.
func (m *Matcher) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, seg := range strings.Split(rel, "/") {
		if m.dirs[seg] {
			return true
		}
	}
	return m.rules != nil && m.rules.MatchesPath(rel)
}

// Len returns the number of gitignore rules loaded.
func (m *Matcher) Len() int { return m.n }

func pathBase(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}
	return rel
}
