package tui

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/sieve/internal/scan"
)

// ContextRadius is the number of lines shown on each side of a finding.
const ContextRadius = 2

// ContextLine is one line of the context view.
type ContextLine struct {
	Number int
	Text   string
	Target bool
}

// ReadContext returns the lines around f, read from root. Every known secret
// in the file is replaced by its preview before the lines are returned.
func ReadContext(root string, f scan.Finding, known []scan.Finding) ([]ContextLine, error) {
	path := f.FilePath
	if root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, filepath.FromSlash(path))
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}
	defer file.Close()

	var masks []scan.Finding
	for _, k := range known {
		if k.FilePath == f.FilePath && k.MatchedText != "" {
			masks = append(masks, k)
		}
	}
	if f.MatchedText != "" {
		masks = append(masks, f)
	}

	first, last := f.Line-ContextRadius, f.Line+ContextRadius
	var out []ContextLine
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for n := 1; sc.Scan(); n++ {
		if n < first {
			continue
		}
		if n > last {
			break
		}
		text := strings.TrimSuffix(sc.Text(), "\r")
		for _, m := range masks {
			text = strings.ReplaceAll(text, m.MatchedText, m.Preview)
		}
		out = append(out, ContextLine{Number: n, Text: text, Target: n == f.Line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}
	return out, nil
}
