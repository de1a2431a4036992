// Package diff parses unified diff text into the added lines of each file.
//
// The parser is a two-state machine. In the header state it reads file
// headers and hunk headers; in the hunk state it consumes exactly the number
// of old and new lines the hunk header declared. A malformed or truncated
// hunk drops that file and reports a FileError, and parsing resumes at the
// next file header.
package diff

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrMalformedHunk indicates a hunk header that could not be parsed.
	ErrMalformedHunk = errors.New("malformed hunk header")

	// ErrTruncatedHunk indicates a hunk body shorter than its header declared.
	ErrTruncatedHunk = errors.New("truncated hunk")
)

// DevNull is the path git uses for the missing side of an add or delete.
const DevNull = "/dev/null"

// Line is an added line and its number in the new file.
type Line struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// Hunk collects the added lines of one file, across all of its hunks.
type Hunk struct {
	FilePath string `json:"file_path"`
	Added    []Line `json:"added"`
	Binary   bool   `json:"binary,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// FileError is a parse failure scoped to one file.
type FileError struct {
	Path string
	// Line is the 1-based line of the diff text where parsing failed.
	Line int
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: diff line %d: %v", e.Path, e.Line, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

type state int

const (
	stateHeader state = iota
	stateInHunk
	// stateSkip discards input until the next file header after an error.
	stateSkip
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// fileState accumulates one file's output.
type fileState struct {
	hunk       Hunk
	oldPath    string
	sawNewPath bool
	sawHunk    bool
}

type parser struct {
	state   state
	cur     *fileState
	lineNo  int
	newLine int
	oldLeft int
	newLeft int

	hunks  []Hunk
	errors []*FileError
}

// Parse parses diff text. It returns one Hunk per file in input order and a
// FileError for every file that could not be parsed.
func Parse(text string) ([]Hunk, []*FileError) {
	p := &parser{}
	lines := strings.Split(text, "\n")
	// A trailing newline produces one empty element that is not a line.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, l := range lines {
		p.lineNo++
		p.feed(strings.TrimSuffix(l, "\r"))
	}
	p.finish()
	return p.hunks, p.errors
}

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) ([]Hunk, []*FileError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading diff: %w", err)
	}
	hunks, errs := Parse(string(data))
	return hunks, errs, nil
}

func (p *parser) feed(line string) {
	switch p.state {
	case stateInHunk:
		if p.feedHunkLine(line) {
			return
		}
		// The hunk ended early; the line belongs to whatever comes next.
		p.fail(ErrTruncatedHunk)
		p.feed(line)
	case stateSkip:
		if strings.HasPrefix(line, "diff --git ") {
			p.state = stateHeader
			p.feedHeader(line)
		}
	default:
		p.feedHeader(line)
	}
}

// feedHunkLine consumes one body line. It returns false when the line
// cannot be part of the current hunk.
func (p *parser) feedHunkLine(line string) bool {
	if line == "" {
		// Some tools strip the leading space of empty context lines.
		line = " "
	}
	switch line[0] {
	case '+':
		if p.newLeft == 0 {
			return false
		}
		p.newLeft--
		p.newLine++
		p.cur.hunk.Added = append(p.cur.hunk.Added, Line{Number: p.newLine, Content: line[1:]})
	case '-':
		if p.oldLeft == 0 {
			return false
		}
		p.oldLeft--
	case ' ':
		if p.oldLeft == 0 || p.newLeft == 0 {
			return false
		}
		p.oldLeft--
		p.newLeft--
		p.newLine++
	case '\\':
		// "\ No newline at end of file"
		return true
	default:
		return false
	}
	if p.oldLeft == 0 && p.newLeft == 0 {
		p.state = stateHeader
	}
	return true
}

func (p *parser) feedHeader(line string) {
	switch {
	case strings.HasPrefix(line, "diff --git "):
		p.startFile()
		p.cur.oldPath, p.cur.hunk.FilePath = parseGitHeader(strings.TrimPrefix(line, "diff --git "))

	case strings.HasPrefix(line, "--- "):
		if p.cur == nil || p.cur.sawHunk {
			// Plain unified diff without a git header.
			p.startFile()
		}
		p.cur.oldPath = parsePath(strings.TrimPrefix(line, "--- "), "a/")

	case strings.HasPrefix(line, "+++ "):
		if p.cur == nil {
			p.startFile()
		}
		path := parsePath(strings.TrimPrefix(line, "+++ "), "b/")
		p.cur.sawNewPath = true
		if path == DevNull {
			p.cur.hunk.Deleted = true
			if p.cur.hunk.FilePath == "" {
				p.cur.hunk.FilePath = p.cur.oldPath
			}
			return
		}
		p.cur.hunk.FilePath = path

	case strings.HasPrefix(line, "rename to "):
		if p.cur != nil {
			p.cur.hunk.FilePath = parsePath(strings.TrimPrefix(line, "rename to "), "")
		}

	case strings.HasPrefix(line, "Binary files ") && strings.HasSuffix(line, " differ"),
		line == "GIT binary patch":
		if p.cur != nil {
			p.cur.hunk.Binary = true
		}

	case strings.HasPrefix(line, "@@"):
		p.startHunk(line)
	}
}

func (p *parser) startHunk(line string) {
	if p.cur == nil {
		p.startFile()
	}
	if p.cur.hunk.Binary {
		return
	}

	m := hunkHeaderRe.FindStringSubmatch(line)
	if m == nil {
		p.fail(ErrMalformedHunk)
		return
	}

	oldCount, err1 := count(m[2])
	newStart, err2 := strconv.Atoi(m[3])
	newCount, err3 := count(m[4])
	if err := errors.Join(err1, err2, err3); err != nil {
		p.fail(fmt.Errorf("%w: %v", ErrMalformedHunk, err))
		return
	}

	p.cur.sawHunk = true
	p.newLine = newStart
	p.oldLeft = oldCount
	p.newLeft = newCount
	if p.oldLeft > 0 || p.newLeft > 0 {
		p.state = stateInHunk
	}
}

// count parses an optional hunk line count, which defaults to 1.
func count(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	return strconv.Atoi(s)
}

func (p *parser) startFile() {
	p.finish()
	p.cur = &fileState{}
	p.state = stateHeader
}

// finish emits the current file, or reports it truncated if a hunk is open.
func (p *parser) finish() {
	if p.state == stateInHunk {
		p.fail(ErrTruncatedHunk)
	}
	if p.cur != nil {
		if p.cur.hunk.FilePath == "" {
			p.cur.hunk.FilePath = p.cur.oldPath
		}
		p.hunks = append(p.hunks, p.cur.hunk)
	}
	p.cur = nil
	p.state = stateHeader
}

// fail drops the current file and skips to the next file header.
func (p *parser) fail(err error) {
	path := ""
	if p.cur != nil {
		path = p.cur.hunk.FilePath
		if path == "" {
			path = p.cur.oldPath
		}
	}
	p.errors = append(p.errors, &FileError{Path: path, Line: p.lineNo, Err: err})
	p.cur = nil
	p.state = stateSkip
}

// parseGitHeader splits the "a/X b/Y" operand of a diff --git line.
func parseGitHeader(rest string) (oldPath, newPath string) {
	if strings.HasPrefix(rest, `"`) {
		if oldQ, tail, ok := cutQuoted(rest); ok {
			return parsePath(oldQ, "a/"), parsePath(strings.TrimSpace(tail), "b/")
		}
	}
	if i := strings.LastIndex(rest, " b/"); i >= 0 {
		return parsePath(rest[:i], "a/"), parsePath(rest[i+1:], "b/")
	}
	return "", ""
}

// cutQuoted splits a leading C-quoted token from s.
func cutQuoted(s string) (quoted, tail string, ok bool) {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return s[:i+1], s[i+1:], true
		}
	}
	return "", "", false
}

// parsePath normalizes a header path: strips a tab-separated timestamp,
// unquotes C-quoted names and removes the a/ or b/ prefix.
func parsePath(s, prefix string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		if u, err := strconv.Unquote(s); err == nil {
			s = u
		}
	}
	if s == DevNull {
		return s
	}
	if prefix != "" {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

// AddedLines returns the total number of added lines across hunks.
func AddedLines(hunks []Hunk) int {
	n := 0
	for _, h := range hunks {
		n += len(h.Added)
	}
	return n
}
