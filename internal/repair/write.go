package repair

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// writeAtomic writes data to a sibling temp file, syncs it, copies the
// original mode and renames it over path. On any failure the temp file is
// removed and path is untouched.
func (e *Engine) writeAtomic(path string, data []byte, mode fs.FileMode) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := e.fs.CreateTemp(dir, "."+base+".sieve-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if err != nil {
			if !closed {
				_ = tmp.Close()
			}
			_ = e.fs.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Chmod(mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = e.fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// verifyLineChanges diffs before and after line by line and checks that
// exactly the changed lines (1-based) were rewritten and nothing else was
// added, removed or moved.
func verifyLineChanges(before, after string, changed map[int]bool) error {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(a, b, false), lineArray)

	line := 1
	deleted := make(map[int]bool)
	inserted := 0
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			line += n
		case diffmatchpatch.DiffDelete:
			for i := 0; i < n; i++ {
				if !changed[line+i] {
					return fmt.Errorf("%w: line %d changed unexpectedly", ErrVerify, line+i)
				}
				deleted[line+i] = true
			}
			line += n
		case diffmatchpatch.DiffInsert:
			inserted += n
		}
	}

	if len(deleted) != len(changed) || inserted != len(changed) {
		return fmt.Errorf("%w: %d lines targeted, %d removed, %d inserted",
			ErrVerify, len(changed), len(deleted), inserted)
	}
	return nil
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
