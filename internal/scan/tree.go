package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/ignore"
	"github.com/fyrsmithlabs/sieve/internal/scanner"
)

var (
	// ErrTooLarge marks files skipped for exceeding the size limit.
	ErrTooLarge = errors.New("file exceeds size limit")

	// ErrBinary marks files skipped by the NUL-byte probe.
	ErrBinary = errors.New("binary file")
)

// task is one file to scan. rel is the slash-separated path reported in
// findings and used for fingerprints.
type task struct {
	abs string
	rel string
}

// fileResult is what one worker produces for one file.
type fileResult struct {
	verdicts []scanner.Verdict
	skipped  bool
	err      error
}

// ScanTree scans every eligible file under root with a bounded worker
// pool. Per-file errors are recorded in the report; cancellation of ctx
// aborts the pass with ctx.Err().
func (o *Orchestrator) ScanTree(ctx context.Context, root string) (*Report, error) {
	ctx, p := o.begin(ctx, ModeTree)
	defer p.end()

	dir := root
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		dir = filepath.Dir(root)
	}
	matcher, err := o.ignoreFor(dir)
	if err != nil {
		return nil, p.fail(err)
	}

	tasks, err := o.collect(ctx, root, matcher, p.report)
	if err != nil {
		return nil, p.fail(err)
	}

	verdicts := o.run(ctx, tasks, p.report)
	if err := ctx.Err(); err != nil {
		return nil, p.fail(err)
	}

	o.finish(ctx, p.report, verdicts)
	return p.report, nil
}

// ScanFiles scans the named files, given as slash-separated paths relative
// to root. Files that no longer exist are counted as skipped. Ignore and
// allowlist rules apply as in ScanTree.
func (o *Orchestrator) ScanFiles(ctx context.Context, root string, rels []string) (*Report, error) {
	ctx, p := o.begin(ctx, ModeFiles)
	defer p.end()

	matcher, err := o.ignoreFor(root)
	if err != nil {
		return nil, p.fail(err)
	}

	seen := make(map[string]bool, len(rels))
	tasks := make([]task, 0, len(rels))
	for _, rel := range rels {
		rel = filepath.ToSlash(filepath.Clean(rel))
		if seen[rel] || matcher.Ignored(rel) || o.allow.PathAllowed(rel) {
			continue
		}
		seen[rel] = true
		abs := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			p.report.FilesSkipped++
			continue
		case err != nil:
			p.report.Errors = append(p.report.Errors, FileError{Path: rel, Err: err})
			continue
		case !info.Mode().IsRegular():
			continue
		}
		tasks = append(tasks, task{abs: abs, rel: rel})
	}

	verdicts := o.run(ctx, tasks, p.report)
	if err := ctx.Err(); err != nil {
		return nil, p.fail(err)
	}

	o.finish(ctx, p.report, verdicts)
	return p.report, nil
}

func (o *Orchestrator) ignoreFor(dir string) (*ignore.Matcher, error) {
	if o.matcher != nil {
		return o.matcher, nil
	}
	m, err := ignore.New(dir, o.extraIgnore...)
	if err != nil {
		return nil, wrapf(err, "loading ignore rules")
	}
	return m, nil
}

// run scans tasks on a pool of o.workers goroutines. Results are merged
// into r under a mutex; the caller checks ctx afterwards.
func (o *Orchestrator) run(ctx context.Context, tasks []task, r *Report) []scanner.Verdict {
	o.logger.Debug(ctx, "files collected", zap.Int("files", len(tasks)), zap.Int("workers", o.workers))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		verdicts []scanner.Verdict
	)
	sem := make(chan struct{}, o.workers)

dispatch:
	for _, t := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			defer func() { <-sem }()

			res := o.scanFile(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.err != nil:
				r.Errors = append(r.Errors, FileError{Path: t.rel, Err: res.err})
			case res.skipped:
				r.FilesSkipped++
			default:
				r.FilesScanned++
				verdicts = append(verdicts, res.verdicts...)
			}
		}(t)
	}
	wg.Wait()
	return verdicts
}

// collect walks root and returns the files to scan, in walk order.
func (o *Orchestrator) collect(ctx context.Context, root string, m *ignore.Matcher, r *Report) ([]task, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, wrapf(err, "scan root")
	}
	if !info.IsDir() {
		rel := filepath.ToSlash(filepath.Base(root))
		if o.allow.PathAllowed(rel) {
			return nil, nil
		}
		return []task{{abs: root, rel: rel}}, nil
	}

	var tasks []task
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if walkErr != nil {
			if rel == "." {
				return walkErr
			}
			r.Errors = append(r.Errors, FileError{Path: rel, Err: walkErr})
			return nil
		}

		if d.IsDir() {
			if rel != "." && m.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if m.Ignored(rel) || o.allow.PathAllowed(rel) {
			return nil
		}
		tasks = append(tasks, task{abs: path, rel: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// scanFile reads and scans one file. Oversized and binary files are
// skipped, not errors.
func (o *Orchestrator) scanFile(ctx context.Context, t task) fileResult {
	data, err := o.readFile(t.abs)
	switch {
	case errors.Is(err, ErrTooLarge), errors.Is(err, ErrBinary):
		o.logger.Debug(ctx, "file skipped", zap.String("path", t.rel), zap.String("reason", err.Error()))
		return fileResult{skipped: true}
	case err != nil:
		return fileResult{err: err}
	}
	return fileResult{verdicts: o.scanLines(t.rel, string(data))}
}

// readFile reads a file, enforcing the size limit and the binary probe.
func (o *Orchestrator) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > o.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}

	data, err := io.ReadAll(io.LimitReader(f, o.maxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > o.maxFileSize {
		return nil, fmt.Errorf("%w: grew while reading", ErrTooLarge)
	}
	if IsBinary(data, o.binaryProbe) {
		return nil, ErrBinary
	}
	return data, nil
}

// IsBinary reports whether the first probe bytes of data contain NUL.
func IsBinary(data []byte, probe int) bool {
	if probe > 0 && len(data) > probe {
		data = data[:probe]
	}
	return bytes.IndexByte(data, 0) >= 0
}
