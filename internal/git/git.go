// Package git locates repositories and produces the diff text that diff
// mode scans.
//
// Repository discovery uses go-git. Diffs come from the git binary, since
// the textual unified diff of the index is exactly what is scanned.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

var (
	// ErrNotGitRepo indicates the directory is not inside a Git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrHeadNotFound indicates the .git/HEAD file is missing.
	ErrHeadNotFound = errors.New("HEAD file not found")

	// ErrInvalidRef indicates a ref that could be mistaken for a flag.
	ErrInvalidRef = errors.New("invalid git ref")
)

// RepoRoot returns the worktree root of the repository containing path.
func RepoRoot(path string) (string, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w: %s", ErrNotGitRepo, path)
		}
		return "", fmt.Errorf("opening repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("%w: %s has no worktree", ErrNotGitRepo, path)
	}
	return wt.Filesystem.Root(), nil
}

// DetectBranch reads .git/HEAD under root and returns the branch name, or
// "detached" when HEAD points at a commit.
func DetectBranch(root string) (string, error) {
	gitDir := filepath.Join(root, ".git")
	if _, err := os.Stat(gitDir); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotGitRepo, root)
	}

	headFile := filepath.Join(gitDir, "HEAD")
	content, err := os.ReadFile(headFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrHeadNotFound, headFile)
		}
		return "", fmt.Errorf("reading HEAD file: %w", err)
	}

	head := strings.TrimSpace(string(content))
	if branch, ok := strings.CutPrefix(head, "ref: refs/heads/"); ok {
		return branch, nil
	}
	return "detached", nil
}

// diffArgs are shared by every diff invocation: no context lines, and no
// color or external diff driver that would change the text format.
var diffArgs = []string{"--unified=0", "--no-color", "--no-ext-diff"}

// StagedDiff returns the diff of the index against HEAD.
func StagedDiff(ctx context.Context, dir string) (string, error) {
	return run(ctx, dir, append([]string{"diff", "--cached"}, diffArgs...)...)
}

// RangeDiff returns the diff of ref..HEAD.
func RangeDiff(ctx context.Context, dir, ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "-") || strings.ContainsAny(ref, " \t\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return run(ctx, dir, append([]string{"diff", ref + "..HEAD"}, diffArgs...)...)
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(strings.ToLower(msg), "not a git repository") {
			return "", fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
		}
		if msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}
