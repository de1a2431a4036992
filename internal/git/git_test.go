package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoRoot(t *testing.T) {
	t.Run("nested directory", func(t *testing.T) {
		dir := t.TempDir()
		_, err := gogit.PlainInit(dir, false)
		require.NoError(t, err)
		sub := filepath.Join(dir, "a", "b")
		require.NoError(t, os.MkdirAll(sub, 0755))

		root, err := RepoRoot(sub)
		require.NoError(t, err)

		want, err := filepath.EvalSymlinks(dir)
		require.NoError(t, err)
		got, err := filepath.EvalSymlinks(root)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not a repository", func(t *testing.T) {
		_, err := RepoRoot(t.TempDir())
		assert.ErrorIs(t, err, ErrNotGitRepo)
	})
}

func TestDetectBranch(t *testing.T) {
	tests := []struct {
		name    string
		head    string
		want    string
		wantErr error
	}{
		{name: "main branch", head: "ref: refs/heads/main\n", want: "main"},
		{name: "feature branch", head: "ref: refs/heads/feature/redact\n", want: "feature/redact"},
		{name: "detached HEAD", head: "abc123def456789\n", want: "detached"},
		{name: "missing HEAD", wantErr: ErrHeadNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			gitDir := filepath.Join(dir, ".git")
			require.NoError(t, os.Mkdir(gitDir, 0755))
			if tt.head != "" {
				require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte(tt.head), 0644))
			}

			got, err := DetectBranch(dir)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("non-git directory", func(t *testing.T) {
		_, err := DetectBranch(t.TempDir())
		assert.ErrorIs(t, err, ErrNotGitRepo)
	})
}

func TestRangeDiff_RejectsFlags(t *testing.T) {
	for _, ref := range []string{"", "--output=/tmp/x", "main HEAD"} {
		_, err := RangeDiff(context.Background(), t.TempDir(), ref)
		assert.ErrorIs(t, err, ErrInvalidRef, ref)
	}
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestStagedDiff(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0644))
	gitCmd(t, dir, "add", "a.txt")
	gitCmd(t, dir, "commit", "-q", "-m", "init")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0644))
	gitCmd(t, dir, "add", "a.txt")

	out, err := StagedDiff(context.Background(), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "diff --git a/a.txt b/a.txt")
	assert.Contains(t, out, "+two")
	assert.NotContains(t, out, " one")

	t.Run("range", func(t *testing.T) {
		gitCmd(t, dir, "commit", "-q", "-m", "second")
		out, err := RangeDiff(context.Background(), dir, "HEAD~1")
		require.NoError(t, err)
		assert.Contains(t, out, "+two")
	})

	t.Run("not a repository", func(t *testing.T) {
		_, err := StagedDiff(context.Background(), t.TempDir())
		assert.ErrorIs(t, err, ErrNotGitRepo)
	})
}
