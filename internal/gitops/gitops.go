// Package gitops keeps a project's configuration files under git.
package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrGitMissing is returned when no git binary is on PATH.
var ErrGitMissing = errors.New("git not found on PATH")

// Repo is a working tree and the identity used for its commits.
type Repo struct {
	Dir         string
	AuthorName  string
	AuthorEmail string
}

// Available reports whether git can be run.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsRepo reports whether dir is the root of a git repository.
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Init runs git init unless the directory already is a repository.
func (r Repo) Init(ctx context.Context) error {
	if IsRepo(r.Dir) {
		return nil
	}
	_, err := r.git(ctx, "init", "--quiet")
	return err
}

// Commit stages paths (relative to Dir) and commits them. It returns the short
// hash, or "" when nothing changed.
func (r Repo) Commit(ctx context.Context, message string, paths ...string) (string, error) {
	add := []string{"add", "-A"}
	if len(paths) > 0 {
		add = append([]string{"add", "--"}, paths...)
	}
	if _, err := r.git(ctx, add...); err != nil {
		return "", err
	}

	// diff --cached exits 1 when something is staged.
	if _, err := r.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return "", nil
	}

	author := fmt.Sprintf("%s <%s>", r.AuthorName, r.AuthorEmail)
	if _, err := r.git(ctx, "commit", "--quiet", "-m", message, "--author", author); err != nil {
		return "", err
	}
	out, err := r.git(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r Repo) git(ctx context.Context, args ...string) (string, error) {
	if !Available() {
		return "", ErrGitMissing
	}
	// The committer identity comes from the repo so commits work without a
	// global git config.
	full := append([]string{"-c", "user.name=" + r.AuthorName, "-c", "user.email=" + r.AuthorEmail}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = r.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), err)
	}
	return string(out), nil
}
