// Package gitsource keeps local checkouts of git-hosted decks up to date.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// IsGitURL reports whether path names a remote git repository rather than a
// local directory.
func IsGitURL(path string) bool {
	return strings.HasSuffix(path, ".git") ||
		strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "ssh://")
}

// LocalPath maps a repository URL to its checkout directory under baseDir,
// e.g. https://github.com/a/b.git -> baseDir/github.com/a/b.
func LocalPath(baseDir, repoURL string) (string, error) {
	u, err := url.Parse(repoURL)
	if err == nil && u.Host != "" && u.Scheme != "" {
		return checkoutDir(baseDir, u.Host, u.Path)
	}

	// scp-like syntax: git@github.com:a/b.git
	userHost, repoPath, ok := strings.Cut(repoURL, ":")
	if ok {
		if _, host, ok := strings.Cut(userHost, "@"); ok && host != "" {
			return checkoutDir(baseDir, host, repoPath)
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

func checkoutDir(baseDir, host, repoPath string) (string, error) {
	repoPath = strings.Trim(strings.TrimSuffix(repoPath, ".git"), "/")
	if repoPath == "" {
		return "", fmt.Errorf("git URL for %s has no repository path", host)
	}
	dir := filepath.Join(baseDir, host, filepath.FromSlash(repoPath))
	rel, err := filepath.Rel(baseDir, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("git URL escapes the repos directory: %s/%s", host, repoPath)
	}
	return dir, nil
}

// Sync clones the repository at repoURL into localPath, or pulls the latest
// changes if a checkout already exists there.
func Sync(ctx context.Context, repoURL, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("cloning repository", "url", repoURL, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: repoURL})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
	case err == nil:
		slog.Info("pulling repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}
