package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// WorktreeInfo holds metadata about a single Git worktree entry
// as parsed from `git worktree list --porcelain` output.
//
// Example porcelain output for a single worktree block:
//
//	worktree /tmp/mutafix-123456
//	HEAD abc123def456
//	detached
type WorktreeInfo struct {
	// Path is the absolute filesystem path to the worktree directory.
	Path string

	// Branch is the full branch reference (e.g., "refs/heads/main").
	// Empty if the worktree is in a detached HEAD state, which is how
	// isolated mutation worktrees are created.
	Branch string

	// HEAD is the commit SHA that the worktree currently points to.
	HEAD string

	// IsBare indicates whether this worktree entry represents a bare repository.
	IsBare bool
}

// IsGitRepo reports whether path has its own .git entry. A .git directory
// marks a main checkout and a .git file marks a linked worktree; both
// count. Subdirectories of a repository do not.
func IsGitRepo(path string) bool {
	_, err := os.Lstat(filepath.Join(path, ".git"))
	return err == nil
}

// IsInsideWorkTree reports whether path lies anywhere inside a Git working
// tree, including subdirectories.
func IsInsideWorkTree(ctx context.Context, path string) bool {
	out, err := runGit(ctx, path, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// GetRepoRoot returns the absolute path to the top-level directory of the
// Git repository containing the given path.
//
// For linked worktrees this is the worktree root, not the main checkout.
func GetRepoRoot(ctx context.Context, path string) (string, error) {
	output, err := runGit(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// IsWorktree checks whether the given path is a linked Git worktree (as
// opposed to a main repository working directory).
//
// Linked worktrees have a .git FILE containing a "gitdir:" pointer, while
// the main working directory has a .git DIRECTORY.
func IsWorktree(path string) bool {
	gitPath := filepath.Join(path, ".git")

	// Lstat so a symlinked .git is not followed.
	info, err := os.Lstat(gitPath)
	if err != nil || info.IsDir() {
		return false
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return false
	}
	return strings.HasPrefix(string(content), "gitdir:")
}

// ListWorktrees returns every worktree registered with the repository at
// repoPath, the main checkout included.
func ListWorktrees(ctx context.Context, repoPath string) ([]WorktreeInfo, error) {
	output, err := runGit(ctx, repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelainOutput(output), nil
}

// RemoveWorktree deletes a linked worktree. force also removes worktrees
// with uncommitted changes, which a mutated tree always has.
func RemoveWorktree(ctx context.Context, repoPath, worktreePath string, force bool) error {
	args := []string{"worktree", "remove", worktreePath}
	if force {
		args = []string{"worktree", "remove", "--force", worktreePath}
	}
	_, err := runGit(ctx, repoPath, args...)
	return err
}

// runGit executes a git command with the given arguments in the specified directory.
//
// On success it returns stdout. On failure it returns a model.CLIError with
// the ExitGitError code and git's stderr in the message.
//
// The repoPath parameter is passed to git via the -C flag, so the process's
// working directory never changes.
func runGit(ctx context.Context, repoPath string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)

	// #nosec G204: args are constructed internally, not from user input
	cmd := exec.CommandContext(ctx, "git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}

	return stdout.String(), nil
}

// parsePorcelainOutput parses the output of `git worktree list --porcelain`
// into a slice of WorktreeInfo structs.
//
// Blocks are separated by blank lines. Each line is a space-separated
// key-value pair, or a standalone marker such as "bare" or "detached".
func parsePorcelainOutput(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")

	var current *WorktreeInfo
	for _, line := range lines {
		if line == "" {
			if current != nil {
				worktrees = append(worktrees, *current)
				current = nil
			}
			continue
		}

		key, value, _ := strings.Cut(line, " ")

		switch key {
		case "worktree":
			current = &WorktreeInfo{Path: value}
		case "HEAD":
			if current != nil {
				current.HEAD = value
			}
		case "branch":
			if current != nil {
				current.Branch = value
			}
		case "bare":
			if current != nil {
				current.IsBare = true
			}
			// A detached HEAD simply leaves Branch empty.
		}
	}

	if current != nil {
		worktrees = append(worktrees, *current)
	}

	return worktrees
}
