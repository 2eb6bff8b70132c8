package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// WorktreePrefix starts the directory name of every isolated worktree, so
// leftovers can be recognised and cleaned up.
const WorktreePrefix = "mutafix-"

// Isolated is a detached linked worktree checked out for one session.
type Isolated struct {
	// RepoRoot is the top-level directory of the source repository.
	RepoRoot string

	// Root is the top-level directory of the linked worktree.
	Root string

	// Dir is the counterpart of the requested directory inside Root. It
	// differs from Root when the session targets a subdirectory.
	Dir string

	logger *zap.Logger
}

// Isolate checks HEAD of the repository containing dir out into a fresh
// temporary worktree. Only committed content is visible there; local
// changes in the user's checkout are left alone.
func Isolate(ctx context.Context, dir string, logger *zap.Logger) (*Isolated, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	repoRoot, err := GetRepoRoot(ctx, abs)
	if err != nil {
		return nil, err
	}

	// git reports the root with symlinks resolved; do the same for abs so
	// the relative path is computed between comparable paths.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		resolved = abs
	}
	rel, err := filepath.Rel(filepath.FromSlash(repoRoot), resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = "."
	}

	tmp, err := os.MkdirTemp("", WorktreePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create worktree directory: %w", err)
	}

	if _, err := runGit(ctx, repoRoot, "worktree", "add", "--detach", tmp, "HEAD"); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}

	iso := &Isolated{
		RepoRoot: repoRoot,
		Root:     tmp,
		Dir:      filepath.Join(tmp, rel),
		logger:   logger,
	}
	logger.Debug("Created isolated worktree",
		zap.String("repo", repoRoot),
		zap.String("worktree", tmp),
		zap.String("dir", iso.Dir))
	return iso, nil
}

// Cleanup removes the worktree and prunes its administrative files. It
// uses a fresh context so cleanup still runs after the session's context
// was cancelled.
func (i *Isolated) Cleanup() error {
	ctx := context.Background()
	err := RemoveWorktree(ctx, i.RepoRoot, i.Root, true)
	if err != nil {
		i.logger.Debug("git worktree remove failed, deleting directory", zap.Error(err))
		if rmErr := os.RemoveAll(i.Root); rmErr != nil {
			return fmt.Errorf("failed to delete worktree %s: %w", i.Root, rmErr)
		}
		_, err = runGit(ctx, i.RepoRoot, "worktree", "prune")
	}
	return err
}

// StaleWorktrees lists linked worktrees of the repository that were
// created by Isolate and never cleaned up.
func StaleWorktrees(ctx context.Context, repoPath string) ([]WorktreeInfo, error) {
	all, err := ListWorktrees(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	var stale []WorktreeInfo
	for _, wt := range all {
		if wt.Branch == "" && !wt.IsBare && strings.HasPrefix(filepath.Base(wt.Path), WorktreePrefix) {
			stale = append(stale, wt)
		}
	}
	return stale, nil
}
