package workspace

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// StashMessage labels the stash entry created by GitGuard.Prepare.
const StashMessage = "mutafix-temp"

// Guard protects a repository while files in it are mutated.
type Guard interface {
	// Prepare records the starting state. It is called once, before the
	// baseline build.
	Prepare(ctx context.Context) error

	// Remember is called with each file before it is mutated.
	Remember(path string) error

	// Restore puts the repository back into its prepared state.
	Restore(ctx context.Context) error
}

// NewGuard returns a GitGuard when repo is a Git checkout and a
// BackupGuard otherwise.
func NewGuard(repo string, logger *zap.Logger) Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if IsGitRepo(repo) {
		return &GitGuard{Repo: repo, Logger: logger}
	}
	return NewBackupGuard(logger)
}

// GitGuard uses the stash to park local changes and a hard reset to throw
// the mutation away.
type GitGuard struct {
	Repo   string
	Logger *zap.Logger

	stashed bool
}

// Prepare stashes local changes, untracked files included. The index is
// kept so staged work stays part of the baseline. A clean tree is not
// stashed, which keeps Restore from popping somebody else's entry.
func (g *GitGuard) Prepare(ctx context.Context) error {
	status, err := runGit(ctx, g.Repo, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		g.logger().Debug("Working tree clean, nothing to stash", zap.String("repo", g.Repo))
		return nil
	}

	if _, err := runGit(ctx, g.Repo, "stash", "push", "-u", "-k", "-m", StashMessage); err != nil {
		return err
	}
	g.stashed = true
	g.logger().Debug("Stashed local changes", zap.String("repo", g.Repo))
	return nil
}

// Remember is a no-op: the hard reset restores every tracked file.
func (g *GitGuard) Remember(string) error {
	return nil
}

// Restore resets the tree to HEAD and re-applies the stash, if any. The
// index is restored too when the stash allows it.
func (g *GitGuard) Restore(ctx context.Context) error {
	if _, err := runGit(ctx, g.Repo, "reset", "--hard"); err != nil {
		return err
	}
	if !g.stashed {
		return nil
	}

	if _, err := runGit(ctx, g.Repo, "stash", "pop", "--index"); err != nil {
		g.logger().Debug("stash pop --index failed, retrying without index", zap.Error(err))
		if _, err := runGit(ctx, g.Repo, "stash", "pop"); err != nil {
			return err
		}
	}
	g.stashed = false
	return nil
}

// Stashed reports whether Prepare created a stash entry that Restore has
// not popped yet.
func (g *GitGuard) Stashed() bool {
	return g.stashed
}

func (g *GitGuard) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// backup is the saved content and mode of one file.
type backup struct {
	data []byte
	mode os.FileMode
}

// BackupGuard keeps in-memory copies of files before they are mutated.
type BackupGuard struct {
	logger  *zap.Logger
	backups map[string]backup
}

// NewBackupGuard returns an empty BackupGuard.
func NewBackupGuard(logger *zap.Logger) *BackupGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupGuard{logger: logger, backups: make(map[string]backup)}
}

// Prepare is a no-op; files are captured lazily by Remember.
func (b *BackupGuard) Prepare(context.Context) error {
	return nil
}

// Remember saves the file's current content. Only the first call per path
// counts, so the saved copy is always the pre-session state. Missing files
// and directories are ignored.
func (b *BackupGuard) Remember(path string) error {
	if _, ok := b.backups[path]; ok {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to back up %s: %w", path, err)
	}
	b.backups[path] = backup{data: data, mode: info.Mode().Perm()}
	return nil
}

// Restore writes every saved file back and forgets the backups. Files
// that were deleted in the meantime are not recreated.
func (b *BackupGuard) Restore(context.Context) error {
	paths := make([]string, 0, len(b.backups))
	for path := range b.backups {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		saved := b.backups[path]
		if err := os.WriteFile(path, saved.data, saved.mode); err != nil {
			return fmt.Errorf("failed to restore %s: %w", path, err)
		}
		b.logger.Debug("Restored file", zap.String("path", path))
	}
	b.backups = make(map[string]backup)
	return nil
}

// Len returns the number of files currently backed up.
func (b *BackupGuard) Len() int {
	return len(b.backups)
}
