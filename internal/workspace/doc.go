// Package workspace keeps a repository recoverable while mutafix edits it.
//
// Two strategies are offered. For Git repositories, local changes are
// stashed before the session and `git reset --hard` plus `git stash pop`
// restores the tree afterwards. For plain directories, every file is
// backed up in memory before it is touched and written back on restore.
//
// Isolate goes one step further and runs the whole session in a detached
// linked worktree, so the user's checkout is never modified at all.
//
// All Git operations shell out to the git binary via os/exec, the same way
// the user's terminal would run them.
package workspace
