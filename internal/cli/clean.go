package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mutafix/internal/docker"
	"github.com/shinji-kodama/mutafix/internal/model"
	"github.com/shinji-kodama/mutafix/internal/workspace"
)

// cleanFlags holds the flag values for the clean command.
type cleanFlags struct {
	// repo limits containers to those that built this repository and
	// selects the repository whose worktrees are inspected.
	repo string

	// force skips the interactive confirmation prompt.
	force bool

	// dryRun only lists what would be removed.
	dryRun bool

	// olderThan protects resources of sessions that may still be running.
	olderThan time.Duration
}

// defaultCleanAge is longer than the default build timeout, so a running
// container older than this is stuck rather than building.
const defaultCleanAge = time.Hour

// NewCleanCommand creates the "clean" cobra command.
func NewCleanCommand() *cobra.Command {
	flags := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover build containers and isolated worktrees",
		Long: `Remove resources that an interrupted session left behind:

  - Docker containers labelled mutafix.managed-by=mutafix
  - detached git worktrees named mutafix-* (created by --isolate)

Stopped containers are always removed. Running containers and worktrees
are only removed once they are older than --older-than, since they may
belong to a session that is still running. Use --older-than 0 to remove
everything.

Containers from every repository are listed unless --repo is given. The
worktrees of the repository containing --repo (default: the current
directory) are inspected. If Docker is not reachable, only worktrees are
cleaned.

Unless --force is specified, the command prompts for confirmation.

Examples:
  mutafix clean --dry-run
  mutafix clean --force
  mutafix clean --repo ./service --json --force`,

		Args: usageArgs(cobra.NoArgs),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.repo, "repo", "", "Only clean resources of this repository")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List leftovers without removing them")
	cmd.Flags().DurationVar(&flags.olderThan, "older-than", defaultCleanAge,
		"Minimum age of running containers and worktrees to remove")

	return cmd
}

// cleanPlan is what the clean command found.
type cleanPlan struct {
	Containers []docker.ContainerInfo
	Worktrees  []workspace.WorktreeInfo
	RepoRoot   string

	// Skipped counts resources left alone because they are too recent.
	Skipped int

	// DockerUnavailable is set when containers could not be listed.
	DockerUnavailable bool
}

func (p *cleanPlan) empty() bool {
	return len(p.Containers) == 0 && len(p.Worktrees) == 0
}

// cleanResult is the JSON output structure for the clean command.
type cleanResult struct {
	DryRun            bool     `json:"dryRun"`
	DockerUnavailable bool     `json:"dockerUnavailable"`
	Containers        []string `json:"containers"`
	Worktrees         []string `json:"worktrees"`
	Skipped           int      `json:"skipped"`
	Removed           bool     `json:"removed"`
}

// runClean collects leftovers, confirms and removes them.
func runClean(ctx context.Context, in io.Reader, w io.Writer, flags *cleanFlags) error {
	repo := flags.repo
	if repo == "" {
		repo = "."
	}
	abs, err := filepath.Abs(repo)
	if err != nil {
		return model.WrapCLIError(model.ExitBaselineFailed, "invalid --repo", err)
	}

	plan := &cleanPlan{}
	now := time.Now()

	// Step 1: Docker containers. A missing daemon is not fatal.
	var cli *docker.Client
	if c, err := docker.NewClient(logger); err == nil {
		if pingErr := c.Ping(ctx); pingErr == nil {
			cli = c
			defer func() { _ = cli.Close() }()
		} else {
			_ = c.Close()
			VerboseLog("Docker not available: %v", pingErr)
		}
	} else {
		VerboseLog("Docker not available: %v", err)
	}
	if cli == nil {
		plan.DockerUnavailable = true
	} else {
		labelRepo := ""
		if flags.repo != "" {
			labelRepo = abs
		}
		containers, err := docker.ListManagedContainers(ctx, cli, labelRepo)
		if err != nil {
			return err
		}
		plan.Containers = leftoverContainers(containers, now, flags.olderThan)
		plan.Skipped += len(containers) - len(plan.Containers)
		VerboseLog("Found %d managed containers", len(containers))
	}

	// Step 2: isolated worktrees of the repository, if inside one.
	if root, err := workspace.GetRepoRoot(ctx, abs); err == nil {
		plan.RepoRoot = root
		worktrees, err := workspace.StaleWorktrees(ctx, root)
		if err != nil {
			return err
		}
		plan.Worktrees = leftoverWorktrees(worktrees, now, flags.olderThan)
		plan.Skipped += len(worktrees) - len(plan.Worktrees)
		VerboseLog("Found %d stale worktrees in %s", len(worktrees), root)
	} else {
		VerboseLog("Not inside a git repository, skipping worktrees: %v", err)
	}

	result := cleanResult{
		DryRun:            flags.dryRun,
		DockerUnavailable: plan.DockerUnavailable,
		Skipped:           plan.Skipped,
		Containers:        make([]string, 0, len(plan.Containers)),
		Worktrees:         make([]string, 0, len(plan.Worktrees)),
	}
	for _, c := range plan.Containers {
		result.Containers = append(result.Containers, c.Name)
	}
	for _, wt := range plan.Worktrees {
		result.Worktrees = append(result.Worktrees, wt.Path)
	}

	if !IsJSONOutput() {
		if plan.DockerUnavailable {
			fmt.Fprintln(w, "Docker is not available; skipping containers.")
		}
		writePlanTable(w, plan, now)
		if plan.Skipped > 0 {
			fmt.Fprintf(w, "Skipped %d resource(s) younger than %s; they may belong to a running session.\n",
				plan.Skipped, flags.olderThan)
		}
	}

	if plan.empty() || flags.dryRun {
		if IsJSONOutput() {
			return printJSON(w, result)
		}
		return nil
	}

	// Step 3: confirmation.
	if !flags.force {
		confirmed, err := promptConfirmation(in, w, len(plan.Containers), len(plan.Worktrees))
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	// Step 4: removal. Containers are force-removed; a build may still be
	// running in one whose session was killed.
	for _, c := range plan.Containers {
		VerboseLog("Removing container %s (%s)...", c.Name, shortID(c.ID))
		if err := docker.RemoveContainer(ctx, cli, c.ID, true); err != nil {
			return err
		}
	}
	for _, wt := range plan.Worktrees {
		VerboseLog("Removing worktree %s...", wt.Path)
		if err := workspace.RemoveWorktree(ctx, plan.RepoRoot, wt.Path, true); err != nil {
			return err
		}
	}
	result.Removed = true

	if IsJSONOutput() {
		return printJSON(w, result)
	}
	fmt.Fprintf(w, "Removed %d container(s) and %d worktree(s).\n", len(plan.Containers), len(plan.Worktrees))
	return nil
}

// leftoverContainers keeps stopped containers and running ones older than
// minAge. A running container with an unknown age is kept only when minAge
// is zero.
func leftoverContainers(containers []docker.ContainerInfo, now time.Time, minAge time.Duration) []docker.ContainerInfo {
	out := make([]docker.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		if c.Status == "running" && c.Age(now) < minAge {
			continue
		}
		out = append(out, c)
	}
	return out
}

// leftoverWorktrees keeps worktrees older than minAge. The age is taken
// from the worktree's .git link, which is written once when the worktree
// is added. Worktrees whose directory is gone always count as leftovers.
func leftoverWorktrees(worktrees []workspace.WorktreeInfo, now time.Time, minAge time.Duration) []workspace.WorktreeInfo {
	out := make([]workspace.WorktreeInfo, 0, len(worktrees))
	for _, wt := range worktrees {
		info, err := os.Stat(filepath.Join(wt.Path, ".git"))
		if err == nil && now.Sub(info.ModTime()) < minAge {
			continue
		}
		out = append(out, wt)
	}
	return out
}

// writePlanTable renders the leftovers:
//
//	+-----------+----------------------------+---------+-------+
//	| KIND      | NAME                       | STATUS  | AGE   |
//	+-----------+----------------------------+---------+-------+
//	| container | mutafix-1b2c3d4e-baseline  | exited  | 2h0m  |
//	| worktree  | /tmp/mutafix-123/repo      | stale   | -     |
func writePlanTable(w io.Writer, plan *cleanPlan, now time.Time) {
	if plan.empty() {
		fmt.Fprintln(w, "Nothing to clean.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kind", "Name", "Status", "Age"})
	table.SetAutoWrapText(false)

	rows := make([][]string, 0, len(plan.Containers)+len(plan.Worktrees))
	for _, c := range plan.Containers {
		age := "-"
		if d := c.Age(now); d > 0 {
			age = d.Truncate(time.Second).String()
		}
		rows = append(rows, []string{"container", c.Name, c.Status, age})
	}
	for _, wt := range plan.Worktrees {
		rows = append(rows, []string{"worktree", wt.Path, "stale", "-"})
	}
	table.AppendBulk(rows)
	table.Render()
}

// promptConfirmation asks the user to confirm removal and returns true
// only for an explicit "y" or "yes".
func promptConfirmation(in io.Reader, w io.Writer, containers, worktrees int) (bool, error) {
	fmt.Fprintf(w, "Remove %d container(s) and %d worktree(s)? [y/N]: ", containers, worktrees)

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}

	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == "yes", nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
