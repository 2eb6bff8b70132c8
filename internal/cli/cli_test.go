package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/mutafix/internal/config"
	"github.com/shinji-kodama/mutafix/internal/docker"
	"github.com/shinji-kodama/mutafix/internal/model"
	"github.com/shinji-kodama/mutafix/internal/report"
	"github.com/shinji-kodama/mutafix/internal/workspace"
)

// executeCommand runs the root command with args and returns what it
// wrote to stdout and stderr.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(func() { jsonOutput = false; verbose = false })

	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func exitCodeOf(t *testing.T, err error) model.ExitCode {
	t.Helper()
	if err == nil {
		return model.ExitSuccess
	}
	var buf bytes.Buffer
	return handleError(&buf, err)
}

func TestApplyMutateFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Exclude = []string{"vendor/"}
	cfg.Limit = 3

	flags := &mutateFlags{
		operation:    "flip-if",
		fileGlobs:    []string{"internal/**/*.go"},
		excludes:     []string{"*_gen.go"},
		limit:        7,
		pickIndex:    2,
		randomSeed:   42,
		failOnBuild:  true,
		docker:       true,
		dockerImage:  "golang:1.24",
		timeout:      "10m",
		keepMutation: true,
	}
	set := map[string]bool{
		"operation":     true,
		"file-glob":     true,
		"exclude":       true,
		"pick-index":    true,
		"random-seed":   true,
		"fail-on-build": true,
		"docker":        true,
		"docker-image":  true,
		"timeout":       true,
	}
	applyMutateFlags(cfg, flags, func(name string) bool { return set[name] })

	assert.Equal(t, "flip-if", cfg.Operation)
	assert.Equal(t, []string{"internal/**/*.go"}, cfg.Include)
	assert.Equal(t, []string{"vendor/", "*_gen.go"}, cfg.Exclude, "excludes are appended")
	assert.Equal(t, 3, cfg.Limit, "unset flags keep the config value")
	require.NotNil(t, cfg.PickIndex)
	assert.Equal(t, 2, *cfg.PickIndex)
	require.NotNil(t, cfg.RandomSeed)
	assert.Equal(t, int64(42), *cfg.RandomSeed)
	assert.True(t, cfg.FailOnBuild)
	assert.False(t, cfg.KeepMutation, "keep-mutation was not set on the command line")
	assert.True(t, cfg.Build.Docker.Enabled)
	assert.Equal(t, "golang:1.24", cfg.Build.Docker.Image)
	assert.Equal(t, "10m", cfg.Build.Timeout)
}

func TestApplyMutateFlags_NothingChanged(t *testing.T) {
	cfg := config.Default()
	want := *config.Default()

	applyMutateFlags(cfg, &mutateFlags{operation: "flip-if", limit: 9}, func(string) bool { return false })

	assert.Equal(t, want, *cfg)
}

func TestSessionOptions(t *testing.T) {
	tests := []struct {
		name          string
		cfgFormat     string
		reportPath    string
		formatFlagSet bool
		want          report.Format
	}{
		{"config default", "json", "", false, report.FormatJSON},
		{"yaml extension", "json", "out/report.yaml", false, report.FormatYAML},
		{"yml extension", "json", "out/report.yml", false, report.FormatYAML},
		{"unknown extension keeps config", "yaml", "out/report.txt", false, report.FormatYAML},
		{"flag wins over extension", "json", "out/report.yaml", true, report.FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.ReportFormat = tt.cfgFormat
			require.NoError(t, cfg.Validate())

			opts, err := sessionOptions(cfg, "/repo", tt.reportPath, tt.formatFlagSet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts.ReportFormat)
			assert.Equal(t, "/repo", opts.Repo)
			assert.Equal(t, tt.reportPath, opts.ReportPath)
			assert.Equal(t, model.DefaultOperation, opts.Operation)
		})
	}
}

func TestSessionOptions_InvalidFormat(t *testing.T) {
	cfg := config.Default()
	cfg.ReportFormat = "xml"

	_, err := sessionOptions(cfg, "/repo", "", false)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitInvalidConfig, cliErr.Code)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   model.ExitCode
		wantOutput string
	}{
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantCode:   model.ExitGeneralError,
			wantOutput: "Error: boom\n",
		},
		{
			name:       "cli error with cause",
			err:        model.WrapCLIError(model.ExitGitError, "git stash failed", errors.New("exit status 1")),
			wantCode:   model.ExitGitError,
			wantOutput: "Error: git stash failed: exit status 1\n",
		},
		{
			name:       "silent exit code",
			err:        exitWith(model.ExitBaselineFailed),
			wantCode:   model.ExitBaselineFailed,
			wantOutput: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Equal(t, tt.wantCode, handleError(&buf, tt.err))
			assert.Equal(t, tt.wantOutput, buf.String())
		})
	}
}

func TestExitWithSuccessIsNil(t *testing.T) {
	assert.NoError(t, exitWith(model.ExitSuccess))
}

func TestPrintErrorJSON(t *testing.T) {
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	var buf bytes.Buffer
	printError(&buf, "invalid configuration", errors.New("limit must be >= 1"))

	var got struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "invalid configuration", got.Error.Message)
	assert.Equal(t, "limit must be >= 1", got.Error.Detail)
}

func TestOperationsCommand(t *testing.T) {
	stdout, _, err := executeCommand(t, "operations")
	require.NoError(t, err)

	for _, op := range model.AllOperations() {
		assert.Contains(t, stdout, op.String())
		assert.Contains(t, stdout, op.Describe().Help)
	}
	assert.Contains(t, stdout, model.DefaultOperation.String()+" *")
}

func TestOperationsCommand_JSON(t *testing.T) {
	stdout, _, err := executeCommand(t, "operations", "--json")
	require.NoError(t, err)

	var got map[string][]struct {
		Name    string `json:"name"`
		Default bool   `json:"default"`
		Label   string `json:"label"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got["operations"], len(model.AllOperations()))

	defaults := 0
	for _, op := range got["operations"] {
		assert.NotEmpty(t, op.Label)
		if op.Default {
			defaults++
			assert.Equal(t, model.DefaultOperation.String(), op.Name)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestSampleCommand(t *testing.T) {
	stdout, _, err := executeCommand(t, "sample")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "Hello World!\n"))
	assert.True(t, strings.HasSuffix(stdout, "Sum = 10\n"))
}

func TestFixtureCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "target")

	stdout, _, err := executeCommand(t, "fixture", dir, "--variant", "target", "--module", "example.com/target")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Created target fixture")

	goMod, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	require.NoError(t, err)
	assert.Contains(t, string(goMod), "module example.com/target")
	assert.FileExists(t, filepath.Join(dir, "main.go"))
	assert.FileExists(t, filepath.Join(dir, ".mutafix.yaml"))

	// A second run refuses to overwrite.
	_, _, err = executeCommand(t, "fixture", dir, "--variant", "target")
	assert.Equal(t, model.ExitGeneralError, exitCodeOf(t, err))

	_, _, err = executeCommand(t, "fixture", dir, "--variant", "target", "--force")
	assert.NoError(t, err)
}

func TestFixtureCommand_UnknownVariant(t *testing.T) {
	_, _, err := executeCommand(t, "fixture", t.TempDir(), "--variant", "library")
	assert.Equal(t, model.ExitBaselineFailed, exitCodeOf(t, err))
}

func TestFixtureCommand_JSON(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := executeCommand(t, "fixture", dir, "--json", "--force")
	require.NoError(t, err)

	var got struct {
		Variant string   `json:"variant"`
		Files   []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "app", got.Variant)
	assert.Len(t, got.Files, 3)
}

func writeTestReport(t *testing.T, name string, mutated *model.BuildResult) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	r := report.New(report.Input{
		RunID:     "11111111-2222-3333-4444-555555555555",
		Repo:      "/work/app",
		Operation: model.OpFlipIf,
		Target:    "main.go",
		Mutation:  &model.MutationResult{File: "main.go", OldName: "number > 3", NewName: "!(number > 3)", Changed: true},
		Baseline:  &model.BuildResult{Success: true, Cmd: []string{"go", "build", "./..."}, Duration: time.Second},
		Mutated:   mutated,
		Now:       func() time.Time { return time.Date(2025, 8, 13, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, r.Write(path, report.FormatForPath(path, report.FormatJSON)))
	return path
}

func TestReportCommand(t *testing.T) {
	path := writeTestReport(t, "report.yaml", &model.BuildResult{Success: true, Duration: 2 * time.Second})

	stdout, _, err := executeCommand(t, "report", path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "11111111-2222-3333-4444-555555555555")
	assert.Contains(t, stdout, "flip-if")
	assert.Contains(t, stdout, "number > 3 → !(number > 3)")
	assert.Contains(t, stdout, "ok in 2s")
	assert.Contains(t, stdout, "Verdict: ok (buildability preserved: true)")
}

func TestReportCommand_MutatedBuildFailed(t *testing.T) {
	path := writeTestReport(t, "report.json", &model.BuildResult{Success: false, ExitCode: 1})

	stdout, _, err := executeCommand(t, "report", path)
	require.NoError(t, err, "a failed mutated build only fails with --fail-on-build")
	assert.Contains(t, stdout, "failed (exit 1)")

	_, _, err = executeCommand(t, "report", path, "--fail-on-build")
	assert.Equal(t, model.ExitGeneralError, exitCodeOf(t, err))
}

func TestReportCommand_JSON(t *testing.T) {
	path := writeTestReport(t, "report.json", &model.BuildResult{Success: true})

	stdout, _, err := executeCommand(t, "report", path, "--json")
	require.NoError(t, err)

	var got report.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, model.VerdictOK, got.Verdict)
	assert.Equal(t, "main.go", got.TargetFile)
}

func TestReportCommand_MissingFile(t *testing.T) {
	_, _, err := executeCommand(t, "report", filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, model.ExitGeneralError, exitCodeOf(t, err))
}

func TestVerdictExitCode(t *testing.T) {
	tests := []struct {
		verdict     model.Verdict
		failOnBuild bool
		want        model.ExitCode
	}{
		{model.VerdictOK, false, model.ExitSuccess},
		{model.VerdictNoMutation, true, model.ExitSuccess},
		{model.VerdictBaselineFailed, false, model.ExitBaselineFailed},
		{model.VerdictMutatedBuildFailed, false, model.ExitSuccess},
		{model.VerdictMutatedBuildFailed, true, model.ExitGeneralError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, verdictExitCode(tt.verdict, tt.failOnBuild), "%s fail-on-build=%t", tt.verdict, tt.failOnBuild)
	}
}

func TestPromptConfirmation(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"yes", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got, err := promptConfirmation(strings.NewReader(tt.input), &out, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "Remove 2 container(s) and 1 worktree(s)? [y/N]")
	}
}

func TestWritePlanTable(t *testing.T) {
	now := time.Date(2025, 8, 13, 12, 0, 0, 0, time.UTC)

	var empty bytes.Buffer
	writePlanTable(&empty, &cleanPlan{}, now)
	assert.Equal(t, "Nothing to clean.\n", empty.String())

	plan := &cleanPlan{
		Containers: []docker.ContainerInfo{{
			ID:     "0123456789abcdef",
			Name:   "mutafix-11111111-baseline",
			Status: "exited",
			Run:    &docker.RunLabels{RunID: "11111111", CreatedAt: now.Add(-90 * time.Minute)},
		}},
		Worktrees: []workspace.WorktreeInfo{{Path: "/tmp/mutafix-123/app"}},
	}
	var buf bytes.Buffer
	writePlanTable(&buf, plan, now)

	out := buf.String()
	assert.Contains(t, out, "mutafix-11111111-baseline")
	assert.Contains(t, out, "exited")
	assert.Contains(t, out, "1h30m0s")
	assert.Contains(t, out, "/tmp/mutafix-123/app")
	assert.Contains(t, out, "stale")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortID("0123456789abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestMutateCommand_RequiresRepo(t *testing.T) {
	_, _, err := executeCommand(t, "mutate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--repo")
	assert.Equal(t, model.ExitBaselineFailed, exitCodeOf(t, err))
}

func TestUsageErrorsExitWithTwo(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"mutate", "--repo", ".", "--bogus"}},
		{"bad flag value", []string{"mutate", "--repo", ".", "--limit", "many"}},
		{"unknown flag on another command", []string{"operations", "--wide"}},
		{"missing argument", []string{"report"}},
		{"extra argument", []string{"sample", "now"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, model.ExitBaselineFailed, exitCodeOf(t, err))
		})
	}
}

func TestMutateCommand_InvalidOperation(t *testing.T) {
	_, _, err := executeCommand(t, "mutate", "--repo", t.TempDir(), "--operation", "delete-everything")
	assert.Equal(t, model.ExitInvalidConfig, exitCodeOf(t, err))
}

// TestMutateCommand_Fixture generates the target fixture and runs a real
// flip-if session against it with the host Go toolchain.
func TestMutateCommand_Fixture(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a Go module")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not found in PATH")
	}

	dir := filepath.Join(t.TempDir(), "target")
	_, _, err := executeCommand(t, "fixture", dir, "--variant", "target")
	require.NoError(t, err)

	before, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)

	reportPath := filepath.Join(t.TempDir(), "report.json")
	stdout, _, err := executeCommand(t, "mutate", "--repo", dir, "--json-out", reportPath)
	require.NoError(t, err)

	assert.Contains(t, stdout, "== Baseline build (pre-mutation) ==")
	assert.Contains(t, stdout, "Flipped if/else in main.go")
	assert.Contains(t, stdout, "Buildability preserved after mutation.")
	assert.Contains(t, stdout, "Verdict: ok (buildability preserved: true)")

	after, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "the mutated file is restored")

	r, err := report.Read(reportPath)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictOK, r.Verdict)
	assert.Equal(t, "flip-if", r.Operation)
	assert.Equal(t, "main.go", r.TargetFile)
}

// TestMutateCommand_IncludeTestsCompilesTests checks that a broken test file
// fails the baseline once test files are part of the session.
func TestMutateCommand_IncludeTestsCompilesTests(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a Go module")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not found in PATH")
	}

	dir := t.TempDir()
	files := map[string]string{
		"go.mod":    "module example.com/broken\n\ngo 1.22\n",
		"a.go":      "package broken\n\nfunc Answer() int { return 42 }\n",
		"a_test.go": "package broken\n\nimport \"testing\"\n\nfunc TestAnswer(t *testing.T) { undefinedThing() }\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	stdout, _, err := executeCommand(t, "mutate", "--repo", dir,
		"--include-tests", "--file-glob", "a_test.go", "--operation", "insert-comment")

	assert.Equal(t, model.ExitBaselineFailed, exitCodeOf(t, err))
	assert.Contains(t, stdout, "Baseline build failed.")
	assert.Contains(t, stdout, "Verdict: baseline_failed")
}

func TestLeftoverContainers(t *testing.T) {
	now := time.Date(2025, 8, 13, 12, 0, 0, 0, time.UTC)
	started := func(ago time.Duration) *docker.RunLabels {
		return &docker.RunLabels{RunID: "11111111", CreatedAt: now.Add(-ago)}
	}
	containers := []docker.ContainerInfo{
		{Name: "mutafix-a-baseline", Status: "running", Run: started(5 * time.Minute)},
		{Name: "mutafix-b-baseline", Status: "running", Run: started(3 * time.Hour)},
		{Name: "mutafix-c-mutated", Status: "exited", Run: started(time.Minute)},
		{Name: "mutafix-d-mutated", Status: "running"},
	}

	names := func(cs []docker.ContainerInfo) []string {
		out := []string{}
		for _, c := range cs {
			out = append(out, c.Name)
		}
		return out
	}

	assert.Equal(t, []string{"mutafix-b-baseline", "mutafix-c-mutated"},
		names(leftoverContainers(containers, now, time.Hour)),
		"recent and undated running containers are left alone")
	assert.Len(t, leftoverContainers(containers, now, 0), 4)
}

func TestLeftoverWorktrees(t *testing.T) {
	now := time.Now()
	worktree := func(age time.Duration) string {
		dir := t.TempDir()
		link := filepath.Join(dir, ".git")
		require.NoError(t, os.WriteFile(link, []byte("gitdir: /repo/.git/worktrees/x\n"), 0o644))
		stamp := now.Add(-age)
		require.NoError(t, os.Chtimes(link, stamp, stamp))
		return dir
	}

	fresh := worktree(2 * time.Minute)
	old := worktree(2 * time.Hour)
	gone := filepath.Join(t.TempDir(), "mutafix-gone")
	worktrees := []workspace.WorktreeInfo{{Path: fresh}, {Path: old}, {Path: gone}}

	got := leftoverWorktrees(worktrees, now, time.Hour)
	assert.Equal(t, []workspace.WorktreeInfo{{Path: old}, {Path: gone}}, got)
	assert.Len(t, leftoverWorktrees(worktrees, now, 0), 3)
}
