// Package build runs a project's build on the host and captures the result.
//
// The build tool is detected from marker files in the project root. Go
// modules are built with `go build ./...`, or compiled together with their
// tests through `go test -run ^$` when test files may be mutated; Gradle and Maven projects are
// built through their wrapper scripts when present, falling back to the
// globally installed tool.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// DefaultTimeout bounds a single build when Runner.Timeout is zero.
const DefaultTimeout = 30 * time.Minute

// ExitCodeNotStarted is reported when the build command could not be
// started at all (e.g. the tool is not installed), following the shell
// convention for "command not found".
const ExitCodeNotStarted = 127

// waitDelay gives a killed build this long to release its output pipes
// before Wait gives up on them.
const waitDelay = 2 * time.Second

// Tool identifies the detected build system.
type Tool string

const (
	ToolGo     Tool = "go"
	ToolGradle Tool = "gradle"
	ToolMaven  Tool = "maven"
)

// Command is a detected build invocation.
type Command struct {
	// Tool is the detected build system.
	Tool Tool

	// Program is the executable. For wrapper scripts it is the script's
	// file name relative to the project root (e.g. "gradlew").
	Program string

	// Wrapper is true when Program is a script inside the project.
	Wrapper bool

	// Args are the arguments passed to Program.
	Args []string
}

// Argv returns the full argument vector. Wrapper scripts are resolved
// against root; an empty root leaves them relative ("./gradlew").
func (c Command) Argv(root string) []string {
	program := c.Program
	if c.Wrapper {
		if root == "" {
			program = "./" + c.Program
		} else {
			program = filepath.Join(root, c.Program)
		}
	}
	return append([]string{program}, c.Args...)
}

// goCompileTestsArgs compile every package and its tests without running
// any test. Vet is off so that only compiler errors fail the build.
var goCompileTestsArgs = []string{"test", "-count=1", "-vet=off", "-run", "^$", "./..."}

// DetectOptions tunes DetectCommand.
type DetectOptions struct {
	// SkipTests disables test execution for Gradle and Maven.
	SkipTests bool

	// CompileTests makes Go builds compile _test.go files as well. Tests
	// are never run.
	CompileTests bool
}

// DetectCommand inspects dir and returns the build command for it.
// Detection order: go.mod, Gradle wrapper, Maven wrapper, Gradle build
// file, pom.xml.
func DetectCommand(dir string, opts DetectOptions) (Command, error) {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}

	gradleArgs := []string{"--no-daemon", "clean", "build"}
	if opts.SkipTests {
		gradleArgs = append(gradleArgs, "-x", "test")
	}
	mavenArgs := []string{"-B", "-q", "clean", "package"}
	if opts.SkipTests {
		mavenArgs = append(mavenArgs, "-DskipTests=true")
	}

	gradlew, mvnw := "gradlew", "mvnw"
	if runtime.GOOS == "windows" {
		gradlew, mvnw = "gradlew.bat", "mvnw.cmd"
	}

	switch {
	case exists("go.mod"):
		goArgs := []string{"build", "./..."}
		if opts.CompileTests {
			goArgs = append([]string(nil), goCompileTestsArgs...)
		}
		return Command{Tool: ToolGo, Program: "go", Args: goArgs}, nil
	case exists(gradlew):
		return Command{Tool: ToolGradle, Program: gradlew, Wrapper: true, Args: gradleArgs}, nil
	case exists(mvnw):
		return Command{Tool: ToolMaven, Program: mvnw, Wrapper: true, Args: mavenArgs}, nil
	case exists("build.gradle") || exists("build.gradle.kts"):
		return Command{Tool: ToolGradle, Program: "gradle", Args: gradleArgs}, nil
	case exists("pom.xml"):
		return Command{Tool: ToolMaven, Program: "mvn", Args: mavenArgs}, nil
	default:
		return Command{}, fmt.Errorf("could not detect build tool in %s", dir)
	}
}

// Runner builds a project on the host.
type Runner struct {
	// Dir is the project root.
	Dir string

	// SkipTests disables test execution for Gradle and Maven.
	SkipTests bool

	// CompileTests also compiles Go test files (see DetectOptions).
	CompileTests bool

	// Timeout bounds the build. Zero means DefaultTimeout.
	Timeout time.Duration

	// Env holds extra environment variables on top of the current process
	// environment.
	Env map[string]string

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// Build detects and runs the build command.
//
// A build that runs but fails is not an error: it is reported through
// BuildResult.Success and ExitCode. A timeout yields model.ExitCodeTimeout
// and a command that cannot be started yields ExitCodeNotStarted. An error
// is returned only when no build tool can be detected or ctx is cancelled.
func (r *Runner) Build(ctx context.Context) (model.BuildResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := filepath.Abs(r.Dir)
	if err != nil {
		return model.BuildResult{}, fmt.Errorf("resolve build directory: %w", err)
	}

	command, err := DetectCommand(dir, DetectOptions{SkipTests: r.SkipTests, CompileTests: r.CompileTests})
	if err != nil {
		return model.BuildResult{}, err
	}
	if command.Wrapper && runtime.GOOS != "windows" {
		ensureExecutable(filepath.Join(dir, command.Program))
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	buildCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := command.Argv(dir)
	cmd := exec.CommandContext(buildCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = r.environment()
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Running build",
		zap.String("phase", PhaseFrom(ctx).String()),
		zap.String("dir", dir),
		zap.String("tool", string(command.Tool)),
		zap.Strings("argv", argv),
		zap.Duration("timeout", timeout))

	start := time.Now()
	runErr := cmd.Run()
	result := model.BuildResult{
		Cmd:      argv,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		result.Success = true
		result.ExitCode = 0
	case errors.Is(buildCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.ExitCode = model.ExitCodeTimeout
		result.Stderr = appendLine(result.Stderr, fmt.Sprintf("build timed out after %s", timeout))
	case ctx.Err() != nil:
		return result, fmt.Errorf("build cancelled: %w", ctx.Err())
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = ExitCodeNotStarted
		result.Stderr = appendLine(result.Stderr, runErr.Error())
	}

	logger.Debug("Build finished",
		zap.Bool("success", result.Success),
		zap.Int("exitCode", result.ExitCode),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// environment returns the process environment with Env applied. When a
// Java 17 home is advertised through JAVA_HOME_17 or JAVA17_HOME it is
// promoted to JAVA_HOME, since Gradle and Maven wrappers read only that.
func (r *Runner) environment() []string {
	env := os.Environ()
	for _, key := range []string{"JAVA_HOME_17", "JAVA17_HOME"} {
		if home := os.Getenv(key); home != "" {
			env = append(env, "JAVA_HOME="+home)
			break
		}
	}
	for k, v := range r.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// ensureExecutable sets the owner execute bit on a wrapper script. Wrappers
// checked out from archives often lose it.
func ensureExecutable(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o100 == 0 {
		_ = os.Chmod(path, info.Mode().Perm()|0o100)
	}
}

func appendLine(text, line string) string {
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + line + "\n"
}
