package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/shinji-kodama/mutafix/internal/build"
	"github.com/shinji-kodama/mutafix/internal/model"
)

// MountPoint is where the project is bind-mounted inside the container.
const MountPoint = "/src"

// pullAttempts bounds image pulls; registries fail transiently often
// enough that a single attempt is not worth reporting as a hard error.
const pullAttempts = 3

// Builder runs the project's build inside a throwaway container. The build
// command is detected the same way build.Runner detects it, so a project
// builds identically on the host and in Docker as long as the image
// carries the toolchain.
type Builder struct {
	// Client talks to the Docker daemon.
	Client *Client

	// Dir is the project root on the host. It is bind-mounted at MountPoint.
	Dir string

	// Image is the build image, e.g. "golang:1.25".
	Image string

	// Pull forces an image pull before the build. Without it the image is
	// pulled only when it is missing locally.
	Pull bool

	// SkipTests disables test execution for Gradle and Maven.
	SkipTests bool

	// CompileTests also compiles Go test files.
	CompileTests bool

	// Timeout bounds the build. Zero means build.DefaultTimeout.
	Timeout time.Duration

	// Env is passed to the container. The host environment is not.
	Env map[string]string

	// Labels identify the session. Phase is taken from the build context
	// when set there.
	Labels RunLabels

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// Build runs the detected build command in a container and removes the
// container afterwards. Result semantics match build.Runner: a failing
// build is reported through Success and ExitCode, a timeout yields
// model.ExitCodeTimeout, and errors are returned only for problems that
// prevent the build from running at all (no daemon, no image, cancelled
// context).
func (b *Builder) Build(ctx context.Context) (model.BuildResult, error) {
	logger := b.logger()

	dir, err := filepath.Abs(b.Dir)
	if err != nil {
		return model.BuildResult{}, fmt.Errorf("resolve build directory: %w", err)
	}
	command, err := build.DetectCommand(dir, build.DetectOptions{
		SkipTests:    b.SkipTests,
		CompileTests: b.CompileTests,
	})
	if err != nil {
		return model.BuildResult{}, err
	}

	if err := b.ensureImage(ctx); err != nil {
		return model.BuildResult{}, err
	}

	labels := b.Labels
	if phase := build.PhaseFrom(ctx); phase != "" {
		labels.Phase = phase
	}
	if labels.Repo == "" {
		labels.Repo = dir
	}
	if labels.CreatedAt.IsZero() {
		labels.CreatedAt = time.Now()
	}

	argv := command.Argv("")
	cfg, hostCfg := containerConfig(b.Image, dir, argv, b.environment(command.Tool), labels)

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = build.DefaultTimeout
	}
	buildCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := ContainerName(labels.RunID, labels.Phase)
	logger.Debug("Creating build container",
		zap.String("name", name),
		zap.String("image", b.Image),
		zap.String("dir", dir),
		zap.Strings("argv", argv))

	inner := b.Client.Inner()
	created, err := inner.ContainerCreate(buildCtx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return model.BuildResult{}, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create build container %s", name), err)
	}
	// Removal uses its own context so it still runs after a timeout.
	defer func() {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer rmCancel()
		if err := RemoveContainer(rmCtx, b.Client, created.ID, true); err != nil {
			logger.Warn("Failed to remove build container", zap.String("id", created.ID), zap.Error(err))
		}
	}()

	result := model.BuildResult{Cmd: dockerRunArgv(b.Image, dir, argv)}
	start := time.Now()

	if err := inner.ContainerStart(buildCtx, created.ID, container.StartOptions{}); err != nil {
		return model.BuildResult{}, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start build container %s", name), err)
	}

	statusCh, errCh := inner.ContainerWait(buildCtx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case status := <-statusCh:
		exitCode = status.StatusCode
		if status.Error != nil && status.Error.Message != "" {
			result.Stderr = status.Error.Message + "\n"
		}
	case err := <-errCh:
		if buildCtx.Err() == nil {
			return model.BuildResult{}, model.WrapCLIError(model.ExitDockerNotRunning,
				fmt.Sprintf("failed waiting for build container %s", name), err)
		}
	case <-buildCtx.Done():
	}
	result.Duration = time.Since(start)

	if buildCtx.Err() != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("build cancelled: %w", ctx.Err())
		}
		if errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
			result.ExitCode = model.ExitCodeTimeout
			result.Stdout, result.Stderr = b.collectLogs(created.ID)
			result.Stderr = appendLine(result.Stderr, fmt.Sprintf("build timed out after %s", timeout))
			return result, nil
		}
	}

	stdout, stderr := b.collectLogs(created.ID)
	result.Stdout = stdout
	result.Stderr += stderr
	result.ExitCode = int(exitCode)
	result.Success = exitCode == 0

	logger.Debug("Container build finished",
		zap.String("phase", labels.Phase.String()),
		zap.Bool("success", result.Success),
		zap.Int("exitCode", result.ExitCode),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// ensureImage pulls the build image when Pull is set or the image is not
// present locally. Pulls are retried with backoff.
func (b *Builder) ensureImage(ctx context.Context) error {
	inner := b.Client.Inner()
	if !b.Pull {
		images, err := inner.ImageList(ctx, image.ListOptions{
			Filters: filters.NewArgs(filters.Arg("reference", b.Image)),
		})
		if err == nil && len(images) > 0 {
			return nil
		}
	}

	logger := b.logger()
	logger.Debug("Pulling build image", zap.String("image", b.Image))
	err := retry.Do(func() error {
		rc, err := inner.ImagePull(ctx, b.Image, image.PullOptions{})
		if err != nil {
			return err
		}
		defer rc.Close()
		// The pull only completes once its progress stream is consumed.
		_, err = io.Copy(io.Discard, rc)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(pullAttempts),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			logger.Warn("Image pull failed, retrying",
				zap.String("image", b.Image),
				zap.Uint("attempt", attempt+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %s", b.Image), err)
	}
	return nil
}

// collectLogs reads the container's output. Containers created without a
// TTY multiplex stdout and stderr on one stream, which stdcopy splits.
func (b *Builder) collectLogs(id string) (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc, err := b.Client.Inner().ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		b.logger().Debug("Failed to read container logs", zap.String("id", id), zap.Error(err))
		return "", ""
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		b.logger().Debug("Failed to demultiplex container logs", zap.String("id", id), zap.Error(err))
	}
	return stdout.String(), stderr.String()
}

// environment returns the container's environment as a sorted KEY=VALUE
// list. Go builds get -buildvcs=false because the mounted tree is often a
// linked worktree whose .git file points outside the container.
func (b *Builder) environment(tool build.Tool) []string {
	env := make(map[string]string, len(b.Env)+4)
	if tool == build.ToolGo {
		env["GOFLAGS"] = "-buildvcs=false"
	}
	if hostUser() != "" {
		// An arbitrary UID has no writable home in most images.
		env["HOME"] = "/tmp"
		if tool == build.ToolGo {
			env["GOCACHE"] = "/tmp/.cache/go-build"
			env["GOPATH"] = "/tmp/go"
		}
	}
	for k, v := range b.Env {
		env[k] = v
	}
	return envList(env)
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// containerConfig assembles the create request for a build container.
func containerConfig(img, dir string, argv, env []string, labels RunLabels) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:      img,
		Cmd:        argv,
		Env:        env,
		WorkingDir: MountPoint,
		Labels:     BuildLabels(labels),
		User:       hostUser(),
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: dir,
			Target: MountPoint,
		}},
	}
	return cfg, hostCfg
}

// dockerRunArgv is the docker CLI equivalent of the build, recorded in the
// report so a failing build can be reproduced by hand.
func dockerRunArgv(img, dir string, argv []string) []string {
	out := []string{"docker", "run", "--rm", "-v", dir + ":" + MountPoint, "-w", MountPoint, img}
	return append(out, argv...)
}

// hostUser returns "uid:gid" on Linux so build outputs written into the
// bind mount stay owned by the invoking user. Elsewhere Docker Desktop
// maps ownership itself and "" is returned.
func hostUser() string {
	if runtime.GOOS != "linux" {
		return ""
	}
	uid, gid := os.Getuid(), os.Getgid()
	if uid <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", uid, gid)
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func appendLine(text, line string) string {
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + line + "\n"
}
