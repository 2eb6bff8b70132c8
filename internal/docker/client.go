package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// defaultPingTimeout bounds a single daemon ping. Docker Desktop on macOS
// can take a few seconds to answer after waking up.
const defaultPingTimeout = 5 * time.Second

// pingAttempts is how many pings are tried before the daemon is reported
// as unreachable.
const pingAttempts = 3

// Client wraps the Docker Engine SDK client. It handles Docker socket
// detection across platforms and verifies daemon connectivity before any
// build container is created.
//
// Usage:
//
//	c, err := docker.NewClient(logger)
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* Docker not running */ }
type Client struct {
	// inner is wrapped rather than embedded to keep the exposed API small.
	inner  *client.Client
	host   string
	logger *zap.Logger
}

// NewClient creates a Docker client.
//
// The daemon address is resolved in this order:
//  1. DOCKER_HOST, used as-is
//  2. Platform default sockets:
//     - Linux: /var/run/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitDockerNotRunning if no socket is found
// or the client cannot be created.
func NewClient(logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	host := os.Getenv("DOCKER_HOST")
	if host == "" {
		detected, err := detectDockerHost()
		if err != nil {
			return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", err)
		}
		host = detected
	}

	// WithAPIVersionNegotiation keeps the client compatible with older
	// daemons without pinning an API version.
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	logger.Debug("Docker client created", zap.String("host", host))
	return &Client{inner: c, host: host, logger: logger}, nil
}

// detectDockerHost probes the platform's known socket locations and
// returns the first that exists. Existence is enough here; Ping checks
// that a daemon is actually listening.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{"/var/run/docker.sock"})

	case "darwin":
		paths := []string{"/var/run/docker.sock"}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
		}
		return detectUnixSocket(paths)

	case "windows":
		// os.Stat does not work on named pipes, so dial briefly instead.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err != nil {
			return "", fmt.Errorf("Docker named pipe not found at %s: %w", pipePath, err)
		}
		conn.Close()
		return "npipe://" + pipePath, nil

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the Docker host URI for the first existing path.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v — is Docker running?", paths)
}

// Ping verifies that the Docker daemon is reachable. Each attempt waits up
// to defaultPingTimeout; a daemon that is still starting gets a few tries.
//
// Returns a model.CLIError with ExitDockerNotRunning if every attempt fails.
func (c *Client) Ping(ctx context.Context) error {
	err := retry.Do(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
		defer cancel()
		_, err := c.inner.Ping(pingCtx)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(pingAttempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			c.logger.Debug("Docker ping failed", zap.Uint("attempt", attempt+1), zap.Error(err))
		}),
	)
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker daemon is not responding — is Docker running?",
			err,
		)
	}
	return nil
}

// Host returns the daemon address the client connects to.
func (c *Client) Host() string {
	return c.host
}

// Close releases the resources held by the client. It is safe to call
// more than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// Inner returns the underlying Docker SDK client.
func (c *Client) Inner() *client.Client {
	return c.inner
}
