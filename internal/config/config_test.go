package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/mutafix/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "rename-local", cfg.Operation)
	assert.Equal(t, DefaultLimit, cfg.Limit)
	assert.Equal(t, DefaultDiagnosticsLines, cfg.DiagnosticsLines)
	assert.Equal(t, DefaultDockerImage, cfg.Build.Docker.Image)
	assert.True(t, cfg.SkipTests())
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".mutafix.yaml", `
operation: flip-if
include:
  - "cmd/**/*.go"
limit: 3
pickIndex: 2
failOnBuild: true
build:
  timeout: 90s
  env:
    CGO_ENABLED: "0"
  docker:
    enabled: true
    image: golang:1.24
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, model.OpFlipIf, cfg.MustOperation())
	assert.Equal(t, []string{"cmd/**/*.go"}, cfg.Include)
	assert.Equal(t, 3, cfg.Limit)
	require.NotNil(t, cfg.PickIndex)
	assert.Equal(t, 2, *cfg.PickIndex)
	assert.Nil(t, cfg.RandomSeed)
	assert.True(t, cfg.FailOnBuild)
	assert.Equal(t, "0", cfg.Build.Env["CGO_ENABLED"])
	assert.True(t, cfg.Build.Docker.Enabled)
	assert.Equal(t, "golang:1.24", cfg.Build.Docker.Image)

	timeout, err := cfg.BuildTimeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, timeout)

	// Unset fields keep their defaults.
	assert.Equal(t, DefaultDiagnosticsLines, cfg.DiagnosticsLines)
}

// TestLoad_JSONC verifies that comments and trailing commas are accepted
// in .mutafix.json files.
func TestLoad_JSONC(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".mutafix.json", `{
  // which mutation to apply
  "operation": "double-negate-if",
  /* try a few files */
  "limit": 5,
  "randomSeed": 42,
  "build": { "skipTests": false, },
}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "double-negate-if", cfg.Operation)
	assert.Equal(t, 5, cfg.Limit)
	require.NotNil(t, cfg.RandomSeed)
	assert.Equal(t, int64(42), *cfg.RandomSeed)
	assert.False(t, cfg.SkipTests())
}

func TestFind_Priority(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", Find(dir))

	writeFile(t, dir, ".mutafix.json", `{}`)
	assert.Equal(t, filepath.Join(dir, ".mutafix.json"), Find(dir))

	writeFile(t, dir, ".mutafix.yaml", `limit: 2`)
	assert.Equal(t, filepath.Join(dir, ".mutafix.yaml"), Find(dir))
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".mutafix.yaml", "limit: [not, a, number]\n")

	_, err := Load(dir)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitInvalidConfig, cliErr.Code)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"unknown operation", func(c *Config) { c.Operation = "explode" }, "invalid operation"},
		{"zero limit", func(c *Config) { c.Limit = 0 }, "limit must be >= 1"},
		{"negative diagnostics", func(c *Config) { c.DiagnosticsLines = -1 }, "diagnosticsLines"},
		{"bad report format", func(c *Config) { c.ReportFormat = "xml" }, "reportFormat"},
		{"bad timeout", func(c *Config) { c.Build.Timeout = "soon" }, "build.timeout"},
		{"negative timeout", func(c *Config) { c.Build.Timeout = "-1s" }, "must be positive"},
		{"docker without image", func(c *Config) {
			c.Build.Docker.Enabled = true
			c.Build.Docker.Image = ""
		}, "build.docker.image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_NormalizesCase(t *testing.T) {
	cfg := Default()
	cfg.Operation = "FLIP-IF"
	cfg.ReportFormat = "YAML"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "flip-if", cfg.Operation)
	assert.Equal(t, "yaml", cfg.ReportFormat)
}
