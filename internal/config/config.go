// Package config loads mutafix settings from a repository-level file.
//
// Settings may live in .mutafix.yaml, .mutafix.yml or .mutafix.json. JSON
// files may contain comments and trailing commas (JSONC); they are cleaned
// with github.com/tidwall/jsonc before being handed to encoding/json.
//
// Precedence is: command-line flags > config file > built-in defaults. The
// CLI applies flag overrides after Load returns.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// FileNames lists the config file names probed at the repository root,
// in priority order. The first one that exists wins.
var FileNames = []string{".mutafix.yaml", ".mutafix.yml", ".mutafix.json"}

// Defaults used when neither the config file nor flags set a value.
const (
	DefaultLimit            = 1
	DefaultDiagnosticsLines = 50
	DefaultBuildTimeout     = 30 * time.Minute
	DefaultDockerImage      = "golang:1.25"
	DefaultReportFormat     = "json"
)

// Config is the fully-resolved set of options for one mutation session.
type Config struct {
	// Operation names the mutation to apply (see model.Operation).
	Operation string `yaml:"operation" json:"operation"`

	// Include lists gitignore-style patterns selecting candidate files.
	// Empty means the scanner's default (all Go sources).
	Include []string `yaml:"include" json:"include"`

	// Exclude lists gitignore-style patterns removed from the candidates.
	Exclude []string `yaml:"exclude" json:"exclude"`

	// IncludeTests also considers _test.go files.
	IncludeTests bool `yaml:"includeTests" json:"includeTests"`

	// Limit caps how many candidate files are tried (minimum 1).
	Limit int `yaml:"limit" json:"limit"`

	// PickIndex selects a candidate by 0-based index. Nil means unset.
	PickIndex *int `yaml:"pickIndex" json:"pickIndex"`

	// RandomSeed selects a candidate pseudo-randomly. Nil means unset.
	RandomSeed *int64 `yaml:"randomSeed" json:"randomSeed"`

	// DiagnosticsLines caps the stdout/stderr heads copied into reports.
	DiagnosticsLines int `yaml:"diagnosticsLines" json:"diagnosticsLines"`

	// FailOnBuild makes a broken mutated build exit non-zero.
	FailOnBuild bool `yaml:"failOnBuild" json:"failOnBuild"`

	// KeepMutation leaves the mutated file on disk after the session.
	KeepMutation bool `yaml:"keepMutation" json:"keepMutation"`

	// Isolate runs the session in a temporary detached git worktree.
	Isolate bool `yaml:"isolate" json:"isolate"`

	// ReportFormat is "json" or "yaml".
	ReportFormat string `yaml:"reportFormat" json:"reportFormat"`

	// Build holds build-runner settings.
	Build BuildConfig `yaml:"build" json:"build"`
}

// BuildConfig configures how the project is built before and after mutation.
type BuildConfig struct {
	// Timeout is a Go duration string such as "10m". Empty uses the default.
	Timeout string `yaml:"timeout" json:"timeout"`

	// Env adds environment variables to the build process.
	Env map[string]string `yaml:"env" json:"env"`

	// SkipTests passes the build tool's skip-tests switch (gradle/maven).
	// Nil means true.
	SkipTests *bool `yaml:"skipTests" json:"skipTests"`

	// Docker runs the build inside a container instead of on the host.
	Docker DockerConfig `yaml:"docker" json:"docker"`
}

// DockerConfig configures containerised builds.
type DockerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Image   string `yaml:"image" json:"image"`
	Pull    bool   `yaml:"pull" json:"pull"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Operation:        model.DefaultOperation.String(),
		Limit:            DefaultLimit,
		DiagnosticsLines: DefaultDiagnosticsLines,
		ReportFormat:     DefaultReportFormat,
		Build: BuildConfig{
			Docker: DockerConfig{Image: DefaultDockerImage},
		},
	}
}

// Find returns the path of the first config file present in dir, or ""
// if there is none.
func Find(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load reads the config file found in dir (if any) on top of the defaults.
// A missing file is not an error. Malformed files return a CLIError with
// ExitInvalidConfig.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := Find(dir)
	if path == "" {
		return cfg, nil
	}

	if err := LoadFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes the file at path into cfg. Fields absent from the file
// keep their current values, so callers pass a Default() config.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("failed to read config %s", path), err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		// Strip // and /* */ comments plus trailing commas before parsing.
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("failed to parse config %s", path), err)
	}
	return nil
}

// Validate checks the resolved configuration and normalizes a few values
// (lower-cased operation and report format, limit floor of 1).
func (c *Config) Validate() error {
	op, err := model.ParseOperation(c.Operation)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}
	c.Operation = op.String()

	if c.Limit < 1 {
		return model.NewCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("invalid configuration: limit must be >= 1, got %d", c.Limit))
	}
	if c.DiagnosticsLines < 0 {
		return model.NewCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("invalid configuration: diagnosticsLines must be >= 0, got %d", c.DiagnosticsLines))
	}

	c.ReportFormat = strings.ToLower(c.ReportFormat)
	if c.ReportFormat == "" {
		c.ReportFormat = DefaultReportFormat
	}
	if c.ReportFormat != "json" && c.ReportFormat != "yaml" {
		return model.NewCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("invalid configuration: reportFormat must be json or yaml, got %q", c.ReportFormat))
	}

	if _, err := c.BuildTimeout(); err != nil {
		return model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}

	if c.Build.Docker.Enabled && c.Build.Docker.Image == "" {
		return model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration",
			errors.New("build.docker.image must be set when docker builds are enabled"))
	}
	return nil
}

// MustOperation returns the parsed operation. It must only be called after
// Validate succeeded.
func (c *Config) MustOperation() model.Operation {
	op, err := model.ParseOperation(c.Operation)
	if err != nil {
		panic(err)
	}
	return op
}

// BuildTimeout parses Build.Timeout, falling back to DefaultBuildTimeout.
func (c *Config) BuildTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Build.Timeout) == "" {
		return DefaultBuildTimeout, nil
	}
	d, err := time.ParseDuration(c.Build.Timeout)
	if err != nil {
		return 0, fmt.Errorf("build.timeout %q: %w", c.Build.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("build.timeout must be positive, got %s", d)
	}
	return d, nil
}

// SkipTests reports whether build tools should skip their test phase.
func (c *Config) SkipTests() bool {
	if c.Build.SkipTests == nil {
		return true
	}
	return *c.Build.SkipTests
}
