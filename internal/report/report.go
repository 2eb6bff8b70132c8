// Package report assembles the machine-readable summary of a mutation
// session and writes it as JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// Language is the source language the mutators operate on.
const Language = "go"

// Format selects the report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a string to a Format (case-insensitive). "yml" is
// accepted as an alias for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid report format: %q (valid: json, yaml)", s)
	}
}

// FormatForPath infers the format from a file extension, falling back to
// def.
func FormatForPath(path string, def Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return def
	}
}

// Mutation is the report view of a model.MutationResult. File is relative
// to the repository.
type Mutation struct {
	File    string `json:"file" yaml:"file"`
	Old     string `json:"old,omitempty" yaml:"old,omitempty"`
	New     string `json:"new,omitempty" yaml:"new,omitempty"`
	Changed bool   `json:"changed" yaml:"changed"`
}

// Build is the report view of a model.BuildResult with the output streams
// cut down to their leading lines.
type Build struct {
	Success    bool     `json:"success" yaml:"success"`
	ExitCode   int      `json:"exitCode" yaml:"exitCode"`
	Cmd        []string `json:"cmd" yaml:"cmd"`
	DurationMS int64    `json:"duration_ms" yaml:"duration_ms"`
	StdoutHead string   `json:"stdout_head" yaml:"stdout_head"`
	StderrHead string   `json:"stderr_head" yaml:"stderr_head"`
}

// Report is the full session summary.
type Report struct {
	RunID                 string        `json:"run_id" yaml:"run_id"`
	Repo                  string        `json:"repo" yaml:"repo"`
	Language              string        `json:"language" yaml:"language"`
	Operation             string        `json:"operation" yaml:"operation"`
	TargetFile            string        `json:"target_file" yaml:"target_file"`
	Mutation              Mutation      `json:"mutation" yaml:"mutation"`
	BaselineBuild         *Build        `json:"baseline_build,omitempty" yaml:"baseline_build,omitempty"`
	MutatedBuild          *Build        `json:"mutated_build,omitempty" yaml:"mutated_build,omitempty"`
	BuildabilityPreserved bool          `json:"buildability_preserved" yaml:"buildability_preserved"`
	Verdict               model.Verdict `json:"verdict" yaml:"verdict"`
	Diagnostics           string        `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	GeneratedAt           time.Time     `json:"generated_at" yaml:"generated_at"`
}

// Input carries the raw session results that New turns into a Report.
// Nil pointers mark phases that did not run.
type Input struct {
	// RunID identifies the session. A random UUID is used when empty.
	RunID string

	// Repo is the absolute repository path.
	Repo string

	Operation model.Operation

	// Target is the file that was (or would have been) mutated. It may be
	// absolute or relative to Repo. Empty when no file matched.
	Target string

	Mutation *model.MutationResult
	Baseline *model.BuildResult
	Mutated  *model.BuildResult

	// DiagnosticsLines limits stdout_head and stderr_head.
	DiagnosticsLines int

	// Diagnostics is the rendered failure explanation, if any.
	Diagnostics string

	// Now stamps GeneratedAt. Defaults to time.Now.
	Now func() time.Time
}

// New builds a Report and computes its verdict.
func New(in Input) *Report {
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}

	target := relativeTo(in.Repo, in.Target)
	mutation := Mutation{File: target}
	if in.Mutation != nil {
		mutation.Old = in.Mutation.OldName
		mutation.New = in.Mutation.NewName
		mutation.Changed = in.Mutation.Changed
	}

	verdict := model.ComputeVerdict(in.Baseline, in.Mutation, in.Mutated)

	return &Report{
		RunID:                 runID,
		Repo:                  in.Repo,
		Language:              Language,
		Operation:             in.Operation.String(),
		TargetFile:            target,
		Mutation:              mutation,
		BaselineBuild:         summarize(in.Baseline, in.DiagnosticsLines),
		MutatedBuild:          summarize(in.Mutated, in.DiagnosticsLines),
		BuildabilityPreserved: verdict.BuildabilityPreserved(),
		Verdict:               verdict,
		Diagnostics:           in.Diagnostics,
		GeneratedAt:           now().UTC(),
	}
}

func summarize(b *model.BuildResult, lines int) *Build {
	if b == nil {
		return nil
	}
	cmd := b.Cmd
	if cmd == nil {
		cmd = []string{}
	}
	return &Build{
		Success:    b.Success,
		ExitCode:   b.ExitCode,
		Cmd:        cmd,
		DurationMS: b.Duration.Milliseconds(),
		StdoutHead: model.Head(b.Stdout, lines),
		StderrHead: model.Head(b.Stderr, lines),
	}
}

// relativeTo returns target relative to repo using forward slashes. Paths
// outside repo, or that cannot be made relative, are returned unchanged.
func relativeTo(repo, target string) string {
	if target == "" {
		return ""
	}
	if repo == "" || !filepath.IsAbs(target) {
		return filepath.ToSlash(target)
	}
	rel, err := filepath.Rel(repo, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

// Encode writes the report to w in the given format.
func (r *Report) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report as YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report as JSON: %w", err)
		}
		return nil
	}
}

// Write stores the report at path, creating parent directories as needed.
func (r *Report) Write(path string, format Format) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := r.Encode(f, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// Read loads a report previously written by Write. The format is inferred
// from the file extension; unknown extensions are read as JSON.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r Report
	if FormatForPath(path, FormatJSON) == FormatYAML {
		err = yaml.Unmarshal(data, &r)
	} else {
		err = json.Unmarshal(data, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}
