package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/mutafix/internal/model"
)

var fixedNow = func() time.Time { return time.Date(2025, 8, 13, 10, 0, 0, 0, time.UTC) }

func okBuild() *model.BuildResult {
	return &model.BuildResult{
		Success:  true,
		Cmd:      []string{"go", "build", "./..."},
		Stdout:   "line1\nline2\nline3",
		Duration: 1500 * time.Millisecond,
	}
}

func failedBuild() *model.BuildResult {
	return &model.BuildResult{
		Success:  false,
		ExitCode: 1,
		Cmd:      []string{"go", "build", "./..."},
		Stderr:   "# demo\n./main.go:4:2: undefined: number\n",
	}
}

func TestNew_Verdicts(t *testing.T) {
	changed := &model.MutationResult{File: "/repo/main.go", OldName: "number", NewName: "number_mt", Changed: true}
	unchanged := &model.MutationResult{File: "/repo/main.go"}

	tests := []struct {
		name          string
		in            Input
		wantVerdict   model.Verdict
		wantPreserved bool
	}{
		{
			name:          "no files matched",
			in:            Input{},
			wantVerdict:   model.VerdictNoMutation,
			wantPreserved: true,
		},
		{
			name:          "baseline failed",
			in:            Input{Baseline: failedBuild()},
			wantVerdict:   model.VerdictBaselineFailed,
			wantPreserved: false,
		},
		{
			name:          "nothing to mutate",
			in:            Input{Baseline: okBuild(), Mutation: unchanged},
			wantVerdict:   model.VerdictNoMutation,
			wantPreserved: true,
		},
		{
			name:          "mutated build ok",
			in:            Input{Baseline: okBuild(), Mutation: changed, Mutated: okBuild()},
			wantVerdict:   model.VerdictOK,
			wantPreserved: true,
		},
		{
			name:          "mutated build failed",
			in:            Input{Baseline: okBuild(), Mutation: changed, Mutated: failedBuild()},
			wantVerdict:   model.VerdictMutatedBuildFailed,
			wantPreserved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.in)
			assert.Equal(t, tt.wantVerdict, r.Verdict)
			assert.Equal(t, tt.wantPreserved, r.BuildabilityPreserved)
		})
	}
}

func TestNew_Fields(t *testing.T) {
	r := New(Input{
		RunID:            "run-1",
		Repo:             "/repo",
		Operation:        model.OpRenameLocal,
		Target:           "/repo/cmd/app/main.go",
		Mutation:         &model.MutationResult{File: "/repo/cmd/app/main.go", OldName: "number", NewName: "number_mt", Changed: true},
		Baseline:         okBuild(),
		Mutated:          failedBuild(),
		DiagnosticsLines: 2,
		Diagnostics:      "=== Failure diagnostics ===",
		Now:              fixedNow,
	})

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "go", r.Language)
	assert.Equal(t, "rename-local", r.Operation)
	assert.Equal(t, "cmd/app/main.go", r.TargetFile)
	assert.Equal(t, Mutation{File: "cmd/app/main.go", Old: "number", New: "number_mt", Changed: true}, r.Mutation)

	require.NotNil(t, r.BaselineBuild)
	assert.Equal(t, "line1\nline2", r.BaselineBuild.StdoutHead)
	assert.Equal(t, int64(1500), r.BaselineBuild.DurationMS)

	require.NotNil(t, r.MutatedBuild)
	assert.Equal(t, "# demo\n./main.go:4:2: undefined: number", r.MutatedBuild.StderrHead)
	assert.Equal(t, 1, r.MutatedBuild.ExitCode)
	assert.Equal(t, fixedNow(), r.GeneratedAt)
}

func TestNew_GeneratesRunID(t *testing.T) {
	r := New(Input{})
	_, err := uuid.Parse(r.RunID)
	assert.NoError(t, err)
	assert.NotEqual(t, r.RunID, New(Input{}).RunID)
}

func TestRelativeTo(t *testing.T) {
	assert.Equal(t, "", relativeTo("/repo", ""))
	assert.Equal(t, "src/a.go", relativeTo("/repo", "src/a.go"))
	assert.Equal(t, "/elsewhere/a.go", relativeTo("/repo", "/elsewhere/a.go"))
}

func TestEncode_JSONShape(t *testing.T) {
	r := New(Input{
		RunID:     "run-1",
		Repo:      "/repo",
		Operation: model.OpFlipIf,
		Baseline:  failedBuild(),
		Now:       fixedNow,
	})

	var buf bytes.Buffer
	require.NoError(t, r.Encode(&buf, FormatJSON))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))

	assert.Equal(t, "baseline_failed", raw["verdict"])
	assert.Equal(t, false, raw["buildability_preserved"])
	assert.Equal(t, "", raw["target_file"])
	assert.Contains(t, raw, "baseline_build")
	assert.NotContains(t, raw, "mutated_build", "phases that did not run are omitted")
	assert.NotContains(t, raw, "diagnostics")

	mutation := raw["mutation"].(map[string]any)
	assert.Equal(t, false, mutation["changed"])
	assert.NotContains(t, mutation, "old")

	baseline := raw["baseline_build"].(map[string]any)
	assert.Equal(t, float64(1), baseline["exitCode"])
	assert.Equal(t, []any{"go", "build", "./..."}, baseline["cmd"])
}

func TestWriteAndRead(t *testing.T) {
	original := New(Input{
		RunID:            "run-2",
		Repo:             "/repo",
		Operation:        model.OpDoubleNegateIf,
		Target:           "/repo/main.go",
		Mutation:         &model.MutationResult{OldName: "if", NewName: "if_double_negated", Changed: true},
		Baseline:         okBuild(),
		Mutated:          okBuild(),
		DiagnosticsLines: 50,
		Now:              fixedNow,
	})

	for _, name := range []string{"out/nested/report.json", "out/report.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, original.Write(path, FormatForPath(path, FormatJSON)))

			loaded, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, original, loaded)
		})
	}
}

func TestWrite_YAMLKeys(t *testing.T) {
	r := New(Input{Repo: "/repo", Operation: model.OpInsertComment, Now: fixedNow})
	path := filepath.Join(t.TempDir(), "report.yml")
	require.NoError(t, r.Write(path, FormatYAML))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Equal(t, "no_mutation", raw["verdict"])
	assert.Equal(t, "insert-comment", raw["operation"])
	assert.Equal(t, true, raw["buildability_preserved"])
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRead_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Read(path)
	assert.ErrorContains(t, err, "failed to parse report")
}
