// Package fixture generates small Go projects to run mutation sessions
// against.
//
// Two variants are available. "app" is the full sample program as it looks
// after a few mutation rounds: renamed locals carry the _mt suffix and the
// greeting guard is wrapped in four negations. "target" is the minimal
// greet/flip-if program. Both build with a plain `go build ./...`.
package fixture

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/mutafix/internal/config"
	"github.com/shinji-kodama/mutafix/internal/model"
	"github.com/shinji-kodama/mutafix/internal/mutate"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Variant names a fixture program.
type Variant string

const (
	VariantApp    Variant = "app"
	VariantTarget Variant = "target"
)

// Defaults for Options.
const (
	DefaultModule    = "example.com/mutafix-fixture"
	DefaultGoVersion = "1.22"
)

// markerTime is the timestamp of the marker comment at the top of the app
// variant. It is fixed so that generated fixtures are reproducible.
var markerTime = time.Date(2025, 8, 13, 19, 54, 32, 0, time.UTC)

type variantSpec struct {
	template  string
	operation model.Operation
	help      string
}

var variants = map[Variant]variantSpec{
	VariantApp: {
		template:  "app.go.tmpl",
		operation: model.OpSimplifyNegation,
		help:      "full sample program with stacked negations and _mt markers",
	},
	VariantTarget: {
		template:  "target.go.tmpl",
		operation: model.OpFlipIf,
		help:      "minimal greet program with a single if/else",
	},
}

// Variants returns the available variant names, sorted.
func Variants() []Variant {
	out := make([]Variant, 0, len(variants))
	for v := range variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Describe returns the one-line description of a variant.
func (v Variant) Describe() string {
	return variants[v].help
}

// ParseVariant converts a string to a Variant (case-insensitive).
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := variants[v]; !ok {
		names := make([]string, 0, len(variants))
		for _, known := range Variants() {
			names = append(names, string(known))
		}
		return "", fmt.Errorf("unknown fixture variant %q (valid: %s)", s, strings.Join(names, ", "))
	}
	return v, nil
}

// Options configures Write.
type Options struct {
	// Variant selects the program. Empty means VariantApp.
	Variant Variant

	// Module is the module path written to go.mod. Empty means DefaultModule.
	Module string

	// GoVersion is the go directive. Empty means DefaultGoVersion.
	GoVersion string

	// Force overwrites existing files.
	Force bool
}

// templateData is the value the templates are executed with.
type templateData struct {
	Module    string
	GoVersion string
	Marker    string
}

// fixtureConfig is the subset of config.Config written to .mutafix.yaml.
type fixtureConfig struct {
	Operation string   `yaml:"operation"`
	Include   []string `yaml:"include"`
	Limit     int      `yaml:"limit"`
	Build     struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"build"`
}

// Write generates the fixture project in dir, creating it if needed, and
// returns the paths it wrote. Without opts.Force, if any of the files
// already exists nothing is written and the error wraps os.ErrExist.
func Write(dir string, opts Options) ([]string, error) {
	if opts.Variant == "" {
		opts.Variant = VariantApp
	}
	spec, ok := variants[opts.Variant]
	if !ok {
		_, err := ParseVariant(string(opts.Variant))
		return nil, err
	}
	if opts.Module == "" {
		opts.Module = DefaultModule
	}
	if opts.GoVersion == "" {
		opts.GoVersion = DefaultGoVersion
	}

	data := templateData{
		Module:    opts.Module,
		GoVersion: opts.GoVersion,
		Marker:    mutate.CommentPrefix + markerTime.Format(time.RFC3339),
	}

	files := map[string][]byte{}
	var err error
	if files["go.mod"], err = render("go.mod.tmpl", data); err != nil {
		return nil, err
	}
	if files["main.go"], err = render(spec.template, data); err != nil {
		return nil, err
	}
	if files[config.FileNames[0]], err = renderConfig(spec.operation); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	if !opts.Force {
		var existing []string
		for _, name := range names {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				existing = append(existing, name)
			}
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("%s already contains %s (use --force to overwrite): %w",
				dir, strings.Join(existing, ", "), os.ErrExist)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	written := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func render(name string, data templateData) ([]byte, error) {
	tmpl, err := template.ParseFS(templates, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func renderConfig(op model.Operation) ([]byte, error) {
	cfg := fixtureConfig{
		Operation: op.String(),
		Include:   []string{"*.go"},
		Limit:     config.DefaultLimit,
	}
	cfg.Build.Timeout = "5m"

	var buf bytes.Buffer
	buf.WriteString("# mutafix settings for this fixture. Flags passed to `mutafix mutate` win.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode fixture config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode fixture config: %w", err)
	}
	return buf.Bytes(), nil
}
