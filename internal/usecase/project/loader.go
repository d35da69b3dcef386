// Package project finds and parses Unreal project manifests in workspace roots.
package project

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"uetools/internal/domain"
)

const (
	manifestExt = ".uproject"
	pluginExt   = ".uplugin"
	pluginsDir  = "Plugins"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

//go:embed uproject.schema.json
var manifestSchema []byte

// Problem is a manifest that was found but could not be used.
type Problem struct {
	Path string
	Err  error
}

// LoadReport is the outcome of scanning a set of workspace roots.
type LoadReport struct {
	Project  *domain.ProjectDescriptor
	Problems []Problem
}

// Loader discovers the project manifest and its plugins.
type Loader struct {
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewLoader compiles the manifest schema and returns a Loader.
func NewLoader(logger *slog.Logger) (*Loader, error) {
	schema, err := jsonschema.NewCompiler().Compile(manifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return &Loader{schema: schema, logger: logger}, nil
}

// Load returns the first valid manifest across roots, in order.
// It returns an ErrNotFound error when no root holds a usable manifest.
func (l *Loader) Load(ctx context.Context, roots []string) (*domain.ProjectDescriptor, error) {
	report, err := l.Scan(ctx, roots)
	if err != nil {
		return nil, err
	}
	if report.Project == nil {
		return nil, domain.NewSubSystemError("project", "Loader.Load", domain.ErrNotFound, strings.Join(roots, ", "))
	}
	return report.Project, nil
}

// Scan walks roots in order and stops at the first valid manifest. Malformed
// manifests and plugins are logged, recorded in the report and skipped.
func (l *Loader) Scan(ctx context.Context, roots []string) (*LoadReport, error) {
	report := &LoadReport{}
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path, err := findManifest(root)
		if err != nil {
			l.logger.Debug("manifest search skipped root", "root", root, "error", err)
			continue
		}
		if path == "" {
			continue
		}

		desc, err := l.parseManifest(path)
		if err != nil {
			l.logger.Warn("malformed project manifest", "path", path, "error", err)
			report.Problems = append(report.Problems, Problem{Path: path, Err: err})
			continue
		}
		desc.Dir = root
		desc.ManifestPath = path
		desc.Plugins = l.scanPlugins(root, report)

		l.logger.Info("project detected",
			"name", desc.PrimaryModule(),
			"engine_association", desc.EngineAssociation,
			"plugins", len(desc.Plugins),
		)
		report.Project = desc
		return report, nil
	}
	return report, nil
}

// findManifest returns the first top-level *.uproject file in root, or "".
func findManifest(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), manifestExt) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(root, e.Name()))
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	return "", nil
}

func (l *Loader) parseManifest(path string) (*domain.ProjectDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewSubSystemError("project", "Loader.parseManifest", domain.ErrMalformedManifest, err.Error())
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewSubSystemError("project", "Loader.parseManifest", domain.ErrMalformedManifest,
			fmt.Sprintf("%s: %v", filepath.Base(path), err))
	}
	if result := l.schema.Validate(raw); !result.IsValid() {
		return nil, domain.NewSubSystemError("project", "Loader.parseManifest", domain.ErrMalformedManifest,
			fmt.Sprintf("%s: %s", filepath.Base(path), result.Error()))
	}

	var desc domain.ProjectDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, domain.NewSubSystemError("project", "Loader.parseManifest", domain.ErrMalformedManifest, err.Error())
	}
	return &desc, nil
}

// scanPlugins reads <root>/Plugins/<d>/<d>.uplugin for each subdirectory d.
func (l *Loader) scanPlugins(root string, report *LoadReport) []domain.PluginDescriptor {
	dir := filepath.Join(root, pluginsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var plugins []domain.PluginDescriptor
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), e.Name()+pluginExt)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				l.logger.Warn("unreadable plugin manifest", "path", path, "error", err)
			}
			continue
		}

		var p domain.PluginDescriptor
		if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &p); err != nil {
			perr := domain.NewSubSystemError("plugin", "Loader.scanPlugins", domain.ErrMalformedManifest,
				fmt.Sprintf("%s: %v", e.Name(), err))
			l.logger.Warn("malformed plugin manifest", "path", path, "error", err)
			report.Problems = append(report.Problems, Problem{Path: path, Err: perr})
			continue
		}
		p.Dir = e.Name()
		plugins = append(plugins, p)
	}
	return plugins
}
