// Package engine locates engine installations and derives tool paths from them.
package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"uetools/internal/domain"
)

// Default installation search roots per OS.
const (
	DefaultWindowsRoot = `C:\Program Files\Epic Games`
	DefaultMacRoot     = "/Users/Shared/Epic Games"
	DefaultLinuxRoot   = "/opt/Epic Games"
)

// DefaultSearchRoot returns the conventional installation directory for target.
func DefaultSearchRoot(target domain.OperatingSystem) string {
	switch target {
	case domain.OSWindows:
		return DefaultWindowsRoot
	case domain.OSMac:
		return DefaultMacRoot
	case domain.OSLinux:
		return DefaultLinuxRoot
	}
	return ""
}

// ResolveSearchRoot returns configured if set, else the default for target.
// The chosen directory must exist.
func ResolveSearchRoot(configured string, target domain.OperatingSystem) (string, error) {
	root := configured
	if root == "" {
		root = DefaultSearchRoot(target)
	}
	if root == "" {
		return "", domain.NewSubSystemError("engine", "ResolveSearchRoot", domain.ErrUnsupportedPlatform, string(target))
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", domain.NewSubSystemError("engine", "ResolveSearchRoot", domain.ErrSearchRootMissing, root)
	}
	return root, nil
}

// LocatorConfig controls matching behaviour.
type LocatorConfig struct {
	// AllowFallback treats the search root itself as the installation when no
	// subdirectory matches. Off by default.
	AllowFallback bool
}

// Locator matches a project's engine association against installed engines.
type Locator struct {
	config LocatorConfig
	logger *slog.Logger
}

// NewLocator creates a Locator.
func NewLocator(cfg LocatorConfig, logger *slog.Logger) *Locator {
	return &Locator{config: cfg, logger: logger}
}

// Locate picks the first subdirectory of searchRoot, in name order, whose
// name contains "UE_<association>".
func (l *Locator) Locate(desc *domain.ProjectDescriptor, searchRoot string) (*domain.EngineInstallation, error) {
	if desc == nil {
		return nil, &domain.MissingFieldError{Field: "project"}
	}
	version := desc.EngineVersion()
	if version == "" {
		return nil, domain.NewSubSystemError("engine", "Locator.Locate", domain.ErrNotFound, "empty engine association")
	}

	entries, err := os.ReadDir(searchRoot)
	if err != nil {
		return nil, domain.NewSubSystemError("engine", "Locator.Locate", domain.ErrSearchRootMissing, searchRoot)
	}

	marker := "UE_" + version
	for _, e := range entries {
		if !e.IsDir() || !strings.Contains(e.Name(), marker) {
			continue
		}
		inst := &domain.EngineInstallation{
			VersionTag: version,
			RootPath:   filepath.Join(searchRoot, e.Name()),
		}
		l.logger.Info("engine located", "version", version, "root", inst.RootPath)
		return inst, nil
	}

	if l.config.AllowFallback {
		l.logger.Warn("no engine directory matched, using search root", "version", version, "root", searchRoot)
		return &domain.EngineInstallation{VersionTag: version, RootPath: searchRoot}, nil
	}
	return nil, domain.NewSubSystemError("engine", "Locator.Locate", domain.ErrNotFound, marker+" under "+searchRoot)
}
