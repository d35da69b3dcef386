package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"uetools/internal/domain"
	"uetools/internal/infra/config"
	"uetools/internal/infra/logger"
	"uetools/internal/usecase/engine"
	"uetools/internal/usecase/ops"
	"uetools/internal/usecase/project"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(w io.Writer, cfgPath string) error {
	// Try to load config; most checks fall back to defaults without it.
	cfg, cfgErr := config.Load(cfgPath)
	if cfg == nil {
		cfg = config.Defaults()
	}

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Project", Fn: checkProject},
		{Name: "Engine search root", Fn: checkSearchRoot},
		{Name: "Engine installation", Fn: checkEngine},
		{Name: "MSBuild", Fn: checkMSBuild},
		{Name: "Task history", Fn: checkHistory},
		{Name: "Notifications", Fn: checkNotifications},
		{Name: "Disk space", Fn: checkDiskSpace},
	}

	fmt.Fprintln(w, "uetools doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	pass, warn, fail := runChecks(w, checks, cfg)

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before building.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(w, "\nuetools should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed! uetools is ready to build.")
	}
	return nil
}

func runChecks(w io.Writer, checks []Check, cfg *config.Config) (pass, warn, fail int) {
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile returns a check that verifies the config file parses. A
// missing file is only a warning since the defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Create uetools.yaml to set engine.search_root and notification sinks",
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config file error: %v", cfgErr),
				Fix:     "Check uetools.yaml syntax and values",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func platformOf(cfg *config.Config) domain.OperatingSystem {
	if cfg.Engine.Platform != "" {
		return domain.OperatingSystem(cfg.Engine.Platform)
	}
	return domain.OperatingSystem(runtime.GOOS)
}

func loadProject(cfg *config.Config) (*domain.ProjectDescriptor, error) {
	loader, err := project.NewLoader(logger.Discard())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return loader.Load(ctx, cfg.Workspace.Roots)
}

// checkProject verifies a usable .uproject exists in the workspace roots.
func checkProject(cfg *config.Config) CheckResult {
	desc, err := loadProject(cfg)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Run uetools from the project directory or set workspace.roots",
		}
	}
	msg := fmt.Sprintf("%s (engine %s, %d plugins)", desc.PrimaryModule(), desc.EngineAssociation, len(desc.Plugins))
	return CheckResult{Status: StatusPass, Message: msg}
}

// checkSearchRoot verifies the directory engines are installed under exists.
func checkSearchRoot(cfg *config.Config) CheckResult {
	root, err := engine.ResolveSearchRoot(cfg.Engine.SearchRoot, platformOf(cfg))
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Set engine.search_root in uetools.yaml to the directory holding UE_<version> folders",
		}
	}
	return CheckResult{Status: StatusPass, Message: root}
}

// checkEngine locates the project's engine and verifies its tools exist.
func checkEngine(cfg *config.Config) CheckResult {
	desc, err := loadProject(cfg)
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: "skipped, no project found"}
	}
	target := platformOf(cfg)
	root, err := engine.ResolveSearchRoot(cfg.Engine.SearchRoot, target)
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: "skipped, no search root"}
	}

	locator := engine.NewLocator(engine.LocatorConfig{AllowFallback: cfg.Engine.AllowFallback}, logger.Discard())
	inst, err := locator.Locate(desc, root)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     fmt.Sprintf("Install Unreal Engine %s under %s", desc.EngineAssociation, root),
		}
	}
	paths, err := engine.ResolvePaths(*inst, target, engine.MajorVersion(desc.EngineAssociation))
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	// Paths are composed for the target OS and only checked on the host.
	if target == domain.OperatingSystem(runtime.GOOS) {
		for _, p := range []string{paths.BuildTool, paths.Editor, paths.Runtime} {
			if p == "" {
				continue
			}
			if _, err := os.Stat(p); err != nil {
				return CheckResult{
					Status:  StatusWarn,
					Message: fmt.Sprintf("%s found but %s is missing", inst.RootPath, p),
					Fix:     "Verify the engine installation is complete",
				}
			}
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s at %s", inst.VersionTag, inst.RootPath)}
}

// checkMSBuild verifies MSBuild can be found when a server solution is set.
func checkMSBuild(cfg *config.Config) CheckResult {
	if platformOf(cfg) != domain.OSWindows || cfg.Server.Solution == "" {
		return CheckResult{Status: StatusPass, Message: "not needed (no server.solution on Windows)"}
	}
	if cfg.Server.MSBuildPath != "" {
		if _, err := os.Stat(cfg.Server.MSBuildPath); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("server.msbuild_path %s does not exist", cfg.Server.MSBuildPath),
				Fix:     "Fix server.msbuild_path or remove it to probe Visual Studio installs",
			}
		}
		return CheckResult{Status: StatusPass, Message: cfg.Server.MSBuildPath}
	}
	path, err := ops.FindMSBuild(ops.OSFileSystem{})
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Install Visual Studio 2022 or 2019 with the MSBuild component",
		}
	}
	return CheckResult{Status: StatusPass, Message: path}
}

// checkHistory verifies the history database directory is writable.
func checkHistory(cfg *config.Config) CheckResult {
	if !cfg.History.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}

	absDir, _ := filepath.Abs(filepath.Dir(cfg.History.Path))
	if err := os.MkdirAll(absDir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("history directory %s cannot be created: %v", absDir, err),
			Fix:     "Set history.path to a writable location",
		}
	}

	testFile := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("history directory %s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", absDir),
		}
	}
	os.Remove(testFile)

	return CheckResult{Status: StatusPass, Message: cfg.History.Path}
}

// checkNotifications summarizes the configured sinks.
func checkNotifications(cfg *config.Config) CheckResult {
	var sinks []string
	if cfg.Notify.Console {
		sinks = append(sinks, "console")
	}
	if cfg.Notify.Slack != nil {
		sinks = append(sinks, "slack")
	}
	if cfg.Notify.Discord != nil {
		sinks = append(sinks, "discord")
	}
	if len(sinks) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no notification sinks, failures are only logged",
			Fix:     "Set notify.console: true in uetools.yaml",
		}
	}
	return CheckResult{Status: StatusPass, Message: strings.Join(sinks, ", ")}
}

// checkDiskSpace warns when the project's disk is nearly full. Builds and
// packages need several gigabytes.
func checkDiskSpace(cfg *config.Config) CheckResult {
	dir := "."
	if len(cfg.Workspace.Roots) > 0 {
		dir = cfg.Workspace.Roots[0]
	}
	absDir, _ := filepath.Abs(dir)

	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return CheckResult{
			Status:  StatusPass,
			Message: "workspace directory does not exist, space check skipped",
		}
	}
	if runtime.GOOS == "windows" {
		return CheckResult{Status: StatusPass, Message: "space check skipped on Windows"}
	}

	out, err := exec.Command("df", "-h", absDir).Output()
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: "could not determine disk space (df command failed)",
		}
	}
	return diskResult(string(out))
}

// diskResult interprets the last line of df -h output.
func diskResult(out string) CheckResult {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}

	available := fields[3]
	usePercent := fields[4]
	var pct int
	fmt.Sscanf(strings.TrimSuffix(usePercent, "%"), "%d", &pct)

	if pct >= 95 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("disk almost full: %s used, %s available", usePercent, available),
			Fix:     "Free up disk space; Intermediate/ and Saved/ folders can be deleted safely",
		}
	}
	if pct >= 85 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("disk usage high: %s used, %s available", usePercent, available),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("disk usage: %s used, %s available", usePercent, available),
	}
}
