// Package command turns an operation request plus resolved context into the
// exact external command line to run.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"uetools/internal/domain"
	"uetools/internal/usecase/engine"
)

// Launch window size for standalone game runs.
const (
	gameResX = 2560
	gameResY = 1440
)

var traceFlags = []string{"-tracehost=127.0.0.1", "-trace=cpu,frame,gpu", "-statnamevents"}

// Context is everything the composer reads besides the request itself.
// Fields are validated per operation; unused ones may be nil.
type Context struct {
	Project      *domain.ProjectDescriptor
	Installation *domain.EngineInstallation
	Paths        *domain.ToolPaths
}

// Composer builds commands. It performs no I/O.
type Composer struct {
	suffix SuffixSource
}

// NewComposer creates a Composer. A nil suffix source uses NewRandomSuffix.
func NewComposer(suffix SuffixSource) *Composer {
	if suffix == nil {
		suffix = NewRandomSuffix()
	}
	return &Composer{suffix: suffix}
}

// Compose returns the command for req on the target OS.
func (c *Composer) Compose(cctx Context, req domain.OperationRequest, target domain.OperatingSystem) (domain.ComposedCommand, error) {
	if !target.Supported() {
		return domain.ComposedCommand{}, domain.NewDomainError("Composer.Compose", domain.ErrUnsupportedOperation,
			fmt.Sprintf("platform %q", target))
	}

	switch req.Kind {
	case domain.OpBuildModule:
		return c.buildModule(cctx, req, target)
	case domain.OpBuildProject:
		return c.buildProject(cctx, req, target)
	case domain.OpBuildServer:
		return c.buildServer(req, target)
	case domain.OpPackageProject:
		return c.packageProject(cctx, req, target)
	case domain.OpOpenEditor:
		return c.openEditor(cctx, target)
	case domain.OpLaunchGame:
		return c.launchGame(cctx, req, target)
	case domain.OpGenerateClangDatabase:
		return c.generateClangDatabase(cctx, target)
	}
	return domain.ComposedCommand{}, domain.NewDomainError("Composer.Compose", domain.ErrUnsupportedOperation, string(req.Kind))
}

func (c *Composer) buildModule(cctx Context, req domain.OperationRequest, target domain.OperatingSystem) (domain.ComposedCommand, error) {
	if err := cctx.requireEngine(); err != nil {
		return domain.ComposedCommand{}, err
	}
	if req.ModuleName == "" {
		return domain.ComposedCommand{}, domain.NewDomainError("Composer.buildModule", domain.ErrInvalidInput, "module name is required")
	}
	p := cctx.Project.PrimaryModule()
	args := []domain.Argument{
		domain.Flag("-mode=Build"),
		domain.Flag(fmt.Sprintf("-ModuleWithSuffix=%s,%d", req.ModuleName, c.suffix.Next())),
		domain.Flag("-ForceHotReload"),
		domain.PathArg("-project=", cctx.Project.ManifestPath),
		domain.Flag(p + "Editor"),
		domain.Flag(target.BuildType()),
		domain.Flag(string(domain.ConfigDevelopment)),
	}
	return c.buildTool(cctx, target, req.Kind, args), nil
}

func (c *Composer) buildProject(cctx Context, req domain.OperationRequest, target domain.OperatingSystem) (domain.ComposedCommand, error) {
	if err := cctx.requireEngine(); err != nil {
		return domain.ComposedCommand{}, err
	}
	var suffix string
	switch req.EffectiveTarget() {
	case domain.TargetEditor:
		suffix = "Editor"
	case domain.TargetGame:
	default:
		return domain.ComposedCommand{}, domain.NewDomainError("Composer.buildProject", domain.ErrUnsupportedOperation,
			fmt.Sprintf("target %q", req.Target))
	}
	args := []domain.Argument{
		domain.Flag("-mode=Build"),
		domain.PathArg("-project=", cctx.Project.ManifestPath),
		domain.Flag(cctx.Project.PrimaryModule() + suffix),
		domain.Flag(target.BuildType()),
		domain.Flag(string(req.EffectiveConfiguration())),
	}
	return c.buildTool(cctx, target, req.Kind, args), nil
}

func (c *Composer) generateClangDatabase(cctx Context, target domain.OperatingSystem) (domain.ComposedCommand, error) {
	if err := cctx.requireEngine(); err != nil {
		return domain.ComposedCommand{}, err
	}
	args := []domain.Argument{
		domain.Flag("-Mode=GenerateClangDatabase"),
		domain.PathArg("-Project=", cctx.Project.ManifestPath),
		domain.Flag(cctx.Project.PrimaryModule() + "Editor"),
		domain.Flag(target.BuildType()),
		domain.Flag(string(domain.ConfigDevelopment)),
		domain.Flag("-game"),
		domain.Flag("-engine"),
	}
	return c.buildTool(cctx, target, domain.OpGenerateClangDatabase, args), nil
}

// buildTool runs the build tool directly, or through the managed runtime
// when it is a .dll or the host is not Windows.
func (c *Composer) buildTool(cctx Context, target domain.OperatingSystem, kind domain.OperationKind, args []domain.Argument) domain.ComposedCommand {
	exe := cctx.Paths.BuildTool
	if managedBuildTool(cctx.Paths.BuildTool, target) {
		exe = cctx.Paths.Runtime
		args = append([]domain.Argument{domain.PathArg("", cctx.Paths.BuildTool)}, args...)
	}
	return domain.ComposedCommand{
		Executable:       exe,
		Arguments:        args,
		WorkingDirectory: cctx.Installation.RootPath,
		OS:               target,
		Variant:          variant(target, cctx.Paths, kind),
	}
}

func managedBuildTool(buildTool string, target domain.OperatingSystem) bool {
	return strings.HasSuffix(strings.ToLower(buildTool), ".dll") || target != domain.OSWindows
}

func (c *Composer) buildServer(req domain.OperationRequest, target domain.OperatingSystem) (domain.ComposedCommand, error) {
	if target != domain.OSWindows {
		return domain.ComposedCommand{}, domain.NewDomainError("Composer.buildServer", domain.ErrUnsupportedOperation,
			"server builds require Windows")
	}
	if req.SolutionPath == "" {
		return domain.ComposedCommand{}, &domain.MissingFieldError{Field: "solution path"}
	}
	if req.MSBuildPath == "" {
		return domain.ComposedCommand{}, &domain.MissingFieldError{Field: "msbuild path"}
	}
	return domain.ComposedCommand{
		Executable:       req.MSBuildPath,
		Arguments:        []domain.Argument{domain.PathArg("", req.SolutionPath)},
		WorkingDirectory: parentDir(req.SolutionPath, target),
		OS:               target,
		Variant:          fmt.Sprintf("%s/%s", target, domain.OpBuildServer),
	}, nil
}

func (c *Composer) packageProject(cctx Context, req domain.OperationRequest, target domain.OperatingSystem) (domain.ComposedCommand, error) {
	if err := cctx.requireEngine(); err != nil {
		return domain.ComposedCommand{}, err
	}
	cfg := string(req.EffectiveConfiguration())
	archive := req.ArchiveDirectory
	if archive == "" {
		archive = engine.JoinPath(target, cctx.Project.Dir, "Packaged")
	}
	args := []domain.Argument{
		domain.Flag("BuildCookRun"),
		domain.PathArg("-project=", cctx.Project.ManifestPath),
		domain.Flag("-noP4"),
		domain.Flag("-platform=" + target.BuildType()),
		domain.Flag("-clientconfig=" + cfg),
		domain.Flag("-serverconfig=" + cfg),
		domain.Flag("-cook"),
		domain.Flag("-allmaps"),
		domain.Flag("-build"),
		domain.Flag("-stage"),
		domain.Flag("-pak"),
		domain.Flag("-archive"),
		domain.PathArg("-archivedirectory=", archive),
	}

	exe := cctx.Paths.PackagingTool
	if target == domain.OSWindows {
		exe = "cmd.exe"
		args = append([]domain.Argument{domain.Flag("/c"), domain.PathArg("", cctx.Paths.PackagingTool)}, args...)
	}
	return domain.ComposedCommand{
		Executable:       exe,
		Arguments:        args,
		WorkingDirectory: cctx.Installation.RootPath,
		OS:               target,
		Variant:          variant(target, cctx.Paths, domain.OpPackageProject),
	}, nil
}

func (c *Composer) openEditor(cctx Context, target domain.OperatingSystem) (domain.ComposedCommand, error) {
	if err := cctx.requireEngine(); err != nil {
		return domain.ComposedCommand{}, err
	}
	return domain.ComposedCommand{
		Executable:       cctx.Paths.Editor,
		Arguments:        []domain.Argument{domain.PathArg("", cctx.Project.ManifestPath)},
		WorkingDirectory: cctx.Installation.RootPath,
		OS:               target,
		Variant:          variant(target, cctx.Paths, domain.OpOpenEditor),
	}, nil
}

func (c *Composer) launchGame(cctx Context, req domain.OperationRequest, target domain.OperatingSystem) (domain.ComposedCommand, error) {
	if err := cctx.requireProject(); err != nil {
		return domain.ComposedCommand{}, err
	}
	p := cctx.Project.PrimaryModule()
	binary := p
	if target == domain.OSWindows {
		binary += ".exe"
	}
	args := []domain.Argument{
		domain.Flag("-game"),
		domain.PathArg("-project=", cctx.Project.ManifestPath),
		domain.Flag("-WINDOWED"),
		domain.Flag("-ResX=" + strconv.Itoa(gameResX)),
		domain.Flag("-ResY=" + strconv.Itoa(gameResY)),
	}
	if req.Trace {
		for _, f := range traceFlags {
			args = append(args, domain.Flag(f))
		}
	}
	return domain.ComposedCommand{
		Executable:       engine.JoinPath(target, cctx.Project.Dir, "Binaries", target.BuildType(), binary),
		Arguments:        args,
		WorkingDirectory: cctx.Project.Dir,
		OS:               target,
		Variant:          fmt.Sprintf("%s/%s", target, domain.OpLaunchGame),
	}, nil
}

func (cctx Context) requireProject() error {
	if cctx.Project == nil {
		return &domain.MissingFieldError{Field: "project"}
	}
	if cctx.Project.PrimaryModule() == "" {
		return domain.NewSubSystemError("project", "Composer", domain.ErrMalformedManifest, "no modules")
	}
	return nil
}

func (cctx Context) requireEngine() error {
	if err := cctx.requireProject(); err != nil {
		return err
	}
	if cctx.Installation == nil {
		return &domain.MissingFieldError{Field: "engine installation"}
	}
	if cctx.Paths == nil {
		return &domain.MissingFieldError{Field: "tool paths"}
	}
	return nil
}

func variant(target domain.OperatingSystem, paths *domain.ToolPaths, kind domain.OperationKind) string {
	era := "legacy"
	if strings.HasSuffix(strings.ToLower(paths.BuildTool), ".dll") {
		era = "modern"
	}
	return fmt.Sprintf("%s/%s/%s", target, era, kind)
}

// parentDir returns the directory part of p using the separator of target.
func parentDir(p string, target domain.OperatingSystem) string {
	if i := strings.LastIndex(p, target.Separator()); i > 0 {
		return p[:i]
	}
	return ""
}
