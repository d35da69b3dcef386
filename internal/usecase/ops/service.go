// Package ops runs the user-facing operations: project and engine detection,
// and the build, package, launch and compile-database commands built on it.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"uetools/internal/domain"
	"uetools/internal/infra/tracer"
	"uetools/internal/usecase/command"
	"uetools/internal/usecase/engine"
	"uetools/internal/usecase/logtail"
	"uetools/internal/usecase/project"
	"uetools/internal/usecase/session"
	"uetools/internal/usecase/task"
)

// Default delays used by the launch routine and compile database copy.
const (
	DefaultLogStartDelay    = 5 * time.Second
	DefaultClangSettleDelay = 2 * time.Second
)

// Config holds the operation settings taken from the user's configuration.
type Config struct {
	Roots            []string
	SearchRoot       string // empty means the platform default
	Platform         domain.OperatingSystem
	LogStartDelay    time.Duration
	ClangSettleDelay time.Duration
	Trace            bool
	ArchiveDirectory string
	BuildBeforeEdit  bool
	SolutionPath     string
	MSBuildPath      string // empty means probe the Visual Studio install paths
}

// Deps are the collaborators of a Service. Bus and Notifier are optional.
type Deps struct {
	Loader   *project.Loader
	Locator  *engine.Locator
	Composer *command.Composer
	Tasks    *task.Coordinator
	Tailer   *logtail.Tailer
	State    *session.State
	Bus      domain.EventBus
	Notifier domain.Notifier
	FS       FileSystem
	Logger   *slog.Logger
}

// Service runs operations against the detected session.
type Service struct {
	cfg      Config
	loader   *project.Loader
	locator  *engine.Locator
	composer *command.Composer
	tasks    *task.Coordinator
	tailer   *logtail.Tailer
	state    *session.State
	bus      domain.EventBus
	notifier domain.Notifier
	fs       FileSystem
	logger   *slog.Logger
}

// New creates a Service.
func New(cfg Config, deps Deps) *Service {
	if cfg.Platform == "" {
		cfg.Platform = domain.OperatingSystem(runtime.GOOS)
	}
	if cfg.LogStartDelay < 0 {
		cfg.LogStartDelay = 0
	}
	if cfg.ClangSettleDelay < 0 {
		cfg.ClangSettleDelay = 0
	}
	if deps.FS == nil {
		deps.FS = OSFileSystem{}
	}
	return &Service{
		cfg:      cfg,
		loader:   deps.Loader,
		locator:  deps.Locator,
		composer: deps.Composer,
		tasks:    deps.Tasks,
		tailer:   deps.Tailer,
		state:    deps.State,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		fs:       deps.FS,
		logger:   deps.Logger,
	}
}

// Platform is the OS commands are composed for.
func (s *Service) Platform() domain.OperatingSystem { return s.cfg.Platform }

// Session returns the current detection snapshot.
func (s *Service) Session() session.Snapshot { return s.state.Snapshot() }

// Tasks exposes the coordinator for listing and output queries.
func (s *Service) Tasks() *task.Coordinator { return s.tasks }

// Detect finds the project in the workspace roots, locates its engine
// installation and stores both in the session. A project found without a
// matching engine is still stored so plugin listing keeps working.
func (s *Service) Detect(ctx context.Context) (snap session.Snapshot, err error) {
	ctx, span := tracer.StartSpan(ctx, "ops.detect")
	defer func() { tracer.End(span, err) }()

	report, err := s.loader.Scan(ctx, s.cfg.Roots)
	if err != nil {
		return snap, s.Report(ctx, "Detect", err)
	}
	if report.Project == nil {
		s.state.Reset()
		err = domain.NewSubSystemError("project", "Ops.Detect", domain.ErrNotFound,
			"no usable .uproject in "+strings.Join(s.cfg.Roots, ", "))
		return snap, s.Report(ctx, "Detect", err)
	}

	desc := report.Project
	s.state.SetProject(desc)
	s.publish(ctx, domain.EventProjectChanged, projectPayload(desc, nil))
	span.SetAttributes(tracer.StringAttr("project", desc.PrimaryModule()))

	root, err := engine.ResolveSearchRoot(s.cfg.SearchRoot, s.cfg.Platform)
	if err != nil {
		return s.state.Snapshot(), s.Report(ctx, "Detect", err)
	}
	inst, err := s.locator.Locate(desc, root)
	if err != nil {
		return s.state.Snapshot(), s.Report(ctx, "Detect", err)
	}
	major := engine.MajorVersion(desc.EngineAssociation)
	paths, err := engine.ResolvePaths(*inst, s.cfg.Platform, major)
	if err != nil {
		return s.state.Snapshot(), s.Report(ctx, "Detect", err)
	}

	snap = session.Snapshot{Project: desc, Installation: inst, Paths: &paths, MajorVersion: major}
	s.state.Set(snap)
	s.publish(ctx, domain.EventEngineDetected, projectPayload(desc, inst))
	span.SetAttributes(tracer.StringAttr("engine_root", inst.RootPath))
	return snap, nil
}

// Compose returns the command for req without running it. Request fields
// left empty are filled from the configuration.
func (s *Service) Compose(_ context.Context, req domain.OperationRequest) (domain.ComposedCommand, error) {
	return s.composeWith(s.state.Snapshot(), req)
}

// composeWith composes req against snap. Multi-step operations pass the
// snapshot they took at their start so every step sees the same detection.
func (s *Service) composeWith(snap session.Snapshot, req domain.OperationRequest) (domain.ComposedCommand, error) {
	req = s.withDefaults(req)
	if req.Kind == domain.OpBuildServer && req.MSBuildPath == "" && s.cfg.Platform == domain.OSWindows {
		path, err := FindMSBuild(s.fs)
		if err != nil {
			return domain.ComposedCommand{}, err
		}
		req.MSBuildPath = path
	}
	return s.composer.Compose(command.Context{
		Project:      snap.Project,
		Installation: snap.Installation,
		Paths:        snap.Paths,
	}, req, s.cfg.Platform)
}

// Run composes req and submits it under its task name. It returns once the
// process has started.
func (s *Service) Run(ctx context.Context, req domain.OperationRequest) (*task.Handle, error) {
	return s.runWith(ctx, s.state.Snapshot(), req)
}

func (s *Service) runWith(ctx context.Context, snap session.Snapshot, req domain.OperationRequest) (h *task.Handle, err error) {
	ctx, span := tracer.StartSpan(ctx, "ops."+string(req.Kind))
	defer func() { tracer.End(span, err) }()

	cmd, err := s.composeWith(snap, req)
	if err != nil {
		return nil, s.Report(ctx, req.TaskName(), err)
	}
	span.SetAttributes(
		tracer.StringAttr("variant", cmd.Variant),
		tracer.StringAttr("command", cmd.ShellLine()),
	)
	s.logger.Info("running operation", "task", req.TaskName(), "command", cmd.ShellLine(), "dir", cmd.WorkingDirectory)

	h, err = s.tasks.Submit(ctx, req.TaskName(), cmd)
	if err != nil {
		return nil, s.Report(ctx, req.TaskName(), err)
	}
	return h, nil
}

// RunAndWait runs req and blocks until the process exits. A non-zero exit is
// returned as a *domain.ProcessExitError and reported to the notifier.
func (s *Service) RunAndWait(ctx context.Context, req domain.OperationRequest) (domain.TaskResult, error) {
	return s.runAndWaitWith(ctx, s.state.Snapshot(), req)
}

func (s *Service) runAndWaitWith(ctx context.Context, snap session.Snapshot, req domain.OperationRequest) (domain.TaskResult, error) {
	h, err := s.runWith(ctx, snap, req)
	if err != nil {
		return domain.TaskResult{}, err
	}
	res, err := h.Wait(ctx)
	if err != nil {
		return res, err
	}
	if res.Err != nil {
		return res, s.Report(ctx, res.Name, res.Err)
	}
	return res, nil
}

// Plugins returns the plugins of the detected project.
func (s *Service) Plugins() ([]domain.PluginDescriptor, error) {
	snap := s.state.Snapshot()
	if snap.Project == nil {
		return nil, &domain.MissingFieldError{Field: "project"}
	}
	return snap.Project.Plugins, nil
}

func (s *Service) withDefaults(req domain.OperationRequest) domain.OperationRequest {
	if !req.Trace {
		req.Trace = s.cfg.Trace
	}
	if req.ArchiveDirectory == "" {
		req.ArchiveDirectory = s.cfg.ArchiveDirectory
	}
	if req.SolutionPath == "" {
		req.SolutionPath = s.cfg.SolutionPath
	}
	if req.MSBuildPath == "" {
		req.MSBuildPath = s.cfg.MSBuildPath
	}
	return req
}

// Report logs err, sends it to the notifier and returns it unchanged.
// Cancellation is returned without a report.
func (s *Service) Report(ctx context.Context, title string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	code := domain.ErrorCodeOf(err)
	s.logger.Error("operation failed", "op", title, "code", code, "error", err)

	if title == "Detect" {
		s.publish(ctx, domain.EventDetectionFailed, domain.DetectionFailedPayload{Error: err.Error(), Code: code})
	}
	if s.notifier == nil {
		return err
	}
	msg := err.Error()
	if hint := remediation(err); hint != "" {
		msg += ". " + hint
	}
	n := domain.Notification{Level: domain.NotifyError, Title: title, Message: msg, Code: code}
	if nerr := s.notifier.Notify(context.WithoutCancel(ctx), n); nerr != nil {
		s.logger.Warn("notification failed", "notifier", s.notifier.Name(), "error", nerr)
	}
	return err
}

func remediation(err error) string {
	switch domain.ErrorCodeOf(err) {
	case domain.CodeMSBuildNotFound:
		return ""
	case domain.CodeSearchRootMissing:
		return "Set engine.search_root in uetools.yaml"
	}
	if domain.NeedsDetection(err) {
		return "Run `uetools detect` after fixing the project or engine setup"
	}
	return ""
}

func (s *Service) publish(ctx context.Context, t domain.EventType, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(t, payload))
}

func projectPayload(desc *domain.ProjectDescriptor, inst *domain.EngineInstallation) domain.ProjectEventPayload {
	p := domain.ProjectEventPayload{
		Name:              desc.PrimaryModule(),
		ManifestPath:      desc.ManifestPath,
		EngineAssociation: desc.EngineAssociation,
	}
	if inst != nil {
		p.EngineRoot = inst.RootPath
	}
	return p
}
