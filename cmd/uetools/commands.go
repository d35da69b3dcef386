package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"uetools/internal/adapter/mcpserver"
	"uetools/internal/adapter/watch"
	"uetools/internal/domain"
	"uetools/internal/infra/logger"
	"uetools/internal/usecase/ops"
)

type detectMode int

const (
	detectNone detectMode = iota
	// detectBestEffort runs detection but keeps going when it fails; the
	// failure has already been reported.
	detectBestEffort
	detectRequired
)

type cliCommand struct {
	usage  string
	args   int // minimum positional arguments
	detect detectMode
	run    func(ctx context.Context, a *app, f cliFlags, args []string) error
}

var commands = map[string]cliCommand{
	"detect":       {usage: "detect", run: cmdDetect},
	"build":        {usage: "build [--target T] [--configuration C]", detect: detectRequired, run: cmdBuild},
	"build-module": {usage: "build-module NAME [--configuration C]", args: 1, detect: detectRequired, run: cmdBuildModule},
	"build-server": {usage: "build-server [--configuration C]", detect: detectRequired, run: cmdBuildServer},
	"package":      {usage: "package [--configuration C] [--archive DIR]", detect: detectRequired, run: cmdPackage},
	"editor":       {usage: "editor", detect: detectRequired, run: cmdEditor},
	"launch":       {usage: "launch [--target T] [--trace]", detect: detectRequired, run: cmdLaunch},
	"clang-db":     {usage: "clang-db", detect: detectRequired, run: cmdClangDB},
	"compose":      {usage: "compose KIND [NAME] [flags]", args: 1, detect: detectRequired, run: cmdCompose},
	"plugins":      {usage: "plugins", detect: detectBestEffort, run: cmdPlugins},
	"history":      {usage: "history [LIMIT]", run: cmdHistory},
	"watch":        {usage: "watch", detect: detectBestEffort, run: cmdWatch},
	"mcp":          {usage: "mcp", detect: detectBestEffort, run: cmdMCP},
}

func cmdDetect(ctx context.Context, a *app, _ cliFlags, _ []string) error {
	if _, err := a.svc.Detect(ctx); err != nil {
		return err
	}
	printSession(a.out, a.svc)
	return nil
}

func printSession(w io.Writer, svc *ops.Service) {
	snap := svc.Session()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	if snap.Project == nil {
		fmt.Fprintln(tw, "Project:\t(none)")
		return
	}
	fmt.Fprintf(tw, "Project:\t%s\n", snap.Project.PrimaryModule())
	fmt.Fprintf(tw, "Manifest:\t%s\n", snap.Project.ManifestPath)
	fmt.Fprintf(tw, "Engine association:\t%s\n", snap.Project.EngineAssociation)
	if snap.Installation != nil {
		fmt.Fprintf(tw, "Engine:\t%s\n", snap.Installation.RootPath)
	}
	if snap.Paths != nil {
		fmt.Fprintf(tw, "Build tool:\t%s\n", snap.Paths.BuildTool)
		fmt.Fprintf(tw, "Editor:\t%s\n", snap.Paths.Editor)
		fmt.Fprintf(tw, "Platform:\t%s\n", svc.Platform())
	}
	fmt.Fprintf(tw, "Plugins:\t%d\n", len(snap.Project.Plugins))
}

func cmdBuild(ctx context.Context, a *app, f cliFlags, _ []string) error {
	return runOp(ctx, a, domain.OperationRequest{
		Kind:          domain.OpBuildProject,
		Target:        f.Target,
		Configuration: f.Configuration,
	})
}

func cmdBuildModule(ctx context.Context, a *app, f cliFlags, args []string) error {
	return runOp(ctx, a, domain.OperationRequest{
		Kind:          domain.OpBuildModule,
		ModuleName:    args[0],
		Configuration: f.Configuration,
	})
}

func cmdBuildServer(ctx context.Context, a *app, f cliFlags, _ []string) error {
	return runOp(ctx, a, domain.OperationRequest{
		Kind:          domain.OpBuildServer,
		Configuration: f.Configuration,
	})
}

func cmdPackage(ctx context.Context, a *app, f cliFlags, _ []string) error {
	return runOp(ctx, a, domain.OperationRequest{
		Kind:             domain.OpPackageProject,
		Configuration:    f.Configuration,
		ArchiveDirectory: f.Archive,
	})
}

func cmdEditor(ctx context.Context, a *app, _ cliFlags, _ []string) error {
	return runOp(ctx, a, domain.OperationRequest{Kind: domain.OpOpenEditor})
}

func cmdLaunch(ctx context.Context, a *app, f cliFlags, _ []string) error {
	res, err := a.svc.Launch(ctx, f.Target, f.Trace)
	if err != nil {
		return err
	}
	return resultErr(res)
}

func cmdClangDB(ctx context.Context, a *app, _ cliFlags, _ []string) error {
	res, err := a.svc.GenerateClangDatabase(ctx)
	if err != nil {
		return err
	}
	if err := resultErr(res); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "compile_commands.json copied to .vscode/")
	return nil
}

func runOp(ctx context.Context, a *app, req domain.OperationRequest) error {
	res, err := a.svc.RunAndWait(ctx, req)
	if err != nil {
		return err
	}
	return resultErr(res)
}

func resultErr(res domain.TaskResult) error {
	if res.Err != nil {
		return res.Err
	}
	if !res.Succeeded() {
		return &domain.ProcessExitError{Task: res.Name, Code: res.ExitCode}
	}
	return nil
}

func cmdCompose(ctx context.Context, a *app, f cliFlags, args []string) error {
	kind, err := domain.ParseOperationKind(args[0])
	if err != nil {
		return a.svc.Report(ctx, "Compose", err)
	}
	req := domain.OperationRequest{
		Kind:             kind,
		Target:           f.Target,
		Configuration:    f.Configuration,
		Trace:            f.Trace,
		ArchiveDirectory: f.Archive,
	}
	if kind == domain.OpBuildModule {
		if len(args) < 2 {
			return errors.New("usage: uetools compose build-module NAME")
		}
		req.ModuleName = args[1]
	}
	cmd, err := a.svc.Compose(ctx, req)
	if err != nil {
		return a.svc.Report(ctx, req.TaskName(), err)
	}
	if cmd.WorkingDirectory != "" {
		fmt.Fprintf(a.out, "# in %s\n", cmd.WorkingDirectory)
	}
	fmt.Fprintln(a.out, cmd.ShellLine())
	return nil
}

func cmdPlugins(_ context.Context, a *app, _ cliFlags, _ []string) error {
	plugins, err := a.svc.Plugins()
	if err != nil {
		return err
	}
	printPlugins(a.out, plugins)
	return nil
}

func printPlugins(w io.Writer, plugins []domain.PluginDescriptor) {
	if len(plugins) == 0 {
		fmt.Fprintln(w, "No plugins found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tCATEGORY\tMODULES")
	for _, p := range plugins {
		modules := make([]string, len(p.Modules))
		for i, m := range p.Modules {
			modules[i] = m.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name(), dash(p.VersionName), dash(p.Category), dash(strings.Join(modules, ",")))
	}
	tw.Flush()
}

func cmdHistory(ctx context.Context, a *app, _ cliFlags, args []string) error {
	if a.history == nil {
		return errors.New("task history is disabled; set history.enabled in uetools.yaml")
	}
	limit := a.cfg.History.Limit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}
	records, err := a.history.Recent(ctx, limit)
	if err != nil {
		return err
	}
	printHistory(a.out, records)
	return nil
}

func printHistory(w io.Writer, records []domain.TaskRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No tasks recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTASK\tSTATUS\tEXIT\tDURATION")
	for _, r := range records {
		exit, took := "-", "-"
		if r.ExitCode != nil {
			exit = strconv.Itoa(*r.ExitCode)
		}
		if r.EndedAt != nil {
			took = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Name, r.Status, exit, took)
	}
	tw.Flush()
}

func cmdWatch(ctx context.Context, a *app, _ cliFlags, _ []string) error {
	w, err := watch.New(watch.Config{Roots: a.cfg.Workspace.Roots}, a.bus, logger.Component(a.log, "watch"))
	if err != nil {
		return err
	}
	defer w.Close()

	printSession(a.out, a.svc)
	fmt.Fprintf(a.out, "Watching %s (Ctrl+C to stop)\n", strings.Join(w.Paths(), ", "))
	err = w.Run(ctx, func(ctx context.Context, path string) {
		a.log.Info("re-detecting", "changed", path)
		if _, err := a.svc.Detect(ctx); err == nil {
			printSession(a.out, a.svc)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func cmdMCP(ctx context.Context, a *app, _ cliFlags, _ []string) error {
	srv := mcpserver.New(a.svc, a.svc.Tasks(), version, logger.Component(a.log, "mcp"))
	err := srv.Serve(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
