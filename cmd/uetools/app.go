package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"uetools/internal/adapter/history"
	"uetools/internal/adapter/notify"
	"uetools/internal/domain"
	"uetools/internal/infra/config"
	"uetools/internal/infra/logger"
	"uetools/internal/infra/tracer"
	"uetools/internal/usecase/command"
	"uetools/internal/usecase/engine"
	"uetools/internal/usecase/eventbus"
	"uetools/internal/usecase/logtail"
	"uetools/internal/usecase/ops"
	"uetools/internal/usecase/project"
	"uetools/internal/usecase/session"
	"uetools/internal/usecase/task"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	out     io.Writer
	bus     *eventbus.Bus
	console *notify.Console
	remote  *notify.Fanout
	history *history.SQLiteStore
	tasks   *task.Coordinator
	svc     *ops.Service

	traceShutdown func(context.Context) error
	logClose      func() error
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (_ *app, err error) {
	log, logClose, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, out: out, logClose: logClose}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.traceShutdown, err = tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	a.bus = eventbus.New(logger.Component(log, "eventbus"))
	a.console = notify.NewConsole(out, cfg.Notify.Color)
	a.bus.Subscribe(domain.EventLogLines, func(_ context.Context, ev domain.Event) {
		var p domain.LogLinesPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		a.console.PrintLines(p.Lines)
	})

	remotes, err := remoteNotifiers(cfg, logger.Component(log, "notify"))
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	if len(remotes) > 0 {
		a.remote = notify.NewFanout(remotes...)
		notify.Forward(a.bus, a.remote, notify.ForwardConfig{OnlyFailures: cfg.Notify.OnlyFailures},
			logger.Component(log, "notify"))
	}

	if cfg.History.Enabled {
		store, herr := history.NewSQLiteStore(cfg.History.Path)
		if herr != nil {
			// History is a convenience; commands still work without it.
			log.Warn("task history disabled", "path", cfg.History.Path, "error", herr)
		} else {
			a.history = store
			history.Attach(a.bus, store, cfg.History.Retain, logger.Component(log, "history"))
		}
	}

	var mirror io.Writer
	if cfg.Tasks.Mirror {
		mirror = a.console
	}
	a.tasks = task.NewCoordinator(task.Config{
		OutputBufferMax: cfg.Tasks.OutputBufferMax,
		Mirror:          mirror,
	}, a.bus, logger.Component(log, "tasks"))

	loader, err := project.NewLoader(logger.Component(log, "project"))
	if err != nil {
		return nil, err
	}

	var notifier domain.Notifier
	if cfg.Notify.Console {
		notifier = a.console
	}
	a.svc = ops.New(ops.Config{
		Roots:            cfg.Workspace.Roots,
		SearchRoot:       cfg.Engine.SearchRoot,
		Platform:         domain.OperatingSystem(cfg.Engine.Platform),
		LogStartDelay:    cfg.LogStartDelay(),
		ClangSettleDelay: cfg.ClangSettleDelay(),
		Trace:            cfg.Launch.Trace,
		ArchiveDirectory: cfg.Launch.ArchiveDirectory,
		BuildBeforeEdit:  cfg.Launch.BuildBeforeEdit,
		SolutionPath:     cfg.Server.Solution,
		MSBuildPath:      cfg.Server.MSBuildPath,
	}, ops.Deps{
		Loader:   loader,
		Locator:  engine.NewLocator(engine.LocatorConfig{AllowFallback: cfg.Engine.AllowFallback}, logger.Component(log, "engine")),
		Composer: command.NewComposer(command.NewRandomSuffix()),
		Tasks:    a.tasks,
		Tailer:   logtail.New(logtail.Config{Interval: cfg.TailInterval()}, logger.Component(log, "logtail")),
		State:    session.New(),
		Bus:      a.bus,
		Notifier: notifier,
		Logger:   logger.Component(log, "ops"),
	})
	return a, nil
}

// remoteNotifiers builds the configured Slack and Discord sinks, each behind
// a rate limiter and circuit breaker.
func remoteNotifiers(c *config.Config, log *slog.Logger) ([]domain.Notifier, error) {
	cfg := c.Notify
	guard := notify.GuardConfig{
		PerMinute:   cfg.RateLimitPerMinute,
		MaxFailures: uint32(max(cfg.Breaker.MaxFailures, 0)),
		Timeout:     c.BreakerTimeout(),
	}

	var out []domain.Notifier
	if cfg.Slack != nil {
		s, err := notify.NewSlack(notify.SlackConfig{
			WebhookURL: cfg.Slack.WebhookURL,
			BotToken:   cfg.Slack.BotToken,
			Channel:    cfg.Slack.Channel,
		}, log)
		if err != nil {
			return nil, err
		}
		out = append(out, notify.NewGuarded(s, guard, log))
	}
	if cfg.Discord != nil {
		d, err := notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID, log)
		if err != nil {
			return nil, err
		}
		out = append(out, notify.NewGuarded(d, guard, log))
	}
	return out, nil
}

// Close stops running tasks and drains the event bus before closing the
// history store, so completion events still get recorded.
func (a *app) Close() {
	if a.tasks != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.tasks.Stop(ctx); err != nil {
			a.log.Warn("stop tasks", "error", err)
		}
		cancel()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("close history", "error", err)
		}
	}
	if a.traceShutdown != nil {
		if err := a.traceShutdown(context.Background()); err != nil {
			a.log.Warn("tracer shutdown", "error", err)
		}
	}
	if a.logClose != nil {
		_ = a.logClose()
	}
}
