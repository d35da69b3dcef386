//go:build integration

package integration

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"uetools/internal/adapter/notify"
	"uetools/internal/domain"
	"uetools/internal/infra/logger"
	"uetools/internal/usecase/command"
	"uetools/internal/usecase/engine"
	"uetools/internal/usecase/logtail"
	"uetools/internal/usecase/ops"
	"uetools/internal/usecase/project"
	"uetools/internal/usecase/session"
	"uetools/internal/usecase/task"
)

// newService wires an ops.Service against the real installation.
func newService(t *testing.T, cfg *Config) *ops.Service {
	t.Helper()
	log := logger.Discard()
	loader, err := project.NewLoader(log)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	tasks := task.NewCoordinator(task.Config{Mirror: os.Stdout}, nil, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = tasks.Stop(ctx)
	})
	return ops.New(ops.Config{
		Roots:      []string{cfg.ProjectDir},
		SearchRoot: cfg.SearchRoot,
	}, ops.Deps{
		Loader:   loader,
		Locator:  engine.NewLocator(engine.LocatorConfig{}, log),
		Composer: command.NewComposer(command.NewRandomSuffix()),
		Tasks:    tasks,
		Tailer:   logtail.New(logtail.Config{}, log),
		State:    session.New(),
		Logger:   log,
	})
}

func TestE2E_DetectRealProject(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfUnset(t, cfg.ProjectDir, "UETOOLS_IT_PROJECT")
	SkipIfUnset(t, cfg.SearchRoot, "UETOOLS_IT_SEARCH_ROOT")

	ctx := NewTestContext(t, time.Minute)
	svc := newService(t, cfg)

	snap, err := svc.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	t.Logf("project %s uses %s", snap.Project.PrimaryModule(), snap.Installation.RootPath)

	for _, p := range []string{snap.Paths.BuildTool, snap.Paths.Editor, snap.Paths.Runtime} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("resolved tool %s does not exist: %v", p, err)
		}
	}
}

func TestE2E_ComposeEveryOperation(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfUnset(t, cfg.ProjectDir, "UETOOLS_IT_PROJECT")
	SkipIfUnset(t, cfg.SearchRoot, "UETOOLS_IT_SEARCH_ROOT")

	ctx := NewTestContext(t, time.Minute)
	svc := newService(t, cfg)
	snap, err := svc.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	for _, kind := range domain.OperationKinds {
		if kind == domain.OpBuildServer && runtime.GOOS != "windows" {
			continue
		}
		req := domain.OperationRequest{Kind: kind, ModuleName: snap.Project.PrimaryModule()}
		cmd, err := svc.Compose(ctx, req)
		if err != nil {
			t.Errorf("%s: %v", kind, err)
			continue
		}
		t.Logf("%s: %s", kind, cmd.ShellLine())
	}
}

func TestE2E_BuildProject(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	if cfg.SkipSlow {
		t.Skip("Skipping slow build test")
	}
	SkipIfUnset(t, cfg.ProjectDir, "UETOOLS_IT_PROJECT")
	SkipIfUnset(t, cfg.SearchRoot, "UETOOLS_IT_SEARCH_ROOT")

	ctx := NewTestContext(t, cfg.TestTimeout)
	svc := newService(t, cfg)
	if _, err := svc.Detect(ctx); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	res, err := svc.RunAndWait(ctx, domain.OperationRequest{Kind: domain.OpBuildProject})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !res.Succeeded() {
		t.Errorf("build finished with status %s, exit code %d", res.Status, res.ExitCode)
	}
}

func TestE2E_SlackWebhook(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfUnset(t, cfg.SlackWebhook, "UETOOLS_IT_SLACK_WEBHOOK")

	ctx := NewTestContext(t, 30*time.Second)
	s, err := notify.NewSlack(notify.SlackConfig{WebhookURL: cfg.SlackWebhook}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	err = s.Notify(ctx, domain.Notification{
		Level:   domain.NotifyInfo,
		Title:   "uetools integration test",
		Message: "Slack webhook delivery works",
	})
	if err != nil {
		t.Fatalf("Slack notify failed: %v", err)
	}
}

func TestE2E_DiscordChannel(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfUnset(t, cfg.DiscordToken, "UETOOLS_IT_DISCORD_TOKEN")
	SkipIfUnset(t, cfg.DiscordChannel, "UETOOLS_IT_DISCORD_CHANNEL")

	ctx := NewTestContext(t, 30*time.Second)
	d, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannel, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	err = d.Notify(ctx, domain.Notification{
		Level:   domain.NotifyInfo,
		Title:   "uetools integration test",
		Message: "Discord channel delivery works",
	})
	if err != nil {
		t.Fatalf("Discord notify failed: %v", err)
	}
}
