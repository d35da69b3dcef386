package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uetools/internal/adapter/history"
	"uetools/internal/domain"
	"uetools/internal/infra/config"
	"uetools/internal/infra/logger"
)

func TestParseFlags(t *testing.T) {
	flags, args, err := parseFlags([]string{
		"Inventory", "--target", "game", "--configuration=Debug", "--trace", "--archive", "/tmp/out", "--config=alt.yaml",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Inventory"}, args)
	assert.Equal(t, domain.TargetGame, flags.Target)
	assert.Equal(t, domain.ConfigDebug, flags.Configuration)
	assert.True(t, flags.Trace)
	assert.Equal(t, "/tmp/out", flags.Archive)
	assert.Equal(t, "alt.yaml", flags.Config)
}

func TestParseFlagsDefaults(t *testing.T) {
	t.Setenv("UETOOLS_CONFIG", "")
	flags, args, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Equal(t, config.DefaultPath, flags.Config)
	assert.Empty(t, flags.Target)
	assert.False(t, flags.Trace)
}

func TestParseFlagsConfigFromEnv(t *testing.T) {
	t.Setenv("UETOOLS_CONFIG", "/etc/uetools.yaml")
	flags, _, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/uetools.yaml", flags.Config)
}

func TestParseFlagsErrors(t *testing.T) {
	tests := map[string][]string{
		"unknown flag":      {"--verbose", "x"},
		"missing value":     {"--target"},
		"bad target":        {"--target", "Server"},
		"bad configuration": {"--configuration=Shipping"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseFlags(args)
			assert.Error(t, err)
		})
	}
}

func TestParseFlagsTraceFalse(t *testing.T) {
	flags, _, err := parseFlags([]string{"--trace=false"})
	require.NoError(t, err)
	assert.False(t, flags.Trace)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 6, exitCode(&domain.ProcessExitError{Task: "Build Project", Code: 6}))
	assert.Equal(t, 6, exitCode(fmt.Errorf("build: %w", &domain.ProcessExitError{Code: 6})))
	assert.Equal(t, 1, exitCode(&domain.ProcessExitError{Code: -1}))
	assert.Equal(t, 1, exitCode(domain.ErrNotFound))
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, resultErr(domain.TaskResult{Status: domain.TaskStatusSucceeded}))

	err := resultErr(domain.TaskResult{Name: "Run Game", Status: domain.TaskStatusFailed, ExitCode: 3})
	var pe *domain.ProcessExitError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Code)

	cause := &domain.ProcessExitError{Task: "Build Project", Code: 2}
	assert.Same(t, cause, resultErr(domain.TaskResult{Status: domain.TaskStatusFailed, Err: cause}))
}

func TestCommandsTable(t *testing.T) {
	for _, name := range []string{
		"detect", "build", "build-module", "build-server", "package", "editor",
		"launch", "clang-db", "compose", "plugins", "history", "watch", "mcp",
	} {
		cmd, ok := commands[name]
		require.True(t, ok, name)
		assert.NotNil(t, cmd.run, name)
		assert.NotEmpty(t, cmd.usage, name)
	}
	assert.Equal(t, 1, commands["build-module"].args)
	assert.Equal(t, detectNone, commands["history"].detect)
	assert.Equal(t, detectRequired, commands["build"].detect)
}

func TestRunUnknownCommand(t *testing.T) {
	err := run("deploy", cliFlags{}, nil)
	assert.ErrorContains(t, err, `unknown command "deploy"`)
}

func TestRunMissingArgument(t *testing.T) {
	err := run("build-module", cliFlags{}, nil)
	assert.ErrorContains(t, err, "usage: uetools build-module")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Equal(t, "No tasks recorded yet.\n", buf.String())

	buf.Reset()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	end := start.Add(90 * time.Second)
	code := 0
	printHistory(&buf, []domain.TaskRecord{
		{Name: "Build Project", Status: domain.TaskStatusSucceeded, ExitCode: &code, StartedAt: start, EndedAt: &end},
		{Name: "Run Game", Status: domain.TaskStatusRunning, StartedAt: start},
	})
	out := buf.String()
	assert.Contains(t, out, "STARTED")
	assert.Contains(t, out, "2026-03-01 10:00:00")
	assert.Contains(t, out, "1m30s")
	assert.Regexp(t, `Run Game\s+running\s+-\s+-`, out)
}

func TestPrintPlugins(t *testing.T) {
	var buf bytes.Buffer
	printPlugins(&buf, nil)
	assert.Equal(t, "No plugins found.\n", buf.String())

	buf.Reset()
	printPlugins(&buf, []domain.PluginDescriptor{
		{FriendlyName: "Inventory", VersionName: "1.2", Modules: []domain.Module{{Name: "Inventory"}, {Name: "InventoryEditor"}}},
		{Dir: "Bare"},
	})
	out := buf.String()
	assert.Regexp(t, `Inventory\s+1\.2\s+-\s+Inventory,InventoryEditor`, out)
	assert.Regexp(t, `Bare\s+-\s+-\s+-`, out)
}

func TestRemoteNotifiers(t *testing.T) {
	cfg := config.Defaults()
	got, err := remoteNotifiers(cfg, logger.Discard())
	require.NoError(t, err)
	assert.Empty(t, got)

	cfg.Notify.Slack = &config.SlackConfig{WebhookURL: "https://hooks.slack.com/services/T/B/X"}
	cfg.Notify.Discord = &config.DiscordConfig{Token: "token", ChannelID: "123"}
	got, err = remoteNotifiers(cfg, logger.Discard())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "slack", got[0].Name())
	assert.Equal(t, "discord", got[1].Name())
}

func TestRemoteNotifiersInvalidSlack(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notify.Slack = &config.SlackConfig{}
	_, err := remoteNotifiers(cfg, logger.Discard())
	assert.Error(t, err)
}

// testWorkspace lays out a project and a matching engine directory.
func testWorkspace(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	workspace := filepath.Join(base, "workspace")
	engines := filepath.Join(base, "engines")
	require.NoError(t, os.MkdirAll(filepath.Join(engines, "UE_5.5"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, "Plugins", "Inventory"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "Game.uproject"),
		[]byte(`{"EngineAssociation":"5.5","Modules":[{"Name":"Game"}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "Plugins", "Inventory", "Inventory.uplugin"),
		[]byte(`{"FriendlyName":"Inventory","VersionName":"1.0"}`), 0o644))

	cfg := config.Defaults()
	cfg.Workspace.Roots = []string{workspace}
	cfg.Engine.SearchRoot = engines
	cfg.Engine.Platform = "linux"
	cfg.Logger.Output = "discard"
	cfg.Notify.Color = false
	cfg.History.Path = filepath.Join(base, "data", "history.db")
	return cfg
}

func TestNewAppTracerFailureReturnsError(t *testing.T) {
	cfg := testWorkspace(t)
	cfg.Tracer = config.TracerConfig{
		Enabled:  true,
		Exporter: "file",
		Endpoint: filepath.Join(t.TempDir(), "missing-dir", "trace.json"),
	}

	var a *app
	var err error
	require.NotPanics(t, func() { a, err = newApp(context.Background(), cfg, &bytes.Buffer{}) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracer:")
	assert.Nil(t, a)
}

func TestAppComposeAndDetect(t *testing.T) {
	cfg := testWorkspace(t)
	var out bytes.Buffer
	ctx := context.Background()

	a, err := newApp(ctx, cfg, &out)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, cmdDetect(ctx, a, cliFlags{}, nil))
	assert.Regexp(t, `Project:\s+Game`, out.String())
	assert.Regexp(t, `Plugins:\s+1`, out.String())

	out.Reset()
	require.NoError(t, cmdCompose(ctx, a, cliFlags{Configuration: domain.ConfigDebug}, []string{"build-project"}))
	assert.Contains(t, out.String(), "-mode=Build")
	assert.Contains(t, out.String(), "GameEditor Linux Debug")

	out.Reset()
	require.NoError(t, cmdPlugins(ctx, a, cliFlags{}, nil))
	assert.Contains(t, out.String(), "Inventory")
}

func TestAppComposeUnknownKindIsReported(t *testing.T) {
	cfg := testWorkspace(t)
	var out bytes.Buffer
	ctx := context.Background()

	a, err := newApp(ctx, cfg, &out)
	require.NoError(t, err)
	defer a.Close()

	err = cmdCompose(ctx, a, cliFlags{}, []string{"deploy"})
	require.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	assert.Contains(t, out.String(), "[ERROR] Compose:")
}

func TestAppCloseFlushesHistory(t *testing.T) {
	cfg := testWorkspace(t)
	ctx := context.Background()

	a, err := newApp(ctx, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	require.NotNil(t, a.history)

	code := 0
	a.bus.Publish(ctx, domain.NewEvent(domain.EventTaskCompleted, domain.TaskEventPayload{
		ID: "01HX", Name: "Build Project", Status: domain.TaskStatusSucceeded, ExitCode: &code, DurationMs: 1500,
	}))
	a.Close()

	store, err := history.NewSQLiteStore(cfg.History.Path)
	require.NoError(t, err)
	defer store.Close()
	recs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Build Project", recs[0].Name)
}

func TestCmdHistoryDisabled(t *testing.T) {
	cfg := testWorkspace(t)
	cfg.History.Enabled = false
	ctx := context.Background()

	a, err := newApp(ctx, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Close()

	assert.ErrorContains(t, cmdHistory(ctx, a, cliFlags{}, nil), "history is disabled")
}

func TestCmdHistoryInvalidLimit(t *testing.T) {
	cfg := testWorkspace(t)
	ctx := context.Background()

	a, err := newApp(ctx, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Close()

	assert.ErrorContains(t, cmdHistory(ctx, a, cliFlags{}, []string{"zero"}), "invalid limit")

	var out bytes.Buffer
	a.out = &out
	require.NoError(t, cmdHistory(ctx, a, cliFlags{}, []string{"5"}))
	assert.Equal(t, "No tasks recorded yet.\n", out.String())
}
