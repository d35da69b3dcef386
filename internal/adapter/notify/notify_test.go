package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uetools/internal/domain"
	"uetools/internal/usecase/eventbus"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu    sync.Mutex
	name  string
	err   error
	calls []domain.Notification
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, n)
	return r.err
}

func (r *recordingNotifier) Calls() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.calls...)
}

var failure = domain.Notification{
	Level:   domain.NotifyError,
	Title:   "Build Project",
	Message: "task \"Build Project\": exit code 6",
	Code:    domain.CodeProcessExitNonZero,
}

func TestConsoleNotifyPlain(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	require.NoError(t, c.Notify(context.Background(), failure))
	require.NoError(t, c.Notify(context.Background(), domain.Notification{Level: domain.NotifyInfo, Message: "detected Game"}))

	assert.Equal(t,
		"[ERROR] Build Project: task \"Build Project\": exit code 6 (PROCESS_EXIT_NON_ZERO)\n[INFO] detected Game\n",
		buf.String())
}

func TestConsoleColorKeepsText(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	require.NoError(t, c.Notify(context.Background(), failure))
	c.PrintLines([]domain.ClassifiedLine{
		{Severity: domain.SeverityWarning, Text: "LogTemp: Warning: low memory"},
		{Severity: domain.SeverityError, Text: "LogTemp: Error: missing asset"},
	})

	out := buf.String()
	assert.Contains(t, out, "Build Project")
	assert.Contains(t, out, "LogTemp: Warning: low memory")
	assert.Contains(t, out, "LogTemp: Error: missing asset")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestConsoleWrite(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	n, err := c.Write([]byte("compiling\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "compiling\n", buf.String())
}

func TestSlackWebhook(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewSlack(SlackConfig{WebhookURL: srv.URL}, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "slack", s.Name())
	require.NoError(t, s.Notify(context.Background(), failure))

	assert.Equal(t, "Build Project", got["text"])
	atts, ok := got["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, atts, 1)
	att := atts[0].(map[string]any)
	assert.Equal(t, "danger", att["color"])
	assert.Equal(t, failure.Message, att["text"])
}

func TestSlackWebhookServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewSlack(SlackConfig{WebhookURL: srv.URL}, newTestLogger())
	require.NoError(t, err)
	assert.Error(t, s.Notify(context.Background(), failure))
}

func TestSlackBot(t *testing.T) {
	var channel, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, r.ParseForm())
		channel = r.FormValue("channel")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	s, err := NewSlack(SlackConfig{BotToken: "xoxb-test", Channel: "C123", APIURL: srv.URL + "/"}, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Notify(context.Background(), failure))
	assert.Equal(t, "/chat.postMessage", path)
	assert.Equal(t, "C123", channel)
}

func TestSlackConfigRequired(t *testing.T) {
	_, err := NewSlack(SlackConfig{BotToken: "xoxb-test"}, newTestLogger())
	assert.Error(t, err)
}

type fakeSender struct {
	channelID string
	content   string
	err       error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID = channelID
	f.content = content
	return &discordgo.Message{ID: "1"}, f.err
}

func TestDiscordNotify(t *testing.T) {
	sender := &fakeSender{}
	d := &Discord{channelID: "987", sender: sender, logger: newTestLogger()}

	require.NoError(t, d.Notify(context.Background(), failure))
	assert.Equal(t, "987", sender.channelID)
	assert.Equal(t, ":x: **Build Project**\ntask \"Build Project\": exit code 6\n`PROCESS_EXIT_NON_ZERO`", sender.content)
}

func TestDiscordContentTruncated(t *testing.T) {
	content := discordContent(domain.Notification{Level: domain.NotifyInfo, Title: "t", Message: strings.Repeat("x", 3000)})
	assert.Len(t, []rune(content), discordMaxContent)
	assert.True(t, strings.HasSuffix(content, "…"))
}

func TestNewDiscordValidation(t *testing.T) {
	_, err := NewDiscord("", "987", newTestLogger())
	assert.Error(t, err)

	d, err := NewDiscord("token", "987", newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "discord", d.Name())
}

func TestGuardedRateLimit(t *testing.T) {
	inner := &recordingNotifier{name: "slack"}
	g := NewGuarded(inner, GuardConfig{PerMinute: 1}, newTestLogger())

	require.NoError(t, g.Notify(context.Background(), failure))
	err := g.Notify(context.Background(), failure)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, inner.Calls(), 1)
}

func TestGuardedBreakerOpens(t *testing.T) {
	inner := &recordingNotifier{name: "discord", err: errors.New("503")}
	g := NewGuarded(inner, GuardConfig{PerMinute: 100, MaxFailures: 2}, newTestLogger())

	assert.Error(t, g.Notify(context.Background(), failure))
	assert.Error(t, g.Notify(context.Background(), failure))
	assert.Equal(t, gobreaker.StateOpen, g.State())

	err := g.Notify(context.Background(), failure)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, inner.Calls(), 2)
	assert.Equal(t, "discord", g.Name())
}

func TestFanout(t *testing.T) {
	ok := &recordingNotifier{name: "console"}
	bad := &recordingNotifier{name: "slack", err: errors.New("down")}
	f := NewFanout(ok, nil, bad)
	assert.Equal(t, 2, f.Len())

	err := f.Notify(context.Background(), failure)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: down")
	assert.Len(t, ok.Calls(), 1)
	assert.Len(t, bad.Calls(), 1)
}

func TestForwardTaskEvents(t *testing.T) {
	tests := []struct {
		name         string
		onlyFailures bool
		status       domain.TaskStatus
		code         int
		wantLevel    domain.NotifyLevel
		wantCount    int
	}{
		{"success", false, domain.TaskStatusSucceeded, 0, domain.NotifyInfo, 1},
		{"success filtered", true, domain.TaskStatusSucceeded, 0, "", 0},
		{"failure", true, domain.TaskStatusFailed, 6, domain.NotifyError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := eventbus.New(newTestLogger())
			rec := &recordingNotifier{name: "rec"}
			Forward(bus, rec, ForwardConfig{OnlyFailures: tt.onlyFailures}, newTestLogger())

			code := tt.code
			bus.Publish(context.Background(), domain.NewEvent(domain.EventTaskCompleted, domain.TaskEventPayload{
				Name:        "Build Project",
				CommandLine: "dotnet UnrealBuildTool.dll -mode=Build",
				Status:      tt.status,
				ExitCode:    &code,
				DurationMs:  61_000,
			}))
			bus.Close()

			calls := rec.Calls()
			require.Len(t, calls, tt.wantCount)
			if tt.wantCount == 0 {
				return
			}
			assert.Equal(t, tt.wantLevel, calls[0].Level)
			if tt.status == domain.TaskStatusFailed {
				assert.Equal(t, "Build Project failed", calls[0].Title)
				assert.Contains(t, calls[0].Message, "Exit code 6 after 1m1s")
				assert.Equal(t, domain.CodeProcessExitNonZero, calls[0].Code)
			} else {
				assert.Equal(t, "Build Project succeeded", calls[0].Title)
			}
		})
	}
}

func TestForwardDetectionFailed(t *testing.T) {
	bus := eventbus.New(newTestLogger())
	rec := &recordingNotifier{name: "rec"}
	unsub := Forward(bus, rec, ForwardConfig{OnlyFailures: true}, newTestLogger())

	bus.Publish(context.Background(), domain.NewEvent(domain.EventDetectionFailed, domain.DetectionFailedPayload{
		Error: "Locator.Locate: UE_5.5 under /opt: not found",
		Code:  domain.CodeEngineNotFound,
	}))
	unsub()
	bus.Close()

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Detection failed", calls[0].Title)
	assert.Equal(t, domain.CodeEngineNotFound, calls[0].Code)
}
