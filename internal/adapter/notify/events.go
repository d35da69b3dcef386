package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"uetools/internal/domain"
)

// ForwardConfig controls which events become notifications.
type ForwardConfig struct {
	OnlyFailures bool
}

// Forward subscribes to task completion and detection failure events and
// turns them into notifications for n. It returns an unsubscribe function.
func Forward(bus domain.EventBus, n domain.Notifier, cfg ForwardConfig, logger *slog.Logger) func() {
	send := func(ctx context.Context, note domain.Notification) {
		if err := n.Notify(ctx, note); err != nil {
			logger.Warn("notification failed", "notifier", n.Name(), "error", err)
		}
	}

	unsubTask := bus.Subscribe(domain.EventTaskCompleted, func(ctx context.Context, ev domain.Event) {
		var p domain.TaskEventPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logger.Warn("bad task event payload", "error", err)
			return
		}
		note, ok := taskNotification(p, cfg.OnlyFailures)
		if ok {
			send(ctx, note)
		}
	})
	unsubDetect := bus.Subscribe(domain.EventDetectionFailed, func(ctx context.Context, ev domain.Event) {
		var p domain.DetectionFailedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logger.Warn("bad detection event payload", "error", err)
			return
		}
		send(ctx, domain.Notification{
			Level:   domain.NotifyError,
			Title:   "Detection failed",
			Message: p.Error,
			Code:    p.Code,
		})
	})

	return func() {
		unsubTask()
		unsubDetect()
	}
}

func taskNotification(p domain.TaskEventPayload, onlyFailures bool) (domain.Notification, bool) {
	took := (time.Duration(p.DurationMs) * time.Millisecond).Round(time.Second)
	if p.Status == domain.TaskStatusSucceeded {
		if onlyFailures {
			return domain.Notification{}, false
		}
		return domain.Notification{
			Level:   domain.NotifyInfo,
			Title:   p.Name + " succeeded",
			Message: fmt.Sprintf("Finished in %s", took),
		}, true
	}

	code := -1
	if p.ExitCode != nil {
		code = *p.ExitCode
	}
	return domain.Notification{
		Level:   domain.NotifyError,
		Title:   p.Name + " failed",
		Message: fmt.Sprintf("Exit code %d after %s\n%s", code, took, p.CommandLine),
		Code:    domain.CodeProcessExitNonZero,
	}, true
}
