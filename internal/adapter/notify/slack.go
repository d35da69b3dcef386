package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/slack-go/slack"

	"uetools/internal/domain"
)

// SlackConfig selects webhook delivery (WebhookURL) or bot delivery
// (BotToken plus Channel). The webhook wins when both are set.
type SlackConfig struct {
	WebhookURL string
	BotToken   string
	Channel    string
	// APIURL overrides the Web API base URL; it must end in "/".
	APIURL string
}

// Slack posts notifications to a Slack channel.
type Slack struct {
	cfg    SlackConfig
	api    *slack.Client
	logger *slog.Logger
}

// NewSlack creates a Slack notifier.
func NewSlack(cfg SlackConfig, logger *slog.Logger) (*Slack, error) {
	s := &Slack{cfg: cfg, logger: logger}
	if cfg.WebhookURL != "" {
		return s, nil
	}
	if cfg.BotToken == "" || cfg.Channel == "" {
		return nil, errors.New("slack: webhook_url or bot_token with channel is required")
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	s.api = slack.New(cfg.BotToken, opts...)
	return s, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, n domain.Notification) error {
	att := slack.Attachment{
		Color:  slackColor(n.Level),
		Title:  n.Title,
		Text:   n.Message,
		Footer: string(n.Code),
	}
	if s.api == nil {
		return slack.PostWebhookContext(ctx, s.cfg.WebhookURL, &slack.WebhookMessage{
			Text:        n.Title,
			Attachments: []slack.Attachment{att},
		})
	}
	_, _, err := s.api.PostMessageContext(ctx, s.cfg.Channel,
		slack.MsgOptionText(n.Title, false),
		slack.MsgOptionAttachments(att),
	)
	return err
}

func slackColor(l domain.NotifyLevel) string {
	switch l {
	case domain.NotifyError:
		return "danger"
	case domain.NotifyWarning:
		return "warning"
	}
	return "good"
}

var _ domain.Notifier = (*Slack)(nil)
