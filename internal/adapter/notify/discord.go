package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"uetools/internal/domain"
)

// discordMaxContent is Discord's message length limit.
const discordMaxContent = 2000

// channelSender is the part of *discordgo.Session the notifier uses.
type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts notifications to a Discord channel through the bot REST API.
type Discord struct {
	channelID string
	sender    channelSender
	logger    *slog.Logger
}

// NewDiscord creates a Discord notifier authenticated as a bot.
func NewDiscord(token, channelID string, logger *slog.Logger) (*Discord, error) {
	if token == "" || channelID == "" {
		return nil, errors.New("discord: token and channel_id are required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{channelID: channelID, sender: dg, logger: logger}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Notify(ctx context.Context, n domain.Notification) error {
	_, err := d.sender.ChannelMessageSend(d.channelID, discordContent(n), discordgo.WithContext(ctx))
	return err
}

func discordContent(n domain.Notification) string {
	icon := ":information_source:"
	switch n.Level {
	case domain.NotifyError:
		icon = ":x:"
	case domain.NotifyWarning:
		icon = ":warning:"
	}
	content := fmt.Sprintf("%s **%s**\n%s", icon, n.Title, n.Message)
	if n.Code != "" && n.Code != domain.CodeUnknown {
		content += fmt.Sprintf("\n`%s`", n.Code)
	}
	if r := []rune(content); len(r) > discordMaxContent {
		content = string(r[:discordMaxContent-1]) + "…"
	}
	return content
}

var _ domain.Notifier = (*Discord)(nil)
