package discord

import (
	"fmt"
	"time"

	"botdash/clients/notifier"
	"botdash/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordClient forwards dashboard notifications to a Discord channel.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
	isProd    bool
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.ChannelID

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord notifications disabled")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}
}

// SendMessage sends a plain text message.
func (dc *DiscordClient) SendMessage(message string) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping message")
		return
	}

	_, err := dc.session.ChannelMessageSend(dc.channelID, message)
	if err != nil {
		dc.logger.Error("failed to send discord message", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord message")
}

// Notify sends the notification as a rich embed.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) Notify(n notifier.Notification) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping notification")
		return
	}

	embed := dc.buildEmbed(n)

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord notification",
		zap.String("severity", string(n.Severity)),
		zap.String("id", n.ID),
	)
}

func (dc *DiscordClient) buildEmbed(n notifier.Notification) *discordgo.MessageEmbed {
	color, title := severityStyle(n.Severity)

	ts := n.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: n.Message,
		Color:       color,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("botdash * %s", ts.Format("1/2/2006, 3:04:05PM (MST)")),
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func severityStyle(sev notifier.Severity) (int, string) {
	switch sev {
	case notifier.SeverityError:
		return 0xE74C3C, "🚨 Bot Error"
	case notifier.SeverityWarning:
		return 0xF39C12, "⚠️ Bot Warning"
	case notifier.SeveritySuccess:
		return 0x2ECC71, "✅ Bot Update"
	default:
		return 0x3498DB, "ℹ️ Bot Info"
	}
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
