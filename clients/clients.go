package clients

import (
	"botdash/clients/botapi"
	"botdash/clients/botevents"
	"botdash/clients/discord"
	"botdash/clients/notifier"
	"botdash/clients/snapshot"
	"botdash/clients/telegram"
	"botdash/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord  *discord.DiscordClient
	Telegram *telegram.TelegramClient
	Queue    *notifier.QueueNotifier
	Notifier notifier.Notifier // Combined notifier for all channels
	BotAPI   *botapi.Client
	Events   *botevents.Client
	Snapshot *snapshot.Client
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, cfg)
	telegramClient := telegram.NewTelegramClient(logger, cfg)
	queue := notifier.NewQueueNotifier()

	// Combined notifier: in-memory queue for the dashboard plus the
	// external channels
	multiNotifier := notifier.NewMultiNotifier(queue, discordClient, telegramClient)

	c := &Clients{
		Logger:   logger,
		Discord:  discordClient,
		Telegram: telegramClient,
		Queue:    queue,
		Notifier: multiNotifier,
		BotAPI:   botapi.NewClient(logger, cfg),
		Events:   botevents.NewClient(logger, cfg.Socket.URL, cfg.Socket.PingInterval),
	}

	// Only create the snapshot client if the feed is configured
	if cfg.Snapshot.Enabled {
		c.Snapshot = snapshot.NewClient(logger, cfg.Snapshot.URL)
	}

	return c
}
