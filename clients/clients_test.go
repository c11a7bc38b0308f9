package clients

import (
	"testing"

	"botdash/config"

	"go.uber.org/zap"
)

func TestNewClients(t *testing.T) {
	cfg := config.Defaults()
	cfg.Snapshot.Enabled = true
	cfg.Snapshot.URL = "ws://localhost:9000/store"

	logger := zap.NewNop()
	clients := NewClients(logger, cfg)

	if clients.Logger != logger {
		t.Error("unexpected logger")
	}
	if clients.Discord == nil {
		t.Error("expected Discord client to be set")
	}
	if clients.Telegram == nil {
		t.Error("expected Telegram client to be set")
	}
	if clients.Queue == nil {
		t.Error("expected queue notifier to be set")
	}
	if clients.Notifier == nil {
		t.Error("expected combined notifier to be set")
	}
	if clients.BotAPI == nil {
		t.Error("expected bot API client to be set")
	}
	if clients.Events == nil {
		t.Error("expected events client to be set")
	}
	if clients.Snapshot == nil {
		t.Error("expected snapshot client to be set when feed is enabled")
	}
}

func TestNewClients_SnapshotDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Snapshot.Enabled = false

	clients := NewClients(zap.NewNop(), cfg)

	if clients.Snapshot != nil {
		t.Error("expected snapshot client to be nil when feed is disabled")
	}
}

func TestNewClients_NilLogger(t *testing.T) {
	clients := NewClients(nil, config.Defaults())

	if clients.Logger != nil {
		t.Error("expected nil logger to remain nil")
	}
	// Other clients should still be initialized
	if clients.Discord == nil {
		t.Error("expected Discord client to be set")
	}
}
