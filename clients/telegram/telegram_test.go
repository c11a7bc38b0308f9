package telegram

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"botdash/clients/notifier"
	"botdash/config"

	"go.uber.org/zap"
)

func TestNewTelegramClient_NoToken(t *testing.T) {
	cfg := &config.Config{
		IsProd: false,
		Telegram: config.TelegramConfig{
			BotToken: "",
			ChatID:   "ops-chat",
		},
	}

	client := NewTelegramClient(zap.NewNop(), cfg)

	if client.botToken != "" {
		t.Error("expected empty token")
	}
	if client.chatID != "ops-chat" {
		t.Errorf("unexpected chat: %s", client.chatID)
	}
}

func TestNotify_NotConfigured(t *testing.T) {
	client := &TelegramClient{
		logger: zap.NewNop(),
		apiURL: telegramAPIURL,
	}

	// Should not panic or attempt a request
	client.Notify(notifier.New(notifier.SeverityInfo, "noop"))
}

func TestNotify_SendsMarkdownMessage(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		io.WriteString(w, `{"ok": true}`)
	}))
	defer server.Close()

	client := &TelegramClient{
		logger:   zap.NewNop(),
		botToken: "token",
		chatID:   "chat",
		client:   &http.Client{Timeout: time.Second},
		apiURL:   server.URL + "/bot%s/%s",
	}

	client.Notify(notifier.Notification{
		ID:       "n-1",
		Severity: notifier.SeverityError,
		Message:  "poll failed",
	})

	if got["chat_id"] != "chat" {
		t.Errorf("unexpected chat_id: %v", got["chat_id"])
	}
	if got["parse_mode"] != "Markdown" {
		t.Errorf("unexpected parse_mode: %v", got["parse_mode"])
	}
	text, _ := got["text"].(string)
	if !strings.Contains(text, "🚨 Bot Error") || !strings.Contains(text, "poll failed") {
		t.Errorf("unexpected text: %s", text)
	}
}

func TestSendMessage_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := &TelegramClient{
		logger:   zap.NewNop(),
		botToken: "token",
		chatID:   "chat",
		client:   &http.Client{Timeout: time.Second},
		apiURL:   server.URL + "/bot%s/%s",
	}

	if err := client.sendMessage("hello"); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestBuildMessage_EscapesMarkdown(t *testing.T) {
	client := &TelegramClient{logger: zap.NewNop()}

	msg := client.buildMessage(notifier.Notification{
		Severity: notifier.SeverityWarning,
		Message:  "field settings_trading [lots] changed",
	})

	if !strings.Contains(msg, "settings\\_trading") {
		t.Errorf("expected underscores escaped, got %s", msg)
	}
	if !strings.Contains(msg, "\\[lots\\]") {
		t.Errorf("expected brackets escaped, got %s", msg)
	}
}

func TestSeverityTitle(t *testing.T) {
	tests := []struct {
		severity notifier.Severity
		title    string
	}{
		{notifier.SeverityError, "🚨 Bot Error"},
		{notifier.SeverityWarning, "⚠️ Bot Warning"},
		{notifier.SeveritySuccess, "✅ Bot Update"},
		{notifier.SeverityInfo, "ℹ️ Bot Info"},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			if got := severityTitle(tt.severity); got != tt.title {
				t.Errorf("expected %s, got %s", tt.title, got)
			}
		})
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain text", "plain text"},
		{"under_score", "under\\_score"},
		{"aster*isk", "aster\\*isk"},
		{"back`tick", "back\\`tick"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeMarkdown(tt.input); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestClose(t *testing.T) {
	client := &TelegramClient{logger: zap.NewNop()}

	if err := client.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
