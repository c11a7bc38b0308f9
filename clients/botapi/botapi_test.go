package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"botdash/config"
	"botdash/internal/state"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.Defaults()
	cfg.API.BaseURL = baseURL
	return cfg
}

func TestNewClient(t *testing.T) {
	client := NewClient(nil, testConfig("https://bot.example.com/api/"))

	if client.logger == nil {
		t.Error("expected logger to be set")
	}
	if client.baseURL != "https://bot.example.com/api" {
		t.Errorf("expected trailing slash trimmed, got %s", client.baseURL)
	}
}

func TestGetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(state.Status{
			BotRunning:    true,
			MT5Connected:  true,
			UptimeSeconds: 120,
		})
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	st, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.BotRunning || !st.MT5Connected {
		t.Error("unexpected status flags")
	}
	if st.UptimeSeconds != 120 {
		t.Errorf("unexpected uptime: %d", st.UptimeSeconds)
	}
}

func TestGetState_OmittedSectionsAreNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/state" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		io.WriteString(w, `{"status": {"bot_running": true}, "account": {"balance": 1000.5}}`)
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	fs, err := client.GetState(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.Status == nil || !fs.Status.BotRunning {
		t.Error("expected status section")
	}
	if fs.Account == nil || fs.Account.Balance != 1000.5 {
		t.Error("expected account section")
	}
	if fs.Stats != nil || fs.Settings != nil {
		t.Error("expected omitted sections to be nil")
	}
}

func TestGetPositions_Path(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]state.Position{
			{Ticket: 201, Symbol: "GBPUSD"},
		})
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	positions, err := client.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 || positions[0].Ticket != 201 {
		t.Errorf("unexpected positions: %v", positions)
	}
}

func TestGetTrades_ActiveOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trades" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("active_only") != "true" {
			t.Errorf("expected active_only=true, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]state.Position{
			{Ticket: 101, Symbol: "XAUUSD"},
			{Ticket: 102, Symbol: "EURUSD"},
		})
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	trades, err := client.GetTrades(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Ticket != 101 {
		t.Errorf("unexpected ticket: %d", trades[0].Ticket)
	}
}

func TestStartBot_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/bot/start" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(StartResult{
			Success:           true,
			MT5Connected:      true,
			TelegramConnected: false,
			Message:           "telegram session expired",
		})
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	res, err := client.StartBot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || !res.MT5Connected {
		t.Error("unexpected start result")
	}
	if res.TelegramConnected {
		t.Error("expected telegram to be disconnected")
	}
	if res.Message != "telegram session expired" {
		t.Errorf("unexpected message: %s", res.Message)
	}
}

func TestStopBot_BusyDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"detail": "busy"}`)
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	err := client.StopBot(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Detail != "busy" {
		t.Errorf("unexpected detail: %s", apiErr.Detail)
	}
}

func TestUpdateSetting_SendsPathAndValue(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/settings" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	if err := client.UpdateSetting(context.Background(), "settings.trading.lots", 0.05); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["path"] != "settings.trading.lots" {
		t.Errorf("unexpected path: %v", got["path"])
	}
	if got["value"] != 0.05 {
		t.Errorf("unexpected value: %v", got["value"])
	}
}

func TestCloseTrade_Path(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trades/42/close" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	if err := client.CloseTrade(context.Background(), 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClosePosition_Path(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions/42/close" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	if err := client.ClosePosition(context.Background(), 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeAPIError_NonJSONBody(t *testing.T) {
	apiErr := decodeAPIError(http.StatusBadGateway, []byte("upstream down\n"))
	if apiErr.Detail != "upstream down" {
		t.Errorf("unexpected detail: %s", apiErr.Detail)
	}
}

func TestGetStatus_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.GetStatus(ctx); err == nil {
		t.Error("expected timeout error")
	}
}
