package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"botdash/config"
	"botdash/internal/state"

	"go.uber.org/zap"
)

// APIError is a non-2xx response from the bot backend. Detail carries the
// backend's human-readable reason ("busy", "bot is not running", ...).
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("bot api status=%d detail=%s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("bot api status=%d", e.StatusCode)
}

// Client talks to the trading bot's REST backend.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.API.Timeout,
		},
		baseURL: strings.TrimRight(cfg.API.BaseURL, "/"),
	}
}

// FullState is the composite payload from GET /state. Sections the backend
// omitted are nil.
type FullState struct {
	Status   *state.Status   `json:"status,omitempty"`
	Account  *state.Account  `json:"account,omitempty"`
	Stats    *state.Stats    `json:"stats,omitempty"`
	Settings *state.Settings `json:"settings,omitempty"`
}

// StartResult is the backend's response to a bot start request, with
// per-service connection diagnostics.
type StartResult struct {
	Success           bool   `json:"success"`
	MT5Connected      bool   `json:"mt5_connected"`
	TelegramConnected bool   `json:"telegram_connected"`
	Message           string `json:"message"`
}

// GetState fetches the full backend state in one request.
func (c *Client) GetState(ctx context.Context) (*FullState, error) {
	var fs FullState
	if err := c.doGet(ctx, "/state", nil, &fs); err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return &fs, nil
}

// GetStatus fetches the bot's process status.
func (c *Client) GetStatus(ctx context.Context) (*state.Status, error) {
	var st state.Status
	if err := c.doGet(ctx, "/status", nil, &st); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return &st, nil
}

// GetPositions fetches the currently open positions.
func (c *Client) GetPositions(ctx context.Context) ([]state.Position, error) {
	var positions []state.Position
	if err := c.doGet(ctx, "/positions", nil, &positions); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return positions, nil
}

// GetTrades fetches trades. With activeOnly, only open positions are
// returned.
func (c *Client) GetTrades(ctx context.Context, activeOnly bool) ([]state.Position, error) {
	query := url.Values{}
	if activeOnly {
		query.Set("active_only", "true")
	}

	var trades []state.Position
	if err := c.doGet(ctx, "/trades", query, &trades); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}
	return trades, nil
}

// GetSettings fetches the bot's current settings.
func (c *Client) GetSettings(ctx context.Context) (*state.Settings, error) {
	var s state.Settings
	if err := c.doGet(ctx, "/settings", nil, &s); err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &s, nil
}

// PutSettings replaces the bot's settings wholesale.
func (c *Client) PutSettings(ctx context.Context, s *state.Settings) error {
	if s == nil {
		return fmt.Errorf("settings is nil")
	}
	if err := c.doJSON(ctx, http.MethodPut, "/settings", s, nil); err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}

// UpdateSetting persists a single edited field by its dotted path, e.g.
// "settings.trading.lots".
func (c *Client) UpdateSetting(ctx context.Context, path string, value any) error {
	body := map[string]any{
		"path":  path,
		"value": value,
	}
	if err := c.doJSON(ctx, http.MethodPatch, "/settings", body, nil); err != nil {
		return fmt.Errorf("update setting %s: %w", path, err)
	}
	return nil
}

// StartBot asks the backend to start the trading bot. The backend replies
// only after its connection attempts have settled, so this call can take
// several seconds.
func (c *Client) StartBot(ctx context.Context) (*StartResult, error) {
	var res StartResult
	if err := c.doJSON(ctx, http.MethodPost, "/bot/start", nil, &res); err != nil {
		return nil, fmt.Errorf("start bot: %w", err)
	}
	return &res, nil
}

// StopBot asks the backend to stop the trading bot.
func (c *Client) StopBot(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/bot/stop", nil, nil); err != nil {
		return fmt.Errorf("stop bot: %w", err)
	}
	return nil
}

// Reconnect asks the backend to re-establish its MT5 and Telegram sessions.
func (c *Client) Reconnect(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/bot/reconnect", nil, nil); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// CloseTrade closes the trade with the given ticket.
func (c *Client) CloseTrade(ctx context.Context, ticket int64) error {
	path := fmt.Sprintf("/trades/%d/close", ticket)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("close trade %d: %w", ticket, err)
	}
	return nil
}

// ClosePosition closes the open position with the given ticket.
func (c *Client) ClosePosition(ctx context.Context, ticket int64) error {
	path := fmt.Sprintf("/positions/%d/close", ticket)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("close position %d: %w", ticket, err)
	}
	return nil
}

// doGet performs a GET request and decodes the JSON response into dest.
func (c *Client) doGet(ctx context.Context, path string, query url.Values, dest any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, dest)
}

// doJSON performs a request with an optional JSON body and decodes the
// response into dest when dest is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// decodeAPIError pulls the backend's {"detail": "..."} out of an error body.
// Bodies that don't match still produce an APIError with the raw text.
func decodeAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return &APIError{StatusCode: status, Detail: payload.Detail}
	}
	return &APIError{StatusCode: status, Detail: strings.TrimSpace(string(body))}
}
