package state

import (
	"encoding/json"
	"time"
)

// Domain identifies which slice of ApplicationState an Update targets.
type Domain string

const (
	DomainStatus    Domain = "status"
	DomainAccount   Domain = "account"
	DomainStats     Domain = "stats"
	DomainPositions Domain = "positions"
	DomainSettings  Domain = "settings"

	// DomainEvent carries transient events (signals, created trades, startup
	// progress). These are routed to the event sink, never merged into state.
	DomainEvent Domain = "event"
)

// Source identifies which channel produced an Update.
type Source string

const (
	SourceSocket   Source = "socket"
	SourcePoll     Source = "poll"
	SourceSnapshot Source = "snapshot"
	SourceLocal    Source = "local"
)

// ConnState describes the state of a monitored link.
type ConnState string

const (
	ConnPending      ConnState = "pending"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
	ConnFailed       ConnState = "failed"
	ConnError        ConnState = "error"
)

// Update is an immutable record flowing from a transport adapter to the
// reconciler. ObservedAt is the receipt timestamp assigned by the adapter;
// sources may omit their own clocks, so it is never an origin timestamp.
type Update struct {
	Domain     Domain
	Source     Source
	Payload    any
	ObservedAt time.Time
}

// Status mirrors the bot's run state as reported by the backend.
type Status struct {
	BotRunning        bool  `json:"bot_running"`
	MT5Connected      bool  `json:"mt5_connected"`
	TelegramConnected bool  `json:"telegram_connected"`
	UptimeSeconds     int64 `json:"uptime_seconds"`
}

// Account is the broker account snapshot.
type Account struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Profit     float64 `json:"profit"`
	Currency   string  `json:"currency"`
	Leverage   int     `json:"leverage"`
	Server     string  `json:"server"`
	Login      int64   `json:"login"`
	Name       string  `json:"name"`
}

// Stats holds aggregate trading statistics. LastUpdated drives the staleness
// guard: the snapshot and poll sources can race, and the snapshot write may
// lag the poll write.
type Stats struct {
	TotalTrades   int       `json:"total_trades"`
	ClosedTrades  int       `json:"closed_trades"`
	WinningTrades int       `json:"winning_trades"`
	LosingTrades  int       `json:"losing_trades"`
	WinRate       float64   `json:"win_rate"`
	TotalProfit   float64   `json:"total_profit"`
	OpenTrades    int       `json:"open_trades"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Position is one open position. Positions are keyed by ticket and always
// arrive as full-array replacements, never single-field patches.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Type         string    `json:"type"` // "buy" or "sell"
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	Profit       float64   `json:"profit"`
	OpenedAt     time.Time `json:"opened_at"`
}

// TelegramSettings configures the bot's signal source channels.
type TelegramSettings struct {
	Channels     []string `json:"channels"`
	NotifyTrades bool     `json:"notify_trades"`
}

// BrokerSettings configures the MT5 broker connection.
type BrokerSettings struct {
	Server string `json:"server"`
	Login  int64  `json:"login"`
}

// TradingSettings configures order placement.
type TradingSettings struct {
	Lots        float64 `json:"lots"`
	MaxSlippage float64 `json:"max_slippage"`
	MaxSpread   float64 `json:"max_spread"`
}

// RiskSettings configures risk limits.
type RiskSettings struct {
	RiskPerTrade  float64 `json:"risk_per_trade"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	MaxOpenTrades int     `json:"max_open_trades"`
}

// Settings is the bot configuration, merged by sub-section: each section is
// replaced wholesale, and a section with any locked field is skipped.
type Settings struct {
	Telegram TelegramSettings `json:"telegram"`
	Broker   BrokerSettings   `json:"broker"`
	Trading  TradingSettings  `json:"trading"`
	Risk     RiskSettings     `json:"risk"`
}

// Connection tracks channel liveness for the UI connectivity indicator.
type Connection struct {
	SocketState    ConnState `json:"socket_state"`
	LastPollAt     time.Time `json:"last_poll_at"`
	LastSnapshotAt time.Time `json:"last_snapshot_at"`
}

// ApplicationState is the single authoritative aggregate exposed to the UI.
// Exactly one instance exists per session; the Store owns it exclusively and
// every other component reads clones.
type ApplicationState struct {
	Status     Status     `json:"status"`
	Account    Account    `json:"account"`
	Stats      Stats      `json:"stats"`
	Positions  []Position `json:"positions"`
	Settings   Settings   `json:"settings"`
	Connection Connection `json:"connection"`
}

// Clone returns a deep copy safe to hand to observers.
func (s *ApplicationState) Clone() ApplicationState {
	clone := *s
	if s.Positions != nil {
		clone.Positions = make([]Position, len(s.Positions))
		copy(clone.Positions, s.Positions)
	}
	if s.Settings.Telegram.Channels != nil {
		clone.Settings.Telegram.Channels = make([]string, len(s.Settings.Telegram.Channels))
		copy(clone.Settings.Telegram.Channels, s.Settings.Telegram.Channels)
	}
	return clone
}

// ToJSON serializes the state for the browser push hub.
func (s *ApplicationState) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}
