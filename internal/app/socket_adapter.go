package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"botdash/clients/botevents"
	"botdash/clients/notifier"
	"botdash/internal/state"
)

// SocketAdapter turns raw push frames into Updates. State frames go through
// the dispatcher into the store; transient frames travel the dispatcher's
// event path and come back to this adapter's sink, where they drive the
// lifecycle machine and the notification queue. Unknown frame types are
// ignored.
type SocketAdapter struct {
	logger     *zap.Logger
	dispatcher *state.Dispatcher
	lifecycle  *Lifecycle
	notifier   notifier.Notifier
}

func NewSocketAdapter(logger *zap.Logger, dispatcher *state.Dispatcher, lifecycle *Lifecycle, n notifier.Notifier) *SocketAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &SocketAdapter{
		logger:     logger.Named("socket_adapter"),
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		notifier:   n,
	}
	dispatcher.SetEventSink(a.handleEvent)
	return a
}

// Run consumes frames until the channel closes or ctx is cancelled.
func (a *SocketAdapter) Run(ctx context.Context, frames <-chan botevents.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			a.HandleFrame(f)
		}
	}
}

// HandleFrame routes one decoded push frame.
func (a *SocketAdapter) HandleFrame(f botevents.Frame) {
	now := time.Now()

	switch f.Type {
	case "account_update":
		var account state.Account
		if !a.decode(f, &account) {
			return
		}
		a.dispatch(state.DomainAccount, account, now)

	case "positions_update":
		var positions []state.Position
		if !a.decode(f, &positions) {
			return
		}
		a.dispatch(state.DomainPositions, positions, now)

	case "stats_update":
		var stats state.Stats
		if !a.decode(f, &stats) {
			return
		}
		a.dispatch(state.DomainStats, stats, now)

	case "bot_started", "startup_progress", "startup_failed", "reconnect_progress",
		"signal_received", "trade_created", "signal_rejected":
		a.dispatcher.Dispatch(state.Update{
			Domain:     state.DomainEvent,
			Source:     state.SourceSocket,
			Payload:    f,
			ObservedAt: now,
		})

	default:
		a.logger.Debug("ignoring unknown frame type", zap.String("type", f.Type))
	}
}

func (a *SocketAdapter) dispatch(d state.Domain, payload any, at time.Time) {
	a.dispatcher.Dispatch(state.Update{
		Domain:     d,
		Source:     state.SourceSocket,
		Payload:    payload,
		ObservedAt: at,
	})
}

func (a *SocketAdapter) decode(f botevents.Frame, dest any) bool {
	if err := json.Unmarshal(f.Data, dest); err != nil {
		// Unexpected shapes are dropped without surfacing an error.
		a.logger.Debug("dropping frame with unexpected payload",
			zap.String("type", f.Type),
			zap.Error(err),
		)
		return false
	}
	return true
}

type botStartedData struct {
	MT5Connected      bool `json:"mt5_connected"`
	TelegramConnected bool `json:"telegram_connected"`
}

type progressData struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type signalData struct {
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	Reason    string `json:"reason"`
}

type tradeData struct {
	Ticket int64   `json:"ticket"`
	Symbol string  `json:"symbol"`
	Type   string  `json:"type"`
	Volume float64 `json:"volume"`
}

// handleEvent is the dispatcher's sink for transient frames.
func (a *SocketAdapter) handleEvent(u state.Update) {
	f, ok := u.Payload.(botevents.Frame)
	if !ok {
		return
	}

	switch f.Type {
	case "bot_started":
		var d botStartedData
		if !a.decode(f, &d) {
			return
		}
		a.lifecycle.HandleBotStarted(d.MT5Connected, d.TelegramConnected)

	case "startup_progress":
		var d progressData
		if !a.decode(f, &d) {
			return
		}
		a.lifecycle.HandleStartupProgress(d.Stage, d.Message)

	case "startup_failed":
		var d progressData
		if !a.decode(f, &d) {
			return
		}
		a.lifecycle.HandleStartupFailed(d.Message)

	case "reconnect_progress":
		var d progressData
		if !a.decode(f, &d) {
			return
		}
		msg := d.Message
		if msg == "" {
			msg = "Reconnecting..."
		}
		a.notify(notifier.SeverityInfo, msg)

	case "signal_received":
		var d signalData
		if !a.decode(f, &d) {
			return
		}
		a.notify(notifier.SeverityInfo, fmt.Sprintf("Signal received: %s %s", strings.ToUpper(d.Direction), d.Symbol))

	case "trade_created":
		var d tradeData
		if !a.decode(f, &d) {
			return
		}
		a.notify(notifier.SeveritySuccess, fmt.Sprintf("Trade opened: %s %s %.2f lots (#%d)", strings.ToUpper(d.Type), d.Symbol, d.Volume, d.Ticket))

	case "signal_rejected":
		var d signalData
		if !a.decode(f, &d) {
			return
		}
		msg := "Signal rejected"
		if d.Reason != "" {
			msg = fmt.Sprintf("Signal rejected: %s", d.Reason)
		}
		a.notify(notifier.SeverityWarning, msg)
	}
}

func (a *SocketAdapter) notify(sev notifier.Severity, msg string) {
	if a.notifier == nil {
		return
	}
	a.notifier.Notify(notifier.New(sev, msg))
}
