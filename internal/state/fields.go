package state

import (
	"errors"
	"fmt"
	"math"
)

// Field paths name a single editable leaf, using the wire (snake_case) field
// names, e.g. "settings.trading.lots". The editable set covers the settings
// sections; "status." and "account." prefixes appear only on lock paths,
// where they select which fields a merge retains.

var (
	// ErrUnknownField is returned for a path outside the editable set.
	ErrUnknownField = errors.New("unknown field path")
	// ErrValueType is returned when a value cannot be converted to the
	// field's declared type.
	ErrValueType = errors.New("value type mismatch")
)

// getField reads the value at an editable path.
func (s *ApplicationState) getField(path string) (any, error) {
	switch path {
	case "settings.telegram.channels":
		return append([]string(nil), s.Settings.Telegram.Channels...), nil
	case "settings.telegram.notify_trades":
		return s.Settings.Telegram.NotifyTrades, nil
	case "settings.broker.server":
		return s.Settings.Broker.Server, nil
	case "settings.broker.login":
		return s.Settings.Broker.Login, nil
	case "settings.trading.lots":
		return s.Settings.Trading.Lots, nil
	case "settings.trading.max_slippage":
		return s.Settings.Trading.MaxSlippage, nil
	case "settings.trading.max_spread":
		return s.Settings.Trading.MaxSpread, nil
	case "settings.risk.risk_per_trade":
		return s.Settings.Risk.RiskPerTrade, nil
	case "settings.risk.max_drawdown":
		return s.Settings.Risk.MaxDrawdown, nil
	case "settings.risk.max_open_trades":
		return s.Settings.Risk.MaxOpenTrades, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, path)
	}
}

// setField writes the value at an editable path. The value must match the
// field's type.
func (s *ApplicationState) setField(path string, value any) error {
	wrongType := func() error {
		return fmt.Errorf("%w: %T for field path %q", ErrValueType, value, path)
	}

	switch path {
	case "settings.telegram.channels":
		v, ok := value.([]string)
		if !ok {
			return wrongType()
		}
		s.Settings.Telegram.Channels = append([]string(nil), v...)
	case "settings.telegram.notify_trades":
		v, ok := value.(bool)
		if !ok {
			return wrongType()
		}
		s.Settings.Telegram.NotifyTrades = v
	case "settings.broker.server":
		v, ok := value.(string)
		if !ok {
			return wrongType()
		}
		s.Settings.Broker.Server = v
	case "settings.broker.login":
		v, ok := value.(int64)
		if !ok {
			return wrongType()
		}
		s.Settings.Broker.Login = v
	case "settings.trading.lots":
		v, ok := value.(float64)
		if !ok {
			return wrongType()
		}
		s.Settings.Trading.Lots = v
	case "settings.trading.max_slippage":
		v, ok := value.(float64)
		if !ok {
			return wrongType()
		}
		s.Settings.Trading.MaxSlippage = v
	case "settings.trading.max_spread":
		v, ok := value.(float64)
		if !ok {
			return wrongType()
		}
		s.Settings.Trading.MaxSpread = v
	case "settings.risk.risk_per_trade":
		v, ok := value.(float64)
		if !ok {
			return wrongType()
		}
		s.Settings.Risk.RiskPerTrade = v
	case "settings.risk.max_drawdown":
		v, ok := value.(float64)
		if !ok {
			return wrongType()
		}
		s.Settings.Risk.MaxDrawdown = v
	case "settings.risk.max_open_trades":
		v, ok := value.(int)
		if !ok {
			return wrongType()
		}
		s.Settings.Risk.MaxOpenTrades = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, path)
	}
	return nil
}

// coerceValue converts a loosely typed value to the declared type of the
// field at path. Values that crossed a JSON boundary arrive widened: every
// number as float64, every array as []any.
func coerceValue(path string, value any) (any, error) {
	switch path {
	case "settings.telegram.channels":
		return coerceStringSlice(path, value)
	case "settings.telegram.notify_trades":
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case "settings.broker.server":
		if v, ok := value.(string); ok {
			return v, nil
		}
	case "settings.broker.login":
		return coerceInt64(path, value)
	case "settings.risk.max_open_trades":
		n, err := coerceInt64(path, value)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	case "settings.trading.lots",
		"settings.trading.max_slippage",
		"settings.trading.max_spread",
		"settings.risk.risk_per_trade",
		"settings.risk.max_drawdown":
		return coerceFloat64(path, value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, path)
	}
	return nil, coerceError(path, value)
}

func coerceError(path string, value any) error {
	return fmt.Errorf("%w: %T for field path %q", ErrValueType, value, path)
}

func coerceInt64(path string, value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, coerceError(path, value)
		}
		return int64(v), nil
	}
	return 0, coerceError(path, value)
}

func coerceFloat64(path string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, coerceError(path, value)
}

func coerceStringSlice(path string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, coerceError(path, value)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, coerceError(path, value)
}

// restoreStatusField copies one field from prev into dst, undoing a remote
// overwrite of a locked field.
func restoreStatusField(dst *Status, prev Status, field string) {
	switch field {
	case "bot_running":
		dst.BotRunning = prev.BotRunning
	case "mt5_connected":
		dst.MT5Connected = prev.MT5Connected
	case "telegram_connected":
		dst.TelegramConnected = prev.TelegramConnected
	case "uptime_seconds":
		dst.UptimeSeconds = prev.UptimeSeconds
	}
}

// restoreAccountField copies one field from prev into dst.
func restoreAccountField(dst *Account, prev Account, field string) {
	switch field {
	case "balance":
		dst.Balance = prev.Balance
	case "equity":
		dst.Equity = prev.Equity
	case "margin":
		dst.Margin = prev.Margin
	case "free_margin":
		dst.FreeMargin = prev.FreeMargin
	case "profit":
		dst.Profit = prev.Profit
	case "currency":
		dst.Currency = prev.Currency
	case "leverage":
		dst.Leverage = prev.Leverage
	case "server":
		dst.Server = prev.Server
	case "login":
		dst.Login = prev.Login
	case "name":
		dst.Name = prev.Name
	}
}
