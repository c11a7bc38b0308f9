package state

import (
	"go.uber.org/zap"
)

// EventFunc receives transient events (signals, created trades, startup
// progress) that are never merged into ApplicationState.
type EventFunc func(u Update)

// Dispatcher routes Updates by declared domain. It interprets nothing about
// the payloads themselves; state domains go to the Store, the transient event
// domain goes to the event sink, anything else is dropped.
type Dispatcher struct {
	logger  *zap.Logger
	store   *Store
	onEvent EventFunc
}

// NewDispatcher creates a Dispatcher feeding the given store.
func NewDispatcher(logger *zap.Logger, store *Store) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger: logger.Named("dispatcher"),
		store:  store,
	}
}

// SetEventSink registers the sink for transient events.
func (d *Dispatcher) SetEventSink(fn EventFunc) {
	d.onEvent = fn
}

// Dispatch routes one Update. Returns true if it was applied to state or
// handed to the event sink.
func (d *Dispatcher) Dispatch(u Update) bool {
	switch u.Domain {
	case DomainStatus, DomainAccount, DomainStats, DomainPositions, DomainSettings:
		return d.store.Apply(u)
	case DomainEvent:
		if d.onEvent != nil {
			d.onEvent(u)
			return true
		}
		return false
	default:
		d.logger.Debug("dropped update for unroutable domain", zap.String("domain", string(u.Domain)))
		return false
	}
}
