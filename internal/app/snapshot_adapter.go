package app

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"botdash/clients/snapshot"
	"botdash/internal/state"
)

// SnapshotAdapter turns realtime-store path values into Updates. Each value
// is a full replacement at its path and merges exactly like a poll update.
type SnapshotAdapter struct {
	logger     *zap.Logger
	dispatcher *state.Dispatcher
	store      *state.Store
}

func NewSnapshotAdapter(logger *zap.Logger, dispatcher *state.Dispatcher, store *state.Store) *SnapshotAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotAdapter{
		logger:     logger.Named("snapshot_adapter"),
		dispatcher: dispatcher,
		store:      store,
	}
}

// Run consumes path values until the channel closes or ctx is cancelled.
func (a *SnapshotAdapter) Run(ctx context.Context, values <-chan snapshot.Value) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-values:
			if !ok {
				return
			}
			a.HandleValue(v)
		}
	}
}

// HandleValue routes one snapshot value by its subscribed path.
func (a *SnapshotAdapter) HandleValue(v snapshot.Value) {
	now := time.Now()

	switch v.Path {
	case "status":
		var s state.Status
		if !a.decode(v, &s) {
			return
		}
		a.dispatch(state.DomainStatus, s, now)

	case "account":
		var acc state.Account
		if !a.decode(v, &acc) {
			return
		}
		a.dispatch(state.DomainAccount, acc, now)

	case "stats":
		var st state.Stats
		if !a.decode(v, &st) {
			return
		}
		a.dispatch(state.DomainStats, st, now)

	case "trades":
		var positions []state.Position
		if !a.decode(v, &positions) {
			return
		}
		a.dispatch(state.DomainPositions, positions, now)

	case "settings":
		var s state.Settings
		if !a.decode(v, &s) {
			return
		}
		a.dispatch(state.DomainSettings, s, now)

	default:
		a.logger.Debug("ignoring value at unknown path", zap.String("path", v.Path))
		return
	}

	a.store.MarkSnapshot(now)
}

func (a *SnapshotAdapter) dispatch(d state.Domain, payload any, at time.Time) {
	a.dispatcher.Dispatch(state.Update{
		Domain:     d,
		Source:     state.SourceSnapshot,
		Payload:    payload,
		ObservedAt: at,
	})
}

func (a *SnapshotAdapter) decode(v snapshot.Value, dest any) bool {
	if err := json.Unmarshal(v.Value, dest); err != nil {
		a.logger.Debug("dropping value with unexpected payload",
			zap.String("path", v.Path),
			zap.Error(err),
		)
		return false
	}
	return true
}
