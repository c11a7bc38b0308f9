package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Observer is notified with a clone of the state after every applied change.
type Observer interface {
	OnStateChange(s ApplicationState)
}

// PersistFunc pushes a committed edit to the server. Persistence is
// best-effort: a failure rolls the local write back but never leaves the
// lock dangling.
type PersistFunc func(ctx context.Context, path string, value any) error

// Store is the reconciler. It holds the single authoritative ApplicationState
// and applies incoming Updates under the per-domain merge policy:
//
//   - status, account: full replace, locked fields retained
//   - stats: full replace behind the recency guard on LastUpdated
//   - positions: full-array replace, no diffing
//   - settings: per-section replace, a section with a locked field is skipped
//
// Everything except stats is last-writer-wins: the poll source eventually
// corrects any late-overwrite flicker, so only the domain with a known
// cross-source race carries a guard by default. The guard set is
// configurable per domain rather than a hardcoded special case.
type Store struct {
	logger *zap.Logger
	locks  *Locks

	mu       sync.RWMutex
	state    ApplicationState
	guarded  map[Domain]bool
	lastSeen map[Domain]time.Time

	obsMu     sync.RWMutex
	observers []Observer
}

// NewStore creates a Store with zeroed state and the stats-only guard set.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger: logger.Named("store"),
		locks:  NewLocks(),
		state: ApplicationState{
			Connection: Connection{SocketState: ConnPending},
		},
		guarded:  map[Domain]bool{DomainStats: true},
		lastSeen: make(map[Domain]time.Time),
	}
}

// Locks exposes the edit-lock registry for read-side checks.
func (st *Store) Locks() *Locks {
	return st.locks
}

// SetStalenessGuard enables or disables the recency guard for a domain.
// For stats the guard compares the payload's LastUpdated; for any other
// domain it compares the Update's receipt timestamp.
func (st *Store) SetStalenessGuard(d Domain, enabled bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.guarded[d] = enabled
}

// Get returns a deep copy of the current state.
func (st *Store) Get() ApplicationState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Clone()
}

// Apply merges one Update into the state. Returns true if the state changed.
// Payloads with an unexpected shape are dropped without error.
func (st *Store) Apply(u Update) bool {
	st.mu.Lock()
	applied := st.applyLocked(u)
	var snapshot ApplicationState
	if applied {
		snapshot = st.state.Clone()
	}
	st.mu.Unlock()

	if applied {
		st.notify(snapshot)
	}
	return applied
}

func (st *Store) applyLocked(u Update) bool {
	switch u.Domain {
	case DomainStatus:
		payload, ok := u.Payload.(Status)
		if !ok {
			st.dropPayload(u)
			return false
		}
		if st.rejectStale(u) {
			return false
		}
		prev := st.state.Status
		st.state.Status = payload
		if u.Source != SourceLocal {
			for _, path := range st.locks.HeldWithPrefix("status.") {
				restoreStatusField(&st.state.Status, prev, strings.TrimPrefix(path, "status."))
			}
		}

	case DomainAccount:
		payload, ok := u.Payload.(Account)
		if !ok {
			st.dropPayload(u)
			return false
		}
		if st.rejectStale(u) {
			return false
		}
		prev := st.state.Account
		st.state.Account = payload
		if u.Source != SourceLocal {
			for _, path := range st.locks.HeldWithPrefix("account.") {
				restoreAccountField(&st.state.Account, prev, strings.TrimPrefix(path, "account."))
			}
		}

	case DomainStats:
		payload, ok := u.Payload.(Stats)
		if !ok {
			st.dropPayload(u)
			return false
		}
		if st.guarded[DomainStats] {
			current := st.state.Stats.LastUpdated
			if !current.IsZero() && payload.LastUpdated.Before(current) {
				st.logger.Debug("rejected stale stats update",
					zap.Time("incoming", payload.LastUpdated),
					zap.Time("held", current),
					zap.String("source", string(u.Source)),
				)
				return false
			}
		}
		st.state.Stats = payload

	case DomainPositions:
		payload, ok := u.Payload.([]Position)
		if !ok {
			st.dropPayload(u)
			return false
		}
		if st.rejectStale(u) {
			return false
		}
		replaced := make([]Position, len(payload))
		copy(replaced, payload)
		st.state.Positions = replaced

	case DomainSettings:
		payload, ok := u.Payload.(Settings)
		if !ok {
			st.dropPayload(u)
			return false
		}
		if st.rejectStale(u) {
			return false
		}
		applied := false
		if u.Source == SourceLocal || !st.locks.AnyWithPrefix("settings.telegram") {
			st.state.Settings.Telegram = payload.Telegram
			st.state.Settings.Telegram.Channels = append([]string(nil), payload.Telegram.Channels...)
			applied = true
		}
		if u.Source == SourceLocal || !st.locks.AnyWithPrefix("settings.broker") {
			st.state.Settings.Broker = payload.Broker
			applied = true
		}
		if u.Source == SourceLocal || !st.locks.AnyWithPrefix("settings.trading") {
			st.state.Settings.Trading = payload.Trading
			applied = true
		}
		if u.Source == SourceLocal || !st.locks.AnyWithPrefix("settings.risk") {
			st.state.Settings.Risk = payload.Risk
			applied = true
		}
		if !applied {
			return false
		}

	default:
		st.logger.Debug("dropped update for unknown domain", zap.String("domain", string(u.Domain)))
		return false
	}

	st.lastSeen[u.Domain] = u.ObservedAt
	return true
}

// rejectStale applies the receipt-order guard for domains other than stats.
// Disabled by default; SetStalenessGuard turns it on.
func (st *Store) rejectStale(u Update) bool {
	if !st.guarded[u.Domain] || u.Domain == DomainStats {
		return false
	}
	last, ok := st.lastSeen[u.Domain]
	if ok && u.ObservedAt.Before(last) {
		st.logger.Debug("rejected stale update",
			zap.String("domain", string(u.Domain)),
			zap.Time("incoming", u.ObservedAt),
			zap.Time("held", last),
		)
		return true
	}
	return false
}

func (st *Store) dropPayload(u Update) {
	st.logger.Debug("dropped update with unexpected payload shape",
		zap.String("domain", string(u.Domain)),
		zap.String("source", string(u.Source)),
	)
}

// AcquireEdit locks a field path for local editing and returns its current
// value as the editable buffer seed. Returns false if the path is already
// held or unknown.
func (st *Store) AcquireEdit(path string) (any, bool) {
	st.mu.RLock()
	value, err := st.state.getField(path)
	st.mu.RUnlock()
	if err != nil {
		st.logger.Debug("acquire on unknown field path", zap.String("path", path))
		return nil, false
	}
	if !st.locks.acquire(path, value) {
		return nil, false
	}
	return value, true
}

// CommitEdit writes value at path, then best-effort persists it. The value
// is coerced to the field's declared type first, so JSON-widened numbers and
// arrays commit cleanly. On persistence failure the pre-edit value is
// restored and the error returned. The lock is released in every outcome.
func (st *Store) CommitEdit(ctx context.Context, path string, value any, persist PersistFunc) error {
	defer st.locks.release(path)

	value, err := coerceValue(path, value)
	if err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}

	st.mu.Lock()
	prev, err := st.state.getField(path)
	if err == nil {
		err = st.state.setField(path, value)
	}
	var snapshot ApplicationState
	if err == nil {
		snapshot = st.state.Clone()
	}
	st.mu.Unlock()
	if err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	st.notify(snapshot)

	if persist == nil {
		return nil
	}
	if perr := persist(ctx, path, value); perr != nil {
		st.mu.Lock()
		if rerr := st.state.setField(path, prev); rerr != nil {
			st.logger.Error("rollback failed", zap.String("path", path), zap.Error(rerr))
		}
		snapshot = st.state.Clone()
		st.mu.Unlock()
		st.notify(snapshot)
		return fmt.Errorf("persist %s: %w", path, perr)
	}
	return nil
}

// CancelEdit releases the lock without writing.
func (st *Store) CancelEdit(path string) {
	st.locks.release(path)
}

// SetSocketState records the socket link state.
func (st *Store) SetSocketState(cs ConnState) {
	st.mu.Lock()
	st.state.Connection.SocketState = cs
	snapshot := st.state.Clone()
	st.mu.Unlock()
	st.notify(snapshot)
}

// MarkPoll records a successful poll.
func (st *Store) MarkPoll(at time.Time) {
	st.mu.Lock()
	st.state.Connection.LastPollAt = at
	st.mu.Unlock()
}

// MarkSnapshot records a delivered snapshot value.
func (st *Store) MarkSnapshot(at time.Time) {
	st.mu.Lock()
	st.state.Connection.LastSnapshotAt = at
	st.mu.Unlock()
}

// SetUptime seeds the local uptime counter from the server's last known value.
func (st *Store) SetUptime(seconds int64) {
	st.mu.Lock()
	st.state.Status.UptimeSeconds = seconds
	snapshot := st.state.Clone()
	st.mu.Unlock()
	st.notify(snapshot)
}

// TickUptime advances the local uptime counter by one second. Driven purely
// by a local timer; not re-synced against the server while running.
func (st *Store) TickUptime() {
	st.mu.Lock()
	st.state.Status.UptimeSeconds++
	snapshot := st.state.Clone()
	st.mu.Unlock()
	st.notify(snapshot)
}

// AddObserver registers an observer for state changes.
func (st *Store) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	st.obsMu.Lock()
	defer st.obsMu.Unlock()
	st.observers = append(st.observers, obs)
}

// RemoveObserver removes a previously registered observer.
func (st *Store) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	st.obsMu.Lock()
	defer st.obsMu.Unlock()
	for i, o := range st.observers {
		if o == obs {
			st.observers = append(st.observers[:i], st.observers[i+1:]...)
			return
		}
	}
}

func (st *Store) notify(snapshot ApplicationState) {
	st.obsMu.RLock()
	observers := make([]Observer, len(st.observers))
	copy(observers, st.observers)
	st.obsMu.RUnlock()

	for _, obs := range observers {
		obs.OnStateChange(snapshot.Clone())
	}
}
