package state

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func statusUpdate(src Source, s Status) Update {
	return Update{Domain: DomainStatus, Source: src, Payload: s, ObservedAt: time.Now()}
}

func accountUpdate(src Source, a Account) Update {
	return Update{Domain: DomainAccount, Source: src, Payload: a, ObservedAt: time.Now()}
}

func statsUpdate(src Source, s Stats) Update {
	return Update{Domain: DomainStats, Source: src, Payload: s, ObservedAt: time.Now()}
}

func positionsUpdate(src Source, p []Position) Update {
	return Update{Domain: DomainPositions, Source: src, Payload: p, ObservedAt: time.Now()}
}

func TestNewStore(t *testing.T) {
	store := NewStore(nil)

	if store.logger == nil {
		t.Error("expected logger to be set")
	}
	if store.locks == nil {
		t.Error("expected locks to be initialized")
	}
	if !store.guarded[DomainStats] {
		t.Error("expected stats staleness guard enabled by default")
	}
	if store.guarded[DomainAccount] {
		t.Error("expected no account staleness guard by default")
	}

	st := store.Get()
	if st.Connection.SocketState != ConnPending {
		t.Errorf("expected pending socket state, got %s", st.Connection.SocketState)
	}
}

func TestStore_ApplyStatus(t *testing.T) {
	store := NewStore(zap.NewNop())

	applied := store.Apply(statusUpdate(SourcePoll, Status{BotRunning: true, MT5Connected: true}))
	if !applied {
		t.Fatal("expected status update to apply")
	}

	st := store.Get()
	if !st.Status.BotRunning || !st.Status.MT5Connected {
		t.Error("expected status fields replaced")
	}
}

func TestStore_ApplyWrongPayloadShape(t *testing.T) {
	store := NewStore(zap.NewNop())

	// Account payload declared as status must be dropped, not panic.
	applied := store.Apply(Update{Domain: DomainStatus, Source: SourceSocket, Payload: Account{Balance: 1}})
	if applied {
		t.Error("expected mismatched payload to be dropped")
	}
}

func TestStore_StatsMonotonicLastUpdated(t *testing.T) {
	store := NewStore(zap.NewNop())

	t1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	// No current timestamp: applies.
	if !store.Apply(statsUpdate(SourcePoll, Stats{TotalTrades: 5, LastUpdated: t1})) {
		t.Fatal("expected first stats update to apply")
	}

	// Newer: applies.
	if !store.Apply(statsUpdate(SourceSnapshot, Stats{TotalTrades: 6, LastUpdated: t2})) {
		t.Fatal("expected newer stats update to apply")
	}

	// Older: no-op.
	if store.Apply(statsUpdate(SourceSnapshot, Stats{TotalTrades: 99, LastUpdated: t1})) {
		t.Error("expected stale stats update to be rejected")
	}

	st := store.Get()
	if st.Stats.TotalTrades != 6 {
		t.Errorf("expected stats from newest update, got %d trades", st.Stats.TotalTrades)
	}
	if !st.Stats.LastUpdated.Equal(t2) {
		t.Errorf("expected lastUpdated %v, got %v", t2, st.Stats.LastUpdated)
	}
}

func TestStore_StatsEqualTimestampApplies(t *testing.T) {
	store := NewStore(zap.NewNop())

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.Apply(statsUpdate(SourcePoll, Stats{TotalTrades: 5, LastUpdated: ts}))

	// Equal timestamp: last writer wins.
	if !store.Apply(statsUpdate(SourceSnapshot, Stats{TotalTrades: 7, LastUpdated: ts})) {
		t.Fatal("expected equal-timestamp stats update to apply")
	}
	if got := store.Get().Stats.TotalTrades; got != 7 {
		t.Errorf("expected 7 trades, got %d", got)
	}
}

func TestStore_AccountLastWriterWins(t *testing.T) {
	store := NewStore(zap.NewNop())

	// Two account updates in the same tick from different sources: the last
	// applied wins. No staleness guard on this domain.
	store.Apply(accountUpdate(SourcePoll, Account{Balance: 100}))
	store.Apply(accountUpdate(SourceSocket, Account{Balance: 110}))

	if got := store.Get().Account.Balance; got != 110 {
		t.Errorf("expected balance 110, got %f", got)
	}
}

func TestStore_PositionsFullReplace(t *testing.T) {
	store := NewStore(zap.NewNop())

	three := []Position{
		{Ticket: 1, Symbol: "EURUSD"},
		{Ticket: 2, Symbol: "GBPUSD"},
		{Ticket: 3, Symbol: "XAUUSD"},
	}
	store.Apply(positionsUpdate(SourcePoll, three))

	one := []Position{{Ticket: 9, Symbol: "USDJPY"}}
	store.Apply(positionsUpdate(SourceSocket, one))

	st := store.Get()
	if len(st.Positions) != 1 {
		t.Fatalf("expected positions fully replaced to length 1, got %d", len(st.Positions))
	}
	if st.Positions[0].Ticket != 9 {
		t.Errorf("expected ticket 9, got %d", st.Positions[0].Ticket)
	}
}

func TestStore_PositionsReplaceCopiesSlice(t *testing.T) {
	store := NewStore(zap.NewNop())

	src := []Position{{Ticket: 1}}
	store.Apply(positionsUpdate(SourcePoll, src))
	src[0].Ticket = 42

	if got := store.Get().Positions[0].Ticket; got != 1 {
		t.Errorf("store must own its positions copy, got ticket %d", got)
	}
}

func TestStore_LockedFieldSuppressesRemoteWrite(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.Apply(Update{Domain: DomainSettings, Source: SourcePoll, Payload: Settings{
		Trading: TradingSettings{Lots: 0.5},
	}})

	if _, ok := store.AcquireEdit("settings.trading.lots"); !ok {
		t.Fatal("expected acquire to succeed")
	}

	// Remote settings update: trading section skipped, risk section applied.
	store.Apply(Update{Domain: DomainSettings, Source: SourceSnapshot, Payload: Settings{
		Trading: TradingSettings{Lots: 2.0},
		Risk:    RiskSettings{MaxOpenTrades: 4},
	}})

	st := store.Get()
	if st.Settings.Trading.Lots != 0.5 {
		t.Errorf("expected locked trading section retained, got lots %f", st.Settings.Trading.Lots)
	}
	if st.Settings.Risk.MaxOpenTrades != 4 {
		t.Errorf("expected unlocked risk section replaced, got %d", st.Settings.Risk.MaxOpenTrades)
	}

	// Release makes the section eligible again.
	store.CancelEdit("settings.trading.lots")
	store.Apply(Update{Domain: DomainSettings, Source: SourceSnapshot, Payload: Settings{
		Trading: TradingSettings{Lots: 2.0},
	}})
	if got := store.Get().Settings.Trading.Lots; got != 2.0 {
		t.Errorf("expected lots 2.0 after release, got %f", got)
	}
}

func TestStore_LockedStatusFieldRetained(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.Apply(statusUpdate(SourcePoll, Status{BotRunning: true, UptimeSeconds: 10}))

	// Simulate a lock held on a status field.
	if !store.locks.acquire("status.bot_running", true) {
		t.Fatal("expected acquire to succeed")
	}

	store.Apply(statusUpdate(SourceSocket, Status{BotRunning: false, UptimeSeconds: 20}))

	st := store.Get()
	if !st.Status.BotRunning {
		t.Error("expected locked bot_running retained")
	}
	if st.Status.UptimeSeconds != 20 {
		t.Errorf("expected unlocked field replaced, got uptime %d", st.Status.UptimeSeconds)
	}
}

func TestStore_ConfigurableGuardOnAccount(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.SetStalenessGuard(DomainAccount, true)

	now := time.Now()
	store.Apply(Update{Domain: DomainAccount, Source: SourcePoll, Payload: Account{Balance: 100}, ObservedAt: now})

	// Older receipt timestamp: rejected once the guard is on.
	applied := store.Apply(Update{
		Domain: DomainAccount, Source: SourceSocket,
		Payload: Account{Balance: 50}, ObservedAt: now.Add(-time.Second),
	})
	if applied {
		t.Error("expected guarded account domain to reject stale update")
	}
	if got := store.Get().Account.Balance; got != 100 {
		t.Errorf("expected balance 100, got %f", got)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	states []ApplicationState
}

func (r *recordingObserver) OnStateChange(s ApplicationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func TestStore_ObserverNotifiedOnApply(t *testing.T) {
	store := NewStore(zap.NewNop())
	obs := &recordingObserver{}
	store.AddObserver(obs)

	store.Apply(accountUpdate(SourcePoll, Account{Balance: 100}))
	if obs.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", obs.count())
	}

	// Rejected update must not notify.
	ts := time.Now()
	store.Apply(statsUpdate(SourcePoll, Stats{LastUpdated: ts}))
	store.Apply(statsUpdate(SourceSnapshot, Stats{LastUpdated: ts.Add(-time.Hour)}))
	if obs.count() != 2 {
		t.Errorf("expected 2 notifications, got %d", obs.count())
	}

	store.RemoveObserver(obs)
	store.Apply(accountUpdate(SourceSocket, Account{Balance: 1}))
	if obs.count() != 2 {
		t.Errorf("expected no notification after removal, got %d", obs.count())
	}
}

func TestStore_UptimeTicks(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.SetUptime(120)
	store.TickUptime()
	store.TickUptime()

	if got := store.Get().Status.UptimeSeconds; got != 122 {
		t.Errorf("expected uptime 122, got %d", got)
	}
}

func TestStore_ConnectionMarks(t *testing.T) {
	store := NewStore(zap.NewNop())

	store.SetSocketState(ConnConnected)
	at := time.Now()
	store.MarkPoll(at)
	store.MarkSnapshot(at)

	st := store.Get()
	if st.Connection.SocketState != ConnConnected {
		t.Errorf("unexpected socket state %s", st.Connection.SocketState)
	}
	if !st.Connection.LastPollAt.Equal(at) || !st.Connection.LastSnapshotAt.Equal(at) {
		t.Error("expected poll and snapshot marks recorded")
	}
}
