package state

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestLocks_AcquireRelease(t *testing.T) {
	locks := NewLocks()

	if !locks.acquire("settings.trading.lots", 0.5) {
		t.Fatal("expected acquire to succeed")
	}
	if !locks.IsLocked("settings.trading.lots") {
		t.Error("expected path to be locked")
	}

	// Second acquire on the same path is a silent no-op.
	if locks.acquire("settings.trading.lots", 1.0) {
		t.Error("expected second acquire to fail")
	}

	seed, ok := locks.seedValue("settings.trading.lots")
	if !ok || seed.(float64) != 0.5 {
		t.Error("expected seed from first acquire retained")
	}

	locks.release("settings.trading.lots")
	if locks.IsLocked("settings.trading.lots") {
		t.Error("expected path released")
	}
	if locks.Count() != 0 {
		t.Errorf("expected 0 locks, got %d", locks.Count())
	}
}

func TestLocks_PrefixQueries(t *testing.T) {
	locks := NewLocks()
	locks.acquire("settings.trading.lots", nil)
	locks.acquire("settings.risk.max_drawdown", nil)

	if !locks.AnyWithPrefix("settings.trading") {
		t.Error("expected trading prefix match")
	}
	if locks.AnyWithPrefix("settings.broker") {
		t.Error("expected no broker prefix match")
	}
	if got := len(locks.HeldWithPrefix("settings.")); got != 2 {
		t.Errorf("expected 2 held settings paths, got %d", got)
	}
}

func TestStore_AcquireEditSeedsBuffer(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.Apply(Update{Domain: DomainSettings, Source: SourcePoll, Payload: Settings{
		Trading: TradingSettings{Lots: 0.25},
	}})

	seed, ok := store.AcquireEdit("settings.trading.lots")
	if !ok {
		t.Fatal("expected acquire to succeed")
	}
	if seed.(float64) != 0.25 {
		t.Errorf("expected seed 0.25, got %v", seed)
	}
}

func TestStore_AcquireEditUnknownPath(t *testing.T) {
	store := NewStore(zap.NewNop())

	if _, ok := store.AcquireEdit("settings.trading.nope"); ok {
		t.Error("expected acquire on unknown path to fail")
	}
}

func TestStore_CommitEditPersists(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.AcquireEdit("settings.trading.lots")

	var persistedPath string
	var persistedValue any
	persist := func(_ context.Context, path string, value any) error {
		persistedPath = path
		persistedValue = value
		return nil
	}

	if err := store.CommitEdit(context.Background(), "settings.trading.lots", 1.5, persist); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}

	if got := store.Get().Settings.Trading.Lots; got != 1.5 {
		t.Errorf("expected lots 1.5, got %f", got)
	}
	if persistedPath != "settings.trading.lots" || persistedValue.(float64) != 1.5 {
		t.Error("expected persist called with committed value")
	}
	if store.Locks().IsLocked("settings.trading.lots") {
		t.Error("expected lock released after commit")
	}
}

func TestStore_CommitEditRollbackOnPersistFailure(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.Apply(Update{Domain: DomainSettings, Source: SourcePoll, Payload: Settings{
		Trading: TradingSettings{Lots: 0.5},
	}})
	store.AcquireEdit("settings.trading.lots")

	persist := func(context.Context, string, any) error {
		return errors.New("server rejected")
	}

	err := store.CommitEdit(context.Background(), "settings.trading.lots", 9.0, persist)
	if err == nil {
		t.Fatal("expected commit error")
	}

	// Pre-edit value restored.
	if got := store.Get().Settings.Trading.Lots; got != 0.5 {
		t.Errorf("expected rollback to 0.5, got %f", got)
	}

	// No dangling lock: acquire on the same path immediately succeeds.
	if _, ok := store.AcquireEdit("settings.trading.lots"); !ok {
		t.Error("expected acquire to succeed after failed commit")
	}
}

func TestStore_CancelEditReleasesWithoutWrite(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.Apply(Update{Domain: DomainSettings, Source: SourcePoll, Payload: Settings{
		Risk: RiskSettings{MaxOpenTrades: 3},
	}})

	store.AcquireEdit("settings.risk.max_open_trades")
	store.CancelEdit("settings.risk.max_open_trades")

	if got := store.Get().Settings.Risk.MaxOpenTrades; got != 3 {
		t.Errorf("expected value unchanged after cancel, got %d", got)
	}
	if store.Locks().IsLocked("settings.risk.max_open_trades") {
		t.Error("expected lock released after cancel")
	}
}

func TestStore_CommitEditWrongType(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.AcquireEdit("settings.trading.lots")

	err := store.CommitEdit(context.Background(), "settings.trading.lots", "not a float", nil)
	if err == nil {
		t.Fatal("expected type error")
	}
	if store.Locks().IsLocked("settings.trading.lots") {
		t.Error("expected lock released even on type error")
	}
}
