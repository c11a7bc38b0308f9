package state

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDispatcher_RoutesStateDomains(t *testing.T) {
	store := NewStore(zap.NewNop())
	d := NewDispatcher(zap.NewNop(), store)

	updates := []Update{
		{Domain: DomainStatus, Source: SourcePoll, Payload: Status{BotRunning: true}},
		{Domain: DomainAccount, Source: SourcePoll, Payload: Account{Balance: 10}},
		{Domain: DomainStats, Source: SourcePoll, Payload: Stats{TotalTrades: 1, LastUpdated: time.Now()}},
		{Domain: DomainPositions, Source: SourcePoll, Payload: []Position{{Ticket: 1}}},
		{Domain: DomainSettings, Source: SourcePoll, Payload: Settings{Trading: TradingSettings{Lots: 1}}},
	}
	for _, u := range updates {
		if !d.Dispatch(u) {
			t.Errorf("expected %s update to be routed", u.Domain)
		}
	}

	st := store.Get()
	if !st.Status.BotRunning || st.Account.Balance != 10 || st.Stats.TotalTrades != 1 ||
		len(st.Positions) != 1 || st.Settings.Trading.Lots != 1 {
		t.Error("expected all domains applied through dispatcher")
	}
}

func TestDispatcher_EventDomainGoesToSink(t *testing.T) {
	store := NewStore(zap.NewNop())
	d := NewDispatcher(zap.NewNop(), store)

	var received []Update
	d.SetEventSink(func(u Update) { received = append(received, u) })

	u := Update{Domain: DomainEvent, Source: SourceSocket, Payload: "signal_received"}
	if !d.Dispatch(u) {
		t.Fatal("expected event to be handed to sink")
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}

	// Events never touch state.
	before := store.Get()
	if before.Status.BotRunning {
		t.Error("expected state untouched by event")
	}
}

func TestDispatcher_EventWithoutSinkDropped(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), NewStore(zap.NewNop()))

	if d.Dispatch(Update{Domain: DomainEvent, Source: SourceSocket}) {
		t.Error("expected event without sink to be dropped")
	}
}

func TestDispatcher_UnknownDomainDropped(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), NewStore(zap.NewNop()))

	if d.Dispatch(Update{Domain: Domain("bogus"), Source: SourceSocket}) {
		t.Error("expected unknown domain to be dropped")
	}
}
