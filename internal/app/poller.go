package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"botdash/clients/botapi"
	"botdash/clients/notifier"
	"botdash/internal/state"
)

// pollAPI is the slice of the REST client the poller uses.
type pollAPI interface {
	GetState(ctx context.Context) (*botapi.FullState, error)
	GetPositions(ctx context.Context) ([]state.Position, error)
}

// Poller periodically pulls the full backend state over REST and feeds each
// present section into the dispatcher. The poll source is the safety net
// under the push feed: even with the socket down, state converges within one
// interval.
type Poller struct {
	logger     *zap.Logger
	api        pollAPI
	dispatcher *state.Dispatcher
	store      *state.Store
	notifier   notifier.Notifier

	mu             sync.Mutex
	interval       time.Duration
	loadedOnce     bool
	failureVisible bool
}

func NewPoller(logger *zap.Logger, api pollAPI, dispatcher *state.Dispatcher, store *state.Store, n notifier.Notifier, interval time.Duration) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		logger:     logger.Named("poller"),
		api:        api,
		dispatcher: dispatcher,
		store:      store,
		notifier:   n,
		interval:   interval,
	}
}

// SetInterval changes the poll interval. Takes effect after the current wait.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
}

// Run polls immediately, then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.PollOnce(ctx)

	for {
		p.mu.Lock()
		d := p.interval
		p.mu.Unlock()

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce performs a single full poll cycle.
func (p *Poller) PollOnce(ctx context.Context) {
	now := time.Now()

	fs, err := p.api.GetState(ctx)
	if err != nil {
		p.onFailure(err)
		return
	}

	if fs.Status != nil {
		p.dispatch(state.DomainStatus, *fs.Status, now)
	}
	if fs.Account != nil {
		p.dispatch(state.DomainAccount, *fs.Account, now)
	}
	if fs.Stats != nil {
		p.dispatch(state.DomainStats, *fs.Stats, now)
	}
	if fs.Settings != nil {
		p.dispatch(state.DomainSettings, *fs.Settings, now)
	}

	positions, err := p.api.GetPositions(ctx)
	if err != nil {
		p.onFailure(err)
		return
	}
	p.dispatch(state.DomainPositions, positions, now)

	p.store.MarkPoll(now)

	p.mu.Lock()
	p.loadedOnce = true
	p.failureVisible = false
	p.mu.Unlock()
}

func (p *Poller) dispatch(d state.Domain, payload any, at time.Time) {
	p.dispatcher.Dispatch(state.Update{
		Domain:     d,
		Source:     state.SourcePoll,
		Payload:    payload,
		ObservedAt: at,
	})
}

// onFailure surfaces a notification only when the very first load fails, and
// only once per outage. Failures after a successful load stay in the logs;
// the stale-data badge in the UI already tells the operator the poll is
// behind.
func (p *Poller) onFailure(err error) {
	p.logger.Warn("poll failed", zap.Error(err))

	p.mu.Lock()
	suppress := p.loadedOnce || p.failureVisible
	if !suppress {
		p.failureVisible = true
	}
	p.mu.Unlock()

	if suppress {
		return
	}
	if p.notifier != nil {
		p.notifier.Notify(notifier.New(notifier.SeverityError, "Failed to load bot state. Retrying in the background."))
	}
}
