package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"botdash/clients/notifier"
	"botdash/config"
	"botdash/internal/state"
)

const defaultRetryDelay = 3 * time.Second

// RetryPolicy decides how long the supervisor waits before redialing the
// socket after a drop.
type RetryPolicy interface {
	NextDelay() time.Duration
	Reset()
}

// FixedDelay retries at a constant interval regardless of how many attempts
// have failed.
type FixedDelay struct {
	Delay time.Duration
}

func (f FixedDelay) NextDelay() time.Duration {
	if f.Delay <= 0 {
		return defaultRetryDelay
	}
	return f.Delay
}

func (f FixedDelay) Reset() {}

// BackoffDelay grows the wait exponentially between failed attempts and
// resets once a connection holds.
type BackoffDelay struct {
	b *backoff.Backoff
}

func NewBackoffDelay(min time.Duration) *BackoffDelay {
	if min <= 0 {
		min = defaultRetryDelay
	}
	return &BackoffDelay{
		b: &backoff.Backoff{
			Min:    min,
			Max:    10 * min,
			Factor: 2,
			Jitter: true,
		},
	}
}

func (b *BackoffDelay) NextDelay() time.Duration {
	return b.b.Duration()
}

func (b *BackoffDelay) Reset() {
	b.b.Reset()
}

func policyFromConfig(cfg *config.Config) RetryPolicy {
	if cfg.Socket.RetryPolicy == "backoff" {
		return NewBackoffDelay(cfg.Socket.RetryDelay)
	}
	return FixedDelay{Delay: cfg.Socket.RetryDelay}
}

// socketClient is the slice of the push-feed client the supervisor drives.
type socketClient interface {
	Connect(ctx context.Context) error
	Errors() <-chan error
	Close() error
}

// reconnectAPI triggers the backend's own MT5/Telegram reconnect.
type reconnectAPI interface {
	Reconnect(ctx context.Context) error
}

// Supervisor keeps the socket session alive. Connection drops are handled
// silently: the link state flips to disconnected and the supervisor redials
// after the retry delay, without surfacing a notification. Only an
// operator-requested Reconnect produces user-visible output.
type Supervisor struct {
	logger   *zap.Logger
	client   socketClient
	store    *state.Store
	api      reconnectAPI
	notifier notifier.Notifier
	policy   RetryPolicy

	kickCh chan struct{}
}

func NewSupervisor(logger *zap.Logger, cfg *config.Config, client socketClient, store *state.Store, api reconnectAPI, n notifier.Notifier) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		logger:   logger.Named("supervisor"),
		client:   client,
		store:    store,
		api:      api,
		notifier: n,
		policy:   policyFromConfig(cfg),
		kickCh:   make(chan struct{}, 1),
	}
}

// Run drives the connect/monitor/redial loop until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.store.SetSocketState(state.ConnConnecting)
		if err := s.client.Connect(ctx); err != nil {
			s.logger.Warn("socket dial failed", zap.Error(err))
			s.store.SetSocketState(state.ConnDisconnected)
			if !s.sleep(ctx, s.policy.NextDelay()) {
				return
			}
			continue
		}

		s.store.SetSocketState(state.ConnConnected)
		s.policy.Reset()
		s.logger.Info("socket connected")

		select {
		case <-ctx.Done():
			_ = s.client.Close()
			s.store.SetSocketState(state.ConnDisconnected)
			return

		case err := <-s.client.Errors():
			s.logger.Warn("socket dropped", zap.Error(err))
			s.store.SetSocketState(state.ConnDisconnected)
			if !s.sleep(ctx, s.policy.NextDelay()) {
				return
			}

		case <-s.kickCh:
			s.logger.Info("socket reconnect requested")
			_ = s.client.Close()
			s.store.SetSocketState(state.ConnDisconnected)
		}
	}
}

// Reconnect asks the backend to re-establish its MT5 and Telegram links, then
// forces a fresh socket dial. Unlike the automatic retry loop this path is
// operator-initiated and reports its outcome as a notification.
func (s *Supervisor) Reconnect(ctx context.Context) error {
	s.notify(notifier.New(notifier.SeverityInfo, "Reconnecting to trading bot..."))

	if err := s.api.Reconnect(ctx); err != nil {
		s.notify(notifier.New(notifier.SeverityError, fmt.Sprintf("Reconnect failed: %v", err)))
		return fmt.Errorf("reconnect: %w", err)
	}

	select {
	case s.kickCh <- struct{}{}:
	default:
	}
	return nil
}

func (s *Supervisor) notify(n notifier.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(n)
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
