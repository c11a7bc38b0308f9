package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"botdash/clients/botapi"
	"botdash/clients/notifier"
	"botdash/internal/state"
)

// Phase is the bot start/stop machine's position.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseConnectingMT5      Phase = "connecting_mt5"
	PhaseConnectingTelegram Phase = "connecting_telegram"
	PhaseConnectingAccount  Phase = "connecting_account"
	PhaseRunning            Phase = "running"
	PhaseFailed             Phase = "failed"
)

// StepStatus is the outcome of one startup connection step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

const (
	StepMT5      = "mt5"
	StepTelegram = "telegram"
	StepAccount  = "account"
)

// StepResult feeds the startup diagnostic modal.
type StepResult struct {
	Status  StepStatus `json:"status"`
	Message string     `json:"message"`
}

const defaultStageDelay = 1200 * time.Millisecond

// lifecycleAPI is the slice of the REST client the lifecycle drives.
type lifecycleAPI interface {
	StartBot(ctx context.Context) (*botapi.StartResult, error)
	StopBot(ctx context.Context) error
	ClosePosition(ctx context.Context, ticket int64) error
}

// Lifecycle is the bot start/stop state machine. Start renders staged
// progress through the three connection phases on fixed delays; the staging
// is cosmetic and runs concurrently with the real request, which alone
// decides the outcome. Stop and close-position are optimistic: the local
// state flips first and rolls back if the backend rejects.
type Lifecycle struct {
	logger     *zap.Logger
	api        lifecycleAPI
	store      *state.Store
	dispatcher *state.Dispatcher
	notifier   notifier.Notifier

	stageDelay time.Duration

	mu    sync.Mutex
	phase Phase
	steps map[string]StepResult
}

func NewLifecycle(logger *zap.Logger, api lifecycleAPI, store *state.Store, dispatcher *state.Dispatcher, n notifier.Notifier) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		logger:     logger.Named("lifecycle"),
		api:        api,
		store:      store,
		dispatcher: dispatcher,
		notifier:   n,
		stageDelay: defaultStageDelay,
		phase:      PhaseIdle,
		steps:      map[string]StepResult{},
	}
}

// Phase returns the machine's current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Steps returns a copy of the per-service startup diagnostics.
func (l *Lifecycle) Steps() map[string]StepResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]StepResult, len(l.steps))
	for k, v := range l.steps {
		out[k] = v
	}
	return out
}

// Start issues the bot start request. Returns an error without calling the
// backend if a start is already in flight or the bot is running.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.phase != PhaseIdle && l.phase != PhaseFailed {
		phase := l.phase
		l.mu.Unlock()
		return fmt.Errorf("cannot start bot in phase %s", phase)
	}
	l.phase = PhaseConnectingMT5
	l.steps = map[string]StepResult{
		StepMT5:      {Status: StepPending},
		StepTelegram: {Status: StepPending},
		StepAccount:  {Status: StepPending},
	}
	l.mu.Unlock()

	// Cosmetic staging: the visible phase advances on fixed delays while the
	// request is in flight, cancelled the moment the backend answers.
	stageCtx, cancelStages := context.WithCancel(ctx)
	go l.runStages(stageCtx)

	res, err := l.api.StartBot(ctx)
	cancelStages()

	if err != nil {
		l.failStartup(failureDetail(err))
		return fmt.Errorf("start bot: %w", err)
	}

	l.settleStartup(res)
	return nil
}

// StartAsync begins the start sequence in the background. The start request
// can take several seconds; callers that cannot block watch the phase move
// through the push hub instead. Fails fast if a start is already in flight.
func (l *Lifecycle) StartAsync() error {
	l.mu.Lock()
	phase := l.phase
	l.mu.Unlock()
	if phase != PhaseIdle && phase != PhaseFailed {
		return fmt.Errorf("cannot start bot in phase %s", phase)
	}

	go func() {
		if err := l.Start(context.Background()); err != nil {
			l.logger.Warn("background start failed", zap.Error(err))
		}
	}()
	return nil
}

func (l *Lifecycle) runStages(ctx context.Context) {
	for _, next := range []Phase{PhaseConnectingTelegram, PhaseConnectingAccount} {
		t := time.NewTimer(l.stageDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		l.mu.Lock()
		if l.phase == PhaseConnectingMT5 || l.phase == PhaseConnectingTelegram {
			l.phase = next
		}
		l.mu.Unlock()
	}
}

// settleStartup records per-service diagnostics from the backend's answer
// and moves the machine to running or failed.
func (l *Lifecycle) settleStartup(res *botapi.StartResult) {
	l.mu.Lock()
	l.steps[StepMT5] = stepFor(res.MT5Connected, "MT5 connection failed")
	l.steps[StepTelegram] = stepFor(res.TelegramConnected, "Telegram connection failed")
	if res.Success {
		l.steps[StepAccount] = StepResult{Status: StepSuccess}
		l.phase = PhaseRunning
	} else {
		l.steps[StepAccount] = StepResult{Status: StepFailed, Message: res.Message}
		l.phase = PhaseFailed
	}
	l.mu.Unlock()

	prev := l.store.Get().Status
	l.dispatchStatus(state.Status{
		BotRunning:        res.Success,
		MT5Connected:      res.MT5Connected,
		TelegramConnected: res.TelegramConnected,
		UptimeSeconds:     prev.UptimeSeconds,
	}, state.SourceLocal)

	if res.Success {
		l.store.SetUptime(0)
		l.notify(notifier.SeveritySuccess, "Bot started")
		return
	}

	msg := res.Message
	if msg == "" {
		msg = "Bot failed to start"
	}
	l.notify(notifier.SeverityError, msg)
}

func (l *Lifecycle) failStartup(reason string) {
	l.mu.Lock()
	for name, step := range l.steps {
		if step.Status == StepPending {
			l.steps[name] = StepResult{Status: StepFailed, Message: reason}
		}
	}
	l.phase = PhaseFailed
	l.mu.Unlock()

	l.notify(notifier.SeverityError, fmt.Sprintf("Failed to start bot: %s", reason))
}

// HandleBotStarted applies the backend's push confirmation that the bot is
// up. A service flag that is false marks that step failed, but the bot is
// still running: the backend only emits this frame once it has started.
func (l *Lifecycle) HandleBotStarted(mt5Connected, telegramConnected bool) {
	l.mu.Lock()
	l.steps[StepMT5] = stepFor(mt5Connected, "MT5 connection failed")
	l.steps[StepTelegram] = stepFor(telegramConnected, "Telegram connection failed")
	l.steps[StepAccount] = StepResult{Status: StepSuccess}
	l.phase = PhaseRunning
	l.mu.Unlock()

	prev := l.store.Get().Status
	l.dispatchStatus(state.Status{
		BotRunning:        true,
		MT5Connected:      mt5Connected,
		TelegramConnected: telegramConnected,
		UptimeSeconds:     prev.UptimeSeconds,
	}, state.SourceSocket)

	if !telegramConnected {
		l.notify(notifier.SeverityWarning, "Bot started, but the Telegram connection failed")
	} else if !mt5Connected {
		l.notify(notifier.SeverityWarning, "Bot started, but the MT5 connection failed")
	}
}

// HandleStartupProgress records a backend-reported startup stage.
func (l *Lifecycle) HandleStartupProgress(stage, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.steps[stage]; !ok {
		return
	}
	l.steps[stage] = StepResult{Status: StepPending, Message: message}

	switch stage {
	case StepMT5:
		l.phase = PhaseConnectingMT5
	case StepTelegram:
		l.phase = PhaseConnectingTelegram
	case StepAccount:
		l.phase = PhaseConnectingAccount
	}
}

// HandleStartupFailed terminates a startup attempt on the backend's word.
func (l *Lifecycle) HandleStartupFailed(message string) {
	if message == "" {
		message = "Bot failed to start"
	}
	l.failStartup(message)
}

// Stop flips the bot to not-running immediately, then asks the backend. A
// rejection restores the running state and queues one error notification.
func (l *Lifecycle) Stop(ctx context.Context) error {
	prev := l.store.Get().Status

	err := runMutation(ctx, l.notifier, mutation{
		apply: func() {
			stopped := prev
			stopped.BotRunning = false
			l.dispatchStatus(stopped, state.SourceLocal)
		},
		persist: l.api.StopBot,
		revert: func() {
			l.dispatchStatus(prev, state.SourceLocal)
		},
		message: func(err error) string {
			return fmt.Sprintf("Failed to stop bot: %s", failureDetail(err))
		},
	})
	if err != nil {
		return fmt.Errorf("stop bot: %w", err)
	}

	l.mu.Lock()
	l.phase = PhaseIdle
	l.mu.Unlock()

	l.notify(notifier.SeverityInfo, "Bot stopped")
	return nil
}

// ClosePosition removes the position locally, then asks the backend to close
// it. A rejection restores the previous position list.
func (l *Lifecycle) ClosePosition(ctx context.Context, ticket int64) error {
	prev := l.store.Get().Positions

	remaining := make([]state.Position, 0, len(prev))
	for _, p := range prev {
		if p.Ticket != ticket {
			remaining = append(remaining, p)
		}
	}

	err := runMutation(ctx, l.notifier, mutation{
		apply: func() {
			l.dispatchPositions(remaining)
		},
		persist: func(ctx context.Context) error {
			return l.api.ClosePosition(ctx, ticket)
		},
		revert: func() {
			l.dispatchPositions(prev)
		},
		message: func(err error) string {
			return fmt.Sprintf("Failed to close position #%d: %s", ticket, failureDetail(err))
		},
	})
	if err != nil {
		return fmt.Errorf("close position %d: %w", ticket, err)
	}
	return nil
}

// RunUptime drives the local uptime counter: one tick per second while the
// bot is running, from a local timer only. The counter is seeded from the
// server's reported uptime and never re-synced while running.
func (l *Lifecycle) RunUptime(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if l.Phase() == PhaseRunning {
				l.store.TickUptime()
			}
		}
	}
}

func (l *Lifecycle) dispatchStatus(s state.Status, src state.Source) {
	l.dispatcher.Dispatch(state.Update{
		Domain:     state.DomainStatus,
		Source:     src,
		Payload:    s,
		ObservedAt: time.Now(),
	})
}

func (l *Lifecycle) dispatchPositions(positions []state.Position) {
	l.dispatcher.Dispatch(state.Update{
		Domain:     state.DomainPositions,
		Source:     state.SourceLocal,
		Payload:    positions,
		ObservedAt: time.Now(),
	})
}

func (l *Lifecycle) notify(sev notifier.Severity, msg string) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(notifier.New(sev, msg))
}

func stepFor(ok bool, failMsg string) StepResult {
	if ok {
		return StepResult{Status: StepSuccess}
	}
	return StepResult{Status: StepFailed, Message: failMsg}
}
