package app

import (
	"context"
	"sync"

	"botdash/clients/botapi"
	"botdash/clients/notifier"
	"botdash/internal/state"
)

// mockBotAPI is a hand-written stand-in for the REST client. It satisfies
// pollAPI, lifecycleAPI, reconnectAPI, and backendAPI.
type mockBotAPI struct {
	mu sync.Mutex

	stateResp    *botapi.FullState
	stateErr     error
	positions    []state.Position
	positionsErr error
	trades       []state.Position
	tradesErr    error

	startRes *botapi.StartResult
	startErr error

	stopErr      error
	reconnectErr error
	closeErr     error
	updateErr    error

	stateCalls     int
	stopCalls      int
	reconnectCalls int
	closedTickets  []int64
	updatedPaths   []string
}

func newMockBotAPI() *mockBotAPI {
	return &mockBotAPI{
		startRes: &botapi.StartResult{Success: true, MT5Connected: true, TelegramConnected: true},
	}
}

func (m *mockBotAPI) GetState(ctx context.Context) (*botapi.FullState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCalls++
	if m.stateErr != nil {
		return nil, m.stateErr
	}
	if m.stateResp != nil {
		return m.stateResp, nil
	}
	return &botapi.FullState{}, nil
}

func (m *mockBotAPI) GetPositions(ctx context.Context) ([]state.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}
	return m.positions, nil
}

func (m *mockBotAPI) GetTrades(ctx context.Context, activeOnly bool) ([]state.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tradesErr != nil {
		return nil, m.tradesErr
	}
	return m.trades, nil
}

func (m *mockBotAPI) StartBot(ctx context.Context) (*botapi.StartResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.startRes, nil
}

func (m *mockBotAPI) StopBot(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return m.stopErr
}

func (m *mockBotAPI) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectCalls++
	return m.reconnectErr
}

func (m *mockBotAPI) ClosePosition(ctx context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closedTickets = append(m.closedTickets, ticket)
	return m.closeErr
}

func (m *mockBotAPI) CloseTrade(ctx context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closedTickets = append(m.closedTickets, ticket)
	return m.closeErr
}

func (m *mockBotAPI) UpdateSetting(ctx context.Context, path string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatedPaths = append(m.updatedPaths, path)
	return m.updateErr
}

// mockSocket satisfies socketClient. Connect pops errors off a queue so a
// test can script "fail N times, then succeed".
type mockSocket struct {
	mu sync.Mutex

	connectErrs  []error
	connectCalls int
	closeCalls   int
	errCh        chan error
}

func newMockSocket() *mockSocket {
	return &mockSocket{
		errCh: make(chan error, 4),
	}
}

func (m *mockSocket) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		return err
	}
	return nil
}

func (m *mockSocket) Errors() <-chan error {
	return m.errCh
}

func (m *mockSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockSocket) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

// mockNotifier records everything sent through it.
type mockNotifier struct {
	mu            sync.Mutex
	notifications []notifier.Notification
}

func (m *mockNotifier) Notify(n notifier.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
}

func (m *mockNotifier) Close() error {
	return nil
}

func (m *mockNotifier) all() []notifier.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notifier.Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

func (m *mockNotifier) bySeverity(sev notifier.Severity) []notifier.Notification {
	var out []notifier.Notification
	for _, n := range m.all() {
		if n.Severity == sev {
			out = append(out, n)
		}
	}
	return out
}
