package notifier

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a notification for display and auto-dismiss timing.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a single operator-facing message. Errors stay on screen
// longer than routine updates.
type Notification struct {
	ID           string        `json:"id"`
	Severity     Severity      `json:"severity"`
	Message      string        `json:"message"`
	CreatedAt    time.Time     `json:"created_at"`
	DismissAfter time.Duration `json:"dismiss_after"`
}

// DismissAfter returns how long a notification of the given severity stays
// visible before auto-dismissing.
func DismissAfter(sev Severity) time.Duration {
	switch sev {
	case SeverityError:
		return 10 * time.Second
	case SeverityWarning:
		return 7 * time.Second
	default:
		return 4 * time.Second
	}
}

// New builds a notification with a fresh ID and severity-scaled dismiss time.
func New(sev Severity, message string) Notification {
	return Notification{
		ID:           uuid.NewString(),
		Severity:     sev,
		Message:      message,
		CreatedAt:    time.Now(),
		DismissAfter: DismissAfter(sev),
	}
}

// Notifier is the interface for delivering notifications to a channel.
type Notifier interface {
	// Notify delivers a notification.
	Notify(n Notification)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// Notify sends the notification to all registered notifiers.
func (m *MultiNotifier) Notify(n Notification) {
	for _, nt := range m.notifiers {
		nt.Notify(n)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, nt := range m.notifiers {
		if err := nt.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}

const queueCapacity = 100

// QueueNotifier retains recent notifications in memory so the state server
// can expose them to the dashboard. Oldest entries are evicted once the
// queue is full.
type QueueNotifier struct {
	mu    sync.Mutex
	items []Notification
}

// NewQueueNotifier creates an empty queue.
func NewQueueNotifier() *QueueNotifier {
	return &QueueNotifier{}
}

// Notify appends the notification, evicting the oldest entry when full.
func (q *QueueNotifier) Notify(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
	if len(q.items) > queueCapacity {
		q.items = q.items[len(q.items)-queueCapacity:]
	}
}

// Recent returns up to limit notifications, newest last. limit <= 0 returns
// everything retained.
func (q *QueueNotifier) Recent(limit int) []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]Notification, len(items))
	copy(out, items)
	return out
}

// Dismiss removes a notification by ID. Returns true if it was present.
func (q *QueueNotifier) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Close implements Notifier.
func (q *QueueNotifier) Close() error {
	return nil
}
