package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Value is one snapshot delivery: the full current value at a subscribed
// path. The store pushes the current value immediately on subscribe and
// again on every change.
type Value struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// ParseValue decodes a raw store message. Returns nil for messages without
// a path.
func ParseValue(data []byte) *Value {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	if v.Path == "" {
		return nil
	}
	return &v
}

// Client subscribes to a realtime snapshot store over websocket. Each
// subscribed path delivers full-value snapshots, never diffs.
type Client struct {
	logger *zap.Logger

	storeURL string
	dialer   *websocket.Dialer

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	msgCh   chan Value
	errCh   chan error
	closeCh chan struct{}

	msgCount        uint64
	lastMsgUnixNano int64
}

func NewClient(logger *zap.Logger, storeURL string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger:   logger,
		storeURL: storeURL,
		dialer:   websocket.DefaultDialer,

		msgCh:   make(chan Value, 256),
		errCh:   make(chan error, 16),
		closeCh: make(chan struct{}),
	}
}

// Connect dials the store and subscribes to the given paths.
func (c *Client) Connect(ctx context.Context, paths []string) error {
	c.connMu.Lock()
	alreadyConnected := c.conn != nil
	c.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.storeURL, nil)
	if err != nil {
		return fmt.Errorf("dial snapshot store: %w", err)
	}

	c.logger.Info(
		"snapshot store dialed",
		zap.String("url", c.storeURL),
		zap.Strings("paths", paths),
	)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	sub := map[string]any{
		"op":    "subscribe",
		"paths": paths,
	}
	if err := c.writeJSON(sub); err != nil {
		_ = conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		return fmt.Errorf("send subscription: %w", err)
	}

	go c.readLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.closeCh:
		}
	}()

	return nil
}

// Subscribe adds paths to the active subscription.
func (c *Client) Subscribe(paths []string) error {
	return c.sendOp("subscribe", paths)
}

// Unsubscribe removes paths from the active subscription.
func (c *Client) Unsubscribe(paths []string) error {
	return c.sendOp("unsubscribe", paths)
}

// Values returns the channel of snapshot deliveries.
func (c *Client) Values() <-chan Value {
	return c.msgCh
}

// Errors returns the channel of read failures.
func (c *Client) Errors() <-chan error {
	return c.errCh
}

type Stats struct {
	MessageCount  uint64
	LastMessageAt time.Time
}

func (c *Client) Stats() Stats {
	n := atomic.LoadUint64(&c.msgCount)
	ns := atomic.LoadInt64(&c.lastMsgUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}

	return Stats{
		MessageCount:  n,
		LastMessageAt: t,
	}
}

func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}

	c.closeCh = make(chan struct{})

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	return err
}

func (c *Client) sendOp(op string, paths []string) error {
	return c.writeJSON(map[string]any{
		"op":    op,
		"paths": paths,
	})
}

func (c *Client) writeJSON(v any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteJSON(v)
}

func (c *Client) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("snapshot store read loop exiting: read error", zap.Error(err))
			select {
			case c.errCh <- err:
			default:
			}
			_ = c.Close()
			return
		}

		atomic.AddUint64(&c.msgCount, 1)
		atomic.StoreInt64(&c.lastMsgUnixNano, time.Now().UnixNano())

		v := ParseValue(b)
		if v == nil {
			c.logger.Debug("snapshot store dropping malformed message", zap.ByteString("frame", b))
			continue
		}

		select {
		case c.msgCh <- *v:
		default:
			c.logger.Warn("dropping snapshot: msgCh full", zap.String("path", v.Path))
		}
	}
}
