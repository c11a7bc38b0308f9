package botevents

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

// Frame is a single push message from the bot backend. Type names the
// message ("account_update", "bot_started", ...) and Data carries the
// type-specific payload.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseFrame decodes a raw websocket message. Returns nil for frames that
// are not valid {type, data} objects or carry an empty type.
func ParseFrame(data []byte) *Frame {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil
	}
	if f.Type == "" {
		return nil
	}
	return &f
}

// Client consumes the bot backend's websocket push feed. A single Connect
// serves one session; after a read failure the client closes itself and the
// supervisor dials a fresh one.
type Client struct {
	logger *zap.Logger

	wsURL        string
	dialer       *websocket.Dialer
	pingInterval time.Duration

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	msgCh   chan Frame
	errCh   chan error
	closeCh chan struct{}

	msgCount        uint64
	lastMsgUnixNano int64
}

func NewClient(logger *zap.Logger, wsURL string, pingInterval time.Duration) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}

	return &Client{
		logger:       logger,
		wsURL:        wsURL,
		dialer:       websocket.DefaultDialer,
		pingInterval: pingInterval,

		msgCh:   make(chan Frame, 256),
		errCh:   make(chan error, 16),
		closeCh: make(chan struct{}),
	}
}

// Connect dials the backend's push feed and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	alreadyConnected := c.conn != nil
	c.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial bot ws: %w", err)
	}

	c.logger.Info("bot ws dialed", zap.String("url", c.wsURL))

	conn.SetCloseHandler(func(code int, text string) error {
		c.logger.Warn(
			"bot ws close frame received",
			zap.Int("code", code),
			zap.String("reason", text),
		)
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readLoop()
	go c.pingLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.closeCh:
		}
	}()

	return nil
}

// Messages returns the channel of decoded push frames.
func (c *Client) Messages() <-chan Frame {
	return c.msgCh
}

// Errors returns the channel of read failures.
func (c *Client) Errors() <-chan error {
	return c.errCh
}

type WSStats struct {
	MessageCount  uint64
	LastMessageAt time.Time
}

func (c *Client) Stats() WSStats {
	n := atomic.LoadUint64(&c.msgCount)
	ns := atomic.LoadInt64(&c.lastMsgUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}

	return WSStats{
		MessageCount:  n,
		LastMessageAt: t,
	}
}

func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	select {
	case <-c.closeCh:
		// Channel was already closed
	default:
		close(c.closeCh)
	}

	// Fresh channel so the client can be reconnected
	c.closeCh = make(chan struct{})

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	return err
}

func (c *Client) pingLoop() {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn != nil {
				c.writeMu.Lock()
				_ = conn.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
			}

		case <-c.closeCh:
			return
		}
	}
}

func (c *Client) readLoop() {
	c.logger.Debug("bot ws read loop started")

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
			c.logger.Warn("bot ws read loop exiting: read error", zap.Error(err))
			select {
			case c.errCh <- err:
			default:
			}
			_ = c.Close()
			return
		}

		atomic.AddUint64(&c.msgCount, 1)
		atomic.StoreInt64(&c.lastMsgUnixNano, time.Now().UnixNano())

		frame := ParseFrame(b)
		if frame == nil {
			// Malformed frames are dropped without surfacing an error.
			c.logger.Debug("bot ws dropping malformed frame", zap.ByteString("frame", b))
			continue
		}

		c.forward(*frame)
	}
}

func (c *Client) forward(f Frame) {
	select {
	case c.msgCh <- f:
	default:
		c.logger.Warn("dropping ws message: msgCh full", zap.String("type", f.Type))
	}
}
