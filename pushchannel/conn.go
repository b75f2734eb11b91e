// Package pushchannel is the WebSocket transport for execution events. The
// client sends subscribe and unsubscribe control messages; everything the
// server sends is handed to a callback as raw bytes.
package pushchannel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/deepnoodle-ai/execview/log"
	"github.com/deepnoodle-ai/execview/schedule"
	"github.com/gorilla/websocket"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// ErrClosed is returned when writing to a closed connection.
var ErrClosed = errors.New("push channel closed")

// Control message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// ControlMessage is sent by the client.
type ControlMessage struct {
	Type        string `json:"type"`
	ExecutionID string `json:"execution_id"`
}

// Options configures Dial.
type Options struct {
	Header       http.Header
	Dialer       *websocket.Dialer
	Logger       log.Logger
	WriteTimeout time.Duration
	// PingInterval is how often a keepalive ping is sent. Negative disables
	// pings.
	PingInterval time.Duration
}

// Conn is one WebSocket connection. Writes are serialized; reads happen
// only in Run.
type Conn struct {
	ws           *websocket.Conn
	logger       log.Logger
	writeTimeout time.Duration
	pingInterval time.Duration

	writeMu sync.Mutex
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the push channel at url.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing push channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing push channel: %w", err)
	}
	return newConn(ws, opts), nil
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}
	return &Conn{
		ws:           ws,
		logger:       log.OrNull(opts.Logger),
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
	}
}

// Subscribe asks the server to deliver events for executionID.
func (c *Conn) Subscribe(ctx context.Context, executionID string) error {
	return c.send(ctx, ControlMessage{Type: TypeSubscribe, ExecutionID: executionID})
}

// Unsubscribe asks the server to stop delivering events for executionID.
func (c *Conn) Unsubscribe(ctx context.Context, executionID string) error {
	return c.send(ctx, ControlMessage{Type: TypeUnsubscribe, ExecutionID: executionID})
}

func (c *Conn) send(ctx context.Context, msg ControlMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.ws.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Type, err)
	}
	c.logger.Debug("push channel control message sent", "type", msg.Type, "execution_id", msg.ExecutionID)
	return nil
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

func (c *Conn) ping(ctx context.Context) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return false
	}
	if err := c.ws.WriteControl(websocket.PingMessage, nil, c.deadline(ctx)); err != nil {
		c.logger.Debug("push channel ping failed", "error", err)
		return false
	}
	return true
}

// Run reads messages until the connection closes or ctx is done, passing
// each text or binary message to handle. handle runs on the reading
// goroutine. A normal closure returns nil.
func (c *Conn) Run(ctx context.Context, handle func(payload []byte)) error {
	if c.pingInterval > 0 {
		lease := schedule.Every(ctx, c.pingInterval, c.ping)
		defer lease.Stop()
	}
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || c.isClosed() {
				return nil
			}
			return fmt.Errorf("reading push channel: %w", err)
		}
		handle(data)
	}
}

func (c *Conn) isClosed() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closed
}

// Close sends a close frame and closes the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
