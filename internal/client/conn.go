package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zoobzio/clockz"

	"LiveBoard/internal/protocol"
)

// Scheme prefixes the share links printed by a host.
const Scheme = "liveboard://"

const writeWait = 10 * time.Second

// Conn is a client's websocket connection to a hub.
type Conn struct {
	ws    *websocket.Conn
	mu    sync.Mutex
	clock clockz.Clock
	log   *slog.Logger
}

// DialOption configures a Conn during Dial.
type DialOption func(*Conn)

// WithClock sets the clock used for write deadlines.
// Default is clockz.RealClock.
func WithClock(clock clockz.Clock) DialOption {
	return func(c *Conn) {
		c.clock = clock
	}
}

// SocketURL turns a share link, a host:port or an http(s)/ws(s) URL into the
// hub's websocket URL.
func SocketURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimSuffix(strings.TrimPrefix(addr, Scheme), "/")
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse hub address: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("hub address %q has no host", addr)
	}
	u.Path = "/ws"
	return u.String(), nil
}

// Dial connects to the hub at addr.
func Dial(ctx context.Context, addr string, opts ...DialOption) (*Conn, error) {
	target, err := SocketURL(addr)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}
	c := &Conn{ws: ws, clock: clockz.RealClock, log: slog.Default().With("hub", target)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send writes one message. Safe for concurrent use.
func (c *Conn) Send(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Emitter adapts Send for a Replica. Failed sends are logged and dropped.
func (c *Conn) Emitter() Emitter {
	return func(m protocol.Message) {
		if err := c.Send(m); err != nil {
			c.log.Warn("send failed", "kind", m.Kind(), "err", err)
		}
	}
}

// Run feeds every message from the hub into r until the connection closes or
// ctx is cancelled. A clean close returns nil.
func (c *Conn) Run(ctx context.Context, r *Replica) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		mt, frame, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		m, err := protocol.Decode(frame)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownKind) {
				c.log.Debug("skipping unknown message", "err", err)
			} else {
				c.log.Warn("dropped frame", "err", err)
			}
			continue
		}
		r.Apply(m)
	}
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), c.clock.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}
