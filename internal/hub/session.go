package hub

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"LiveBoard/internal/protocol"
)

// wsPeer connects one websocket to the hub. The hub loop is the only caller of
// Send and Close; writePump is the only writer on the connection.
type wsPeer struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	cfg       Config
	log       *slog.Logger
}

func newWSPeer(conn *websocket.Conn, cfg Config) *wsPeer {
	return &wsPeer{
		conn: conn,
		send: make(chan []byte, cfg.SendQueue),
		cfg:  cfg,
		log:  cfg.Logger.With("remote", conn.RemoteAddr().String()),
	}
}

func (p *wsPeer) Send(m protocol.Message) bool {
	frame, err := protocol.Encode(m)
	if err != nil {
		p.log.Error("failed to encode message", "kind", m.Kind(), "err", err)
		return false
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *wsPeer) Close() {
	p.closeOnce.Do(func() { close(p.send) })
}

// writePump drains the send queue and keeps the connection alive with pings.
// It closes the connection when the queue is closed or a write fails.
func (p *wsPeer) writePump() {
	ticker := p.cfg.Clock.NewTicker(p.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(p.cfg.Clock.Now().Add(p.cfg.WriteWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				p.log.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C():
			_ = p.conn.SetWriteDeadline(p.cfg.Clock.Now().Add(p.cfg.WriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.log.Debug("ping failed", "err", err)
				return
			}
		}
	}
}

// readPump decodes frames and hands them to the hub until the connection
// fails. Frames that do not decode are dropped; the session stays up.
func (p *wsPeer) readPump(id string, h *Hub) {
	p.conn.SetReadLimit(p.cfg.ReadLimit)
	_ = p.conn.SetReadDeadline(p.cfg.Clock.Now().Add(p.cfg.PongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(p.cfg.Clock.Now().Add(p.cfg.PongWait))
	})

	for {
		mt, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Info("connection lost", "session", id, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		m, err := protocol.DecodeInbound(frame)
		if err != nil {
			p.log.Warn("dropped frame", "session", id, "err", err)
			continue
		}
		if err := h.Dispatch(id, m); err != nil {
			if !errors.Is(err, ErrClosed) {
				p.log.Error("dispatch failed", "session", id, "err", err)
			}
			return
		}
	}
}
