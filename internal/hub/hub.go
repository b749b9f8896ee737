// Package hub relays drawing events between connected sessions and owns the
// authoritative stroke store.
//
// All joins, leaves and inbound messages are funnelled through one goroutine
// (Run). Each event is applied to the store and fanned out before the next one
// is looked at, so an undo can never interleave with a commit of the same stroke.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"LiveBoard/internal/protocol"
	"LiveBoard/internal/state"
)

// ErrClosed is returned when posting to a hub whose Run loop has exited.
var ErrClosed = errors.New("hub is closed")

// Peer is the hub's handle on one connected client. Send must not block: it
// queues the message or reports false when it had to drop it.
type Peer interface {
	Send(m protocol.Message) bool
	Close()
}

// SessionState is the lifecycle position of a connected session.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateSynced
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSynced:
		return "synced"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

type session struct {
	id       string
	peer     Peer
	state    SessionState
	joinedAt time.Time
	cursor   *state.Cursor
	// ids of strokes this session started that are not committed yet
	strokes mapset.Set[string]
}

// SessionInfo describes a connected session.
type SessionInfo struct {
	ID            string        `json:"id"`
	State         string        `json:"state"`
	JoinedAt      time.Time     `json:"joinedAt"`
	Cursor        *state.Cursor `json:"cursor,omitempty"`
	ActiveStrokes []string      `json:"activeStrokes"`
}

type joinEvent struct {
	id   string
	peer Peer
}

type leaveEvent struct {
	id string
}

type messageEvent struct {
	from string
	msg  protocol.Message
}

type queryEvent struct {
	fn   func()
	done chan struct{}
}

// Hub is the synchronization point between sessions and the store.
type Hub struct {
	store    *state.Store
	cfg      Config
	log      *slog.Logger
	sessions map[string]*session

	inbox chan any
	done  chan struct{}
}

// New creates a hub around store. Call Run to start processing.
func New(store *state.Store, cfg Config) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		store:    store,
		cfg:      cfg,
		log:      cfg.Logger.With("component", "hub"),
		sessions: make(map[string]*session),
		inbox:    make(chan any, cfg.InboxSize),
		done:     make(chan struct{}),
	}
}

// Store returns the store the hub mutates.
func (h *Hub) Store() *state.Store {
	return h.store
}

// Run processes events until ctx is cancelled, then disconnects every session.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case ev := <-h.inbox:
			h.handle(ev)
		case <-ctx.Done():
			for id, s := range h.sessions {
				s.state = StateDisconnected
				s.peer.Close()
				delete(h.sessions, id)
			}
			h.log.Info("hub stopped")
			return ctx.Err()
		}
	}
}

// Join registers peer and returns its session id. The peer receives a welcome
// and the current history before any other message.
func (h *Hub) Join(peer Peer) (string, error) {
	id := state.NewSessionID()
	if err := h.post(joinEvent{id: id, peer: peer}); err != nil {
		return "", err
	}
	return id, nil
}

// Leave disconnects a session. Leaving twice is harmless.
func (h *Hub) Leave(id string) error {
	return h.post(leaveEvent{id: id})
}

// Dispatch queues a message received from session id.
func (h *Hub) Dispatch(id string, m protocol.Message) error {
	return h.post(messageEvent{from: id, msg: m})
}

// Sessions lists connected sessions ordered by id.
func (h *Hub) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	q := queryEvent{done: make(chan struct{})}
	q.fn = func() {
		out = make([]SessionInfo, 0, len(h.sessions))
		for _, s := range h.sessions {
			info := SessionInfo{
				ID:            s.id,
				State:         s.state.String(),
				JoinedAt:      s.joinedAt,
				ActiveStrokes: s.strokes.ToSlice(),
			}
			sort.Strings(info.ActiveStrokes)
			if s.cursor != nil {
				c := *s.cursor
				info.Cursor = &c
			}
			out = append(out, info)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}

	if err := h.post(q); err != nil {
		return nil, err
	}
	select {
	case <-q.done:
		return out, nil
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) post(ev any) error {
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	select {
	case h.inbox <- ev:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

func (h *Hub) handle(ev any) {
	switch ev := ev.(type) {
	case joinEvent:
		h.join(ev.id, ev.peer)
	case leaveEvent:
		h.leave(ev.id)
	case messageEvent:
		h.receive(ev.from, ev.msg)
	case queryEvent:
		ev.fn()
		close(ev.done)
	}
}

func (h *Hub) join(id string, peer Peer) {
	s := &session{
		id:       id,
		peer:     peer,
		state:    StateConnecting,
		joinedAt: h.cfg.Clock.Now(),
		strokes:  mapset.NewThreadUnsafeSet[string](),
	}
	h.sessions[id] = s

	history := h.store.SnapshotHistory()
	active := h.inProgress()
	if !peer.Send(protocol.Welcome{SessionID: id}) ||
		!peer.Send(protocol.LoadHistory{Strokes: history}) ||
		!peer.Send(protocol.ActiveStrokes{Strokes: active}) {
		h.log.Warn("could not deliver history, dropping session", "session", id)
		h.leave(id)
		return
	}
	s.state = StateSynced
	h.log.Info("session joined", "session", id, "history", len(history), "active", len(active), "sessions", len(h.sessions))
}

// inProgress returns the active strokes whose authors are still connected.
// Strokes left behind by departed sessions will never be committed and are
// not handed to new joiners.
func (h *Hub) inProgress() []state.Stroke {
	var out []state.Stroke
	for _, s := range h.sessions {
		s.strokes.Each(func(id string) bool {
			if stroke, ok := h.store.ActiveStroke(id); ok {
				out = append(out, stroke)
			}
			return false
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) leave(id string) {
	s, ok := h.sessions[id]
	if !ok {
		return
	}
	delete(h.sessions, id)
	s.state = StateDisconnected
	s.peer.Close()

	if h.cfg.ReapAbandoned && s.strokes.Cardinality() > 0 {
		n := h.store.Abandon(s.strokes.ToSlice()...)
		h.log.Info("reaped abandoned strokes", "session", id, "strokes", n)
	}

	h.broadcast(protocol.UserDisconnected{SessionID: id}, "")
	h.log.Info("session left", "session", id,
		"duration", h.cfg.Clock.Now().Sub(s.joinedAt).Round(time.Millisecond),
		"sessions", len(h.sessions))
}

func (h *Hub) receive(from string, m protocol.Message) {
	s, ok := h.sessions[from]
	if !ok {
		h.log.Debug("message from unknown session", "session", from, "kind", m.Kind())
		return
	}

	switch m := m.(type) {
	case protocol.StrokeStart:
		// strokes are always attributed to the session that drew them
		if m.UserID != "" && m.UserID != from {
			h.log.Warn("stroke start claimed another author", "session", from, "stroke", m.StrokeID, "claimed", m.UserID)
		}
		m.UserID = from
		if err := h.store.BeginStroke(m.StrokeID, m.UserID, m.Color, m.LineWidth, m.Point); err != nil {
			h.log.Warn("stroke start dropped", "session", from, "stroke", m.StrokeID, "err", err)
			return
		}
		s.strokes.Add(m.StrokeID)
		h.broadcast(m, from)

	case protocol.StrokeUpdate:
		if !h.store.AppendPoint(m.StrokeID, m.Point) {
			h.log.Debug("update for inactive stroke", "session", from, "stroke", m.StrokeID)
			return
		}
		h.broadcast(m, from)

	case protocol.StrokeEnd:
		stroke, ok := h.store.CommitStroke(m.StrokeID)
		if !ok {
			h.log.Debug("end for inactive stroke", "session", from, "stroke", m.StrokeID)
			return
		}
		s.strokes.Remove(m.StrokeID)
		h.broadcast(m, from)
		h.log.Debug("stroke committed", "session", from, "stroke", m.StrokeID, "points", len(stroke.Points))

	case protocol.UndoStroke:
		removed := h.store.DeleteStroke(m.StrokeID)
		h.broadcast(protocol.StrokeRemoved{StrokeID: m.StrokeID}, "")
		h.log.Info("stroke undone", "session", from, "stroke", m.StrokeID, "removed", removed)

	case protocol.MouseMove:
		s.cursor = &state.Cursor{SessionID: from, Point: m.Point, Color: m.Color}
		h.broadcast(protocol.UserMoved{UserID: from, Point: m.Point, Color: m.Color}, from)

	default:
		h.log.Warn("unexpected message kind", "session", from, "kind", m.Kind())
	}
}

// broadcast sends m to every synced session except exclude. An empty exclude
// reaches everyone.
func (h *Hub) broadcast(m protocol.Message, exclude string) {
	for id, s := range h.sessions {
		if id == exclude || s.state != StateSynced {
			continue
		}
		if !s.peer.Send(m) {
			h.log.Warn("send queue full, message dropped", "session", id, "kind", m.Kind())
		}
	}
}
