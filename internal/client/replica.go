// Package client keeps one participant's view of the shared canvas in step
// with the hub.
package client

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"LiveBoard/internal/protocol"
	"LiveBoard/internal/state"
)

// Emitter delivers a message to the hub.
type Emitter func(m protocol.Message)

// Frame is everything a renderer needs for one paint: committed history at the
// bottom, other sessions' strokes in progress above it, then the local draft.
type Frame struct {
	History []state.Stroke
	Remote  []state.Stroke
	Draft   *state.Stroke
	Cursors []state.Cursor
}

// Replica merges the committed history, remote strokes in progress and the
// local draft. Deletions are only ever applied when the hub reports them, so
// every replica ends up with the same history.
type Replica struct {
	mu      sync.Mutex
	self    string
	history CommittedHistory
	remote  map[string]*state.Stroke
	cursors map[string]state.Cursor
	draft   *LocalDraft

	emit     Emitter
	onChange func()
	log      *slog.Logger
}

// NewReplica creates an empty replica that sends its local events to emit.
func NewReplica(emit Emitter) *Replica {
	if emit == nil {
		emit = func(protocol.Message) {}
	}
	return &Replica{
		history: CommittedHistory{},
		remote:  make(map[string]*state.Stroke),
		cursors: make(map[string]state.Cursor),
		emit:    emit,
		log:     slog.Default().With("component", "replica"),
	}
}

// OnChange registers a callback run after every change to the frame, outside
// the replica's lock.
func (r *Replica) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// SessionID returns the id the hub assigned to this client.
func (r *Replica) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// Apply folds one hub message into the replica.
func (r *Replica) Apply(m protocol.Message) {
	r.mu.Lock()
	changed := r.apply(m)
	notify := r.onChange
	r.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
}

func (r *Replica) apply(m protocol.Message) bool {
	switch m := m.(type) {
	case protocol.Welcome:
		r.self = m.SessionID
		return false

	case protocol.LoadHistory:
		r.history = CommittedHistory(state.CloneStrokes(m.Strokes))
		return true

	case protocol.ActiveStrokes:
		changed := false
		for _, stroke := range m.Strokes {
			if stroke.UserID == r.self && r.self != "" {
				continue
			}
			if _, exists := r.remote[stroke.ID]; exists {
				continue
			}
			c := stroke.Clone()
			r.remote[stroke.ID] = &c
			changed = true
		}
		return changed

	case protocol.StrokeStart:
		if r.self != "" && m.UserID == r.self {
			return false
		}
		if _, exists := r.remote[m.StrokeID]; exists {
			return false
		}
		r.remote[m.StrokeID] = &state.Stroke{
			ID:        m.StrokeID,
			UserID:    m.UserID,
			Points:    []state.Point{m.Point},
			Color:     m.Color,
			LineWidth: m.LineWidth,
		}
		return true

	case protocol.StrokeUpdate:
		stroke, ok := r.remote[m.StrokeID]
		if !ok {
			return false
		}
		stroke.Points = append(stroke.Points, m.Point)
		return true

	case protocol.StrokeEnd:
		stroke, ok := r.remote[m.StrokeID]
		if !ok {
			return false
		}
		delete(r.remote, m.StrokeID)
		if !r.history.Contains(m.StrokeID) {
			r.history = append(r.history, *stroke)
		}
		return true

	case protocol.StrokeRemoved:
		r.history = r.history.Without(m.StrokeID)
		return true

	case protocol.UserMoved:
		if m.UserID == r.self {
			return false
		}
		r.cursors[m.UserID] = state.Cursor{SessionID: m.UserID, Point: m.Point, Color: m.Color}
		return true

	case protocol.UserDisconnected:
		if _, ok := r.cursors[m.SessionID]; !ok {
			return false
		}
		delete(r.cursors, m.SessionID)
		return true
	}

	r.log.Debug("ignored message", "kind", m.Kind())
	return false
}

// BeginLocal opens a local stroke at p and announces it. It returns the new
// stroke id.
func (r *Replica) BeginLocal(p state.Point, color string, lineWidth float64) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("begin local stroke: %w", protocol.ErrInvalidPoint)
	}

	r.mu.Lock()
	if r.self == "" {
		r.mu.Unlock()
		return "", ErrNotConnected
	}
	if r.draft != nil {
		r.mu.Unlock()
		return "", ErrAlreadyDrawing
	}
	id := state.NewStrokeID()
	r.draft = newLocalDraft(id, r.self, color, lineWidth, p)
	msg := protocol.StrokeStart{StrokeID: id, UserID: r.self, Color: color, LineWidth: lineWidth, Point: p}
	r.mu.Unlock()

	r.send(msg)
	return id, nil
}

// ExtendLocal adds p to the local draft and announces it.
func (r *Replica) ExtendLocal(p state.Point) error {
	if !p.Valid() {
		return fmt.Errorf("extend local stroke: %w", protocol.ErrInvalidPoint)
	}

	r.mu.Lock()
	if r.draft == nil {
		r.mu.Unlock()
		return ErrNotDrawing
	}
	r.draft.add(p)
	msg := protocol.StrokeUpdate{StrokeID: r.draft.stroke.ID, Point: p}
	r.mu.Unlock()

	r.send(msg)
	return nil
}

// EndLocal closes the draft, appends it to the local history without waiting
// for the hub, and announces the commit.
func (r *Replica) EndLocal() (state.Stroke, error) {
	r.mu.Lock()
	if r.draft == nil {
		r.mu.Unlock()
		return state.Stroke{}, ErrNotDrawing
	}
	stroke := r.draft.Stroke()
	r.draft = nil
	r.history = append(r.history, stroke)
	r.mu.Unlock()

	r.send(protocol.StrokeEnd{StrokeID: stroke.ID})
	return stroke.Clone(), nil
}

// MoveCursor announces the local pointer position.
func (r *Replica) MoveCursor(p state.Point, color string) error {
	if !p.Valid() {
		return fmt.Errorf("move cursor: %w", protocol.ErrInvalidPoint)
	}
	r.mu.Lock()
	self := r.self
	r.mu.Unlock()

	r.emit(protocol.MouseMove{UserID: self, Point: p, Color: color})
	return nil
}

// Undo asks the hub to delete a committed stroke. The local history is left
// untouched until the hub answers with stroke-removed.
func (r *Replica) Undo(id string) error {
	r.mu.Lock()
	committed := r.history.Contains(id)
	r.mu.Unlock()

	if !committed {
		return fmt.Errorf("undo %s: %w", id, ErrNotCommitted)
	}
	r.emit(protocol.UndoStroke{StrokeID: id})
	return nil
}

// UndoLast undoes the most recent stroke this session drew and returns its id.
func (r *Replica) UndoLast() (string, error) {
	r.mu.Lock()
	last, ok := r.history.LastBy(r.self)
	ok = ok && r.self != ""
	r.mu.Unlock()

	if !ok {
		return "", ErrNothingToUndo
	}
	r.emit(protocol.UndoStroke{StrokeID: last.ID})
	return last.ID, nil
}

// History returns a copy of the committed history.
func (r *Replica) History() []state.Stroke {
	r.mu.Lock()
	defer r.mu.Unlock()
	return state.CloneStrokes(r.history)
}

// Frame returns a render-ready copy of all three views.
func (r *Replica) Frame() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := Frame{
		History: state.CloneStrokes(r.history),
		Remote:  make([]state.Stroke, 0, len(r.remote)),
		Cursors: make([]state.Cursor, 0, len(r.cursors)),
	}
	for _, s := range r.remote {
		f.Remote = append(f.Remote, s.Clone())
	}
	sort.Slice(f.Remote, func(i, j int) bool { return f.Remote[i].ID < f.Remote[j].ID })
	for _, c := range r.cursors {
		f.Cursors = append(f.Cursors, c)
	}
	sort.Slice(f.Cursors, func(i, j int) bool { return f.Cursors[i].SessionID < f.Cursors[j].SessionID })
	if r.draft != nil {
		d := r.draft.Stroke()
		f.Draft = &d
	}
	return f
}

// send emits a local lifecycle event and notifies the renderer.
func (r *Replica) send(m protocol.Message) {
	r.emit(m)

	r.mu.Lock()
	notify := r.onChange
	r.mu.Unlock()
	if notify != nil {
		notify()
	}
}
