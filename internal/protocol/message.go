// Package protocol defines the messages exchanged between the hub and its
// clients and their JSON wire form.
//
// Every frame is an envelope {"type": kind, "data": payload}. Message kinds are
// a closed set: a frame with any other type fails to decode instead of being
// silently ignored.
package protocol

import (
	"encoding/json"
	"fmt"
	"math"

	"LiveBoard/internal/state"
)

// Kind names a message type on the wire.
type Kind string

const (
	KindStrokeStart      Kind = "stroke-start"
	KindStrokeUpdate     Kind = "stroke-update"
	KindStrokeEnd        Kind = "stroke-end"
	KindUndoStroke       Kind = "undo-stroke"
	KindMouseMove        Kind = "mouse-move"
	KindUserMoved        Kind = "user-moved"
	KindWelcome          Kind = "welcome"
	KindLoadHistory      Kind = "load-history"
	KindActiveStrokes    Kind = "active-strokes"
	KindStrokeRemoved    Kind = "stroke-removed"
	KindUserDisconnected Kind = "user-disconnected"
)

// Inbound reports whether clients may send this kind to the hub.
func (k Kind) Inbound() bool {
	switch k {
	case KindStrokeStart, KindStrokeUpdate, KindStrokeEnd, KindUndoStroke, KindMouseMove:
		return true
	}
	return false
}

// Message is implemented by every payload type in this package.
type Message interface {
	Kind() Kind
}

// StrokeStart opens a stroke with its first point.
type StrokeStart struct {
	StrokeID  string      `json:"strokeId"`
	UserID    string      `json:"userId"`
	Color     string      `json:"color"`
	LineWidth float64     `json:"lineWidth"`
	Point     state.Point `json:"point"`
}

// StrokeUpdate appends one point to an open stroke.
type StrokeUpdate struct {
	StrokeID string      `json:"strokeId"`
	Point    state.Point `json:"point"`
}

// StrokeEnd commits a stroke. Sent as a bare id.
type StrokeEnd struct {
	StrokeID string
}

// UndoStroke asks the hub to delete a committed stroke. Sent as a bare id.
type UndoStroke struct {
	StrokeID string
}

// MouseMove reports the sender's pointer.
type MouseMove struct {
	UserID string      `json:"userId"`
	Point  state.Point `json:"point"`
	Color  string      `json:"color"`
}

// UserMoved relays another session's pointer.
type UserMoved struct {
	UserID string      `json:"userId"`
	Point  state.Point `json:"point"`
	Color  string      `json:"color"`
}

// Welcome tells a freshly connected client its session id.
type Welcome struct {
	SessionID string
}

// LoadHistory carries the full committed history.
type LoadHistory struct {
	Strokes []state.Stroke
}

// ActiveStrokes carries the strokes other sessions are drawing when a client
// joins, so the joiner can follow them to their commit.
type ActiveStrokes struct {
	Strokes []state.Stroke
}

// StrokeRemoved tells every client to drop a stroke from its history.
type StrokeRemoved struct {
	StrokeID string
}

// UserDisconnected announces that a session has gone.
type UserDisconnected struct {
	SessionID string
}

func (StrokeStart) Kind() Kind      { return KindStrokeStart }
func (StrokeUpdate) Kind() Kind     { return KindStrokeUpdate }
func (StrokeEnd) Kind() Kind        { return KindStrokeEnd }
func (UndoStroke) Kind() Kind       { return KindUndoStroke }
func (MouseMove) Kind() Kind        { return KindMouseMove }
func (UserMoved) Kind() Kind        { return KindUserMoved }
func (Welcome) Kind() Kind          { return KindWelcome }
func (LoadHistory) Kind() Kind      { return KindLoadHistory }
func (ActiveStrokes) Kind() Kind    { return KindActiveStrokes }
func (StrokeRemoved) Kind() Kind    { return KindStrokeRemoved }
func (UserDisconnected) Kind() Kind { return KindUserDisconnected }

type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes m into a wire frame.
func Encode(m Message) ([]byte, error) {
	var payload any
	switch v := m.(type) {
	case StrokeEnd:
		payload = v.StrokeID
	case UndoStroke:
		payload = v.StrokeID
	case Welcome:
		payload = v.SessionID
	case StrokeRemoved:
		payload = v.StrokeID
	case UserDisconnected:
		payload = v.SessionID
	case LoadHistory:
		strokes := v.Strokes
		if strokes == nil {
			strokes = []state.Stroke{}
		}
		payload = strokes
	case ActiveStrokes:
		strokes := v.Strokes
		if strokes == nil {
			strokes = []state.Stroke{}
		}
		payload = strokes
	case StrokeStart, StrokeUpdate, MouseMove, UserMoved:
		payload = v
	default:
		return nil, fmt.Errorf("encode %T: %w", m, ErrUnknownKind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return json.Marshal(envelope{Type: m.Kind(), Data: data})
}

// Decode parses a wire frame of any kind.
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case KindStrokeStart:
		var m StrokeStart
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		if m.StrokeID == "" {
			return nil, fmt.Errorf("%s: %w: missing strokeId", env.Type, ErrMalformed)
		}
		if math.IsNaN(m.LineWidth) || math.IsInf(m.LineWidth, 0) || m.LineWidth < 0 {
			return nil, fmt.Errorf("%s: %w: lineWidth %v", env.Type, ErrMalformed, m.LineWidth)
		}
		if err := checkPoint(env.Type, m.Point); err != nil {
			return nil, err
		}
		return m, nil
	case KindStrokeUpdate:
		var m StrokeUpdate
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		if m.StrokeID == "" {
			return nil, fmt.Errorf("%s: %w: missing strokeId", env.Type, ErrMalformed)
		}
		if err := checkPoint(env.Type, m.Point); err != nil {
			return nil, err
		}
		return m, nil
	case KindMouseMove:
		var m MouseMove
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		if err := checkPoint(env.Type, m.Point); err != nil {
			return nil, err
		}
		return m, nil
	case KindUserMoved:
		var m UserMoved
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindLoadHistory:
		var strokes []state.Stroke
		if err := unmarshal(env, &strokes); err != nil {
			return nil, err
		}
		return LoadHistory{Strokes: strokes}, nil
	case KindActiveStrokes:
		var strokes []state.Stroke
		if err := unmarshal(env, &strokes); err != nil {
			return nil, err
		}
		return ActiveStrokes{Strokes: strokes}, nil
	case KindStrokeEnd, KindUndoStroke, KindWelcome, KindStrokeRemoved, KindUserDisconnected:
		var id string
		if err := unmarshal(env, &id); err != nil {
			return nil, err
		}
		if id == "" {
			return nil, fmt.Errorf("%s: %w: empty id", env.Type, ErrMalformed)
		}
		return bareMessage(env.Type, id), nil
	}
	return nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownKind)
}

// DecodeInbound parses a frame received by the hub and rejects kinds that only
// the hub may send.
func DecodeInbound(frame []byte) (Message, error) {
	m, err := Decode(frame)
	if err != nil {
		return nil, err
	}
	if !m.Kind().Inbound() {
		return nil, fmt.Errorf("%s: %w", m.Kind(), ErrWrongDirection)
	}
	return m, nil
}

func bareMessage(kind Kind, id string) Message {
	switch kind {
	case KindStrokeEnd:
		return StrokeEnd{StrokeID: id}
	case KindUndoStroke:
		return UndoStroke{StrokeID: id}
	case KindWelcome:
		return Welcome{SessionID: id}
	case KindStrokeRemoved:
		return StrokeRemoved{StrokeID: id}
	default:
		return UserDisconnected{SessionID: id}
	}
}

func unmarshal(env envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: %w: missing data", env.Type, ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", env.Type, ErrMalformed, err)
	}
	return nil
}

func checkPoint(kind Kind, p state.Point) error {
	if !p.Valid() {
		return fmt.Errorf("%s: %w: (%v, %v)", kind, ErrInvalidPoint, p.X, p.Y)
	}
	return nil
}
