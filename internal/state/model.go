package state

import "math"

// Point is a canvas position normalized to the [0,1] x [0,1] square, so every
// client can scale it to its own surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are finite and inside the unit square.
func (p Point) Valid() bool {
	return inUnit(p.X) && inUnit(p.Y)
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Stroke is one continuous freehand gesture. Color and LineWidth are fixed when
// the stroke starts; Points only grow while the stroke is active.
type Stroke struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Points    []Point `json:"points"`
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
}

// Clone returns a copy that shares no memory with s.
func (s Stroke) Clone() Stroke {
	c := s
	c.Points = make([]Point, len(s.Points))
	copy(c.Points, s.Points)
	return c
}

// Renderable reports whether the stroke has enough points to paint a segment.
func (s Stroke) Renderable() bool {
	return len(s.Points) >= 2
}

// Cursor is the last known pointer position of a session. It is never part of
// the history.
type Cursor struct {
	SessionID string `json:"userId"`
	Point     Point  `json:"point"`
	Color     string `json:"color"`
}

// CloneStrokes deep-copies a slice of strokes.
func CloneStrokes(strokes []Stroke) []Stroke {
	out := make([]Stroke, len(strokes))
	for i, s := range strokes {
		out[i] = s.Clone()
	}
	return out
}
