package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sanity-io/litter"
	"github.com/zoobzio/clockz"
)

// Store is the authoritative drawing state: the ordered history of committed
// strokes plus the strokes that are still being drawn. Every mutation is applied
// under a single lock so no reader observes half of an operation.
type Store struct {
	mu      sync.RWMutex
	history []Stroke
	active  map[string]*Stroke
	// used holds every id that ever reached the history, including undone ones.
	used       mapset.Set[string]
	clock      clockz.Clock
	lastCommit time.Time
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	History    int       `json:"history"`
	Active     int       `json:"active"`
	LastCommit time.Time `json:"lastCommit"`
}

// NewStore creates an empty store. A nil clock falls back to the real clock.
func NewStore(clock clockz.Clock) *Store {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Store{
		history: make([]Stroke, 0),
		active:  make(map[string]*Stroke),
		used:    mapset.NewThreadUnsafeSet[string](),
		clock:   clock,
	}
}

// BeginStroke opens a new active stroke holding a single point.
func (s *Store) BeginStroke(id, authorID, color string, lineWidth float64, p Point) error {
	if id == "" {
		return fmt.Errorf("begin stroke: %w: empty id", ErrInvalidStroke)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[id]; exists || s.used.Contains(id) {
		return fmt.Errorf("begin stroke %s: %w", id, ErrDuplicateStrokeID)
	}
	s.active[id] = &Stroke{
		ID:        id,
		UserID:    authorID,
		Points:    []Point{p},
		Color:     color,
		LineWidth: lineWidth,
	}
	return nil
}

// AppendPoint extends an active stroke. It reports false, without error, when
// the stroke is unknown: its start may not have arrived or it is already committed.
func (s *Store) AppendPoint(id string, p Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stroke, ok := s.active[id]
	if !ok {
		return false
	}
	stroke.Points = append(stroke.Points, p)
	return true
}

// CommitStroke moves an active stroke to the end of the history and returns a
// copy of it. Committing an unknown or already committed id is a no-op.
func (s *Store) CommitStroke(id string) (Stroke, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stroke, ok := s.active[id]
	if !ok {
		return Stroke{}, false
	}
	delete(s.active, id)
	s.history = append(s.history, *stroke)
	s.used.Add(id)
	s.lastCommit = s.clock.Now()
	return stroke.Clone(), true
}

// DeleteStroke removes the committed stroke with the given id. Active strokes
// are left alone; undo only applies to history.
func (s *Store) DeleteStroke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	removed := false
	for _, stroke := range s.history {
		if stroke.ID == id {
			removed = true
			continue
		}
		kept = append(kept, stroke)
	}
	// clear the tail so dropped strokes can be collected
	for i := len(kept); i < len(s.history); i++ {
		s.history[i] = Stroke{}
	}
	s.history = kept
	return removed
}

// SnapshotHistory returns a deep copy of the history in commit order.
func (s *Store) SnapshotHistory() []Stroke {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneStrokes(s.history)
}

// ActiveStroke returns a copy of the active stroke with the given id.
func (s *Store) ActiveStroke(id string) (Stroke, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stroke, ok := s.active[id]
	if !ok {
		return Stroke{}, false
	}
	return stroke.Clone(), true
}

// Abandon discards active strokes that will never be committed and returns how
// many were dropped.
func (s *Store) Abandon(ids ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.active[id]; ok {
			delete(s.active, id)
			n++
		}
	}
	return n
}

// Stats returns counts for the history and active set.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		History:    len(s.history),
		Active:     len(s.active),
		LastCommit: s.lastCommit,
	}
}

// Dump renders the full store for debugging.
func (s *Store) Dump() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Stroke, 0, len(s.active))
	for _, stroke := range s.active {
		active = append(active, stroke.Clone())
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	return litter.Sdump(struct {
		History []Stroke
		Active  []Stroke
	}{
		History: CloneStrokes(s.history),
		Active:  active,
	})
}
