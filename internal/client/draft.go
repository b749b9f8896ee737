package client

import "LiveBoard/internal/state"

// CommittedHistory is the local copy of the shared history. It only changes
// through remote events and through the local user finishing a stroke.
type CommittedHistory []state.Stroke

// Contains reports whether a stroke with id is committed.
func (h CommittedHistory) Contains(id string) bool {
	for _, s := range h {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Without returns h with every stroke matching id removed.
func (h CommittedHistory) Without(id string) CommittedHistory {
	out := make(CommittedHistory, 0, len(h))
	for _, s := range h {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// LastBy returns the most recent stroke drawn by userID.
func (h CommittedHistory) LastBy(userID string) (state.Stroke, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].UserID == userID {
			return h[i], true
		}
	}
	return state.Stroke{}, false
}

// LocalDraft is the stroke the local user is drawing right now. It is painted
// straight from input and never read back from the network.
type LocalDraft struct {
	stroke state.Stroke
}

func newLocalDraft(id, userID, color string, lineWidth float64, p state.Point) *LocalDraft {
	return &LocalDraft{stroke: state.Stroke{
		ID:        id,
		UserID:    userID,
		Points:    []state.Point{p},
		Color:     color,
		LineWidth: lineWidth,
	}}
}

func (d *LocalDraft) add(p state.Point) {
	d.stroke.Points = append(d.stroke.Points, p)
}

// Stroke returns a copy of the draft as drawn so far.
func (d *LocalDraft) Stroke() state.Stroke {
	return d.stroke.Clone()
}
