package state

import (
	"github.com/google/uuid"
)

// NewStrokeID returns a random identifier for a stroke drawn on this client.
// Collisions are rejected by the store, never overwritten.
func NewStrokeID() string {
	return uuid.NewString()
}

// NewSessionID returns a random identifier for a connected session.
func NewSessionID() string {
	return "user-" + uuid.NewString()
}
