package hub

import (
	"log/slog"
	"time"

	"github.com/zoobzio/clockz"
)

// Config tunes the hub and its websocket sessions.
type Config struct {
	// SendQueue is the number of outbound frames buffered per session. A session
	// whose queue is full misses messages; sends never block the hub.
	SendQueue int
	// InboxSize buffers joins, leaves and inbound messages waiting for the loop.
	InboxSize int

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	ReadLimit    int64

	// ReapAbandoned discards the unfinished strokes of a session when it
	// disconnects. Off by default: abandoned strokes stay in the active set.
	ReapAbandoned bool

	Clock  clockz.Clock
	Logger *slog.Logger
}

// DefaultConfig returns the settings used by the liveboard host.
func DefaultConfig() Config {
	return Config{
		SendQueue:    256,
		InboxSize:    1024,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		ReadLimit:    64 * 1024,
		Clock:        clockz.RealClock,
		Logger:       slog.Default(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendQueue <= 0 {
		c.SendQueue = d.SendQueue
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = 2 * c.PingInterval
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}
