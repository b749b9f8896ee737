package hub

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveBoard/internal/protocol"
	"LiveBoard/internal/state"
)

type fakePeer struct {
	mu     sync.Mutex
	msgs   []protocol.Message
	closed bool
	full   bool
}

func (p *fakePeer) Send(m protocol.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.msgs = append(p.msgs, m)
	return true
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) received() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Message(nil), p.msgs...)
}

// drain returns and forgets everything received so far.
func (p *fakePeer) drain() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.msgs
	p.msgs = nil
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	return New(state.NewStore(nil), cfg)
}

func join(h *Hub, id string) *fakePeer {
	p := &fakePeer{}
	h.handle(joinEvent{id: id, peer: p})
	return p
}

func send(h *Hub, from string, m protocol.Message) {
	h.handle(messageEvent{from: from, msg: m})
}

func pt(x, y float64) state.Point { return state.Point{X: x, Y: y} }

func drawS1(h *Hub, from string) {
	send(h, from, protocol.StrokeStart{StrokeID: "s1", UserID: from, Color: "#000000", LineWidth: 2, Point: pt(0, 0)})
	send(h, from, protocol.StrokeUpdate{StrokeID: "s1", Point: pt(1, 1)})
	send(h, from, protocol.StrokeEnd{StrokeID: "s1"})
}

func TestJoinSendsWelcomeThenHistory(t *testing.T) {
	h := newTestHub(t, testConfig())
	a := join(h, "a")

	assert.Equal(t, []protocol.Message{
		protocol.Welcome{SessionID: "a"},
		protocol.LoadHistory{Strokes: []state.Stroke{}},
		protocol.ActiveStrokes{},
	}, a.received())
	assert.Equal(t, StateSynced, h.sessions["a"].state)
}

func TestJoinReceivesStrokesInProgress(t *testing.T) {
	h := newTestHub(t, testConfig())
	join(h, "a")
	join(h, "gone")
	send(h, "a", protocol.StrokeStart{StrokeID: "s1", UserID: "a", Color: "#000000", LineWidth: 2, Point: pt(0, 0)})
	send(h, "a", protocol.StrokeUpdate{StrokeID: "s1", Point: pt(0.5, 0.5)})
	send(h, "gone", protocol.StrokeStart{StrokeID: "orphan", Point: pt(1, 1)})
	h.handle(leaveEvent{id: "gone"})

	b := join(h, "b")
	msgs := b.received()
	require.Len(t, msgs, 3)
	assert.Equal(t, protocol.ActiveStrokes{Strokes: []state.Stroke{{
		ID: "s1", UserID: "a", Color: "#000000", LineWidth: 2,
		Points: []state.Point{pt(0, 0), pt(0.5, 0.5)},
	}}}, msgs[2])
}

func TestStrokeRelayedToOthersOnly(t *testing.T) {
	h := newTestHub(t, testConfig())
	a := join(h, "a")
	b := join(h, "b")
	a.drain()
	b.drain()

	drawS1(h, "a")

	assert.Empty(t, a.received())
	assert.Equal(t, []protocol.Message{
		protocol.StrokeStart{StrokeID: "s1", UserID: "a", Color: "#000000", LineWidth: 2, Point: pt(0, 0)},
		protocol.StrokeUpdate{StrokeID: "s1", Point: pt(1, 1)},
		protocol.StrokeEnd{StrokeID: "s1"},
	}, b.received())

	history := h.store.SnapshotHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "s1", history[0].ID)
	assert.Equal(t, []state.Point{pt(0, 0), pt(1, 1)}, history[0].Points)
}

func TestLateJoinerReceivesHistory(t *testing.T) {
	h := newTestHub(t, testConfig())
	join(h, "a")
	drawS1(h, "a")

	b := join(h, "b")
	msgs := b.received()
	require.Len(t, msgs, 3)
	history, ok := msgs[1].(protocol.LoadHistory)
	require.True(t, ok)
	require.Len(t, history.Strokes, 1)
	assert.Equal(t, "s1", history.Strokes[0].ID)
	assert.Equal(t, []state.Point{pt(0, 0), pt(1, 1)}, history.Strokes[0].Points)
}

func TestUndoReachesEverySession(t *testing.T) {
	h := newTestHub(t, testConfig())
	a := join(h, "a")
	b := join(h, "b")
	drawS1(h, "a")
	a.drain()
	b.drain()

	send(h, "a", protocol.UndoStroke{StrokeID: "s1"})

	want := []protocol.Message{protocol.StrokeRemoved{StrokeID: "s1"}}
	assert.Equal(t, want, a.received())
	assert.Equal(t, want, b.received())
	assert.Empty(t, h.store.SnapshotHistory())
}

func TestUndoOfUnknownStrokeStillBroadcast(t *testing.T) {
	h := newTestHub(t, testConfig())
	a := join(h, "a")
	b := join(h, "b")
	drawS1(h, "a")
	a.drain()
	b.drain()

	send(h, "b", protocol.UndoStroke{StrokeID: "nope"})

	want := []protocol.Message{protocol.StrokeRemoved{StrokeID: "nope"}}
	assert.Equal(t, want, a.received())
	assert.Equal(t, want, b.received())
	assert.Len(t, h.store.SnapshotHistory(), 1)
}

func TestGhostUpdateIsDropped(t *testing.T) {
	h := newTestHub(t, testConfig())
	a := join(h, "a")
	b := join(h, "b")
	a.drain()
	b.drain()

	send(h, "a", protocol.StrokeUpdate{StrokeID: "ghost", Point: pt(0.5, 0.5)})
	send(h, "a", protocol.StrokeEnd{StrokeID: "ghost"})

	assert.Empty(t, b.received())
	_, ok := h.store.ActiveStroke("ghost")
	assert.False(t, ok)
	assert.Empty(t, h.store.SnapshotHistory())
}

func TestDuplicateStartIsDropped(t *testing.T) {
	h := newTestHub(t, testConfig())
	join(h, "a")
	b := join(h, "b")
	drawS1(h, "a")
	b.drain()

	send(h, "b", protocol.StrokeStart{StrokeID: "s1", UserID: "b", Color: "#ffffff", LineWidth: 9, Point: pt(0.5, 0.5)})

	assert.Empty(t, b.received())
	history := h.store.SnapshotHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "a", history[0].UserID)
	assert.Equal(t, "#000000", history[0].Color)
}

func TestCommitTwiceRelaysOnce(t *testing.T) {
	h := newTestHub(t, testConfig())
	join(h, "a")
	b := join(h, "b")
	drawS1(h, "a")
	b.drain()

	send(h, "a", protocol.StrokeEnd{StrokeID: "s1"})

	assert.Empty(t, b.received())
	assert.Len(t, h.store.SnapshotHistory(), 1)
}

func TestInterleavedStrokes(t *testing.T) {
	h := newTestHub(t, testConfig())
	join(h, "a")
	join(h, "b")

	send(h, "a", protocol.StrokeStart{StrokeID: "s1", UserID: "a", Point: pt(0, 0)})
	send(h, "b", protocol.StrokeStart{StrokeID: "s2", UserID: "b", Point: pt(1, 1)})
	for i := 1; i <= 4; i++ {
		f := float64(i) / 10
		send(h, "b", protocol.StrokeUpdate{StrokeID: "s2", Point: pt(1, f)})
		send(h, "a", protocol.StrokeUpdate{StrokeID: "s1", Point: pt(f, 0)})
	}
	send(h, "a", protocol.StrokeEnd{StrokeID: "s1"})
	send(h, "b", protocol.StrokeEnd{StrokeID: "s2"})

	history := h.store.SnapshotHistory()
	require.Len(t, history, 2)
	assert.Equal(t, []state.Point{pt(0, 0), pt(0.1, 0), pt(0.2, 0), pt(0.3, 0), pt(0.4, 0)}, history[0].Points)
	assert.Equal(t, []state.Point{pt(1, 1), pt(1, 0.1), pt(1, 0.2), pt(1, 0.3), pt(1, 0.4)}, history[1].Points)
}

func TestStartWithoutUserIsStamped(t *testing.T) {
	h := newTestHub(t, testConfig())
	join(h, "a")
	b := join(h, "b")
	b.drain()

	send(h, "a", protocol.StrokeStart{StrokeID: "s1", Point: pt(0, 0)})

	stroke, ok := h.store.ActiveStroke("s1")
	require.True(t, ok)
	assert.Equal(t, "a", stroke.UserID)
	assert.Equal(t, protocol.StrokeStart{StrokeID: "s1", UserID: "a", Point: pt(0, 0)}, b.received()[0])
}

func TestCommitIsLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newTestHub(t, cfg)
	join(h, "a")
	drawS1(h, "a")

	var commits []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "stroke committed") {
			commits = append(commits, line)
		}
	}
	require.Len(t, commits, 1)
	assert.Contains(t, commits[0], "component=hub")
}

func TestStartIsAttributedToSender(t *testing.T) {
	h := newTestHub(t, testConfig())
	join(h, "a")
	b := join(h, "b")
	b.drain()

	send(h, "a", protocol.StrokeStart{StrokeID: "s1", UserID: "b", Point: pt(0, 0)})

	stroke, ok := h.store.ActiveStroke("s1")
	require.True(t, ok)
	assert.Equal(t, "a", stroke.UserID)
	assert.Equal(t, protocol.StrokeStart{StrokeID: "s1", UserID: "a", Point: pt(0, 0)}, b.received()[0])
}

func TestMouseMoveRelayedAsPresence(t *testing.T) {
	h := newTestHub(t, testConfig())
	a := join(h, "a")
	b := join(h, "b")
	a.drain()
	b.drain()

	send(h, "a", protocol.MouseMove{UserID: "spoofed", Point: pt(0.2, 0.3), Color: "#00ff00"})

	assert.Empty(t, a.received())
	assert.Equal(t, []protocol.Message{
		protocol.UserMoved{UserID: "a", Point: pt(0.2, 0.3), Color: "#00ff00"},
	}, b.received())
	assert.Equal(t, &state.Cursor{SessionID: "a", Point: pt(0.2, 0.3), Color: "#00ff00"}, h.sessions["a"].cursor)
	assert.Zero(t, h.store.Stats().History)
}

func TestLeaveAnnouncesDisconnect(t *testing.T) {
	h := newTestHub(t, testConfig())
	a := join(h, "a")
	b := join(h, "b")
	c := join(h, "c")
	b.drain()
	c.drain()

	h.handle(leaveEvent{id: "a"})
	h.handle(leaveEvent{id: "a"})

	assert.True(t, a.closed)
	assert.NotContains(t, h.sessions, "a")
	want := []protocol.Message{protocol.UserDisconnected{SessionID: "a"}}
	assert.Equal(t, want, b.received())
	assert.Equal(t, want, c.received())

	// messages from a departed session are ignored
	send(h, "a", protocol.StrokeStart{StrokeID: "late", Point: pt(0, 0)})
	_, ok := h.store.ActiveStroke("late")
	assert.False(t, ok)
}

func TestAbandonedStrokeKeptByDefault(t *testing.T) {
	h := newTestHub(t, testConfig())
	join(h, "a")
	send(h, "a", protocol.StrokeStart{StrokeID: "s1", Point: pt(0, 0)})

	h.handle(leaveEvent{id: "a"})

	_, ok := h.store.ActiveStroke("s1")
	assert.True(t, ok)
	assert.Empty(t, h.store.SnapshotHistory())
}

func TestAbandonedStrokeReaped(t *testing.T) {
	cfg := testConfig()
	cfg.ReapAbandoned = true
	h := newTestHub(t, cfg)
	join(h, "a")
	send(h, "a", protocol.StrokeStart{StrokeID: "open", Point: pt(0, 0)})
	send(h, "a", protocol.StrokeStart{StrokeID: "done", Point: pt(0, 0)})
	send(h, "a", protocol.StrokeEnd{StrokeID: "done"})

	h.handle(leaveEvent{id: "a"})

	_, ok := h.store.ActiveStroke("open")
	assert.False(t, ok)
	assert.Len(t, h.store.SnapshotHistory(), 1)
}

func TestFullPeerDoesNotStallOthers(t *testing.T) {
	h := newTestHub(t, testConfig())
	a := join(h, "a")
	slow := join(h, "slow")
	c := join(h, "c")
	c.drain()
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	drawS1(h, "a")

	assert.Len(t, c.received(), 3)
	assert.Len(t, h.store.SnapshotHistory(), 1)
	assert.Len(t, a.received(), 3)
}

func TestJoinFailureDropsSession(t *testing.T) {
	h := newTestHub(t, testConfig())
	p := &fakePeer{full: true}
	h.handle(joinEvent{id: "x", peer: p})

	assert.NotContains(t, h.sessions, "x")
	assert.True(t, p.closed)
}

func TestRunLoop(t *testing.T) {
	h := newTestHub(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx) }()

	a := &fakePeer{}
	b := &fakePeer{}
	idA, err := h.Join(a)
	require.NoError(t, err)
	idB, err := h.Join(b)
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)

	require.NoError(t, h.Dispatch(idA, protocol.StrokeStart{StrokeID: "s1", Point: pt(0, 0)}))
	require.NoError(t, h.Dispatch(idA, protocol.StrokeUpdate{StrokeID: "s1", Point: pt(1, 1)}))

	// the query is processed after the dispatches above
	sessions, err := h.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, "synced", s.State)
		if s.ID == idA {
			assert.Equal(t, []string{"s1"}, s.ActiveStrokes)
		}
	}
	assert.Len(t, b.received(), 5)

	require.NoError(t, h.Leave(idB))
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}

	assert.True(t, a.closed)
	_, err = h.Join(&fakePeer{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.Sessions(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "synced", StateSynced.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
}
