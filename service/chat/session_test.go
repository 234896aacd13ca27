package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"GCProject/module/chat/model"
	"GCProject/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn implements Transport in memory.
type fakeConn struct {
	mu       sync.Mutex
	state    State
	events   chan *Frame
	emits    []recordedEmit
	up       func()
	down     func(error)
	disposed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{state: StateDisconnected, events: make(chan *Frame, 64)}
}

func (f *fakeConn) Connect(ctx context.Context, identity model.Identity) error {
	f.mu.Lock()
	f.state = StateConnected
	up := f.up
	f.mu.Unlock()
	if up != nil {
		up()
	}
	return nil
}

func (f *fakeConn) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateConnected {
		return errs.ErrConnectionFailure.WrapMsg("not connected", "event", event)
	}
	f.emits = append(f.emits, recordedEmit{event: event, payload: payload})
	return nil
}

func (f *fakeConn) Events() <-chan *Frame { return f.events }

func (f *fakeConn) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) OnUp(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = fn
}

func (f *fakeConn) OnDown(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = fn
}

func (f *fakeConn) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateDisconnected
	f.disposed = true
}

func (f *fakeConn) setState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

// push delivers a server event through the real codec.
func (f *fakeConn) push(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := EncodeFrame(event, payload)
	require.NoError(t, err)
	fr, err := ParseFrame(raw)
	require.NoError(t, err)
	f.events <- fr
}

func (f *fakeConn) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emits {
		if e.event == event {
			n++
		}
	}
	return n
}

// fakeRest implements restAPI in memory.
type fakeRest struct {
	mu      sync.Mutex
	history map[string][]model.Message
	nextID  int
	sendErr error
	sent    []model.Message
}

func newFakeRest() *fakeRest {
	return &fakeRest{history: make(map[string][]model.Message)}
}

func (f *fakeRest) Messages(ctx context.Context, roomID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[roomID], nil
}

func (f *fakeRest) SendMessage(ctx context.Context, roomID, content string) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return model.Message{}, f.sendErr
	}
	f.nextID++
	m := model.Message{
		ID:        fmt.Sprintf("srv-%d", f.nextID),
		Content:   content,
		RoomID:    roomID,
		CreatedAt: time.Now(),
	}
	f.sent = append(f.sent, m)
	return m, nil
}

type sinkRecorder struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (r *sinkRecorder) sink(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *sinkRecorder) kinds() []model.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.NotificationKind, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Kind
	}
	return out
}

func identityA() model.Identity {
	return model.Identity{ID: "ua", Username: "alice", AuthToken: "tok-a"}
}

func startTestSession(t *testing.T) (*Session, *fakeConn, *fakeRest, *sinkRecorder) {
	t.Helper()
	conn := newFakeConn()
	api := newFakeRest()
	rec := &sinkRecorder{}
	s := NewSession(SessionConf{
		Typing:     TypingConf{Debounce: 100 * time.Millisecond},
		EvictEvery: 50 * time.Millisecond,
	}, conn, api, rec.sink)
	require.NoError(t, s.Start(context.Background(), identityA()))
	t.Cleanup(s.Stop)
	return s, conn, api, rec
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestSession_EndToEnd(t *testing.T) {
	s, conn, _, _ := startTestSession(t)
	room := model.Room{ID: "r1", Name: "general"}

	// A joins an empty room.
	s.SelectRoom(&room)
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")
	conn.push(t, EventUsersInRoom, []model.User{{ID: "ua", Username: "alice"}})
	waitFor(t, func() bool { return s.State().Confirmed }, "membership confirmed")

	// A sends "hello": exactly one message, from A.
	require.NoError(t, s.SendMessage("hello"))
	waitFor(t, func() bool { return len(s.State().Messages) == 1 }, "optimistic append")
	got := s.State().Messages[0]
	assert.Equal(t, "hello", got.Content)
	waitFor(t, func() bool { return conn.count(EventNewMessage) == 1 }, "echo emitted for other participants")

	// The broadcast echo of the same message must not double-count.
	conn.push(t, EventMessageReceive, got)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, s.State().Messages, 1)

	// B joins: membership becomes {A, B}.
	conn.push(t, EventUserJoined, model.User{ID: "ub", Username: "bob"})
	waitFor(t, func() bool { return len(s.State().Users) == 2 }, "user joined")

	// B types: A's view shows {bob}; B stops: back to empty.
	conn.push(t, EventUserTyping, map[string]string{"username": "bob"})
	waitFor(t, func() bool { return len(s.State().Typing) == 1 }, "typing shown")
	assert.Equal(t, []string{"bob"}, s.State().Typing)
	conn.push(t, EventUserStopTyping, map[string]string{"username": "bob"})
	waitFor(t, func() bool { return len(s.State().Typing) == 0 }, "typing cleared")

	// B leaves (bare-string payload on the wire).
	conn.push(t, EventUserLeft, "ub")
	waitFor(t, func() bool { return len(s.State().Users) == 1 }, "user left")
}

func TestSession_StaleRoomEventsDiscarded(t *testing.T) {
	s, conn, _, _ := startTestSession(t)
	room := model.Room{ID: "r1", Name: "general"}

	s.SelectRoom(&room)
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")

	conn.push(t, EventMessageReceive, model.Message{ID: "mx", Content: "ghost", RoomID: "r-old"})
	conn.push(t, EventUserTyping, map[string]string{"username": "ghost", "roomId": "r-old"})
	conn.push(t, EventMessageReceive, model.Message{ID: "m1", Content: "real", RoomID: "r1"})

	waitFor(t, func() bool { return len(s.State().Messages) == 1 }, "real message processed")
	assert.Equal(t, "real", s.State().Messages[0].Content)
	assert.Empty(t, s.State().Typing, "typing from a left room must not leak")
}

func TestSession_EventsAfterLeaveDiscarded(t *testing.T) {
	s, conn, _, _ := startTestSession(t)
	room := model.Room{ID: "r1", Name: "general"}

	s.SelectRoom(&room)
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")
	s.SelectRoom(nil)
	waitFor(t, func() bool { return conn.count(EventLeaveRoom) == 1 }, "leave intent")

	conn.push(t, EventMessageReceive, model.Message{ID: "m1", Content: "late", RoomID: "r1"})
	conn.push(t, EventUserJoined, model.User{ID: "ub", Username: "bob"})
	time.Sleep(50 * time.Millisecond)

	snap := s.State()
	assert.Nil(t, snap.Room)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Users)
}

func TestSession_ReselectSameRoomIdempotent(t *testing.T) {
	s, conn, _, _ := startTestSession(t)
	room := model.Room{ID: "r1", Name: "general"}

	s.SelectRoom(&room)
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")
	conn.push(t, EventMessageReceive, model.Message{ID: "m1", Content: "hi", RoomID: "r1"})
	waitFor(t, func() bool { return len(s.State().Messages) == 1 }, "message kept")

	same := room
	s.SelectRoom(&same)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, conn.count(EventJoinRoom), "no extra join")
	assert.Zero(t, conn.count(EventLeaveRoom))
	assert.Len(t, s.State().Messages, 1, "no state reset")
}

func TestSession_HistoryLoadsOnJoin(t *testing.T) {
	s, conn, api, _ := startTestSession(t)
	api.history["r1"] = []model.Message{
		{ID: "h1", Content: "earlier", RoomID: "r1"},
		{ID: "h2", Content: "later", RoomID: "r1"},
	}

	s.SelectRoom(&model.Room{ID: "r1", Name: "general"})
	waitFor(t, func() bool { return len(s.State().Messages) == 2 }, "history loaded")
	assert.Equal(t, "earlier", s.State().Messages[0].Content)
	_ = conn
}

func TestSession_SendWhileDisconnectedRejected(t *testing.T) {
	s, conn, _, rec := startTestSession(t)
	s.SelectRoom(&model.Room{ID: "r1", Name: "general"})
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")

	conn.setState(StateDisconnected)
	err := s.SendMessage("hello?")
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeSendFailure))
	assert.Empty(t, s.State().Messages, "nothing silently enters the stream")
	waitFor(t, func() bool { return len(rec.kinds()) == 1 }, "failure surfaced to the sink")
	assert.Equal(t, model.KindError, rec.kinds()[0])
}

func TestSession_SendFailureSurfaced(t *testing.T) {
	s, conn, api, rec := startTestSession(t)
	s.SelectRoom(&model.Room{ID: "r1", Name: "general"})
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")

	api.mu.Lock()
	api.sendErr = errs.ErrSendFailure.WrapMsg("boom")
	api.mu.Unlock()

	require.NoError(t, s.SendMessage("hello"), "rejection is async, surfaced via the relay")
	waitFor(t, func() bool { return len(rec.kinds()) == 1 }, "failure surfaced")
	assert.Equal(t, model.KindError, rec.kinds()[0])
	assert.Empty(t, s.State().Messages, "failed send never reaches the stream")
}

func TestSession_BlankMessageIsNoop(t *testing.T) {
	s, conn, api, _ := startTestSession(t)
	s.SelectRoom(&model.Room{ID: "r1", Name: "general"})
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")

	require.NoError(t, s.SendMessage("   \t "))
	time.Sleep(50 * time.Millisecond)
	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Empty(t, api.sent)
}

func TestSession_NotificationForwardedOnce(t *testing.T) {
	s, conn, _, rec := startTestSession(t)
	s.SelectRoom(&model.Room{ID: "r1", Name: "general"})
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")

	conn.push(t, EventNotification, map[string]string{"type": "USER_JOINED", "message": "bob joined"})
	waitFor(t, func() bool { return len(rec.kinds()) == 1 }, "notification delivered")
	assert.Equal(t, model.KindUserJoined, rec.kinds()[0])

	conn.push(t, EventNotification, map[string]string{"type": "SOMETHING_NEW", "message": "?"})
	waitFor(t, func() bool { return len(rec.kinds()) == 2 }, "unknown kind delivered")
	rec.mu.Lock()
	assert.Equal(t, model.KindInfo, rec.notes[1].Kind)
	assert.Equal(t, "SOMETHING_NEW", rec.notes[1].RawType)
	rec.mu.Unlock()
}

func TestSession_TypingInputEmitsDebounced(t *testing.T) {
	s, conn, _, _ := startTestSession(t)
	s.SelectRoom(&model.Room{ID: "r1", Name: "general"})
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")

	s.TypingInput()
	s.TypingInput()
	s.TypingInput()
	waitFor(t, func() bool { return conn.count(EventTyping) == 1 }, "single typing intent")
	waitFor(t, func() bool { return conn.count(EventStopTyping) == 1 }, "stop after idle gap")
	assert.Equal(t, 1, conn.count(EventTyping))
}

func TestSession_StopReleasesEverything(t *testing.T) {
	s, conn, _, _ := startTestSession(t)
	s.SelectRoom(&model.Room{ID: "r1", Name: "general"})
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")

	s.Stop()
	assert.Equal(t, 1, conn.count(EventLeaveRoom), "leave intent on stop")
	conn.mu.Lock()
	assert.True(t, conn.disposed)
	conn.mu.Unlock()
	// Idempotent.
	s.Stop()
}

func TestSession_TerminalConnectionFailureSurfaced(t *testing.T) {
	s, conn, _, rec := startTestSession(t)

	conn.mu.Lock()
	down := conn.down
	conn.mu.Unlock()
	require.NotNil(t, down, "session must register the down hook")

	down(errs.ErrAuthFailure.WrapMsg("handshake rejected", "status", 401))
	waitFor(t, func() bool { return len(rec.kinds()) == 1 }, "sign-out requirement surfaced")
	assert.Equal(t, model.KindError, rec.kinds()[0])
	rec.mu.Lock()
	assert.Contains(t, rec.notes[0].Message, "sign in again")
	rec.mu.Unlock()
	_ = s
}

func TestSession_AuthRejectedHandshakeReachesSink(t *testing.T) {
	srv := newWSTestServer(t)
	srv.reject.Store(true)

	rec := &sinkRecorder{}
	s := NewSession(SessionConf{}, NewConnManager(testConnConf(srv.wsURL())), newFakeRest(), rec.sink)
	require.NoError(t, s.Start(context.Background(), model.Identity{ID: "ua", Username: "alice", AuthToken: "expired"}))
	t.Cleanup(s.Stop)

	waitFor(t, func() bool { return len(rec.kinds()) == 1 }, "rejected credentials surfaced")
	assert.Equal(t, model.KindError, rec.kinds()[0])
	rec.mu.Lock()
	assert.Contains(t, rec.notes[0].Message, "sign in again")
	rec.mu.Unlock()
	assert.Equal(t, StateDisconnected, s.State().Connection)
}

func TestSession_DoneClosesOnStop(t *testing.T) {
	s, _, _, _ := startTestSession(t)

	select {
	case <-s.Done():
		t.Fatal("done before stop")
	default:
	}

	s.Stop()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed by stop")
	}
}

func TestSession_ReconnectRejoinsActiveRoom(t *testing.T) {
	s, conn, _, _ := startTestSession(t)
	s.SelectRoom(&model.Room{ID: "r1", Name: "general"})
	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 1 }, "join intent")
	conn.push(t, EventUsersInRoom, []model.User{{ID: "ua", Username: "alice"}})
	waitFor(t, func() bool { return s.State().Confirmed }, "confirmed")

	// Transport comes back up.
	conn.mu.Lock()
	up := conn.up
	conn.mu.Unlock()
	up()

	waitFor(t, func() bool { return conn.count(EventJoinRoom) == 2 }, "rejoin emitted")
	waitFor(t, func() bool { return !s.State().Confirmed }, "presence distrusted until fresh snapshot")
}
