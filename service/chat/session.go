package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"GCProject/logger"
	"GCProject/module/chat/model"
	"GCProject/tools/errs"
	"GCProject/tools/safe"

	"go.uber.org/zap"
)

// restAPI is the slice of the REST collaborator the session needs.
type restAPI interface {
	Messages(ctx context.Context, roomID string) ([]model.Message, error)
	SendMessage(ctx context.Context, roomID, content string) (model.Message, error)
}

type SessionConf struct {
	Typing           TypingConf
	NotifyBuffer     int           // default 32
	CommandQueueSize int           // default 128
	EvictEvery       time.Duration // remote-typing eviction period, default 2s
}

func (c *SessionConf) norm() {
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = 32
	}
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = 128
	}
	if c.EvictEvery <= 0 {
		c.EvictEvery = 2 * time.Second
	}
}

// Snapshot is the read-only view the presentation layer renders from.
type Snapshot struct {
	Room        *model.Room
	Messages    []model.Message
	Users       []model.User
	Typing      []string
	LocalTyping bool
	Connection  State
	Confirmed   bool
}

// Session composes the connection, room membership, presence, typing,
// message stream and notification relay into the one object the
// presentation layer consumes.
//
// Concurrency model: a single actor goroutine processes every inbound frame
// and every local action, in order, through one queue. Handlers never block;
// REST calls run on their own goroutines and re-enter through the queue.
// Each state component carries a small lock purely so Snapshot reads don't
// race the actor.
type Session struct {
	conf SessionConf
	conn Transport
	rest restAPI

	presence   *PresenceTracker
	stream     *MessageStream
	typing     *TypingCoordinator
	membership *RoomMembershipController
	relay      *NotificationRelay
	dispatcher *Dispatcher

	cmds     chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	ctx      context.Context

	mu       sync.RWMutex
	identity model.Identity
	started  bool
}

func NewSession(conf SessionConf, conn Transport, rest restAPI, sink NotificationSink) *Session {
	conf.norm()
	safe.MustNotNil(conn, "conn")
	safe.MustNotNil(rest, "rest")
	if sink == nil {
		sink = func(model.Notification) {}
	}
	return &Session{
		conf:       conf,
		conn:       conn,
		rest:       rest,
		presence:   NewPresenceTracker(),
		stream:     NewMessageStream(),
		relay:      NewNotificationRelay(sink, conf.NotifyBuffer),
		dispatcher: NewDispatcher(),
		cmds:       make(chan func(), conf.CommandQueueSize),
		stopCh:     make(chan struct{}),
	}
}

// Start binds the identity, connects, and launches the actor loop. One
// Start per session; switching identity means Stop and a new session.
func (s *Session) Start(ctx context.Context, identity model.Identity) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errs.ErrConnectionFailure.WrapMsg("session already started")
	}
	s.started = true
	s.identity = identity
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.typing = NewTypingCoordinator(s.conf.Typing, identity.Username,
		s.emitTypingStart, s.emitTypingStop,
		func() { s.post(func() { s.typing.StopLocal() }) },
	)
	s.membership = NewRoomMembershipController(s.conn, s.presence, s.typing, s.stream)
	s.registerHandlers()

	// After every (re)connect, re-join the active room and wait for a fresh
	// snapshot before trusting presence again.
	s.conn.OnUp(func() {
		s.post(func() { s.membership.Rejoin() })
	})
	// A terminal connection failure must reach the user. Rejected credentials
	// mean the stored token is dead: signing in again is the only way out.
	s.conn.OnDown(func(err error) {
		msg := "connection lost and not recoverable"
		if errs.IsCode(err, errs.CodeAuthFailure) {
			msg = "authentication rejected, sign in again"
		}
		logger.Error("connection terminated", zap.Error(err))
		s.relay.Publish(model.Notification{Kind: model.KindError, Message: msg})
	})

	if err := s.conn.Connect(s.ctx, identity); err != nil {
		return err
	}
	safe.Go("chat.session.loop", s.loop)
	return nil
}

// loop is the session actor: one goroutine, one queue, no handler overlap.
func (s *Session) loop() {
	evict := time.NewTicker(s.conf.EvictEvery)
	defer evict.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case cmd := <-s.cmds:
			safe.Protect("chat.session.command", cmd)
		case f := <-s.conn.Events():
			safe.Protect("chat.session.event", func() {
				if err := s.dispatcher.Dispatch(f); err != nil {
					logger.Warn("event not processed",
						zap.String("event", f.Event), zap.Error(err))
				}
			})
		case <-evict.C:
			if n := s.typing.Evict(); n > 0 {
				logger.Debug("evicted stale typing entries", zap.Int("count", n))
			}
		}
	}
}

// post enqueues a command for the actor. Blocks only if the queue is full;
// returns immediately once the session is stopped.
func (s *Session) post(cmd func()) {
	select {
	case s.cmds <- cmd:
	case <-s.stopCh:
	}
}

// SelectRoom switches the active room (nil returns to the idle state).
// The join/leave intents are fire-and-forget; history loads asynchronously
// and is discarded if the room changed again meanwhile.
func (s *Session) SelectRoom(room *model.Room) {
	s.post(func() {
		if changed := s.membership.Select(room); changed && room != nil {
			s.fetchHistory(*room)
		}
	})
}

// fetchHistory runs on the actor; the fetch itself does not.
func (s *Session) fetchHistory(room model.Room) {
	epoch := s.membership.Epoch()
	safe.Go("chat.session.history", func() {
		msgs, err := s.rest.Messages(s.ctx, room.ID)
		s.post(func() {
			if s.membership.Epoch() != epoch {
				logger.Debug("discarding stale history", zap.String("roomId", room.ID))
				return
			}
			if err != nil {
				logger.Error("history load failed", zap.String("roomId", room.ID), zap.Error(err))
				s.relay.Publish(model.Notification{
					Kind:    model.KindError,
					Message: "failed to load message history",
				})
				return
			}
			// Broadcasts that raced the fetch are already in the stream;
			// replay them after the history so arrival order is kept and
			// the id dedupe drops the overlap.
			live := s.stream.Messages()
			s.stream.Load(msgs)
			for _, m := range live {
				s.stream.Append(m)
			}
		})
	})
}

// SendMessage posts the message, optimistically appends the created record,
// and echoes it over the socket for the other participants. Blank text is a
// no-op. Sending with no room or while disconnected is rejected up front,
// explicitly, never silently.
func (s *Session) SendMessage(text string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil
	}
	room, ok := s.membership.Active()
	if !ok {
		return errs.ErrSendFailure.WrapMsg("no room selected")
	}
	if s.conn.State() != StateConnected {
		s.relay.Publish(model.Notification{
			Kind:    model.KindError,
			Message: "disconnected, message not sent",
		})
		return errs.ErrSendFailure.WrapMsg("not connected", "roomId", room.ID)
	}

	safe.Go("chat.session.send", func() {
		msg, err := s.rest.SendMessage(s.ctx, room.ID, content)
		if err != nil {
			logger.Error("send failed", zap.String("roomId", room.ID), zap.Error(err))
			s.relay.Publish(model.Notification{
				Kind:    model.KindError,
				Message: "message could not be sent",
			})
			return
		}
		s.post(func() {
			if !s.membership.Allows(room.ID) {
				// Room switched while the post was in flight; the message
				// belongs to the old room and must not leak into this one.
				return
			}
			s.typing.StopLocal()
			msg.RoomID = room.ID
			s.stream.AppendLocal(msg)
			if err := s.conn.Emit(EventNewMessage, msg); err != nil {
				logger.Warn("broadcast echo not sent", zap.String("messageId", msg.ID), zap.Error(err))
			}
		})
	})
	return nil
}

// TypingInput is the keystroke hook: drives the local debounce clock.
func (s *Session) TypingInput() {
	s.post(func() {
		if _, ok := s.membership.Active(); ok {
			s.typing.InputActivity()
		}
	})
}

// State returns a render-ready snapshot of the session.
func (s *Session) State() Snapshot {
	snap := Snapshot{
		Messages:   s.stream.Messages(),
		Users:      s.presence.Users(),
		Connection: s.conn.State(),
	}
	if s.typing != nil {
		snap.Typing = s.typing.Typing()
		snap.LocalTyping = s.typing.LocalTyping()
	}
	if s.membership != nil {
		if room, ok := s.membership.Active(); ok {
			snap.Room = &room
		}
		snap.Confirmed = s.membership.Confirmed()
	}
	return snap
}

// Done is closed when the session stops. Render loops and other observers
// select on it to exit with the session.
func (s *Session) Done() <-chan struct{} {
	return s.stopCh
}

// Identity returns the identity the session was started with.
func (s *Session) Identity() model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Stop releases everything Start acquired: leave intent for the active
// room, typing timer, relay, connection, actor loop. Safe on every exit
// path and idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.membership != nil {
			if room, ok := s.membership.Active(); ok {
				_ = s.conn.Emit(EventLeaveRoom, joinRoomPayload{RoomID: room.ID})
			}
		}
		if s.typing != nil {
			s.typing.Reset()
		}
		close(s.stopCh)
		s.relay.Close()
		if s.cancel != nil {
			s.cancel()
		}
		s.conn.Dispose()
	})
}

// ===== typing emit hooks =====

func (s *Session) emitTypingStart() {
	room, ok := s.membership.Active()
	if !ok {
		return
	}
	if err := s.conn.Emit(EventTyping, typingPayload{RoomID: room.ID, Username: s.Identity().Username}); err != nil {
		logger.Debug("typing intent not sent", zap.Error(err))
	}
}

func (s *Session) emitTypingStop() {
	room, ok := s.membership.Active()
	if !ok {
		return
	}
	if err := s.conn.Emit(EventStopTyping, stopTypingPayload{RoomID: room.ID}); err != nil {
		logger.Debug("stop typing intent not sent", zap.Error(err))
	}
}

// ===== inbound handlers =====

func (s *Session) registerHandlers() {
	s.dispatcher.Register(EventMessageReceive, s.onMessageReceive)
	s.dispatcher.Register(EventUsersInRoom, s.onUsersInRoom)
	s.dispatcher.Register(EventUserJoined, s.onUserJoined)
	s.dispatcher.Register(EventUserLeft, s.onUserLeft)
	s.dispatcher.Register(EventNotification, s.onNotification)
	s.dispatcher.Register(EventUserTyping, s.onUserTyping)
	s.dispatcher.Register(EventUserStopTyping, s.onUserStopTyping)
}

func (s *Session) onMessageReceive(f *Frame) error {
	msg, err := BindObject[model.Message](f)
	if err != nil {
		return err
	}
	if !s.membership.Allows(msg.RoomID) {
		logger.Debug("dropping stale message", zap.String("roomId", msg.RoomID))
		return nil
	}
	s.stream.Append(*msg)
	return nil
}

func (s *Session) onUsersInRoom(f *Frame) error {
	users, err := BindUsers(f)
	if err != nil {
		return err
	}
	if _, ok := s.membership.Active(); !ok {
		return nil
	}
	s.presence.Snapshot(users)
	s.membership.Confirm()
	return nil
}

func (s *Session) onUserJoined(f *Frame) error {
	p, err := BindObject[userJoinedPayload](f)
	if err != nil {
		return err
	}
	if !s.membership.Allows(p.RoomID) {
		return nil
	}
	s.presence.Add(model.User{ID: p.ID, Username: p.Username})
	return nil
}

func (s *Session) onUserLeft(f *Frame) error {
	// The wire sends a bare user id; tolerate an object shape as well.
	userID, err := BindString(f)
	if err != nil {
		p, err2 := BindObject[userJoinedPayload](f)
		if err2 != nil {
			return err
		}
		if !s.membership.Allows(p.RoomID) {
			return nil
		}
		userID = p.ID
	}
	if _, ok := s.membership.Active(); !ok {
		return nil
	}
	s.presence.Remove(userID)
	return nil
}

func (s *Session) onNotification(f *Frame) error {
	p, err := BindObject[notificationPayload](f)
	if err != nil {
		return err
	}
	if p.RoomID != "" && !s.membership.Allows(p.RoomID) {
		return nil
	}
	s.relay.Publish(model.Notification{
		Kind:    model.ParseNotificationKind(p.Type),
		RawType: p.Type,
		Message: p.Message,
	})
	return nil
}

func (s *Session) onUserTyping(f *Frame) error {
	p, err := BindObject[userTypingPayload](f)
	if err != nil {
		return err
	}
	if !s.membership.Allows(p.RoomID) {
		return nil
	}
	s.typing.RemoteStart(p.Username)
	return nil
}

func (s *Session) onUserStopTyping(f *Frame) error {
	p, err := BindObject[userTypingPayload](f)
	if err != nil {
		return err
	}
	if !s.membership.Allows(p.RoomID) {
		return nil
	}
	s.typing.RemoteStop(p.Username)
	return nil
}
