package chat

import (
	"sync"

	"GCProject/logger"
	"GCProject/module/chat/model"

	"go.uber.org/zap"
)

// emitter is the slice of the transport the membership controller needs.
type emitter interface {
	Emit(event string, payload any) error
}

// RoomMembershipController owns which room the session is in. It issues the
// join/leave intents and resets room-scoped state on every switch. Intents
// are fire-and-forget: membership truth always comes from server-pushed
// events (the "users in room" snapshot confirms the join), never from the
// intent itself.
type RoomMembershipController struct {
	emit     emitter
	presence *PresenceTracker
	typing   *TypingCoordinator
	stream   *MessageStream

	mu        sync.RWMutex
	active    *model.Room
	confirmed bool
	epoch     uint64
}

func NewRoomMembershipController(emit emitter, presence *PresenceTracker, typing *TypingCoordinator, stream *MessageStream) *RoomMembershipController {
	return &RoomMembershipController{
		emit:     emit,
		presence: presence,
		typing:   typing,
		stream:   stream,
	}
}

// Select switches the active room. Re-selecting the current room is a
// no-op; nil returns the session to the idle no-room state. Returns whether
// anything changed (the caller kicks off the history fetch on a change).
func (c *RoomMembershipController) Select(room *model.Room) bool {
	c.mu.Lock()
	if sameRoom(c.active, room) {
		c.mu.Unlock()
		return false
	}
	prev := c.active
	c.active = room
	c.confirmed = false
	c.epoch++
	c.mu.Unlock()

	if prev != nil {
		if err := c.emit.Emit(EventLeaveRoom, joinRoomPayload{RoomID: prev.ID}); err != nil {
			logger.Warn("leave intent not sent", zap.String("roomId", prev.ID), zap.Error(err))
		}
	}
	// Discard state bound to the previous room before anything from the new
	// one is processed.
	c.presence.Reset()
	c.typing.Reset()
	c.stream.Reset()

	if room != nil {
		if err := c.emit.Emit(EventJoinRoom, joinRoomPayload{RoomID: room.ID}); err != nil {
			logger.Warn("join intent not sent", zap.String("roomId", room.ID), zap.Error(err))
		}
	}
	return true
}

// Rejoin re-emits the join intent for the active room after a reconnect and
// drops presence until a fresh snapshot confirms it. Messages are kept; the
// stream dedupes any overlap.
func (c *RoomMembershipController) Rejoin() {
	c.mu.Lock()
	room := c.active
	c.confirmed = false
	c.mu.Unlock()
	if room == nil {
		return
	}
	c.presence.Reset()
	if err := c.emit.Emit(EventJoinRoom, joinRoomPayload{RoomID: room.ID}); err != nil {
		logger.Warn("rejoin intent not sent", zap.String("roomId", room.ID), zap.Error(err))
	}
}

// Active returns the current room, if any.
func (c *RoomMembershipController) Active() (model.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return model.Room{}, false
	}
	return *c.active, true
}

// Epoch increments on every room change. Async completions capture it and
// check it on re-entry so a stale history fetch cannot touch the new room.
func (c *RoomMembershipController) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Allows reports whether an inbound event tagged with roomID still belongs
// to the session. Untagged events pass when a room is active: the server
// scopes them to whichever room the connection most recently joined.
func (c *RoomMembershipController) Allows(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return false
	}
	return roomID == "" || roomID == c.active.ID
}

// Confirm marks the join as acknowledged (fresh presence snapshot arrived).
func (c *RoomMembershipController) Confirm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = true
}

// Confirmed reports whether presence can be trusted for the active room.
func (c *RoomMembershipController) Confirmed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.confirmed
}

func sameRoom(a, b *model.Room) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
