package chat

import (
	"encoding/json"

	"GCProject/module/chat/model"
	"GCProject/tools/decode"
	"GCProject/tools/errs"
)

// Socket event names, client -> server.
const (
	EventJoinRoom   = "join room"
	EventLeaveRoom  = "leave room"
	EventNewMessage = "new message"
	EventTyping     = "typing"
	EventStopTyping = "stop typing"
)

// Socket event names, server -> client.
const (
	EventMessageReceive = "message receive"
	EventUsersInRoom    = "users in room"
	EventUserJoined     = "user joined"
	EventUserLeft       = "user left"
	EventNotification   = "notification"
	EventUserTyping     = "user typing"
	EventUserStopTyping = "user stop typing"
)

// Frame is one event on the wire: {"event": ..., "data": ...}. Data stays
// raw until a handler binds it; it may be an object, an array, or a bare
// string (the "user left" event carries just the user id).
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseFrame decodes one inbound websocket message.
func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errs.ErrProtocol.WrapMsg("unmarshal frame", "err", err)
	}
	if f.Event == "" {
		return nil, errs.ErrProtocol.WrapMsg("frame missing event")
	}
	return f, nil
}

// EncodeFrame builds an outbound websocket message.
func EncodeFrame(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errs.ErrProtocol.WrapMsg("marshal payload", "event", event, "err", err)
		}
		data = b
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// BindObject decodes an object payload into T through the weakly-typed
// decoder, tolerating servers that send numbers as strings and the like.
func BindObject[T any](f *Frame) (*T, error) {
	out, err := decode.JSON[T](f.Data)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("bind payload", "event", f.Event, "err", err)
	}
	return out, nil
}

// BindString decodes a bare-string payload.
func BindString(f *Frame) (string, error) {
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return "", errs.ErrProtocol.WrapMsg("bind string payload", "event", f.Event, "err", err)
	}
	return s, nil
}

// BindUsers decodes the "users in room" snapshot array.
func BindUsers(f *Frame) ([]model.User, error) {
	var raw []map[string]any
	if err := json.Unmarshal(f.Data, &raw); err != nil {
		return nil, errs.ErrProtocol.WrapMsg("bind users payload", "event", f.Event, "err", err)
	}
	out := make([]model.User, 0, len(raw))
	for _, m := range raw {
		u, err := decode.Map[model.User](m)
		if err != nil {
			return nil, errs.ErrProtocol.WrapMsg("bind user", "event", f.Event, "err", err)
		}
		out = append(out, *u)
	}
	return out, nil
}

// Outbound payloads.

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type typingPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type stopTypingPayload struct {
	RoomID string `json:"roomId"`
}

// Inbound payloads. Room ids are optional on the wire; when present they
// gate processing against the active room.

type userTypingPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type notificationPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	RoomID  string `json:"roomId"`
}

type userJoinedPayload struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}
