package chat

import (
	"testing"

	"GCProject/module/chat/model"
	"GCProject/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		event   string
		wantErr bool
	}{
		{"object data", `{"event":"message receive","data":{"_id":"m1","content":"hi"}}`, EventMessageReceive, false},
		{"array data", `{"event":"users in room","data":[{"_id":"u1","username":"alice"}]}`, EventUsersInRoom, false},
		{"bare string data", `{"event":"user left","data":"u1"}`, EventUserLeft, false},
		{"no data", `{"event":"stop typing"}`, EventStopTyping, false},
		{"missing event", `{"data":{"x":1}}`, "", true},
		{"not json", `hello there`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsCode(err, errs.CodeProtocolError))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, f.Event)
		})
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	raw, err := EncodeFrame(EventJoinRoom, joinRoomPayload{RoomID: "r1"})
	require.NoError(t, err)

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, EventJoinRoom, f.Event)
	assert.JSONEq(t, `{"roomId":"r1"}`, string(f.Data))
}

func TestBindObject_Message(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"message receive","data":{
		"_id":"m1","content":"hello","roomId":"r1",
		"sender":{"_id":"u1","username":"alice"},
		"createdAt":"2026-08-30T12:00:00Z"}}`))
	require.NoError(t, err)

	msg, err := BindObject[model.Message](f)
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "r1", msg.RoomID)
	assert.Equal(t, "alice", msg.Sender.Username)
	assert.Equal(t, 2026, msg.CreatedAt.Year())
}

func TestBindObject_BadPayload(t *testing.T) {
	f := &Frame{Event: EventMessageReceive, Data: []byte(`"not an object"`)}
	_, err := BindObject[model.Message](f)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeProtocolError))
}

func TestBindString(t *testing.T) {
	f := &Frame{Event: EventUserLeft, Data: []byte(`"u42"`)}
	id, err := BindString(f)
	require.NoError(t, err)
	assert.Equal(t, "u42", id)

	f.Data = []byte(`{"_id":"u42"}`)
	_, err = BindString(f)
	require.Error(t, err)
}

func TestBindUsers(t *testing.T) {
	f := &Frame{Event: EventUsersInRoom, Data: []byte(`[
		{"_id":"u1","username":"alice"},
		{"_id":"u2","username":"bob"}]`)}
	users, err := BindUsers(f)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "u2", users[1].ID)

	f.Data = []byte(`{"not":"an array"}`)
	_, err = BindUsers(f)
	require.Error(t, err)
}
