package chat

import (
	"testing"

	"GCProject/module/chat/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, content string) model.Message {
	return model.Message{ID: id, Content: content}
}

func TestMessageStream_OptimisticThenEchoYieldsOneEntry(t *testing.T) {
	s := NewMessageStream()

	require.True(t, s.AppendLocal(msg("m1", "hello")))
	assert.False(t, s.Append(msg("m1", "hello")), "broadcast echo must be filtered")
	assert.Equal(t, 1, s.Len())
}

func TestMessageStream_EchoThenOptimistic(t *testing.T) {
	s := NewMessageStream()

	// Broadcast wins the race against the send response.
	require.True(t, s.Append(msg("m1", "hello")))
	assert.False(t, s.AppendLocal(msg("m1", "hello")))
	assert.Equal(t, 1, s.Len())
}

func TestMessageStream_ArrivalOrderKept(t *testing.T) {
	s := NewMessageStream()
	s.Append(msg("a", "first"))
	s.Append(msg("b", "second"))
	s.Append(msg("c", "third"))

	got := s.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Equal(t, "third", got[2].Content)
}

func TestMessageStream_LoadThenReplayDedupes(t *testing.T) {
	s := NewMessageStream()
	// A broadcast arrives while history is in flight.
	s.Append(msg("m3", "live"))

	live := s.Messages()
	s.Load([]model.Message{msg("m1", "old"), msg("m2", "older"), msg("m3", "live")})
	for _, m := range live {
		s.Append(m)
	}

	got := s.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[2].ID)
}

func TestMessageStream_Reset(t *testing.T) {
	s := NewMessageStream()
	s.Append(msg("m1", "hello"))
	s.Reset()
	assert.Zero(t, s.Len())
	// Reset clears the dedupe index too: the same id may appear in the next
	// room's history.
	assert.True(t, s.Append(msg("m1", "hello")))
}
