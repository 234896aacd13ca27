package chat

import (
	"sync"

	"GCProject/module/chat/model"
)

// MessageStream is the append-only message log of the active room, ordered
// by arrival at this client. A message can reach the stream twice, once as
// the optimistic local append after a successful send and once as the
// broadcast echo, and is deduplicated by id.
type MessageStream struct {
	mu   sync.RWMutex
	msgs []model.Message
	seen map[string]struct{}
}

func NewMessageStream() *MessageStream {
	return &MessageStream{seen: make(map[string]struct{})}
}

// Load replaces the log with fetched history (room entry).
func (s *MessageStream) Load(history []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = make([]model.Message, 0, len(history))
	s.seen = make(map[string]struct{}, len(history))
	for _, m := range history {
		if _, dup := s.seen[m.ID]; dup && m.ID != "" {
			continue
		}
		s.append(m)
	}
}

// Append adds an inbound broadcast message. Returns false on a duplicate id.
func (s *MessageStream) Append(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID != "" {
		if _, dup := s.seen[m.ID]; dup {
			return false
		}
	}
	s.append(m)
	return true
}

// AppendLocal adds the optimistic copy of a just-sent message. Same dedupe
// path as Append, so whichever of send-response and broadcast echo lands
// first wins and the other is filtered.
func (s *MessageStream) AppendLocal(m model.Message) bool {
	return s.Append(m)
}

func (s *MessageStream) append(m model.Message) {
	s.msgs = append(s.msgs, m)
	if m.ID != "" {
		s.seen[m.ID] = struct{}{}
	}
}

// Messages returns a copy in arrival order.
func (s *MessageStream) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *MessageStream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Reset discards everything on room switch. The only removal the stream
// ever performs.
func (s *MessageStream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
	s.seen = make(map[string]struct{})
}
