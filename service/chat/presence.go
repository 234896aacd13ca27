package chat

import (
	"sort"
	"sync"

	"GCProject/module/chat/model"
)

// PresenceTracker holds who is currently in the active room. Membership is a
// server-derived projection: a snapshot replaces everything, joins add,
// leaves subtract by id. Mutation happens only on the session actor; the
// lock exists for external snapshot reads.
type PresenceTracker struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{users: make(map[string]model.User)}
}

// Snapshot replaces the whole set. Always wins over adds/removes that
// arrived before it.
func (p *PresenceTracker) Snapshot(users []model.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = make(map[string]model.User, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		p.users[u.ID] = u
	}
}

// Add registers one joined user. Re-adding an existing id refreshes the
// record rather than duplicating it.
func (p *PresenceTracker) Add(u model.User) {
	if u.ID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.ID] = u
}

// Remove drops a user by id. Removing an absent user is a no-op.
func (p *PresenceTracker) Remove(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, userID)
}

// Users returns a copy sorted by username for stable rendering.
func (p *PresenceTracker) Users() []model.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.User, 0, len(p.users))
	for _, u := range p.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (p *PresenceTracker) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users)
}

// Reset clears the set on room switch.
func (p *PresenceTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = make(map[string]model.User)
}
