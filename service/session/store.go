package session

import (
	"context"
	"sync"

	"GCProject/module/chat/model"
	"GCProject/tools/errs"
	"GCProject/tools/security"
)

// Store holds the current authenticated identity. Read-only to the chat
// core; writing happens wherever login lives (outside this module).
type Store interface {
	Current(ctx context.Context) (model.Identity, error)
}

// MemoryStore keeps the identity in process. The usual choice for tests and
// single-process CLI sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	identity model.Identity
	set      bool
}

func NewMemoryStore(identity model.Identity) *MemoryStore {
	return &MemoryStore{identity: identity, set: true}
}

// FromToken builds a memory store by hydrating the identity fields from the
// bearer token claims.
func FromToken(token string) (*MemoryStore, error) {
	claims, err := security.Extract(token)
	if err != nil {
		return nil, errs.ErrAuthFailure.WrapMsg("token claims", "err", err)
	}
	return NewMemoryStore(model.Identity{
		ID:        claims.UserID,
		Username:  claims.Username,
		IsAdmin:   claims.IsAdmin,
		AuthToken: token,
	}), nil
}

func (s *MemoryStore) Current(ctx context.Context) (model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set || s.identity.AuthToken == "" {
		return model.Identity{}, errs.ErrAuthFailure.WrapMsg("no identity in store")
	}
	return s.identity, nil
}

// Clear drops the identity (logout).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = model.Identity{}
	s.set = false
}
