package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"seroest/models"
)

// SessionKey is where the current user is mirrored in the local store.
const SessionKey = "sero-est-current-user"

// KV is the persisted key/value store backing the session mirror.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Session holds the logged-in user. With a KV store it survives restarts;
// without one it lives only as long as the value.
type Session struct {
	mu    sync.RWMutex
	user  *models.User
	store KV
}

// NewSession returns an empty session mirrored to store.
func NewSession(store KV) *Session {
	return &Session{store: store}
}

// StaticSession returns an unpersisted session for u, used per request by the
// network API.
func StaticSession(u models.User) *Session {
	u = u.Public()
	return &Session{user: &u}
}

// Restore loads the mirrored user, if any.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	raw, ok, err := s.store.Get(ctx, SessionKey)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.user = nil
		return nil
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	s.user = &u
	return nil
}

// Set makes u the current user and mirrors it without its password.
func (s *Session) Set(ctx context.Context, u models.User) error {
	u = u.Public()
	if s.store != nil {
		raw, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		if err := s.store.Put(ctx, SessionKey, raw); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return nil
}

// Clear forgets the current user.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Current returns the logged-in user.
func (s *Session) Current() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}
