package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unifiedinbox/mailsync/internal/utils"
)

const stateTTL = 10 * time.Minute

type stateEntry struct {
	userID    string
	expiresAt time.Time
}

// StateStore issues and redeems the opaque state parameter that ties an
// OAuth callback back to the user who initiated the connect flow. Entries
// are single use and expire after ten minutes.
type StateStore struct {
	mu     sync.Mutex
	states map[string]stateEntry
}

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]stateEntry)}
}

func (s *StateStore) Issue(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpired()
	state := uuid.New().String()
	s.states[state] = stateEntry{userID: userID, expiresAt: utils.Now().Add(stateTTL)}
	return state
}

// Redeem returns the user bound to state and consumes it. ok is false for
// unknown, already redeemed or expired states.
func (s *StateStore) Redeem(state string) (userID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.states[state]
	if !found {
		return "", false
	}
	delete(s.states, state)
	if entry.expiresAt.Before(utils.Now()) {
		return "", false
	}
	return entry.userID, true
}

func (s *StateStore) evictExpired() {
	now := utils.Now()
	for state, entry := range s.states {
		if entry.expiresAt.Before(now) {
			delete(s.states, state)
		}
	}
}
