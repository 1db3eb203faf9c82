package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/internal/random"
	"github.com/layer-3/rangda/ports"
)

// MemoryUserStore is an in-memory implementation of ports.UserStore.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*core.User
	byKey map[string]string // public key -> user id
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: make(map[string]*core.User),
		byKey: make(map[string]string),
	}
}

func (s *MemoryUserStore) FindByID(ctx context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *MemoryUserStore) FindByPublicKey(ctx context.Context, publicKey string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[publicKey]
	if !ok {
		return nil, ports.ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

// Create stores the user and claims its public key. The existence
// check and the claim happen under one lock, so racing registrations
// for the same key cannot both succeed.
func (s *MemoryUserStore) Create(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[user.Key.PublicKey]; exists {
		return ports.ErrAlreadyExists
	}
	if _, exists := s.users[user.ID]; exists {
		return ports.ErrAlreadyExists
	}

	u := *user
	s.users[u.ID] = &u
	s.byKey[u.Key.PublicKey] = u.ID
	return nil
}

func (s *MemoryUserStore) UpdateLastLogin(ctx context.Context, userID, publicKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ports.ErrNotFound
	}
	user.LastLogin = &at
	if user.Key.PublicKey == publicKey {
		user.Key.LastUsed = at
	}
	return nil
}

func (s *MemoryUserStore) PublicKeyExists(ctx context.Context, publicKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.byKey[publicKey]
	return exists, nil
}

func (s *MemoryUserStore) ReplacePublicKey(ctx context.Context, userID string, key core.PublicKeyInfo) error {
	if key.PublicKey == "" {
		return errors.New("cannot remove the only key for a user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ports.ErrNotFound
	}
	if owner, exists := s.byKey[key.PublicKey]; exists && owner != userID {
		return ports.ErrAlreadyExists
	}

	delete(s.byKey, user.Key.PublicKey)
	user.Key = key
	s.byKey[key.PublicKey] = userID
	return nil
}

// MemoryChallengeStore is an in-memory implementation of
// ports.ChallengeStore. Consumed nonces live in a denormalized set next
// to the challenge records, so NonceUsed answers without scanning and
// survives challenge deletion.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*core.StoredChallenge
	usedNonces map[string]struct{}
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*core.StoredChallenge),
		usedNonces: make(map[string]struct{}),
	}
}

func (s *MemoryChallengeStore) Save(ctx context.Context, challenge *core.StoredChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *challenge
	s.challenges[c.ID] = &c
	if c.Used {
		s.usedNonces[c.Challenge.Nonce] = struct{}{}
	}
	return nil
}

func (s *MemoryChallengeStore) FindByID(ctx context.Context, id string) (*core.StoredChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	c := *challenge
	return &c, nil
}

// MarkUsed performs the check-and-mark transition under one lock.
func (s *MemoryChallengeStore) MarkUsed(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok {
		return false, ports.ErrNotFound
	}
	if challenge.Used {
		return false, nil
	}
	challenge.Used = true
	s.usedNonces[challenge.Challenge.Nonce] = struct{}{}
	return true, nil
}

func (s *MemoryChallengeStore) NonceUsed(ctx context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, used := s.usedNonces[nonce]
	return used, nil
}

func (s *MemoryChallengeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, id)
	return nil
}

func (s *MemoryChallengeStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	beforeMs := before.UnixMilli()
	removed := 0
	for id, challenge := range s.challenges {
		if !challenge.Used && challenge.Challenge.ExpiresAt < beforeMs {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// MemorySessionStore is an in-memory implementation of
// ports.SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	byUser   map[string][]string
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*core.Session),
		byUser:   make(map[string][]string),
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, userID, publicKeyID string, ttl time.Duration) (*core.Session, error) {
	id, err := random.ID("sess")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &core.Session{
		ID:          id,
		UserID:      userID,
		PublicKeyID: publicKeyID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = session
	s.byUser[userID] = append(s.byUser[userID], id)

	out := *session
	return &out, nil
}

func (s *MemorySessionStore) FindByID(ctx context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := *session
	return &out, nil
}

func (s *MemorySessionStore) Invalidate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ports.ErrNotFound
	}
	session.Invalidated = true
	return nil
}

func (s *MemorySessionStore) InvalidateAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byUser[userID] {
		if session, ok := s.sessions[id]; ok {
			session.Invalidated = true
		}
	}
	return nil
}

func (s *MemorySessionStore) IsValid(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	return !session.Invalidated && time.Now().Before(session.ExpiresAt), nil
}
