package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/internal/random"
	"github.com/layer-3/rangda/ports"
)

const (
	userKeyPrefix      = "rangda:user:"
	pubKeyIndexPrefix  = "rangda:pubkey:"
	challengePrefix    = "rangda:challenge:"
	usedMarkerPrefix   = "rangda:challenge-used:"
	nonceMarkerPrefix  = "rangda:nonce-used:"
	sessionPrefix      = "rangda:session:"
	userSessionsPrefix = "rangda:user-sessions:"

	// challengeRetention keeps challenge records and used markers
	// around well past the validity window, so a late replay still
	// resolves to a specific rejection instead of a not-found.
	challengeRetention = 24 * time.Hour
)

// RedisUserStore is a Redis implementation of ports.UserStore.
type RedisUserStore struct {
	client *redis.Client
}

// NewRedisUserStore creates a new Redis user store.
func NewRedisUserStore(client *redis.Client) *RedisUserStore {
	return &RedisUserStore{client: client}
}

func (s *RedisUserStore) FindByID(ctx context.Context, id string) (*core.User, error) {
	data, err := s.client.Get(ctx, userKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var user core.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

func (s *RedisUserStore) FindByPublicKey(ctx context.Context, publicKey string) (*core.User, error) {
	id, err := s.client.Get(ctx, pubKeyIndexPrefix+publicKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve public key: %w", err)
	}
	return s.FindByID(ctx, id)
}

// Create claims the public key with SETNX before writing the user
// record, so key uniqueness holds across racing instances.
func (s *RedisUserStore) Create(ctx context.Context, user *core.User) error {
	claimed, err := s.client.SetNX(ctx, pubKeyIndexPrefix+user.Key.PublicKey, user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim public key: %w", err)
	}
	if !claimed {
		return ports.ErrAlreadyExists
	}

	if err := s.writeUser(ctx, user); err != nil {
		// Roll back the claim so the key is not orphaned.
		s.client.Del(ctx, pubKeyIndexPrefix+user.Key.PublicKey)
		return err
	}
	return nil
}

func (s *RedisUserStore) UpdateLastLogin(ctx context.Context, userID, publicKey string, at time.Time) error {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	user.LastLogin = &at
	if user.Key.PublicKey == publicKey {
		user.Key.LastUsed = at
	}
	return s.writeUser(ctx, user)
}

func (s *RedisUserStore) PublicKeyExists(ctx context.Context, publicKey string) (bool, error) {
	n, err := s.client.Exists(ctx, pubKeyIndexPrefix+publicKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check public key: %w", err)
	}
	return n > 0, nil
}

func (s *RedisUserStore) ReplacePublicKey(ctx context.Context, userID string, key core.PublicKeyInfo) error {
	if key.PublicKey == "" {
		return errors.New("cannot remove the only key for a user")
	}

	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	claimed, err := s.client.SetNX(ctx, pubKeyIndexPrefix+key.PublicKey, userID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim public key: %w", err)
	}
	if !claimed {
		owner, err := s.client.Get(ctx, pubKeyIndexPrefix+key.PublicKey).Result()
		if err != nil || owner != userID {
			return ports.ErrAlreadyExists
		}
	}

	oldKey := user.Key.PublicKey
	user.Key = key
	if err := s.writeUser(ctx, user); err != nil {
		return err
	}
	if oldKey != key.PublicKey {
		s.client.Del(ctx, pubKeyIndexPrefix+oldKey)
	}
	return nil
}

func (s *RedisUserStore) writeUser(ctx context.Context, user *core.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.client.Set(ctx, userKeyPrefix+user.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// RedisChallengeStore is a Redis implementation of
// ports.ChallengeStore. Consumption markers are SETNX keys, so the
// false -> true transition is a single conditional write and exactly
// one racing caller wins it.
type RedisChallengeStore struct {
	client *redis.Client
}

// NewRedisChallengeStore creates a new Redis challenge store.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) Save(ctx context.Context, challenge *core.StoredChallenge) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengePrefix+challenge.ID, data, challengeRetention).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	if challenge.Used {
		if err := s.client.Set(ctx, usedMarkerPrefix+challenge.ID, "1", challengeRetention).Err(); err != nil {
			return fmt.Errorf("failed to mark challenge used: %w", err)
		}
		if err := s.client.SetNX(ctx, nonceMarkerPrefix+challenge.Challenge.Nonce, "1", challengeRetention).Err(); err != nil {
			return fmt.Errorf("failed to record used nonce: %w", err)
		}
	}
	return nil
}

func (s *RedisChallengeStore) FindByID(ctx context.Context, id string) (*core.StoredChallenge, error) {
	data, err := s.client.Get(ctx, challengePrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	var challenge core.StoredChallenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}

	// The used marker, not the stored record, is authoritative.
	used, err := s.client.Exists(ctx, usedMarkerPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check used marker: %w", err)
	}
	challenge.Used = challenge.Used || used > 0
	return &challenge, nil
}

func (s *RedisChallengeStore) MarkUsed(ctx context.Context, id string) (bool, error) {
	challenge, err := s.FindByID(ctx, id)
	if err != nil {
		return false, err
	}

	won, err := s.client.SetNX(ctx, usedMarkerPrefix+id, "1", challengeRetention).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark challenge used: %w", err)
	}
	if !won || challenge.Used {
		return false, nil
	}

	if err := s.client.SetNX(ctx, nonceMarkerPrefix+challenge.Challenge.Nonce, "1", challengeRetention).Err(); err != nil {
		return false, fmt.Errorf("failed to record used nonce: %w", err)
	}
	return true, nil
}

func (s *RedisChallengeStore) NonceUsed(ctx context.Context, nonce string) (bool, error) {
	n, err := s.client.Exists(ctx, nonceMarkerPrefix+nonce).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	return n > 0, nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, challengePrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: record TTLs already bound retention.
func (s *RedisChallengeStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

// RedisSessionStore is a Redis implementation of ports.SessionStore.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a new Redis session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Create(ctx context.Context, userID, publicKeyID string, ttl time.Duration) (*core.Session, error) {
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

	if err := s.writeSession(ctx, session, ttl); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, userSessionsPrefix+userID, id).Err(); err != nil {
		return nil, fmt.Errorf("failed to index session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) FindByID(ctx context.Context, id string) (*core.Session, error) {
	data, err := s.client.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session core.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Invalidate(ctx context.Context, id string) error {
	session, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	session.Invalidated = true
	return s.writeSession(ctx, session, redis.KeepTTL)
}

func (s *RedisSessionStore) InvalidateAllForUser(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, userSessionsPrefix+userID).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}
	for _, id := range ids {
		if err := s.Invalidate(ctx, id); err != nil && !errors.Is(err, ports.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *RedisSessionStore) IsValid(ctx context.Context, id string) (bool, error) {
	session, err := s.FindByID(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !session.Invalidated && time.Now().Before(session.ExpiresAt), nil
}

func (s *RedisSessionStore) writeSession(ctx context.Context, session *core.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionPrefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}
