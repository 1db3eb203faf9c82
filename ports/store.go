package ports

import (
	"context"
	"errors"
	"time"

	"github.com/layer-3/rangda/core"
)

// Errors shared by all store implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// UserStore persists user accounts. Implementations must enforce
// public-key uniqueness at the storage layer: a Create racing with
// another Create for the same key must fail one of them with
// ErrAlreadyExists.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*core.User, error)
	FindByPublicKey(ctx context.Context, publicKey string) (*core.User, error)
	Create(ctx context.Context, user *core.User) error
	UpdateLastLogin(ctx context.Context, userID, publicKey string, at time.Time) error
	PublicKeyExists(ctx context.Context, publicKey string) (bool, error)

	// ReplacePublicKey swaps the user's only key for a new one. It
	// refuses an empty replacement: a user cannot be left without a key.
	ReplacePublicKey(ctx context.Context, userID string, key core.PublicKeyInfo) error
}

// ChallengeStore persists issued challenges and the used-nonce index.
// MarkUsed is the single safety-critical operation: the false -> true
// transition must be atomic, so that of two racing callers exactly one
// observes true.
type ChallengeStore interface {
	Save(ctx context.Context, challenge *core.StoredChallenge) error
	FindByID(ctx context.Context, id string) (*core.StoredChallenge, error)

	// MarkUsed consumes the challenge. It returns true only for the
	// caller that performed the false -> true transition, false if the
	// challenge was already used, and ErrNotFound if no such challenge
	// exists.
	MarkUsed(ctx context.Context, id string) (bool, error)

	// NonceUsed reports whether the nonce has ever been consumed,
	// independently of which challenge id carried it.
	NonceUsed(ctx context.Context, nonce string) (bool, error)

	Delete(ctx context.Context, id string) error

	// DeleteExpired removes unconsumed challenges that expired before
	// the given instant and returns how many were removed. The
	// used-nonce index is retained.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// SessionStore persists sessions. Validity is derived from the stored
// record on every IsValid call, never cached.
type SessionStore interface {
	Create(ctx context.Context, userID, publicKeyID string, ttl time.Duration) (*core.Session, error)
	FindByID(ctx context.Context, id string) (*core.Session, error)
	Invalidate(ctx context.Context, id string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
	IsValid(ctx context.Context, id string) (bool, error)
}
