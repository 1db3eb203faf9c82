package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/internal/random"
	"github.com/layer-3/rangda/internal/sign"
	"github.com/layer-3/rangda/ports"
)

const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultSessionTTL   = 24 * time.Hour
)

// Config carries the protocol parameters of the orchestrator.
type Config struct {
	// Domain stamped on every issued challenge.
	Domain string
	// AllowedDomains accepted back at verification. Defaults to Domain.
	AllowedDomains []string
	ChallengeTTL   time.Duration
	SessionTTL     time.Duration
}

// AuthService is the protocol orchestrator. It holds no mutable state
// of its own; everything durable lives behind the injected ports, and
// every flow runs its port calls strictly in order, failing fast.
type AuthService struct {
	users      ports.UserStore
	challenges ports.ChallengeStore
	sessions   ports.SessionStore
	tokens     ports.TokenIssuer
	events     ports.EventPublisher
	logger     *zap.Logger

	domain         string
	allowedDomains []string
	challengeTTL   time.Duration
	sessionTTL     time.Duration
}

// NewAuthService creates a new authentication orchestrator. events may
// be nil when no publisher is wired.
func NewAuthService(
	users ports.UserStore,
	challenges ports.ChallengeStore,
	sessions ports.SessionStore,
	tokens ports.TokenIssuer,
	events ports.EventPublisher,
	logger *zap.Logger,
	cfg Config,
) *AuthService {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if len(cfg.AllowedDomains) == 0 {
		cfg.AllowedDomains = []string{cfg.Domain}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:          users,
		challenges:     challenges,
		sessions:       sessions,
		tokens:         tokens,
		events:         events,
		logger:         logger,
		domain:         cfg.Domain,
		allowedDomains: cfg.AllowedDomains,
		challengeTTL:   cfg.ChallengeTTL,
		sessionTTL:     cfg.SessionTTL,
	}
}

// ChallengeRequest asks for a fresh challenge for one key and action.
type ChallengeRequest struct {
	PublicKey string
	Action    core.Action
}

// RegisterRequest carries a signed register challenge.
type RegisterRequest struct {
	PublicKey string
	Challenge core.Challenge
	Signature string
	Metadata  *core.Metadata
}

// VerifyRequest carries a signed authenticate challenge.
type VerifyRequest struct {
	ChallengeID string
	Challenge   core.Challenge
	Signature   string
	PublicKey   string
}

// AuthResult is the success value of register and verify.
type AuthResult struct {
	User    *core.User
	KeyInfo core.PublicKeyInfo
	Session *core.Session
	Tokens  *core.TokenPair
}

// CreateChallenge issues a fresh challenge. The outcome travels as a
// discriminated value because both branches are expected client-facing
// results; the error return is reserved for adapter failures.
func (s *AuthService) CreateChallenge(ctx context.Context, req ChallengeRequest) (core.ChallengeResult, error) {
	if req.PublicKey == "" || !req.Action.Valid() {
		return core.ChallengeRejected(core.CodeValidationError,
			"publicKey and action are required; action must be register or authenticate", ""), nil
	}

	exists, err := s.users.PublicKeyExists(ctx, req.PublicKey)
	if err != nil {
		return core.ChallengeResult{}, fmt.Errorf("failed to look up public key: %w", err)
	}
	switch req.Action {
	case core.ActionAuthenticate:
		if !exists {
			return core.ChallengeRejected(core.CodeUserNotFound,
				"no user found for this public key", "register"), nil
		}
	case core.ActionRegister:
		if exists {
			return core.ChallengeRejected(core.CodeUserExists,
				"a user already exists for this public key", "authenticate"), nil
		}
	}

	nonce, err := random.Nonce()
	if err != nil {
		return core.ChallengeResult{}, err
	}
	id, err := random.ID("chal")
	if err != nil {
		return core.ChallengeResult{}, err
	}

	now := time.Now()
	challenge := core.Challenge{
		Nonce:     nonce,
		Timestamp: now.UnixMilli(),
		Domain:    s.domain,
		Action:    req.Action,
		ExpiresAt: now.Add(s.challengeTTL).UnixMilli(),
	}

	stored := &core.StoredChallenge{
		ID:        id,
		Challenge: challenge,
		PublicKey: req.PublicKey,
		CreatedAt: now,
	}
	if err := s.challenges.Save(ctx, stored); err != nil {
		return core.ChallengeResult{}, fmt.Errorf("failed to save challenge: %w", err)
	}

	return core.ChallengeIssued(challenge, id), nil
}

// Register creates an account from a signed register challenge. Every
// failure is a typed *core.Error; no user, session or used-nonce record
// exists if any check fails.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if req.PublicKey == "" || req.Signature == "" || req.Challenge.Nonce == "" {
		return nil, core.NewValidationError("publicKey, challenge and signature are required")
	}
	if req.Challenge.Action != core.ActionRegister {
		return nil, core.NewInvalidChallenge("challenge action must be register")
	}

	exists, err := s.users.PublicKeyExists(ctx, req.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up public key: %w", err)
	}
	if exists {
		return nil, core.NewUserExists()
	}

	used, err := s.challenges.NonceUsed(ctx, req.Challenge.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to check nonce: %w", err)
	}
	if used {
		return nil, core.NewNonceReused()
	}

	if err := core.Validate(req.Challenge, s.allowedDomains...); err != nil {
		return nil, core.NewChallengeExpired(err.Error())
	}

	if !sign.VerifyChallenge(req.Challenge, req.Signature, req.PublicKey) {
		return nil, core.NewInvalidSignature()
	}

	now := time.Now()
	user, err := s.newUser(req.PublicKey, req.Metadata, now)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ports.ErrAlreadyExists) {
			// Lost a registration race on the same key.
			return nil, core.NewUserExists()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Consume the nonce by persisting the challenge as used.
	challengeID, err := random.ID("chal")
	if err != nil {
		return nil, err
	}
	stored := &core.StoredChallenge{
		ID:        challengeID,
		Challenge: req.Challenge,
		PublicKey: req.PublicKey,
		Used:      true,
		CreatedAt: now,
	}
	if err := s.challenges.Save(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}

	session, tokens, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, func(p ports.EventPublisher) error {
		return p.PublishRegistered(ctx, user.ID, user.Key.ID)
	})

	return &AuthResult{User: user, KeyInfo: user.Key, Session: session, Tokens: tokens}, nil
}

// Verify is the login flow: it resolves the stored challenge, consumes
// its nonce exactly once, and opens a session. Every failure is a typed
// *core.Error.
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (*AuthResult, error) {
	if req.ChallengeID == "" || req.PublicKey == "" || req.Signature == "" || req.Challenge.Nonce == "" {
		return nil, core.NewValidationError("challengeId, challenge, signature and publicKey are required")
	}
	if req.Challenge.Action != core.ActionAuthenticate {
		return nil, core.NewInvalidChallenge("challenge action must be authenticate")
	}

	stored, err := s.challenges.FindByID(ctx, req.ChallengeID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, core.NewChallengeNotFound()
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	// The presented challenge must be the exact one issued under this
	// id, and the requester binding must hold.
	if stored.Challenge != req.Challenge {
		return nil, core.NewInvalidChallenge("challenge does not match the issued challenge")
	}
	if stored.PublicKey != "" && !sign.SecureCompare(stored.PublicKey, req.PublicKey) {
		return nil, core.NewInvalidChallenge("challenge was issued for a different key")
	}

	if stored.Used {
		return nil, core.NewNonceReused()
	}

	// Independent nonce check: catches the same nonce resurfacing under
	// a different challenge id.
	used, err := s.challenges.NonceUsed(ctx, req.Challenge.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to check nonce: %w", err)
	}
	if used {
		return nil, core.NewNonceReused()
	}

	if err := core.Validate(req.Challenge, s.allowedDomains...); err != nil {
		return nil, core.NewChallengeExpired(err.Error())
	}

	user, err := s.users.FindByPublicKey(ctx, req.PublicKey)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, core.NewUserNotFound()
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !sign.VerifyChallenge(req.Challenge, req.Signature, req.PublicKey) {
		return nil, core.NewInvalidSignature()
	}

	// The single authoritative consume step. Exactly one of any racing
	// callers gets true back from the store.
	consumed, err := s.challenges.MarkUsed(ctx, req.ChallengeID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, core.NewChallengeNotFound()
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !consumed {
		return nil, core.NewNonceReused()
	}

	now := time.Now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, req.PublicKey, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now
	user.Key.LastUsed = now

	session, tokens, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, func(p ports.EventPublisher) error {
		return p.PublishLogin(ctx, user.ID, session.ID)
	})

	return &AuthResult{User: user, KeyInfo: user.Key, Session: session, Tokens: tokens}, nil
}

// GetUser looks up a user by id. Absence is returned as (nil, nil),
// never as an error.
func (s *AuthService) GetUser(ctx context.Context, id string) (*core.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// Refresh mints a new token pair for a still-valid session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*core.TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	valid, err := s.sessions.IsValid(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if !valid {
		return nil, core.ErrSessionInvalid
	}

	return s.tokens.Issue(ctx, claims.UserID, claims.PublicKeyID, claims.SessionID)
}

// Logout invalidates the session bound to a refresh token. An expired
// token still revokes its session.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ParseRefresh(ctx, refreshToken)
	if err != nil && !errors.Is(err, core.ErrTokenExpired) {
		return err
	}
	if claims == nil {
		return core.ErrInvalidToken
	}

	if err := s.sessions.Invalidate(ctx, claims.SessionID); err != nil && !errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	s.publish(ctx, func(p ports.EventPublisher) error {
		return p.PublishLogout(ctx, claims.UserID, claims.SessionID)
	})
	return nil
}

// ValidateAccessToken resolves an access token to its claims, requiring
// the bound session to still be valid.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.TokenClaims, error) {
	claims, err := s.tokens.ParseAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	valid, err := s.sessions.IsValid(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if !valid {
		return nil, core.ErrSessionInvalid
	}
	return claims, nil
}

func (s *AuthService) newUser(publicKey string, metadata *core.Metadata, now time.Time) (*core.User, error) {
	userID, err := random.ID("user")
	if err != nil {
		return nil, err
	}
	keyID, err := random.ID("key")
	if err != nil {
		return nil, err
	}

	key := core.PublicKeyInfo{
		ID:        keyID,
		PublicKey: publicKey,
		AddedAt:   now,
		LastUsed:  now,
	}
	if metadata != nil {
		key.DeviceName = metadata.DeviceName
	}

	return &core.User{ID: userID, Key: key, CreatedAt: now}, nil
}

func (s *AuthService) openSession(ctx context.Context, user *core.User) (*core.Session, *core.TokenPair, error) {
	session, err := s.sessions.Create(ctx, user.ID, user.Key.ID, s.sessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	tokens, err := s.tokens.Issue(ctx, user.ID, user.Key.ID, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	return session, tokens, nil
}

// publish is best-effort: a failing publisher never fails the flow.
func (s *AuthService) publish(ctx context.Context, fn func(ports.EventPublisher) error) {
	if s.events == nil {
		return
	}
	if err := fn(s.events); err != nil {
		s.logger.Warn("failed to publish auth event", zap.Error(err))
	}
}
