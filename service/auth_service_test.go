package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/layer-3/rangda/adapters/store"
	"github.com/layer-3/rangda/adapters/tokenizer"
	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/internal/sign"
)

type harness struct {
	svc        *AuthService
	users      *store.MemoryUserStore
	challenges *store.MemoryChallengeStore
	sessions   *store.MemorySessionStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	users := store.NewMemoryUserStore()
	challenges := store.NewMemoryChallengeStore()
	sessions := store.NewMemorySessionStore()
	issuer := tokenizer.NewJWTTokenizer(key, "rangda-test", 5*time.Minute, 24*time.Hour)

	svc := NewAuthService(users, challenges, sessions, issuer, nil, zap.NewNop(), Config{
		Domain: "example.com",
	})
	return &harness{svc: svc, users: users, challenges: challenges, sessions: sessions}
}

func keypair(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return hexutil.Encode(pub), priv
}

func signChallenge(priv ed25519.PrivateKey, challenge core.Challenge) string {
	return hexutil.Encode(ed25519.Sign(priv, sign.Canonicalize(challenge)))
}

func requireAuthCode(t *testing.T, err error, code core.Code) {
	t.Helper()
	var authErr *core.Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, code, authErr.Code)
}

// registerUser runs the full register flow and returns the outcome.
func registerUser(t *testing.T, h *harness, pub string, priv ed25519.PrivateKey) *AuthResult {
	t.Helper()
	ctx := context.Background()

	res, err := h.svc.CreateChallenge(ctx, ChallengeRequest{PublicKey: pub, Action: core.ActionRegister})
	require.NoError(t, err)
	require.True(t, res.OK)

	result, err := h.svc.Register(ctx, RegisterRequest{
		PublicKey: pub,
		Challenge: *res.Challenge,
		Signature: signChallenge(priv, *res.Challenge),
		Metadata:  &core.Metadata{DeviceName: "test device"},
	})
	require.NoError(t, err)
	return result
}

func TestCreateChallengeValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, req := range []ChallengeRequest{
		{},
		{PublicKey: "0xaa"},
		{PublicKey: "0xaa", Action: "impersonate"},
		{Action: core.ActionRegister},
	} {
		res, err := h.svc.CreateChallenge(ctx, req)
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, core.CodeValidationError, res.Code)
	}
}

func TestCreateChallengeUnknownUser(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.CreateChallenge(context.Background(), ChallengeRequest{
		PublicKey: "0xaa",
		Action:    core.ActionAuthenticate,
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, core.CodeUserNotFound, res.Code)
	assert.Equal(t, "register", res.Hint)
}

func TestCreateChallengeExistingUser(t *testing.T) {
	h := newHarness(t)
	pub, priv := keypair(t)
	registerUser(t, h, pub, priv)

	res, err := h.svc.CreateChallenge(context.Background(), ChallengeRequest{
		PublicKey: pub,
		Action:    core.ActionRegister,
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, core.CodeUserExists, res.Code)
	assert.Equal(t, "authenticate", res.Hint)
}

func TestCreateChallengeIssued(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.CreateChallenge(context.Background(), ChallengeRequest{
		PublicKey: "0xaa",
		Action:    core.ActionRegister,
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.NotNil(t, res.Challenge)
	assert.NotEmpty(t, res.ChallengeID)
	assert.Equal(t, "example.com", res.Challenge.Domain)
	assert.Equal(t, core.ActionRegister, res.Challenge.Action)
	assert.Greater(t, res.Challenge.ExpiresAt, res.Challenge.Timestamp)
	assert.NotEmpty(t, res.Challenge.Nonce)
}

func TestRegisterEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)

	res, err := h.svc.CreateChallenge(ctx, ChallengeRequest{PublicKey: pub, Action: core.ActionRegister})
	require.NoError(t, err)
	require.True(t, res.OK)

	req := RegisterRequest{
		PublicKey: pub,
		Challenge: *res.Challenge,
		Signature: signChallenge(priv, *res.Challenge),
		Metadata:  &core.Metadata{DeviceName: "laptop"},
	}

	result, err := h.svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, pub, result.User.Key.PublicKey)
	assert.Equal(t, "laptop", result.KeyInfo.DeviceName)
	assert.Equal(t, result.User.ID, result.Session.UserID)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)

	// Replaying the same signed challenge must fail.
	_, err = h.svc.Register(ctx, req)
	requireAuthCode(t, err, core.CodeNonceReused)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Register(ctx, RegisterRequest{})
	requireAuthCode(t, err, core.CodeValidationError)

	_, err = h.svc.Register(ctx, RegisterRequest{
		PublicKey: "0xaa",
		Challenge: core.Challenge{Nonce: "0x01", Action: core.ActionAuthenticate},
		Signature: "0xdead",
	})
	requireAuthCode(t, err, core.CodeInvalidChallenge)
}

func TestRegisterRejectionsLeaveNoState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)

	now := time.Now()
	expired := core.Challenge{
		Nonce:     "0x0e",
		Timestamp: now.Add(-10 * time.Minute).UnixMilli(),
		Domain:    "example.com",
		Action:    core.ActionRegister,
		ExpiresAt: now.Add(-5 * time.Minute).UnixMilli(),
	}

	_, err := h.svc.Register(ctx, RegisterRequest{
		PublicKey: pub,
		Challenge: expired,
		Signature: signChallenge(priv, expired),
	})
	requireAuthCode(t, err, core.CodeChallengeExpired)

	// No partial state on rejection.
	exists, err := h.users.PublicKeyExists(ctx, pub)
	require.NoError(t, err)
	assert.False(t, exists)

	used, err := h.challenges.NonceUsed(ctx, expired.Nonce)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestRegisterDomainMismatch(t *testing.T) {
	h := newHarness(t)
	pub, priv := keypair(t)

	now := time.Now()
	foreign := core.Challenge{
		Nonce:     "0x0d",
		Timestamp: now.UnixMilli(),
		Domain:    "evil.com",
		Action:    core.ActionRegister,
		ExpiresAt: now.Add(5 * time.Minute).UnixMilli(),
	}

	_, err := h.svc.Register(context.Background(), RegisterRequest{
		PublicKey: pub,
		Challenge: foreign,
		Signature: signChallenge(priv, foreign),
	})
	requireAuthCode(t, err, core.CodeChallengeExpired)
	assert.Contains(t, err.Error(), "domain mismatch")
}

func TestRegisterInvalidSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, _ := keypair(t)
	_, otherPriv := keypair(t)

	res, err := h.svc.CreateChallenge(ctx, ChallengeRequest{PublicKey: pub, Action: core.ActionRegister})
	require.NoError(t, err)
	require.True(t, res.OK)

	_, err = h.svc.Register(ctx, RegisterRequest{
		PublicKey: pub,
		Challenge: *res.Challenge,
		Signature: signChallenge(otherPriv, *res.Challenge),
	})
	requireAuthCode(t, err, core.CodeInvalidSignature)
}

func TestRegisterExistingKey(t *testing.T) {
	h := newHarness(t)
	pub, priv := keypair(t)
	registerUser(t, h, pub, priv)

	now := time.Now()
	challenge := core.Challenge{
		Nonce:     "0x0f",
		Timestamp: now.UnixMilli(),
		Domain:    "example.com",
		Action:    core.ActionRegister,
		ExpiresAt: now.Add(5 * time.Minute).UnixMilli(),
	}

	_, err := h.svc.Register(context.Background(), RegisterRequest{
		PublicKey: pub,
		Challenge: challenge,
		Signature: signChallenge(priv, challenge),
	})
	requireAuthCode(t, err, core.CodeUserExists)
}

func TestVerifyEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)
	registerUser(t, h, pub, priv)

	res, err := h.svc.CreateChallenge(ctx, ChallengeRequest{PublicKey: pub, Action: core.ActionAuthenticate})
	require.NoError(t, err)
	require.True(t, res.OK)

	req := VerifyRequest{
		ChallengeID: res.ChallengeID,
		Challenge:   *res.Challenge,
		Signature:   signChallenge(priv, *res.Challenge),
		PublicKey:   pub,
	}

	result, err := h.svc.Verify(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result.User.LastLogin)
	assert.Equal(t, result.User.ID, result.Session.UserID)
	assert.NotEmpty(t, result.Tokens.AccessToken)

	stored, err := h.challenges.FindByID(ctx, res.ChallengeID)
	require.NoError(t, err)
	assert.True(t, stored.Used)

	// Second verification with the same challenge id must fail.
	_, err = h.svc.Verify(ctx, req)
	requireAuthCode(t, err, core.CodeNonceReused)
}

func TestVerifyChallengeNotFound(t *testing.T) {
	h := newHarness(t)
	pub, priv := keypair(t)
	registerUser(t, h, pub, priv)

	now := time.Now()
	challenge := core.Challenge{
		Nonce:     "0x10",
		Timestamp: now.UnixMilli(),
		Domain:    "example.com",
		Action:    core.ActionAuthenticate,
		ExpiresAt: now.Add(5 * time.Minute).UnixMilli(),
	}

	_, err := h.svc.Verify(context.Background(), VerifyRequest{
		ChallengeID: "chal_missing",
		Challenge:   challenge,
		Signature:   signChallenge(priv, challenge),
		PublicKey:   pub,
	})
	requireAuthCode(t, err, core.CodeChallengeNotFound)
}

func TestVerifyMismatchedChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)
	registerUser(t, h, pub, priv)

	res, err := h.svc.CreateChallenge(ctx, ChallengeRequest{PublicKey: pub, Action: core.ActionAuthenticate})
	require.NoError(t, err)
	require.True(t, res.OK)

	tampered := *res.Challenge
	tampered.ExpiresAt += 60_000

	_, err = h.svc.Verify(ctx, VerifyRequest{
		ChallengeID: res.ChallengeID,
		Challenge:   tampered,
		Signature:   signChallenge(priv, tampered),
		PublicKey:   pub,
	})
	requireAuthCode(t, err, core.CodeInvalidChallenge)
}

func TestVerifyBindingMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)
	otherPub, otherPriv := keypair(t)
	registerUser(t, h, pub, priv)
	registerUser(t, h, otherPub, otherPriv)

	res, err := h.svc.CreateChallenge(ctx, ChallengeRequest{PublicKey: pub, Action: core.ActionAuthenticate})
	require.NoError(t, err)
	require.True(t, res.OK)

	// A different key presenting a challenge issued to someone else.
	_, err = h.svc.Verify(ctx, VerifyRequest{
		ChallengeID: res.ChallengeID,
		Challenge:   *res.Challenge,
		Signature:   signChallenge(otherPriv, *res.Challenge),
		PublicKey:   otherPub,
	})
	requireAuthCode(t, err, core.CodeInvalidChallenge)
}

func TestVerifyNonceSharedAcrossIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)
	registerUser(t, h, pub, priv)

	now := time.Now()
	challenge := core.Challenge{
		Nonce:     "0x11",
		Timestamp: now.UnixMilli(),
		Domain:    "example.com",
		Action:    core.ActionAuthenticate,
		ExpiresAt: now.Add(5 * time.Minute).UnixMilli(),
	}

	// The same nonce was already consumed under a different id.
	require.NoError(t, h.challenges.Save(ctx, &core.StoredChallenge{
		ID:        "chal_spent",
		Challenge: challenge,
		Used:      true,
		CreatedAt: now,
	}))
	require.NoError(t, h.challenges.Save(ctx, &core.StoredChallenge{
		ID:        "chal_fresh",
		Challenge: challenge,
		PublicKey: pub,
		CreatedAt: now,
	}))

	_, err := h.svc.Verify(ctx, VerifyRequest{
		ChallengeID: "chal_fresh",
		Challenge:   challenge,
		Signature:   signChallenge(priv, challenge),
		PublicKey:   pub,
	})
	requireAuthCode(t, err, core.CodeNonceReused)
}

func TestVerifyUserNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)

	now := time.Now()
	challenge := core.Challenge{
		Nonce:     "0x12",
		Timestamp: now.UnixMilli(),
		Domain:    "example.com",
		Action:    core.ActionAuthenticate,
		ExpiresAt: now.Add(5 * time.Minute).UnixMilli(),
	}
	require.NoError(t, h.challenges.Save(ctx, &core.StoredChallenge{
		ID:        "chal_orphan",
		Challenge: challenge,
		PublicKey: pub,
		CreatedAt: now,
	}))

	_, err := h.svc.Verify(ctx, VerifyRequest{
		ChallengeID: "chal_orphan",
		Challenge:   challenge,
		Signature:   signChallenge(priv, challenge),
		PublicKey:   pub,
	})
	requireAuthCode(t, err, core.CodeUserNotFound)
}

func TestGetUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)
	registered := registerUser(t, h, pub, priv)

	user, err := h.svc.GetUser(ctx, registered.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, pub, user.Key.PublicKey)

	// Absence is a value, not an error.
	user, err = h.svc.GetUser(ctx, "user_missing")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRefreshAndLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pub, priv := keypair(t)
	result := registerUser(t, h, pub, priv)

	pair, err := h.svc.Refresh(ctx, result.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	claims, err := h.svc.ValidateAccessToken(ctx, result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)

	require.NoError(t, h.svc.Logout(ctx, result.Tokens.RefreshToken))

	_, err = h.svc.Refresh(ctx, result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, core.ErrSessionInvalid)

	_, err = h.svc.ValidateAccessToken(ctx, result.Tokens.AccessToken)
	assert.ErrorIs(t, err, core.ErrSessionInvalid)
}
