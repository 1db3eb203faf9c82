package tokenizer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/rangda/core"
)

func signingKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestIssueAndParse(t *testing.T) {
	ctx := context.Background()
	j := NewJWTTokenizer(signingKey(t), "rangda-test", 5*time.Minute, 24*time.Hour)

	pair, err := j.Issue(ctx, "user_1", "key_1", "sess_1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(300), pair.ExpiresIn)

	access, err := j.ParseAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user_1", access.UserID)
	assert.Equal(t, "key_1", access.PublicKeyID)
	assert.Equal(t, "sess_1", access.SessionID)

	refresh, err := j.ParseRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "sess_1", refresh.SessionID)
}

func TestAudienceSeparation(t *testing.T) {
	ctx := context.Background()
	j := NewJWTTokenizer(signingKey(t), "rangda-test", 5*time.Minute, 24*time.Hour)

	pair, err := j.Issue(ctx, "user_1", "key_1", "sess_1")
	require.NoError(t, err)

	// Tokens are not interchangeable across audiences.
	_, err = j.ParseAccess(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = j.ParseRefresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestParseRejectsForeignKey(t *testing.T) {
	ctx := context.Background()
	j := NewJWTTokenizer(signingKey(t), "rangda-test", 5*time.Minute, 24*time.Hour)
	other := NewJWTTokenizer(signingKey(t), "rangda-test", 5*time.Minute, 24*time.Hour)

	pair, err := other.Issue(ctx, "user_1", "key_1", "sess_1")
	require.NoError(t, err)

	_, err = j.ParseAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestParseGarbage(t *testing.T) {
	ctx := context.Background()
	j := NewJWTTokenizer(signingKey(t), "rangda-test", 5*time.Minute, 24*time.Hour)

	_, err := j.ParseAccess(ctx, "not.a.token")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestExpiredRefreshStillYieldsClaims(t *testing.T) {
	ctx := context.Background()
	j := NewJWTTokenizer(signingKey(t), "rangda-test", -time.Minute, -time.Minute)

	pair, err := j.Issue(ctx, "user_1", "key_1", "sess_1")
	require.NoError(t, err)

	claims, err := j.ParseRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	require.NotNil(t, claims, "logout needs the session id from an expired token")
	assert.Equal(t, "sess_1", claims.SessionID)
}
