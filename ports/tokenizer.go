package ports

import (
	"context"

	"github.com/layer-3/rangda/core"
)

// TokenIssuer mints and parses the opaque token pair for an
// authenticated session. The pair's contents are opaque to the core.
type TokenIssuer interface {
	// Issue mints a token pair bound to (userID, publicKeyID, sessionID).
	Issue(ctx context.Context, userID, publicKeyID, sessionID string) (*core.TokenPair, error)

	// ParseAccess validates an access token and returns its claims.
	ParseAccess(ctx context.Context, token string) (*core.TokenClaims, error)

	// ParseRefresh validates a refresh token. On an expired but
	// otherwise well-formed token it returns the claims together with
	// core.ErrTokenExpired, so logout can still revoke the session.
	ParseRefresh(ctx context.Context, token string) (*core.TokenClaims, error)
}
