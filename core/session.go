package core

import "time"

// Session represents an authenticated period tied to one user and one key.
// Validity is computed from Invalidated and ExpiresAt by the session
// store, never cached here.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	PublicKeyID string    `json:"publicKeyId"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Invalidated bool      `json:"invalidated"`
}

// TokenPair is the opaque credential pair minted by the token issuer.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
}

// TokenClaims is the identity a parsed token resolves to.
type TokenClaims struct {
	UserID      string
	PublicKeyID string
	SessionID   string
	ExpiresAt   time.Time
}
