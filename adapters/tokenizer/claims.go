package tokenizer

import "github.com/golang-jwt/jwt/v5"

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// SessionClaims combines standard claims with the identity triple every
// issued token is keyed by.
type SessionClaims struct {
	jwt.RegisteredClaims
	PublicKeyID string `json:"pkid"`
	SessionID   string `json:"sid"`
}
