package tokenizer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/layer-3/rangda/core"
)

// JWTTokenizer implements ports.TokenIssuer with ES256-signed JWTs.
// The minted pair is opaque to the orchestrator.
type JWTTokenizer struct {
	signKey    *ecdsa.PrivateKey
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTTokenizer creates a new JWT tokenizer.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, issuer string, accessTTL, refreshTTL time.Duration) *JWTTokenizer {
	return &JWTTokenizer{
		signKey:    signKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue mints an access/refresh pair bound to (userID, publicKeyID,
// sessionID).
func (j *JWTTokenizer) Issue(ctx context.Context, userID, publicKeyID, sessionID string) (*core.TokenPair, error) {
	now := time.Now()

	accessToken, err := j.sign(userID, publicKeyID, sessionID, AudienceAccess, now, now.Add(j.accessTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := j.sign(userID, publicKeyID, sessionID, AudienceRefresh, now, now.Add(j.refreshTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &core.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(j.accessTTL.Seconds()),
	}, nil
}

// ParseAccess validates an access token and returns its claims.
func (j *JWTTokenizer) ParseAccess(ctx context.Context, tokenStr string) (*core.TokenClaims, error) {
	claims, err := j.parse(tokenStr, AudienceAccess)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh validates a refresh token. An expired but otherwise
// well-formed token yields its claims together with
// core.ErrTokenExpired so the caller can still revoke the session.
func (j *JWTTokenizer) ParseRefresh(ctx context.Context, tokenStr string) (*core.TokenClaims, error) {
	return j.parse(tokenStr, AudienceRefresh)
}

func (j *JWTTokenizer) sign(userID, publicKeyID, sessionID, audience string, issuedAt, expiresAt time.Time) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			Issuer:    j.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Audience:  jwt.ClaimStrings{audience},
		},
		PublicKeyID: publicKeyID,
		SessionID:   sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(j.signKey)
}

func (j *JWTTokenizer) parse(tokenStr, audience string) (*core.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(audience), jwt.WithIssuer(j.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && token != nil {
			if claims, ok := token.Claims.(*SessionClaims); ok {
				return tokenClaims(claims), core.ErrTokenExpired
			}
		}
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, core.ErrInvalidToken
	}
	return tokenClaims(claims), nil
}

func tokenClaims(claims *SessionClaims) *core.TokenClaims {
	out := &core.TokenClaims{
		UserID:      claims.Subject,
		PublicKeyID: claims.PublicKeyID,
		SessionID:   claims.SessionID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}
