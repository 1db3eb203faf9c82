// Package random generates nonces, opaque ids and token material from
// the system CSPRNG.
package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NonceSize is the byte length of a challenge nonce.
const NonceSize = 32

const idSuffixSize = 4

// Nonce returns a fresh 32-byte random value, hex encoded.
func Nonce() (string, error) {
	buf := make([]byte, NonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hexutil.Encode(buf), nil
}

// ID returns "{prefix}_{time-derived}{random-suffix}". Uniqueness is
// probabilistic; stores that require it must enforce it themselves.
func ID(prefix string) (string, error) {
	buf := make([]byte, idSuffixSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate id suffix: %w", err)
	}
	return fmt.Sprintf("%s_%s%x", prefix, strconv.FormatInt(time.Now().UnixMilli(), 36), buf), nil
}

// Token returns length CSPRNG bytes, URL-safe encoded. Used for opaque
// secondary tokens, not for challenge nonces.
func Token(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
