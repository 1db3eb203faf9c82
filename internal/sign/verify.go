package sign

import (
	"crypto/ed25519"
	"crypto/subtle"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/layer-3/rangda/core"
)

const (
	// PublicKeySize is the required decoded public key length.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the required decoded signature length.
	SignatureSize = ed25519.SignatureSize
)

// Verify checks an Ed25519 signature over message. The signature and
// public key are hex encoded; any decode failure or length other than
// exactly 64/32 bytes is a reject before the primitive runs.
// Verification never fails open and never panics.
func Verify(signature string, message []byte, publicKey string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false
	}
	key, err := hexutil.Decode(publicKey)
	if err != nil {
		return false
	}
	if len(key) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key), message, sig)
}

// VerifyChallenge checks a signature over the canonical encoding of a
// challenge.
func VerifyChallenge(challenge core.Challenge, signature, publicKey string) bool {
	return Verify(signature, Canonicalize(challenge), publicKey)
}

// SecureCompare reports whether a equals b without leaking where the
// first difference sits. Length mismatch returns false immediately;
// equal-length inputs are always compared in full.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
