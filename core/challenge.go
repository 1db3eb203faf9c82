package core

import "time"

// Action discriminates what a signed challenge authorizes.
type Action string

const (
	ActionRegister     Action = "register"
	ActionAuthenticate Action = "authenticate"
)

// Valid reports whether the action is one of the two protocol actions.
func (a Action) Valid() bool {
	return a == ActionRegister || a == ActionAuthenticate
}

// Challenge carries the five signable fields of an authentication
// challenge. It is immutable after issuance; the client signs an exact
// copy of these fields, canonicalized by the sign package.
type Challenge struct {
	Nonce     string `json:"nonce"`     // single-use random value
	Timestamp int64  `json:"timestamp"` // issue time, unix milliseconds
	Domain    string `json:"domain"`    // issuer identity
	Action    Action `json:"action"`
	ExpiresAt int64  `json:"expiresAt"` // absolute deadline, unix milliseconds
}

// StoredChallenge is a Challenge at rest, owned by the ChallengeStore.
// Used transitions false -> true exactly once and never back.
type StoredChallenge struct {
	ID        string    `json:"id"`
	Challenge Challenge `json:"challenge"`
	PublicKey string    `json:"publicKey,omitempty"` // requester binding, when known
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"createdAt"`
}
