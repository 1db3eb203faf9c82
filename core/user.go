package core

import "time"

// PublicKeyInfo describes the single key registered for a user.
type PublicKeyInfo struct {
	ID         string    `json:"id"`
	PublicKey  string    `json:"publicKey"` // hex-encoded Ed25519 key
	DeviceName string    `json:"deviceName,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
	LastUsed   time.Time `json:"lastUsed"`
}

// Metadata carries optional client-supplied details captured at registration.
type Metadata struct {
	DeviceName string `json:"deviceName,omitempty"`
}

// User is an account bound to exactly one public key.
type User struct {
	ID        string        `json:"id"`
	Key       PublicKeyInfo `json:"key"`
	CreatedAt time.Time     `json:"createdAt"`
	LastLogin *time.Time    `json:"lastLogin,omitempty"`
}
