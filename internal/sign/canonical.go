// Package sign implements the canonical challenge encoding and Ed25519
// signature verification over it.
package sign

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/layer-3/rangda/core"
)

// Canonicalize renders the five signable fields of a challenge as
// compact JSON with keys in fixed lexicographic order: action, domain,
// expiresAt, nonce, timestamp. Timestamps are plain integers. Two
// implementations that canonicalize differently will reject every
// legitimately signed challenge from the other, so this layout is
// byte-for-byte part of the protocol.
func Canonicalize(challenge core.Challenge) []byte {
	var b bytes.Buffer
	b.WriteString(`{"action":`)
	b.Write(jsonString(string(challenge.Action)))
	b.WriteString(`,"domain":`)
	b.Write(jsonString(challenge.Domain))
	b.WriteString(`,"expiresAt":`)
	b.WriteString(strconv.FormatInt(challenge.ExpiresAt, 10))
	b.WriteString(`,"nonce":`)
	b.Write(jsonString(challenge.Nonce))
	b.WriteString(`,"timestamp":`)
	b.WriteString(strconv.FormatInt(challenge.Timestamp, 10))
	b.WriteByte('}')
	return b.Bytes()
}

func jsonString(s string) []byte {
	// Cannot fail for a string input.
	out, _ := json.Marshal(s)
	return out
}
