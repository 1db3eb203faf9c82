package core

// ChallengeResult is the discriminated outcome of challenge creation.
// Both branches are expected client-facing outcomes, so they travel as
// a value rather than an error: the caller must branch on OK (for
// example to redirect an unknown user to registration).
type ChallengeResult struct {
	OK          bool       `json:"ok"`
	Challenge   *Challenge `json:"challenge,omitempty"`
	ChallengeID string     `json:"challengeId,omitempty"`
	Code        Code       `json:"code,omitempty"`
	Message     string     `json:"message,omitempty"`
	Hint        string     `json:"hint,omitempty"`
}

// ChallengeIssued builds the success branch.
func ChallengeIssued(challenge Challenge, challengeID string) ChallengeResult {
	return ChallengeResult{OK: true, Challenge: &challenge, ChallengeID: challengeID}
}

// ChallengeRejected builds the failure branch.
func ChallengeRejected(code Code, message, hint string) ChallengeResult {
	return ChallengeResult{OK: false, Code: code, Message: message, Hint: hint}
}
