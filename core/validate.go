package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ClockSkewTolerance is how far in the future a challenge timestamp may
// sit before it is rejected.
const ClockSkewTolerance = 30 * time.Second

// Validate checks a challenge against the current wall clock. See
// ValidateAt.
func Validate(challenge Challenge, allowedDomains ...string) error {
	return ValidateAt(challenge, time.Now(), allowedDomains...)
}

// ValidateAt runs the pure expiry, skew and domain checks against the
// given instant. It performs no I/O, never mutates the challenge, and
// is safe to call any number of times. A nil result means the
// challenge is valid. When allowedDomains is empty the domain check is
// skipped.
func ValidateAt(challenge Challenge, now time.Time, allowedDomains ...string) error {
	nowMs := now.UnixMilli()
	if nowMs > challenge.ExpiresAt {
		return fmt.Errorf("challenge expired at %d", challenge.ExpiresAt)
	}
	if challenge.Timestamp > nowMs+ClockSkewTolerance.Milliseconds() {
		return fmt.Errorf("challenge timestamp %d is in the future", challenge.Timestamp)
	}
	if len(allowedDomains) > 0 && !slices.Contains(allowedDomains, challenge.Domain) {
		return fmt.Errorf("domain mismatch: %q is not one of [%s]",
			challenge.Domain, strings.Join(allowedDomains, ", "))
	}
	return nil
}
