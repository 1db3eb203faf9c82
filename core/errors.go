package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the token/session supplement flows.
var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionInvalid = errors.New("session is invalid")
)

// Code is a machine-readable protocol error code. The string values are
// part of the wire contract and must not change.
type Code string

const (
	CodeValidationError   Code = "VALIDATION_ERROR"
	CodeInvalidChallenge  Code = "INVALID_CHALLENGE"
	CodeChallengeExpired  Code = "CHALLENGE_EXPIRED"
	CodeChallengeNotFound Code = "CHALLENGE_NOT_FOUND"
	CodeNonceReused       Code = "NONCE_REUSED"
	CodeUserExists        Code = "USER_EXISTS"
	CodeUserNotFound      Code = "USER_NOT_FOUND"
	CodeInvalidSignature  Code = "INVALID_SIGNATURE"
)

// StatusFor maps a protocol code to its suggested transport status.
func StatusFor(code Code) int {
	switch code {
	case CodeValidationError, CodeInvalidChallenge:
		return http.StatusBadRequest
	case CodeChallengeExpired, CodeNonceReused, CodeInvalidSignature:
		return http.StatusUnauthorized
	case CodeChallengeNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeUserExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a terminal protocol violation raised by the register and
// verify flows. Hint, when set, names the flow the client should try
// instead.
type Error struct {
	Code    Code
	Message string
	Status  int
	Hint    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, message, hint string) *Error {
	return &Error{Code: code, Message: message, Status: StatusFor(code), Hint: hint}
}

func NewValidationError(message string) *Error {
	return newError(CodeValidationError, message, "")
}

func NewInvalidChallenge(message string) *Error {
	return newError(CodeInvalidChallenge, message, "")
}

// NewChallengeExpired carries the validator's specific reason text.
func NewChallengeExpired(reason string) *Error {
	return newError(CodeChallengeExpired, reason, "")
}

func NewChallengeNotFound() *Error {
	return newError(CodeChallengeNotFound, "challenge not found", "")
}

func NewNonceReused() *Error {
	return newError(CodeNonceReused, "challenge has already been used", "")
}

func NewUserExists() *Error {
	return newError(CodeUserExists, "a user already exists for this public key", "authenticate")
}

func NewUserNotFound() *Error {
	return newError(CodeUserNotFound, "no user found for this public key", "register")
}

func NewInvalidSignature() *Error {
	return newError(CodeInvalidSignature, "signature verification failed", "")
}
