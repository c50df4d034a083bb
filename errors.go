package zkauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput is an exported constant or variable used by the authentication engine.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredential is an exported constant or variable used by the authentication engine.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrAccountNotFound is an exported constant or variable used by the authentication engine.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotActive is an exported constant or variable used by the authentication engine.
	ErrAccountNotActive = errors.New("account not active")
	// ErrEmailTaken is an exported constant or variable used by the authentication engine.
	ErrEmailTaken = errors.New("email already registered")
	// ErrCodeInvalid is an exported constant or variable used by the authentication engine.
	ErrCodeInvalid = errors.New("verification code invalid or expired")
	// ErrVerificationTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrVerificationTokenInvalid = errors.New("verification token invalid or expired")
	// ErrChallengeExpired is an exported constant or variable used by the authentication engine.
	ErrChallengeExpired = errors.New("login challenge expired, restart login")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrSessionRevoked is an exported constant or variable used by the authentication engine.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrDeviceNotFound is an exported constant or variable used by the authentication engine.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrCacheUnavailable is an exported constant or variable used by the authentication engine.
	ErrCacheUnavailable = errors.New("challenge cache unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError wraps ErrAccountLocked with the remaining lock duration.
// Permanent reports administrative or self-service terminal locks
// (LOCKED_PERMANENT, SUSPENDED), which carry no retry window.
type LockedError struct {
	RetryAfter time.Duration
	Permanent  bool
}

// Error describes the error operation and its observable behavior.
//
// Error may return an error when input validation, dependency calls, or security checks fail.
// Error does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *LockedError) Error() string {
	if e.Permanent {
		return "account locked"
	}
	return fmt.Sprintf("account temporarily locked, retry after %ds", int(e.RetryAfter.Seconds()))
}

// Unwrap describes the unwrap operation and its observable behavior.
//
// Unwrap may return an error when input validation, dependency calls, or security checks fail.
// Unwrap does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}
