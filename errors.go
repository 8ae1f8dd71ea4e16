package authcore

import (
	"errors"

	"github.com/altavault/authcore/secrets"
)

// Kind is the transport-agnostic error taxonomy callers branch on. The
// engine never leaks *why* an operation failed across the Unauthorized
// boundary; the specific reason is logged server-side only.
type Kind uint8

const (
	// KindUnauthorized covers bad credentials, invalid/expired/blacklisted/
	// revoked tokens, and CSRF failures.
	KindUnauthorized Kind = iota + 1
	// KindValidation covers malformed input shape, e.g. a policy-rejected
	// new password.
	KindValidation
	// KindNotFound covers absent reset/verification tokens.
	KindNotFound
	// KindConflict covers state conflicts, e.g. verifying an already
	// verified email.
	KindConflict
	// KindRateLimited is reserved for the upstream limiting middleware;
	// this core never produces it itself.
	KindRateLimited
	// KindInternal covers storage and codec failures.
	KindInternal
)

var (
	// ErrUnauthorized is the single generic failure for login, refresh and
	// token verification. It deliberately does not distinguish "no such
	// user" from "wrong password" from "revoked token".
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTwoFactorRequired is returned when an operation needs a second
	// factor that was not supplied.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrInvalidCode is the generic failure for any two-factor mismatch.
	// It never reveals whether the code was a wrong time step, a wrong
	// secret, or a spent backup code.
	ErrInvalidCode = errors.New("invalid two-factor code")
	// ErrInvalidPassword is returned by step-up checks that re-verify the
	// account password (two-factor setup and disable).
	ErrInvalidPassword = errors.New("invalid password")
	// ErrNoPendingSecret is returned by EnableTwoFactor before
	// SetupTwoFactor has generated a secret.
	ErrNoPendingSecret = errors.New("no pending two-factor secret")
	// ErrTwoFactorNotEnabled is returned by operations that require an
	// enabled enrollment.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorAlreadyEnabled is returned by EnableTwoFactor when the
	// enrollment is already active.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTokenNotFound is returned for an absent or already consumed
	// reset/verification token.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired is returned when expiry is detected before the
	// store's TTL eviction has run.
	ErrTokenExpired = errors.New("token expired")
	// ErrAlreadyVerified is returned when confirming an email that has
	// already been verified.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrPrincipalNotFound is returned by Directory implementations.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrValidation is returned for malformed input shape.
	ErrValidation = errors.New("invalid input")
	// ErrInternal wraps storage and codec failures, including a
	// transaction that conflicted twice.
	ErrInternal = errors.New("internal failure")
)

// Classify collapses any error produced by the engine into its Kind.
// Unknown errors classify as KindInternal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTwoFactorRequired),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrInvalidPassword):
		return KindUnauthorized
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrPrincipalNotFound),
		errors.Is(err, secrets.ErrNotFound),
		errors.Is(err, secrets.ErrExpired):
		return KindNotFound
	case errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, ErrNoPendingSecret),
		errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return KindConflict
	default:
		return KindInternal
	}
}
