package sessionkit

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeNoActiveSession   = "no_active_session"
	TextCodeTokenExpired      = "token_expired"
	TextCodeTokenMalformed    = "token_malformed"
	TextCodeCredentialDenied  = "credential_rejected"
	TextCodeCodeExpired       = "one_time_code_expired"
	TextCodeRefreshFailed     = "session_refresh_failed"
	TextCodeRefreshCeiling    = "session_refresh_ceiling"
	TextCodeInvalidPrincipal  = "invalid_principal"
	TextCodeProfileUnresolved = "profile_unresolved"
)

// ErrNoActiveSession is returned when an operation requires an established
// session and none exists. It never counts against the refresh retry ceiling.
var ErrNoActiveSession = errors.New("no active session", errors.CategoryAuth).
	WithTextCode(TextCodeNoActiveSession).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a credential's expiry claim is in the past.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a credential cannot be decoded.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryBadInput).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeBadRequest)

// ErrCredentialRejected is returned for bad secrets or invalid one-time codes.
// Credential errors are surfaced, never retried automatically.
var ErrCredentialRejected = errors.New("credential rejected", errors.CategoryAuth).
	WithTextCode(TextCodeCredentialDenied).
	WithCode(errors.CodeUnauthorized)

// ErrCodeExpired is returned when a one-time code is no longer redeemable.
var ErrCodeExpired = errors.New("one-time code expired", errors.CategoryAuth).
	WithTextCode(TextCodeCodeExpired).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshCeiling is returned when repeated refresh failures cross the
// configured ceiling and the session is torn down.
var ErrRefreshCeiling = errors.New("session refresh retry ceiling reached", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshCeiling).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidPrincipal is returned when a principal is neither a valid email
// nor a valid E.164 phone number.
var ErrInvalidPrincipal = errors.New("principal must be a valid email or phone number", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidPrincipal).
	WithCode(errors.CodeBadRequest)

// ErrNotificationNotFound is returned when a mutation targets a record the
// local mirror does not hold.
var ErrNotificationNotFound = errors.New("notification not found", errors.CategoryNotFound).
	WithTextCode("notification_not_found").
	WithCode(errors.CodeNotFound)

// ErrProfileUnresolved is returned when an identity has no numeric profile id.
var ErrProfileUnresolved = errors.New("unable to resolve profile id", errors.CategoryNotFound).
	WithTextCode(TextCodeProfileUnresolved).
	WithCode(errors.CodeNotFound)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTokenExpired) || strings.Contains(err.Error(), "token is expired")
}

// IsCredentialError reports whether err is a credential rejection that should
// be surfaced to the caller rather than retried.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCredentialRejected) || errors.Is(err, ErrCodeExpired)
}

// IsNoSessionError reports whether err means the session is simply absent.
func IsNoSessionError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNoActiveSession)
}

// wrapPlatformErr normalizes a platform failure at its call site so raw
// transport errors never cross the package boundary.
func wrapPlatformErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return errors.Wrap(err, errors.CategoryOperation, "platform "+op+" failed")
}
