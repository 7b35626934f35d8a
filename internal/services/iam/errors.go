package iam

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrorKind classifies an IAM failure. The HTTP layer maps each kind to a
// status code in one place.
type ErrorKind string

const (
	KindUnauthenticated  ErrorKind = "unauthenticated"
	KindEmailNotVerified ErrorKind = "email_not_verified"
	KindForbidden        ErrorKind = "forbidden"
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindValidation       ErrorKind = "validation"
	KindInvalidToken     ErrorKind = "invalid_token"
	KindTokenExpired     ErrorKind = "token_expired"
	KindRateLimited      ErrorKind = "rate_limited"
)

// Machine-readable codes carried in error envelopes.
const (
	CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
	CodeGuestRestricted  = "GUEST_RESTRICTED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeRateLimited      = "RATE_LIMITED"
)

// Error is the error type returned by Service methods for expected failures.
// Anything else returned by the service is an infrastructure error.
type Error struct {
	Kind    ErrorKind
	Message string
	Code    string

	// Fields holds extra machine-readable body fields, for example
	// "unknown_permissions" or "errors".
	Fields map[string]any

	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1.
func (e *Error) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func EmailNotVerified() *Error {
	return &Error{
		Kind:    KindEmailNotVerified,
		Message: "email address has not been verified",
		Code:    CodeEmailNotVerified,
	}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// GuestRestricted is the Forbidden variant returned to guest sessions.
func GuestRestricted() *Error {
	return &Error{
		Kind:    KindForbidden,
		Message: "this action requires a registered account",
		Code:    CodeGuestRestricted,
	}
}

// MissingPermissions is the Forbidden variant for a failed permission gate.
func MissingPermissions(missing []string) *Error {
	return &Error{
		Kind:    KindForbidden,
		Message: "insufficient permissions",
		Fields:  map[string]any{"missing_permissions": missing},
	}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Validation reports malformed input. fieldErrors maps field name to problem
// and may be nil.
func Validation(message string, fieldErrors map[string]string) *Error {
	e := &Error{Kind: KindValidation, Message: message}
	if len(fieldErrors) > 0 {
		e.Fields = map[string]any{"errors": fieldErrors}
	}
	return e
}

// UnknownPermissions is the Validation variant naming slugs absent from the catalog.
func UnknownPermissions(slugs []string) *Error {
	sorted := append([]string(nil), slugs...)
	sort.Strings(sorted)
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("unknown permissions: %v", sorted),
		Fields:  map[string]any{"unknown_permissions": sorted},
	}
}

func InvalidToken(message string) *Error {
	return &Error{Kind: KindInvalidToken, Message: message, Code: CodeInvalidToken}
}

func TokenExpired(message string) *Error {
	return &Error{Kind: KindTokenExpired, Message: message, Code: CodeTokenExpired}
}

// RateLimited reports an active login lockout.
func RateLimited(retryAfter time.Duration) *Error {
	e := &Error{
		Kind:       KindRateLimited,
		Message:    "too many failed login attempts, try again later",
		Code:       CodeRateLimited,
		RetryAfter: retryAfter,
	}
	e.Fields = map[string]any{"lockoutRemaining": e.RetryAfterSeconds()}
	return e
}
