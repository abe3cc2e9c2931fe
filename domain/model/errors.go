package model

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorKindValidation       ErrorKind = "ValidationError"
	ErrorKindAuth             ErrorKind = "AuthError"
	ErrorKindTransientNetwork ErrorKind = "TransientNetworkError"
	ErrorKindPlatformRejected ErrorKind = "PlatformRejected"
	ErrorKindTimeout          ErrorKind = "Timeout"
)

// AuthError reasons.
const (
	AuthReasonMissing              = "missing"
	AuthReasonExpiredUnrefreshable = "expired_unrefreshable"
	AuthReasonRevoked              = "revoked"
	AuthReasonInvalidated          = "invalidated"
)

// PublishError carries the classification used for retry and invalidation decisions.
type PublishError struct {
	Kind     ErrorKind
	Platform PlatformID
	Reason   string
	Err      error
}

func (e *PublishError) Error() string {
	msg := string(e.Kind)
	if e.Platform != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Platform)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() error { return e.Err }

// Is matches any *PublishError target with the same Kind (and Reason, when set).
func (e *PublishError) Is(target error) bool {
	t, ok := target.(*PublishError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Targets for errors.Is.
var (
	ErrValidation       = &PublishError{Kind: ErrorKindValidation}
	ErrAuth             = &PublishError{Kind: ErrorKindAuth}
	ErrTransientNetwork = &PublishError{Kind: ErrorKindTransientNetwork}
	ErrPlatformRejected = &PublishError{Kind: ErrorKindPlatformRejected}
	ErrTimeout          = &PublishError{Kind: ErrorKindTimeout}
)

func NewValidationError(p PlatformID, reason string) *PublishError {
	return &PublishError{Kind: ErrorKindValidation, Platform: p, Reason: reason}
}

func NewAuthError(p PlatformID, reason string, err error) *PublishError {
	return &PublishError{Kind: ErrorKindAuth, Platform: p, Reason: reason, Err: err}
}

func NewTransientError(p PlatformID, err error) *PublishError {
	return &PublishError{Kind: ErrorKindTransientNetwork, Platform: p, Err: err}
}

func NewRejectedError(p PlatformID, reason string, err error) *PublishError {
	return &PublishError{Kind: ErrorKindPlatformRejected, Platform: p, Reason: reason, Err: err}
}

func NewTimeoutError(p PlatformID, err error) *PublishError {
	return &PublishError{Kind: ErrorKindTimeout, Platform: p, Err: err}
}

// KindOf classifies err. Unclassified errors are treated as permanent rejections
// so they are never retried.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	return ErrorKindPlatformRejected
}

func IsRetryable(err error) bool {
	return KindOf(err) == ErrorKindTransientNetwork
}

// AuthReason returns the reason of an AuthError, or "" for other errors.
func AuthReason(err error) string {
	var pe *PublishError
	if errors.As(err, &pe) && pe.Kind == ErrorKindAuth {
		return pe.Reason
	}
	return ""
}
