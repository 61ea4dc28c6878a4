package application

import (
	"errors"
	"fmt"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
	"github.com/oksasatya/realtime-task-client/pkg/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrStaleHydration     = errors.New("hydration superseded")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrPayloadMismatch    = errors.New("payload does not belong to channel")
)

// AuthError means the session is gone: bad credentials, a 401 from the
// backend, or an expired token. It is never retried.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s: auth error: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// ParseError is a push frame that could not be turned into an event.
type ParseError struct {
	Channel entity.Channel
	Type    string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: parse frame: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("%s: parse %q frame: %v", e.Channel, e.Type, e.Err)
}
func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError is a local input error; no network call was made.
type ValidationError struct {
	Fields map[string]string
	Err    error
}

func newValidationError(err error) *ValidationError {
	return &ValidationError{Fields: validation.ToDetails(err), Err: err}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %v", e.Fields)
}
func (e *ValidationError) Unwrap() error { return e.Err }

// IsAuthError reports whether err means the session is no longer valid.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) || errors.Is(err, repository.ErrUnauthorized)
}

// IsNetworkError reports a transient transport failure.
func IsNetworkError(err error) bool {
	return repository.IsNetwork(err)
}

// IsParseError reports a dropped push frame.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsValidationError reports a local validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
