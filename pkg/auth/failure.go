package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthKey marks credential-level errors from the source platform
	// (unregistered, invalid or duplicated session keys).
	ErrAuthKey = errors.New("session key rejected")
	// ErrPasswordInvalid marks a rejected two-factor password.
	ErrPasswordInvalid = errors.New("two-factor password invalid")
	// ErrPasswordRequired is returned when two-factor is enabled but no
	// password was supplied.
	ErrPasswordRequired = errors.New("two-factor password required")
	// ErrNotAuthorized is returned when the platform still reports the
	// session as unauthorized after a completed handshake.
	ErrNotAuthorized = errors.New("session not authorized after login")
)

type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureAuth
	FailurePassword
	FailureTimeout
	FailureValidation
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth"
	case FailurePassword:
		return "password"
	case FailureTimeout:
		return "timeout"
	case FailureValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Failure is the terminal error of a login attempt.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("login failed (%s)", f.Kind)
	}
	return fmt.Sprintf("login failed (%s): %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// KindOf classifies err. Errors that are not a *Failure are FailureUnknown.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureUnknown
}

// Surfaced reports whether err was already shown to the user through the
// presenter, so callers must not report it again.
func Surfaced(err error) bool {
	return err != nil && KindOf(err) == FailureTimeout
}
