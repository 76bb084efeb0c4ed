package identity

import (
	"errors"
	"fmt"
)

// Code classifies identity failures so callers can branch without parsing messages.
type Code int

const (
	CodeInternal Code = iota
	CodeEmailExists
	CodeCredentialMismatch
	CodeUserNotFound
	CodeWeakSecret
	CodeInvalidEmail
	CodeUnavailable
)

func (c Code) String() string {
	switch c {
	case CodeEmailExists:
		return "email-already-in-use"
	case CodeCredentialMismatch:
		return "wrong-secret"
	case CodeUserNotFound:
		return "user-not-found"
	case CodeWeakSecret:
		return "weak-secret"
	case CodeInvalidEmail:
		return "invalid-email"
	case CodeUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is returned by every AuthContext operation.
type Error struct {
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("identity %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the classification of err; unknown errors are CodeInternal.
func CodeOf(err error) Code {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	switch {
	case errors.Is(err, ErrAccountExists):
		return CodeEmailExists
	case errors.Is(err, ErrAccountNotFound):
		return CodeUserNotFound
	}
	return CodeInternal
}

// Store-level sentinels.
var (
	ErrAccountExists   = errors.New("identity: account already exists")
	ErrAccountNotFound = errors.New("identity: account not found")
)
