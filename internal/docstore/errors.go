package docstore

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

var (
	ErrNotFound      = errors.New("docstore: not found")
	ErrInvalidRef    = errors.New("docstore: invalid reference")
	ErrBatchTooLarge = errors.New("docstore: batch exceeds operation ceiling")
	ErrPermission    = errors.New("docstore: permission denied")
)

// Error carries the store's diagnostic code alongside the failing operation.
type Error struct {
	Op      string
	Ref     Ref
	Code    codes.Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	target := e.Ref.String()
	if e.Ref.ID == "" {
		target = e.Ref.Collection
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("docstore %s %s: %s: %s", e.Op, target, e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the diagnostic code from err, defaulting to Unknown.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrPermission):
		return codes.PermissionDenied
	case errors.Is(err, ErrBatchTooLarge), errors.Is(err, ErrInvalidRef):
		return codes.InvalidArgument
	}
	return codes.Unknown
}

// IsPermissionDenied reports whether err is a store permission failure.
func IsPermissionDenied(err error) bool {
	return CodeOf(err) == codes.PermissionDenied
}

// Wrap annotates err with op, target and code unless it is already an *Error.
func Wrap(op string, ref Ref, code codes.Code, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Ref: ref, Code: code, Err: err}
}
