package demodata

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/identity"
)

var (
	// ErrUnresolvedRef means a stage asked for a key no earlier stage produced.
	ErrUnresolvedRef = errors.New("demodata: unresolved reference")
	// ErrSessionDisturbed means provisioning changed the operator's primary session.
	ErrSessionDisturbed = errors.New("demodata: operator session changed during provisioning")
	// ErrUnknownCollection rejects teardown targets outside the demo collection list.
	ErrUnknownCollection = errors.New("demodata: unknown demo collection")
	// ErrInvalidThreshold rejects batch thresholds not strictly below the store ceiling.
	ErrInvalidThreshold = errors.New("demodata: batch threshold must be positive and below the store ceiling")
)

// PermissionDeniedError aborts a run before any stage writes.
type PermissionDeniedError struct {
	Check   string
	Code    codes.Code
	Message string
	Err     error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("preflight %s: permission denied (%s): %s", e.Check, e.Code, e.Message)
}

func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// GRPCStatus exposes the store diagnostic to status.FromError.
func (e *PermissionDeniedError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

func permissionDenied(check string, err error) *PermissionDeniedError {
	code := docstore.CodeOf(err)
	if code == codes.OK || code == codes.Unknown {
		code = codes.PermissionDenied
	}
	msg := err.Error()
	var se *docstore.Error
	if errors.As(err, &se) && se.Message != "" {
		msg = se.Message
	}
	return &PermissionDeniedError{Check: check, Code: code, Message: msg, Err: err}
}

// Diagnostic records what happened to one identity spec.
type Diagnostic struct {
	Email   string
	Outcome Outcome
	Code    identity.Code
	Err     error
}

func (d Diagnostic) String() string {
	if d.Err == nil {
		return fmt.Sprintf("%s: %s", d.Email, d.Outcome)
	}
	return fmt.Sprintf("%s: %s (%s): %v", d.Email, d.Outcome, d.Code, d.Err)
}

// IdentityProvisioningError is fatal provisioning failure with every diagnostic gathered so far.
type IdentityProvisioningError struct {
	Email       string
	Diagnostics []Diagnostic
	Err         error
}

func (e *IdentityProvisioningError) Error() string {
	var b strings.Builder
	b.WriteString("identity provisioning failed")
	if e.Email != "" {
		fmt.Fprintf(&b, " for %s", e.Email)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if len(e.Diagnostics) > 0 {
		parts := make([]string, len(e.Diagnostics))
		for i, d := range e.Diagnostics {
			parts[i] = d.String()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, "; "))
	}
	return b.String()
}

func (e *IdentityProvisioningError) Unwrap() error { return e.Err }

// StageWriteError wraps a store failure with the stage that staged the writes.
type StageWriteError struct {
	Stage string
	Err   error
}

func (e *StageWriteError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageWriteError) Unwrap() error { return e.Err }

// TeardownCollectionError is the first collection failure of a reset run.
type TeardownCollectionError struct {
	Collection string
	Deleted    int
	Err        error
}

func (e *TeardownCollectionError) Error() string {
	return fmt.Sprintf("teardown %s: %v (deleted %d before failure)", e.Collection, e.Err, e.Deleted)
}

func (e *TeardownCollectionError) Unwrap() error { return e.Err }
