package demodata

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"brandhub.dev/demodata/internal/identity"
	"brandhub.dev/demodata/internal/ids"
	"brandhub.dev/demodata/internal/obs"
)

// Outcome is the terminal state of provisioning one identity spec.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeSignedIn
	OutcomePlaceholder
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeSignedIn:
		return "signed_in"
	case OutcomePlaceholder:
		return "placeholder"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// IdentitySpec describes an account to create or adopt.
type IdentitySpec struct {
	Email       string `yaml:"email" json:"email"`
	Secret      string `yaml:"secret" json:"-"`
	DisplayName string `yaml:"displayName" json:"displayName"`
}

// Identity is the provisioning result for one spec.
type Identity struct {
	ExternalID  string
	Email       string
	DisplayName string
	Outcome     Outcome
}

// Placeholder reports whether ExternalID is synthesized rather than a real account.
func (i Identity) Placeholder() bool { return i.Outcome == OutcomePlaceholder }

// Session is one authentication context of the identity service.
type Session interface {
	CreateAccountWithName(ctx context.Context, email, secret, displayName string) (string, error)
	SignIn(ctx context.Context, email, secret string) (string, error)
	SignOut(ctx context.Context) error
	CurrentUser() (string, bool)
}

// Sessions opens authentication contexts.
type Sessions interface {
	// Primary is the operator's own context.
	Primary() Session
	// Open returns a new context isolated from every other one.
	Open(name string) Session
}

// ServiceSessions adapts an identity.Service to Sessions.
type ServiceSessions struct{ Service *identity.Service }

func (s ServiceSessions) Primary() Session         { return s.Service.Primary() }
func (s ServiceSessions) Open(name string) Session { return s.Service.NewContext(name) }

// Provisioner creates or adopts accounts through a secondary context.
type Provisioner struct {
	sessions Sessions
	log      *zap.Logger
}

func newProvisioner(sessions Sessions, log *zap.Logger) *Provisioner {
	return &Provisioner{sessions: sessions, log: log}
}

type provisionStep int

const (
	stepCreate provisionStep = iota
	stepSignIn
	stepSignOut
	stepDone
)

// Provision resolves every spec in order. A credential mismatch yields a
// placeholder identity; any other unresolvable spec aborts with an
// *IdentityProvisioningError. The operator's primary session must be the same
// before and after, otherwise ErrSessionDisturbed is returned.
func (p *Provisioner) Provision(ctx context.Context, runID string, specs []IdentitySpec) ([]Identity, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	primary := p.sessions.Primary()
	before, beforeOK := primary.CurrentUser()

	secondary := p.sessions.Open("demodata-" + runID)
	out := make([]Identity, 0, len(specs))
	diags := make([]Diagnostic, 0, len(specs))

	for _, spec := range specs {
		id, diag := p.provisionOne(ctx, secondary, spec)
		diags = append(diags, diag)
		obs.IdentityOutcomes.WithLabelValues(diag.Outcome.String()).Inc()
		p.log.Info("identity provisioned",
			zap.String("run_id", runID),
			zap.String("email", spec.Email),
			zap.String("outcome", diag.Outcome.String()),
		)
		if diag.Outcome == OutcomeFatal {
			_ = secondary.SignOut(ctx)
			return out, &IdentityProvisioningError{Email: spec.Email, Diagnostics: diags, Err: diag.Err}
		}
		out = append(out, id)
	}

	if uid, ok := secondary.CurrentUser(); ok {
		return out, &IdentityProvisioningError{
			Diagnostics: diags,
			Err:         fmt.Errorf("secondary context still signed in as %s", uid),
		}
	}
	after, afterOK := primary.CurrentUser()
	if before != after || beforeOK != afterOK {
		return out, &IdentityProvisioningError{Diagnostics: diags, Err: ErrSessionDisturbed}
	}
	return out, nil
}

func (p *Provisioner) provisionOne(ctx context.Context, ac Session, spec IdentitySpec) (Identity, Diagnostic) {
	id := Identity{Email: spec.Email, DisplayName: spec.DisplayName}
	diag := Diagnostic{Email: spec.Email}

	step := stepCreate
	for step != stepDone {
		switch step {
		case stepCreate:
			uid, err := ac.CreateAccountWithName(ctx, spec.Email, spec.Secret, spec.DisplayName)
			if err == nil {
				id.ExternalID, id.Outcome = uid, OutcomeCreated
				step = stepSignOut
				continue
			}
			diag.Code, diag.Err = identity.CodeOf(err), err
			step = stepSignIn

		case stepSignIn:
			uid, err := ac.SignIn(ctx, spec.Email, spec.Secret)
			switch {
			case err == nil:
				id.ExternalID, id.Outcome = uid, OutcomeSignedIn
				diag.Code, diag.Err = 0, nil
				step = stepSignOut
			case identity.CodeOf(err) == identity.CodeCredentialMismatch:
				id.ExternalID, id.Outcome = ids.Placeholder(), OutcomePlaceholder
				diag.Code, diag.Err = identity.CodeCredentialMismatch, err
				step = stepDone
			default:
				id.Outcome = OutcomeFatal
				diag.Code, diag.Err = identity.CodeOf(err), err
				step = stepDone
			}

		case stepSignOut:
			if err := ac.SignOut(ctx); err != nil {
				id.Outcome = OutcomeFatal
				diag.Code, diag.Err = identity.CodeOf(err), fmt.Errorf("sign out: %w", err)
			}
			step = stepDone
		}
	}
	diag.Outcome = id.Outcome
	return id, diag
}
