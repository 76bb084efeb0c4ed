package demodata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brandhub.dev/demodata/internal/identity"
	"brandhub.dev/demodata/internal/ids"
)

func TestProvisionFallbackChain(t *testing.T) {
	svc := newIdentity(t)
	ctx := context.Background()

	setup := svc.NewContext("setup")
	existingUID, err := setup.CreateAccount(ctx, "same@example.com", "shared-secret")
	require.NoError(t, err)
	_, err = setup.CreateAccount(ctx, "taken@example.com", "someone-elses")
	require.NoError(t, err)
	require.NoError(t, setup.SignOut(ctx))

	p := newProvisioner(ServiceSessions{Service: svc}, zap.NewNop())
	got, err := p.Provision(ctx, "run-1", []IdentitySpec{
		{Email: "new@example.com", Secret: "new-secret", DisplayName: "New"},
		{Email: "same@example.com", Secret: "shared-secret", DisplayName: "Same"},
		{Email: "taken@example.com", Secret: "demo-secret", DisplayName: "Taken"},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.Equal(t, OutcomeCreated, got[0].Outcome)
	require.NotEmpty(t, got[0].ExternalID)

	require.Equal(t, OutcomeSignedIn, got[1].Outcome)
	require.Equal(t, existingUID, got[1].ExternalID)

	require.Equal(t, OutcomePlaceholder, got[2].Outcome)
	require.True(t, ids.IsPlaceholder(got[2].ExternalID))
	require.True(t, got[2].Placeholder())
}

func TestProvisionFatalCarriesDiagnostics(t *testing.T) {
	svc := newIdentity(t)
	p := newProvisioner(ServiceSessions{Service: svc}, zap.NewNop())

	got, err := p.Provision(context.Background(), "run-2", []IdentitySpec{
		{Email: "ok@example.com", Secret: "ok-secret"},
		{Email: "not-an-email", Secret: "whatever"},
		{Email: "never@example.com", Secret: "never-secret"},
	})
	var ipe *IdentityProvisioningError
	require.ErrorAs(t, err, &ipe)
	require.Equal(t, "not-an-email", ipe.Email)
	require.Len(t, ipe.Diagnostics, 2)
	require.Equal(t, OutcomeCreated, ipe.Diagnostics[0].Outcome)
	require.Equal(t, OutcomeFatal, ipe.Diagnostics[1].Outcome)
	require.Equal(t, identity.CodeInvalidEmail, ipe.Diagnostics[1].Code)
	require.Len(t, got, 1)
}

func TestProvisionLeavesPrimarySessionUntouched(t *testing.T) {
	svc := newIdentity(t)
	ctx := context.Background()
	primary := svc.Primary()
	operatorUID, err := primary.CreateAccount(ctx, "operator@example.com", "operator-secret")
	require.NoError(t, err)

	p := newProvisioner(ServiceSessions{Service: svc}, zap.NewNop())
	_, err = p.Provision(ctx, "run-3", []IdentitySpec{
		{Email: "a@example.com", Secret: "a-secret"},
		{Email: "b@example.com", Secret: "b-secret"},
	})
	require.NoError(t, err)

	uid, ok := primary.CurrentUser()
	require.True(t, ok)
	require.Equal(t, operatorUID, uid)
}

// hijackedSessions signs the primary context in whenever a secondary signs out.
type hijackedSessions struct {
	svc *identity.Service
}

func (h hijackedSessions) Primary() Session { return h.svc.Primary() }

func (h hijackedSessions) Open(name string) Session {
	return hijackedSession{AuthContext: h.svc.NewContext(name), svc: h.svc}
}

type hijackedSession struct {
	*identity.AuthContext
	svc *identity.Service
}

func (s hijackedSession) SignOut(ctx context.Context) error {
	_, _ = s.svc.Primary().SignIn(ctx, "intruder@example.com", "intruder-secret")
	return s.AuthContext.SignOut(ctx)
}

func TestProvisionDetectsDisturbedPrimarySession(t *testing.T) {
	svc := newIdentity(t)
	ctx := context.Background()
	setup := svc.NewContext("setup")
	_, err := setup.CreateAccount(ctx, "intruder@example.com", "intruder-secret")
	require.NoError(t, err)
	require.NoError(t, setup.SignOut(ctx))

	p := newProvisioner(hijackedSessions{svc: svc}, zap.NewNop())
	_, err = p.Provision(ctx, "run-4", []IdentitySpec{{Email: "a@example.com", Secret: "a-secret"}})
	require.ErrorIs(t, err, ErrSessionDisturbed)
}
