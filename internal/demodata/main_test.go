package demodata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/docstore/memstore"
	"brandhub.dev/demodata/internal/identity"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testOperator = "operator-1"

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	store    *memstore.Store
	identity *identity.Service
	manager  *Manager
}

func newIdentity(t *testing.T) *identity.Service {
	t.Helper()
	tokens, err := identity.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	svc, err := identity.NewService(identity.NewMemoryAccounts(), tokens)
	require.NoError(t, err)
	return svc
}

func newEnv(t *testing.T, ds *Dataset, opts ...Option) *env {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Set(context.Background(),
		docstore.Ref{Collection: CollectionUsers, ID: testOperator},
		docstore.Document{"role": "admin", "email": "ops@example.com"},
		docstore.SetOptions{}))

	svc := newIdentity(t)
	base := []Option{WithClock(func() time.Time { return testNow })}
	if ds != nil {
		base = append(base, WithDataset(ds))
	}
	mgr, err := NewManager(store, ServiceSessions{Service: svc}, append(base, opts...)...)
	require.NoError(t, err)
	return &env{store: store, identity: svc, manager: mgr}
}

// scenarioDataset has a brand, two retailers and four staff and nothing else.
func scenarioDataset() *Dataset {
	staff := func(n, retailer int) StaffFixture {
		return StaffFixture{
			IdentitySpec: IdentitySpec{
				Email:       "staff" + string(rune('0'+n)) + "@example.com",
				Secret:      "staff-secret",
				DisplayName: "Staff " + string(rune('0'+n)),
			},
			Retailer: retailer,
			Verified: n%2 == 0,
		}
	}
	return &Dataset{
		Brand:        BrandFixture{Key: "demo-brand", Name: "Demo Brand"},
		BrandManager: IdentitySpec{Email: "manager@example.com", Secret: "manager-secret", DisplayName: "Manager"},
		Retailers: []RetailerFixture{
			{Chain: "Northwind", StoreCode: "NW-1"},
			{Chain: "Harbor", StoreCode: "HB-2"},
		},
		Staff: []StaffFixture{staff(0, 0), staff(1, 0), staff(2, 1), staff(3, 1)},
	}
}

func taggedCount(t *testing.T, s docstore.Store, collection string) int {
	t.Helper()
	docs, err := s.Query(context.Background(), collection, docstore.Query{OnlyTagged: true})
	require.NoError(t, err)
	return len(docs)
}

func allDocs(t *testing.T, s docstore.Store, collection string) []docstore.Snapshot {
	t.Helper()
	docs, err := s.Query(context.Background(), collection, docstore.Query{})
	require.NoError(t, err)
	return docs
}
