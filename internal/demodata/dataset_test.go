package demodata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"brandhub.dev/demodata/internal/docstore/memstore"
)

func TestDefaultDatasetIsValid(t *testing.T) {
	ds, err := DefaultDataset()
	require.NoError(t, err)
	require.Equal(t, "demo-brand", ds.Brand.Key)
	require.Len(t, ds.Retailers, 3)
	require.Len(t, ds.Staff, 4)
	require.Equal(t, "lumen-store-leads", ds.Communities[1].slug())
}

func TestValidateRejectsDanglingIndexes(t *testing.T) {
	ds := scenarioDataset()
	ds.Staff[1].Retailer = 5
	ds.SamplePrograms = []SampleProgramFixture{{
		Name:     "Trial",
		Units:    10,
		Requests: []SampleRequestFixture{{Staff: 9, Retailer: 0, Status: "lost"}},
	}}
	err := ds.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "staff[1].retailer 5 out of range")
	require.Contains(t, err.Error(), "requests[0].staff 9 out of range")
	require.Contains(t, err.Error(), `status "lost" unknown`)
}

func TestValidateRejectsDuplicateEmails(t *testing.T) {
	ds := scenarioDataset()
	ds.Staff[1].Email = ds.Staff[0].Email
	ds.Staff[2].Email = "  MANAGER@example.com "
	err := ds.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "staff[1].email")
	require.Contains(t, err.Error(), "duplicates staff[0]")
	require.Contains(t, err.Error(), "staff[2].email")
	require.Contains(t, err.Error(), "duplicates brandManager")

	_, err = NewManager(memstore.New(), ServiceSessions{}, WithDataset(ds))
	require.ErrorContains(t, err, "duplicates staff[0]")
}

func TestValidateRejectsDuplicateCommunitySlugs(t *testing.T) {
	ds := scenarioDataset()
	ds.Communities = []CommunityFixture{
		{Name: "Store Leads"},
		{Slug: "store-leads", Name: "Leads (copy)"},
		{Name: "Insiders"},
	}
	err := ds.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), `communities[1] slug "store-leads" duplicates communities[0]`)
	require.NotContains(t, err.Error(), "communities[2]")
}

func TestLoadDatasetFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
brand:
  key: Acme Co
  name: Acme
retailers:
  - chain: Corner Shop
    storeCode: CS-1
staff:
  - email: s@example.com
    secret: s-secret
    displayName: S
    retailer: 0
`), 0o600))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	require.Equal(t, "s@example.com", ds.Staff[0].Email)
	require.Equal(t, "acme-co", Slugify(ds.Brand.Key))
}

func TestSlugify(t *testing.T) {
	for in, want := range map[string]string{
		"Lumen Insiders":     "lumen-insiders",
		"  --Store  Leads!!": "store-leads",
		"Ünicode & co":       "nicode-co",
		"":                   "",
	} {
		require.Equal(t, want, Slugify(in), in)
	}
}
