package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"brandhub.dev/demodata/internal/demodata"
	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/docstore/memstore"
	"brandhub.dev/demodata/internal/identity"
)

type apiClient struct {
	api     *API
	baseURL string
	client  *http.Client
	store   *memstore.Store
	svc     *identity.Service
	t       *testing.T
}

func testDataset() *demodata.Dataset {
	return &demodata.Dataset{
		Brand:        demodata.BrandFixture{Key: "demo-brand", Name: "Demo Brand"},
		BrandManager: demodata.IdentitySpec{Email: "manager@example.com", Secret: "manager-secret", DisplayName: "Manager"},
		Retailers:    []demodata.RetailerFixture{{Chain: "Northwind", StoreCode: "NW-1"}},
		Staff: []demodata.StaffFixture{{
			IdentitySpec: demodata.IdentitySpec{Email: "staff@example.com", Secret: "staff-secret", DisplayName: "Staff"},
			Retailer:     0,
		}},
	}
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	tokens, err := identity.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := identity.NewService(identity.NewMemoryAccounts(), tokens)
	if err != nil {
		t.Fatal(err)
	}
	store := memstore.New()
	mgr, err := demodata.NewManager(store, demodata.ServiceSessions{Service: svc}, demodata.WithDataset(testDataset()))
	if err != nil {
		t.Fatal(err)
	}

	api := New(Options{Runner: mgr, Auth: svc, Version: "test", RateBurst: 100, RatePerSec: 100})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{api: api, baseURL: srv.URL, client: srv.Client(), store: store, svc: svc, t: t}
}

// operator registers an account, gives it role and returns its session token.
func (c *apiClient) operator(email, role string) string {
	c.t.Helper()
	ctx := context.Background()
	ac := c.svc.NewContext(email)
	uid, err := ac.CreateAccount(ctx, email, "operator-secret")
	if err != nil {
		c.t.Fatalf("create operator: %v", err)
	}
	err = c.store.Set(ctx, docstore.Ref{Collection: demodata.CollectionUsers, ID: uid},
		docstore.Document{"role": role, "email": email}, docstore.SetOptions{})
	if err != nil {
		c.t.Fatalf("store operator: %v", err)
	}
	return ac.Token()
}

func (c *apiClient) post(path string, body any, token string) (*http.Response, map[string]any) {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestSeedRequiresBearerToken(t *testing.T) {
	c := newTestAPI(t)
	resp, body := c.post("/v1/demo/seed", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	if body["error"] == nil {
		t.Fatalf("expected error body, got %v", body)
	}

	resp, _ = c.post("/v1/demo/seed", nil, "not-a-jwt")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestSeedThenReset(t *testing.T) {
	c := newTestAPI(t)
	token := c.operator("admin@example.com", "admin")

	resp, body := c.post("/v1/demo/seed", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed: expected 200, got %d: %v", resp.StatusCode, body)
	}
	counts, _ := body["counts"].(map[string]any)
	if counts["brands"] != float64(1) || counts["staff"] != float64(1) || counts["brand_managers"] != float64(1) {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if body["run_id"] == "" {
		t.Fatal("expected run_id")
	}

	resp, body = c.post("/v1/demo/reset", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %v", resp.StatusCode, body)
	}
	deleted, _ := body["deleted"].(map[string]any)
	if deleted["users"] != float64(2) || deleted["retailers"] != float64(1) {
		t.Fatalf("unexpected deleted: %v", deleted)
	}
	if c.store.Count(demodata.CollectionBrands) != 0 {
		t.Fatal("expected brand to be removed")
	}
}

func TestSeedForbiddenForNonElevatedOperator(t *testing.T) {
	c := newTestAPI(t)
	token := c.operator("staff-op@example.com", "staff")

	resp, body := c.post("/v1/demo/seed", demodata.SeedOptions{}, token)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != "PermissionDenied" || errBody["check"] != "role" {
		t.Fatalf("unexpected error body: %v", errBody)
	}
}

func TestResetRejectsUnknownCollection(t *testing.T) {
	c := newTestAPI(t)
	token := c.operator("admin@example.com", "admin")

	resp, body := c.post("/v1/demo/reset", map[string]any{"collections": []string{"orders"}}, token)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", resp.StatusCode, body)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	api := New(Options{Ready: func(context.Context) error { return errors.New("store down") }})
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}

	resp, err = srv.Client().Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz: expected 503, got %d", resp.StatusCode)
	}
}

func TestClassifyMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		code int
		key  string
		want string
	}{
		{&demodata.StageWriteError{Stage: "trainings", Err: docstore.ErrPermission}, http.StatusBadGateway, "stage", "trainings"},
		{&demodata.TeardownCollectionError{Collection: "users", Err: errors.New("x")}, http.StatusBadGateway, "collection", "users"},
		{&demodata.IdentityProvisioningError{Err: errors.New("x")}, http.StatusBadGateway, "code", "identity_provisioning"},
	}
	for _, tc := range cases {
		code, body := classify(tc.err)
		if code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, code)
		}
		raw, _ := json.Marshal(body)
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		if m[tc.key] != tc.want {
			t.Fatalf("%v: expected %s=%s, got %v", tc.err, tc.key, tc.want, m)
		}
	}
}

type recordingRunner struct {
	seen []error
}

func (r *recordingRunner) Seed(ctx context.Context, _ string, _ demodata.SeedOptions) (*demodata.Report, error) {
	r.seen = append(r.seen, ctx.Err())
	return &demodata.Report{RunID: "run-1", Counts: map[string]int{"brands": 1}}, nil
}

func (r *recordingRunner) Reset(ctx context.Context, _ string) (*demodata.ResetReport, error) {
	r.seen = append(r.seen, ctx.Err())
	return &demodata.ResetReport{RunID: "run-2", Deleted: map[string]int{}}, nil
}

func (r *recordingRunner) ResetCollections(ctx context.Context, _ string, _ ...string) (*demodata.ResetReport, error) {
	r.seen = append(r.seen, ctx.Err())
	return &demodata.ResetReport{RunID: "run-3", Deleted: map[string]int{}}, nil
}

func TestRunSurvivesClientDisconnect(t *testing.T) {
	runner := &recordingRunner{}
	api := New(Options{Runner: runner})

	cases := []struct {
		name    string
		handler http.HandlerFunc
		body    string
	}{
		{"seed", api.Seed, ""},
		{"reset", api.Reset, ""},
		{"reset collections", api.Reset, `{"collections":["brands"]}`},
	}
	for _, tc := range cases {
		ctx, cancel := context.WithCancel(context.WithValue(context.Background(), operatorKey, "op-1"))
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tc.body)).WithContext(ctx)
		rr := httptest.NewRecorder()
		tc.handler(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.name, rr.Code)
		}
	}
	if len(runner.seen) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runner.seen))
	}
	for i, err := range runner.seen {
		if err != nil {
			t.Fatalf("run %d saw cancelled context: %v", i, err)
		}
	}
}

func TestSeedCompletesAfterClientCancels(t *testing.T) {
	c := newTestAPI(t)
	token := c.operator("admin@example.com", "admin")
	uid, err := c.svc.Authenticate(token)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), operatorKey, uid))
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/demo/seed", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	c.api.Seed(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if c.store.Count(demodata.CollectionBrands) != 1 || c.store.Count(demodata.CollectionUsers) != 3 {
		t.Fatalf("run did not complete: brands=%d users=%d",
			c.store.Count(demodata.CollectionBrands), c.store.Count(demodata.CollectionUsers))
	}
}
