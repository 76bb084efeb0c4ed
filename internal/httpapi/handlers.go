package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"brandhub.dev/demodata/internal/demodata"
	"brandhub.dev/demodata/internal/obs"
)

const serviceName = "demodata"

// ReadyProbe: проверка готовности (например, ping хранилища).
type ReadyProbe func(ctx context.Context) error

// Check runs the probe; a nil probe is always ready.
func (p ReadyProbe) Check(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p(ctx)
}

// Runner is the seed/reset surface exposed over HTTP.
type Runner interface {
	Seed(ctx context.Context, operatorID string, opts demodata.SeedOptions) (*demodata.Report, error)
	Reset(ctx context.Context, operatorID string) (*demodata.ResetReport, error)
	ResetCollections(ctx context.Context, operatorID string, names ...string) (*demodata.ResetReport, error)
}

// Authenticator resolves a bearer session token to the operator id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// Options configures the API.
type Options struct {
	Runner     Runner
	Auth       Authenticator
	Ready      ReadyProbe
	Version    string
	RateBurst  int
	RatePerSec int
	Logger     *zap.Logger
}

// API: HTTP слой.
type API struct {
	mux        *http.ServeMux
	runner     Runner
	auth       Authenticator
	readyProbe ReadyProbe
	version    string
	rateBurst  int
	ratePerSec int
	log        *zap.Logger
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		runner:     opts.Runner,
		auth:       opts.Auth,
		readyProbe: opts.Ready,
		version:    opts.Version,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
		log:        opts.Logger,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 10
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 5
	}
	if a.log == nil {
		a.log = obs.Logger().Named("http")
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// demo data lifecycle
	a.mux.Handle("POST /v1/demo/seed", a.withAuth(http.HandlerFunc(a.Seed)))
	a.mux.Handle("POST /v1/demo/reset", a.withAuth(http.HandlerFunc(a.Reset)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает http.Handler с полным набором middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = Logging(h, a.log)
	h = RequestID(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
