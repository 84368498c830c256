package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"advisory.org/internal/consult"
	"advisory.org/internal/obs"
	"advisory.org/internal/stream"
)

const serviceName = "advisory-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe checks the region backing (ping of the Postgres pool when the
// region lives there).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string
	svc        consult.Service
	stream     *stream.Stream
	rateBurst  int
	ratePerSec int
	tokenTTL   time.Duration
}

// Option configures an API.
type Option func(*API)

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
	}
}

// WithTokenTTL sets the lifetime of tokens issued by /v1/auth/token.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *API) {
		if ttl > 0 {
			a.tokenTTL = ttl
		}
	}
}

func New(rp readinessChecker, version string, svc consult.Service, st *stream.Stream, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
		stream:     st,
		rateBurst:  20,
		ratePerSec: 10,
		tokenTTL:   15 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("POST /v1/advisors", a.addAdvisor)
	a.mux.HandleFunc("GET /v1/advisors", a.listAdvisors)
	a.mux.HandleFunc("GET /v1/advisors/{id}", a.getAdvisor)
	a.mux.HandleFunc("PUT /v1/advisors/{id}", a.updateAdvisor)
	a.mux.HandleFunc("PUT /v1/advisors/{id}/availability", a.updateAvailability)

	a.mux.HandleFunc("POST /v1/consultations", a.initiateConsultation)
	a.mux.HandleFunc("GET /v1/consultations", a.listConsultations)
	a.mux.HandleFunc("GET /v1/consultations/{id}", a.getConsultation)
	a.mux.HandleFunc("PATCH /v1/consultations/{id}", a.updateConsultation)
	a.mux.HandleFunc("DELETE /v1/consultations/{id}", a.deleteConsultation)
	a.mux.HandleFunc("POST /v1/consultations/{id}/complete", a.completeConsultation)
	a.mux.HandleFunc("POST /v1/consultations/{id}/close", a.closeConsultation)
	a.mux.HandleFunc("GET /v1/consultations/{id}/report", a.consultationReport)
	a.mux.HandleFunc("POST /v1/consultations/{id}/feedback", a.collectFeedback)
	a.mux.HandleFunc("GET /v1/consultations/{id}/feedback", a.listFeedback)
	a.mux.HandleFunc("GET /v1/consultations/{id}/timeline", a.timeline)

	a.mux.HandleFunc("GET /v1/stream/timeline", a.Stream)

	return a
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = obs.Instrument(h)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Recover(h)
	h = LoggingJSON(h)
	return RequestID(h)
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
	if err := a.readyProbe.Check(r.Context()); err != nil {
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

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
