package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"surveysync.org/internal/auth"
	"surveysync.org/internal/bulksync"
	"surveysync.org/internal/obs"
	"surveysync.org/internal/stream"
)

const serviceName = "surveysync-api"

// ReadyProbe: простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Config tunes the middleware chain.
type Config struct {
	MaxBodyBytes   int64
	RateBurst      int
	RatePerSec     int
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 20
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	return c
}

// API: HTTP слой.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string
	cfg        Config

	auth   *auth.Manager
	sync   *bulksync.Processor
	stream *stream.Stream
}

func New(rp readinessChecker, version string, manager *auth.Manager, processor *bulksync.Processor, st *stream.Stream, cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		cfg:        cfg.withDefaults(),
		auth:       manager,
		sync:       processor,
		stream:     st,
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /api/auth/verify", a.handleVerify)
	a.mux.Handle("POST /api/auth/logout", a.requireDevice(http.HandlerFunc(a.handleLogout)))

	a.mux.Handle("GET /api/device-tokens", a.requireDevice(http.HandlerFunc(a.handleListDeviceTokens)))
	a.mux.Handle("DELETE /api/device-tokens", a.requireDevice(http.HandlerFunc(a.handleRevokeAllDeviceTokens)))
	a.mux.Handle("POST /api/device-tokens/{id}/revoke", a.identifyDevice(http.HandlerFunc(a.handleRevokeDeviceToken)))

	a.mux.Handle("POST /api/sync/upload", a.requireDevice(http.HandlerFunc(a.handleSyncUpload)))
	a.mux.Handle("GET /api/sync/status", a.requireDevice(http.HandlerFunc(a.handleSyncSummary)))
	a.mux.Handle("POST /api/sync/status", a.requireDevice(http.HandlerFunc(a.handleSyncStatus)))
	a.mux.Handle("GET /api/sync/events", a.requireDevice(requireAdmin(http.HandlerFunc(a.Stream))))

	a.mux.Handle("POST /api/surveys/submit", a.requireDevice(http.HandlerFunc(a.handleSubmitSurvey)))
	a.mux.Handle("POST /api/surveys/unique-id", a.requireDevice(http.HandlerFunc(a.handleCheckUniqueID)))
	a.mux.Handle("GET /api/schools/by-partner", a.requireDevice(http.HandlerFunc(a.handleSchoolsByPartner)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found")
	})

	return a
}

// Handler wraps the mux with the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	h = RateLimit(h, a.cfg.RateBurst, a.cfg.RatePerSec)
	h = CORS(h, a.cfg.AllowedOrigins)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
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
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.Logger().WarnContext(r.Context(), "readiness check failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "dependency unavailable",
		})
		return
	}
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

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"success": false,
		"error":   msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	obs.Logger().ErrorContext(r.Context(), op+" failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, "Internal server error")
}

var errBodyRequired = errors.New("request body is required")

// decodeJSON reads a single JSON document. Unknown fields are accepted since
// field devices run several app versions at once.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func originOf(r *http.Request) auth.Origin {
	return auth.Origin{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
}
