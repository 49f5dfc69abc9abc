package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"learnhub.org/internal/analytics"
	"learnhub.org/internal/audit"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/catalog"
	"learnhub.org/internal/commerce"
	"learnhub.org/internal/obs"
	"learnhub.org/internal/settings"
)

const serviceName = "learnhub-api"

// Pinger is satisfied by the Redis session store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyCheck — проверка готовности зависимостей (БД, Redis).
type ReadyCheck struct {
	DB    *sql.DB
	Redis Pinger
}

func (rc ReadyCheck) Check(ctx context.Context) error {
	var errs []error
	if rc.DB != nil {
		if err := rc.DB.PingContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rc.Redis != nil {
		if err := rc.Redis.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TokenVerifier validates ID tokens from the external identity provider.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (auth.ExternalIdentity, error)
}

// Limiter decides whether a client key may proceed.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Auth      *auth.Service
	Catalog   *catalog.Service
	Commerce  *commerce.Service
	Settings  *settings.Service
	Analytics *analytics.Service
	Audit     *audit.Recorder
	// IDP is nil when external sign-in is not configured.
	IDP     TokenVerifier
	Limiter Limiter

	Ready          ReadyCheck
	Version        string
	SecureCookies  bool
	AllowedOrigins []string
	MaxBodyBytes   int64
	// TrustedProxies may set X-Forwarded-For; nil trusts no one.
	TrustedProxies []netip.Prefix
}

// API — HTTP слой.
type API struct {
	mux  *http.ServeMux
	deps Deps
}

func New(deps Deps) *API {
	if deps.Audit == nil {
		deps.Audit = audit.NewRecorder(nil)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:  http.NewServeMux(),
		deps: deps,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// learner sessions
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/external", a.handleExternalLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/heartbeat", a.handleHeartbeat)

	// public catalog
	a.mux.HandleFunc("/v1/courses", a.handlePublicCourses)
	a.mux.HandleFunc("/v1/courses/{id}", a.handlePublicCourse)
	a.mux.HandleFunc("/v1/categories", a.handlePublicCategories)
	a.mux.HandleFunc("/v1/career-tracks", a.handlePublicCareerTracks)

	// cart and checkout
	a.mux.HandleFunc("/v1/cart", a.handleCart)
	a.mux.HandleFunc("/v1/cart/items", a.handleCartItems)
	a.mux.HandleFunc("/v1/cart/items/{courseID}", a.handleCartItem)
	a.mux.HandleFunc("/v1/checkout/confirm", a.handleCheckoutConfirm)
	a.mux.HandleFunc("/v1/orders", a.handleMyOrders)
	a.mux.HandleFunc("/v1/enrollments", a.handleMyEnrollments)

	// back office
	a.mux.HandleFunc("/v1/admin/auth/login", a.handleAdminLogin)
	a.mux.HandleFunc("/v1/admin/auth/logout", a.handleAdminLogout)
	a.mux.HandleFunc("/v1/admin/auth/me", a.handleAdminMe)
	a.mux.HandleFunc("/v1/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/v1/admin/users/{id}", a.handleAdminUser)
	a.mux.HandleFunc("/v1/admin/users/{id}/roles", a.handleAdminUserRoles)
	a.mux.HandleFunc("/v1/admin/courses", a.handleAdminCourses)
	a.mux.HandleFunc("/v1/admin/courses/{id}", a.handleAdminCourse)
	a.mux.HandleFunc("/v1/admin/categories", a.handleAdminCategories)
	a.mux.HandleFunc("/v1/admin/categories/{id}", a.handleAdminCategory)
	a.mux.HandleFunc("/v1/admin/career-tracks", a.handleAdminCareerTracks)
	a.mux.HandleFunc("/v1/admin/career-tracks/{id}", a.handleAdminCareerTrack)
	a.mux.HandleFunc("/v1/admin/orders", a.handleAdminOrders)
	a.mux.HandleFunc("/v1/admin/analytics", a.handleAdminAnalytics)
	a.mux.HandleFunc("/v1/admin/audit-logs", a.handleAdminAuditLogs)
	a.mux.HandleFunc("/v1/admin/settings", a.handleAdminSettings)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusNotFound, "not_found", "resource not found")
	})

	return a
}

// Handler wraps the mux in the middleware chain, outermost first.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.deps.MaxBodyBytes)
	if a.deps.Limiter != nil {
		h = RateLimit(h, a.deps.Limiter)
	}
	h = CORS(h, a.deps.AllowedOrigins)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = Tracing(h)
	h = ClientIP(h, a.deps.TrustedProxies)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
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
		"version": a.deps.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
