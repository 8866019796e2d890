package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
)

const serviceName = "gatehouse"

// Pinger reports dependency liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe проверяет готовность зависимостей (БД, Redis).
type ReadyProbe struct {
	DB    *sql.DB
	Redis Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	var errs []error
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options configures the HTTP layer.
type Options struct {
	Version     string
	Ready       ReadyProbe
	RateBurst   int
	RatePerSec  float64
	CORSOrigins []string
	// TrustedProxies may set the client address via X-Forwarded-For.
	// Without them the peer address is used.
	TrustedProxies TrustedProxies
}

// API: HTTP слой.
type API struct {
	mux         *http.ServeMux
	svc         *auth.Service
	rbac        *auth.RBACService
	validator   *auth.Validator
	readyProbe  ReadyProbe
	version     string
	limiter     *RateLimiter
	corsOrigins []string
	proxies     TrustedProxies
}

func New(svc *auth.Service, opts Options) *API {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	a := &API{
		mux:         http.NewServeMux(),
		svc:         svc,
		rbac:        svc.RBAC(),
		validator:   svc.Validator(),
		readyProbe:  opts.Ready,
		version:     opts.Version,
		limiter:     NewRateLimiter(opts.RatePerSec, opts.RateBurst),
		corsOrigins: opts.CORSOrigins,
		proxies:     opts.TrustedProxies,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/metrics
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	// authentication
	a.mux.Handle("POST /v1/auth/register", a.limiter.Middleware(http.HandlerFunc(a.handleRegister)))
	a.mux.Handle("POST /v1/auth/login", a.limiter.Middleware(http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("POST /v1/auth/refresh", a.limiter.Middleware(http.HandlerFunc(a.handleRefresh)))
	a.mux.Handle("POST /v1/auth/logout", a.authenticated(http.HandlerFunc(a.handleLogout)))

	// users
	a.mux.Handle("GET /v1/users/me", a.authenticated(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("GET /v1/users/{id}", a.authenticated(http.HandlerFunc(a.handleGetUser)))
	a.mux.Handle("PUT /v1/users/{id}/roles", a.require(auth.RequirePermission(auth.PermRolesManage), a.handleSetUserRoles))
	a.mux.Handle("PUT /v1/users/{id}/status", a.require(auth.RequirePermission(auth.PermUsersUpdate), a.handleSetUserStatus))

	// roles and permissions
	manage := auth.RequirePermission(auth.PermRolesManage)
	a.mux.Handle("GET /v1/roles", a.require(manage, a.handleListRoles))
	a.mux.Handle("POST /v1/roles", a.require(manage, a.handleCreateRole))
	a.mux.Handle("GET /v1/roles/{id}", a.require(manage, a.handleGetRole))
	a.mux.Handle("PATCH /v1/roles/{id}", a.require(manage, a.handleUpdateRole))
	a.mux.Handle("DELETE /v1/roles/{id}", a.require(manage, a.handleDeleteRole))
	a.mux.Handle("PUT /v1/roles/{id}/permissions", a.require(manage, a.handleSetRolePermissions))
	a.mux.Handle("GET /v1/roles/by-name/{name}/users", a.require(manage, a.handleUsersByRole))
	a.mux.Handle("GET /v1/permissions", a.require(manage, a.handleListPermissions))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
}

// Handler возвращает http.Handler со всей цепочкой middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = RealIP(h, a.proxies)
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
