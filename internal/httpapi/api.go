package httpapi

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"

	"gatekeeper.org/internal/auth"
	"gatekeeper.org/internal/obs"
	"gatekeeper.org/internal/ratelimit"
)

// ReadyProbe reports backing-store readiness (DB ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's collaborators.
type Options struct {
	Auth       *auth.Service
	Limiter    *ratelimit.Registry
	ReadyProbe ReadyProbe
	Version    string

	// TrustedProxies are peer CIDRs whose X-Forwarded-For is honored when
	// deriving the rate-limit client identity. Empty trusts every peer.
	TrustedProxies []string

	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	limiter    *ratelimit.Registry
	readyProbe ReadyProbe
	version    string
	clientID   func(*http.Request) string
	maxBody    int64
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       opts.Auth,
		limiter:    opts.Limiter,
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
		clientID:   ClientIdentity(parseCIDRs(opts.TrustedProxies)),
		maxBody:    opts.MaxBodyBytes,
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// authentication
	a.mux.HandleFunc("/auth/register", a.handleRegister)
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/create-admin", a.handleCreateAdmin)

	// password recovery
	a.mux.HandleFunc("/password/forgot", a.handleForgotPassword)
	a.mux.HandleFunc("/password/reset", a.handleResetPassword)

	// administrative account lifecycle
	a.mux.Handle("/admin/users/", RequireRole(auth.RoleAdmin)(http.HandlerFunc(a.handleAdminUsers)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped http.Handler. The rate limiter sits in
// front of every route: a rejected request never reaches route logic.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.auth != nil {
		h = a.withAuth(h)
	}
	h = MaxBodyBytes(h, a.maxBody)
	if a.limiter != nil {
		h = RateLimit(h, a.limiter, a.clientID)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = Recover(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatekeeper-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
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
		"name":    "gatekeeper-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func parseCIDRs(raw []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, c := range raw {
		if _, n, err := net.ParseCIDR(c); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}
