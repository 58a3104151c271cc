package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/caredesk/gatekit/internal/gate/service"
	"github.com/caredesk/gatekit/internal/gate/store"
	"github.com/caredesk/gatekit/pkg/httpx"
	"github.com/caredesk/gatekit/pkg/ratelimit"
	"github.com/caredesk/gatekit/pkg/slogx"
)

// Policies are the per-endpoint throttling budgets. Authentication endpoints
// run much tighter than general traffic.
type Policies struct {
	Login      ratelimit.Policy
	Register   ratelimit.Policy
	CheckEmail ratelimit.Policy
	General    ratelimit.Policy
}

// DefaultPolicies mirror the production configuration defaults.
func DefaultPolicies() Policies {
	return Policies{
		Login:      ratelimit.Policy{Max: 5, Window: 15 * time.Minute},
		Register:   ratelimit.Policy{Max: 3, Window: time.Hour},
		CheckEmail: ratelimit.Policy{Max: 10, Window: 15 * time.Minute},
		General:    ratelimit.Policy{Max: 100, Window: 15 * time.Minute},
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	limiter      *ratelimit.Limiter
	flood        *httpx.FloodGuard
	policies     Policies
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	TokenService *service.TokenService
	UserService  *service.UserService
}

func NewRouter(
	limiter *ratelimit.Limiter,
	flood *httpx.FloodGuard,
	policies Policies,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		limiter:      limiter,
		flood:        flood,
		policies:     policies,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Flood shedding runs before anything else, request logging wraps the lot.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.flood.Middleware(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	registerHandler := &RegisterHandler{UserService: r.UserService, Tokens: r.TokenService}
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(r.limiter, r.policies.Register),
		),
	)

	loginHandler := &LoginHandler{UserService: r.UserService, Tokens: r.TokenService}
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(r.limiter, r.policies.Login),
		),
	)

	refreshHandler := &RefreshHandler{Tokens: r.TokenService}
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(r.limiter, r.policies.General),
		),
	)

	// Logout must work for half-expired sessions, so authentication is
	// optional; the refresh cookie is what actually gets revoked.
	logoutHandler := &LogoutHandler{Tokens: r.TokenService}
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(logoutHandler,
			httpx.RateLimitByIP(r.limiter, r.policies.General),
			httpx.OptionalAuthn(r.TokenService),
		),
	)

	checkEmailHandler := &CheckEmailHandler{UserService: r.UserService}
	r.Mux.Handle("POST /v1/auth/check-email",
		httpx.Chain(checkEmailHandler,
			httpx.RateLimitByIP(r.limiter, r.policies.CheckEmail),
		),
	)
}

func (r *Router) registerUsers() {
	// Authentication runs first so the limiter sees the user id and keys on
	// the account rather than whatever address the client arrives from.
	profileHandler := &ProfileHandler{UserService: r.UserService}
	r.Mux.Handle("GET /v1/user/profile",
		httpx.Chain(http.HandlerFunc(profileHandler.HandleGet),
			httpx.Authn(r.TokenService),
			httpx.RateLimitByUser(r.limiter, r.policies.General),
		),
	)
	r.Mux.Handle("PUT /v1/user/profile",
		httpx.Chain(http.HandlerFunc(profileHandler.HandlePut),
			httpx.Authn(r.TokenService),
			httpx.RateLimitByUser(r.limiter, r.policies.General),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
