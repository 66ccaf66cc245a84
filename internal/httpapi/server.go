// internal/httpapi/server.go
//
// HTTP boundary of the API.
//
// Context
// -------
// `Server` owns the chi router and every handler that faces a browser or
// an API client:
//
//   - `/auth/login`, `/auth/callback`, `/auth/logout`: the OAuth
//     authorization-code flow against the identity provider.
//   - `/api/me`, `/api/tenant`, `/api/users/*`: the caller's identity,
//     current tenant, and user management.
//   - `/api/admin/tenants/*`: tenant administration for `OmeSuperUser`.
//   - `/api/logs`: the current tenant's recent log entries.
//   - the realtime subscription path, handed to the websocket hub.
//
// `Authenticate` runs in front of all of them and fills the request's
// security and tenant contexts.
//
// Notes
// -----
// • Business rules live in the services; handlers decode, call, and map
//   errors through writeError.
// • Oxford commas, two spaces after periods.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/yanizio/ome/internal/acl"
	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/oidc"
	"github.com/yanizio/ome/internal/requestinfo"
	"github.com/yanizio/ome/internal/session"
	"github.com/yanizio/ome/internal/store"
	"github.com/yanizio/ome/internal/tenant"
	"github.com/yanizio/ome/internal/tenant/meta"
	"github.com/yanizio/ome/internal/users"
)

// Options carries the HTTP-facing settings.
type Options struct {
	FrontendBaseURL     string
	RealtimePath        string
	APIPaths            []string
	CookieSecure        bool
	CookieMaxAge        time.Duration
	RefreshCookieMaxAge time.Duration
	RejectUnrefreshable bool
	SessionCookie       string
	SessionTTL          time.Duration
}

// Deps are the collaborators the handlers call.  Realtime and Logs may be
// nil; their routes are then not mounted.
type Deps struct {
	OIDC      *oidc.Client
	Directory *tenant.Directory
	Sessions  session.Store
	Users     *users.Service
	Tenants   *store.Gateway[meta.Record, *meta.Record]
	Logs      *logger.TenantBuffer
	Realtime  http.Handler
}

// Server serves the API.
type Server struct {
	opts     Options
	deps     Deps
	guard    acl.Guard
	validate *validator.Validate
}

// New applies defaults to opts and returns a Server.
func New(opts Options, deps Deps) *Server {
	if opts.RealtimePath == "" {
		opts.RealtimePath = "/graphql/ws"
	}
	if len(opts.APIPaths) == 0 {
		opts.APIPaths = []string{"/graphql", "/api"}
	}
	if opts.SessionCookie == "" {
		opts.SessionCookie = session.DefaultCookieName
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 10 * time.Minute
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = time.Hour
	}
	if opts.RefreshCookieMaxAge <= 0 {
		opts.RefreshCookieMaxAge = 30 * 24 * time.Hour
	}
	opts.FrontendBaseURL = strings.TrimRight(opts.FrontendBaseURL, "/")

	return &Server{
		opts:     opts,
		deps:     deps,
		guard:    acl.Guard{OnDenied: writeError},
		validate: validator.New(),
	}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestinfo.Enrich)
	r.Use(s.Authenticate)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.login)
		r.Get("/callback", s.callback)
		r.Get("/logout", s.logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.With(s.guard.RequireAuthenticated()).Get("/me", s.me)
		r.With(s.guard.RequireAuthenticated()).Get("/tenant", s.currentTenant)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.listUsers)
			r.Post("/", s.createUser)
			r.Get("/{id}", s.getUser)
			r.Put("/{id}", s.updateUser)
			r.Delete("/{id}", s.deleteUser)
		})

		if s.deps.Logs != nil {
			r.With(s.guard.RequireRole(auth.RoleAdmin, auth.RoleSuperUser)).Get("/logs", s.logs)
		}

		r.Route("/admin/tenants", func(r chi.Router) {
			r.Use(s.guard.RequireRole(auth.RoleSuperUser))
			r.Get("/", s.listTenants)
			r.Post("/", s.createTenant)
			r.Delete("/{id}", s.deleteTenant)
		})
	})

	if s.deps.Realtime != nil {
		r.Get(s.opts.RealtimePath, s.deps.Realtime.ServeHTTP)
	}
	return r
}

// protected reports whether path is subject to token authentication.
func (s *Server) protected(path string) bool {
	if path == s.opts.RealtimePath {
		return true
	}
	for _, p := range s.opts.APIPaths {
		if path == p || strings.HasPrefix(path, strings.TrimRight(p, "/")+"/") {
			return true
		}
	}
	return false
}
