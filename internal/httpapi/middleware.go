package httpapi

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/yanizio/ome/internal/acl"
	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/tenant"
)

// Authenticate installs a fresh SecurityContext and tenant Context on
// every request.  On protected paths it then reads the bearer token,
// refreshes it once from the refresh cookie when it no longer validates,
// and populates the principal.  A request whose token cannot be recovered
// proceeds anonymously unless RejectUnrefreshable is set.
//
// The tenant is pinned here: a non-UUID tenant claim is resolved through
// the directory, and an id that names no active tenant is cleared.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sec := auth.NewSecurityContext()
		tc := tenant.NewContext(r, sec)
		ctx := tenant.WithContext(auth.WithSecurity(r.Context(), sec), tc)

		if !s.protected(r.URL.Path) {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		log := logger.FromContext(ctx).With("request_id", chimw.GetReqID(ctx))
		ctx = logger.WithContext(ctx, log)

		if token := s.bearer(r); token != "" {
			valid, ok := s.ensureValid(ctx, w, r, token)
			switch {
			case ok:
				s.establish(ctx, sec, valid)
			case s.opts.RejectUnrefreshable:
				writeError(w, r.WithContext(ctx), acl.ErrUnauthenticated)
				return
			}
		}

		tid := s.pinTenant(ctx, tc)
		if tid != uuid.Nil {
			log = log.With(logger.TenantField, tid.String())
		}
		if sec.IsAuthenticated() {
			log = log.With("user_id", sec.UserID())
		}
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx, log)))
	})
}

// bearer returns the access token from the Authorization header, the
// access cookie, or, on the realtime path only, the access_token query
// parameter.
func (s *Server) bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if v := cookieValue(r, cookieAccess); v != "" {
		return v
	}
	if r.URL.Path == s.opts.RealtimePath {
		return r.URL.Query().Get(cookieAccess)
	}
	return ""
}

// ensureValid returns a token that validates, refreshing at most once.
// A refreshed access token is written back as a cookie.
func (s *Server) ensureValid(ctx context.Context, w http.ResponseWriter, r *http.Request, token string) (string, bool) {
	if s.deps.OIDC.Validate(ctx, token) {
		return token, true
	}
	log := logger.FromContext(ctx)

	rt := cookieValue(r, cookieRefresh)
	if rt == "" {
		log.Debugw("token invalid and no refresh cookie")
		return "", false
	}
	ts, err := s.deps.OIDC.Refresh(ctx, rt)
	if err != nil {
		log.Infow("token refresh failed", "err", err)
		return "", false
	}

	s.setCookie(w, cookieAccess, ts.AccessToken, s.opts.CookieMaxAge)
	if ts.RefreshToken != "" && ts.RefreshToken != rt {
		s.setCookie(w, cookieRefresh, ts.RefreshToken, s.opts.RefreshCookieMaxAge)
	}
	log.Debugw("access token refreshed")
	return ts.AccessToken, true
}

// establish decodes token into the principal.  A tenant key that is not a
// UUID is mapped to the tenant id; an unknown key leaves the claim unset.
func (s *Server) establish(ctx context.Context, sec *auth.SecurityContext, token string) {
	info, err := s.deps.OIDC.TokenInfo(token)
	if err != nil {
		logger.FromContext(ctx).Warnw("validated token failed to decode", "err", err)
		return
	}
	id := auth.NewIdentity(info)
	if id.TenantKey != "" && s.deps.Directory != nil {
		tid, err := s.deps.Directory.ResolveKey(ctx, id.TenantKey)
		if err != nil {
			logger.FromContext(ctx).Infow("tenant key not resolved", "tenant_key", id.TenantKey, "err", err)
		} else {
			id.TenantID = tid
		}
	}
	sec.SetPrincipal(id)
}

// pinTenant fixes the request tenant to an active one or to uuid.Nil.
func (s *Server) pinTenant(ctx context.Context, tc *tenant.Context) uuid.UUID {
	tid := tc.TenantID()
	if tid == uuid.Nil || s.deps.Directory == nil {
		return tid
	}
	ok, err := s.deps.Directory.Exists(ctx, tid)
	if err != nil || !ok {
		logger.FromContext(ctx).Infow("request names unknown tenant", logger.TenantField+"_requested", tid.String(), "err", err)
		tc.SetTenantID(uuid.Nil)
		return uuid.Nil
	}
	tc.SetTenantID(tid)
	return tid
}
