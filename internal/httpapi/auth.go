// internal/httpapi/auth.go
//
// Browser login flow.
//
// Context
// -------
// `/auth/login` stores a random state and the requested return path in a
// short-lived server-side session, then sends the browser to the
// provider.  `/auth/callback` checks the state, trades the code for
// tokens, derives the tenant from the groups claim, sets the
// `access_token`, `refresh_token`, and `tenant_id` cookies, and returns
// the browser to the frontend.  `/auth/logout` revokes the refresh token
// and clears everything, even when the provider is unreachable.
//
// Notes
// -----
// • A callback without a live login session is treated as a failed login.
// • Oxford commas, two spaces after periods.
package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/requestinfo"
	"github.com/yanizio/ome/internal/session"
)

const defaultReturnPath = "/dashboard"

// Error indicators understood by the frontend's /auth/error page.
const (
	msgNoGroup      = "No+group+found"
	msgNoCompany    = "No+company+group+assigned"
	msgLoginFailure = "Authentication+failed"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	st := session.State{
		State:       uuid.NewString(),
		RedirectURI: localPath(r.URL.Query().Get("redirectUri"), defaultReturnPath),
	}
	sid := session.NewID()
	if err := s.deps.Sessions.Save(ctx, sid, st); err != nil {
		writeError(w, r, err)
		return
	}
	session.SetCookie(w, s.opts.SessionCookie, sid, s.opts.CookieSecure, s.opts.SessionTTL)

	log.Infow("login started", append([]any{"redirect_uri", st.RedirectURI}, auditFields(r)...)...)
	http.Redirect(w, r, s.deps.OIDC.AuthorizationURL(s.callbackURL(r), st.State), http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	q := r.URL.Query()

	sid, ok := session.IDFromRequest(r, s.opts.SessionCookie)
	if !ok {
		log.Warnw("callback without login session", auditFields(r)...)
		s.failLogin(w, r, msgLoginFailure)
		return
	}
	st, err := s.deps.Sessions.Load(ctx, sid)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			log.Errorw("login session load failed", "err", err)
		}
		session.ClearCookie(w, s.opts.SessionCookie, s.opts.CookieSecure)
		s.failLogin(w, r, msgLoginFailure)
		return
	}
	if st.State == "" || q.Get("state") != st.State {
		log.Warnw("callback state mismatch", auditFields(r)...)
		writeError(w, r, badRequest("invalid state parameter"))
		return
	}

	// The state is single-use from here on.
	if err := s.deps.Sessions.Delete(ctx, sid); err != nil {
		log.Warnw("login session delete failed", "err", err)
	}
	session.ClearCookie(w, s.opts.SessionCookie, s.opts.CookieSecure)

	code := q.Get("code")
	if code == "" {
		s.failLogin(w, r, msgLoginFailure)
		return
	}
	ts, err := s.deps.OIDC.ExchangeCode(ctx, code, s.callbackURL(r))
	if err != nil {
		log.Warnw("code exchange failed", append([]any{"err", err}, auditFields(r)...)...)
		s.failLogin(w, r, msgLoginFailure)
		return
	}
	info, err := s.deps.OIDC.TokenInfo(ts.AccessToken)
	if err != nil {
		log.Warnw("issued token failed to decode", "err", err)
		s.failLogin(w, r, msgLoginFailure)
		return
	}

	if !hasGroup(info.Groups) {
		log.Infow("login without groups", append([]any{"user_id", info.UserID}, auditFields(r)...)...)
		s.failLogin(w, r, msgNoGroup)
		return
	}
	seg, err := auth.TenantFromGroups(info.Groups)
	if err != nil {
		log.Infow("login without company group", append([]any{"user_id", info.UserID}, auditFields(r)...)...)
		s.failLogin(w, r, msgNoCompany)
		return
	}

	s.setCookie(w, cookieAccess, ts.AccessToken, s.opts.CookieMaxAge)
	if ts.RefreshToken != "" {
		s.setCookie(w, cookieRefresh, ts.RefreshToken, s.opts.RefreshCookieMaxAge)
	}
	s.setCookie(w, cookieTenant, seg, s.opts.CookieMaxAge)

	dest := dashboardPath(st.RedirectURI, seg)
	log.Infow("login completed", append([]any{"user_id", info.UserID, "tenant", seg}, auditFields(r)...)...)
	http.Redirect(w, r, s.frontendURL(r)+dest, http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if rt := cookieValue(r, cookieRefresh); rt != "" {
		s.deps.OIDC.Revoke(ctx, rt)
	}
	for _, name := range []string{cookieAccess, cookieRefresh, cookieTenant} {
		s.clearCookie(w, name)
	}
	if sid, ok := session.IDFromRequest(r, s.opts.SessionCookie); ok {
		if err := s.deps.Sessions.Delete(ctx, sid); err != nil {
			logger.FromContext(ctx).Warnw("session delete failed", "err", err)
		}
	}
	session.ClearCookie(w, s.opts.SessionCookie, s.opts.CookieSecure)

	logger.FromContext(ctx).Infow("logout", auditFields(r)...)
	http.Redirect(w, r, s.frontendURL(r)+localPath(r.URL.Query().Get("redirectUri"), "/"), http.StatusFound)
}

func (s *Server) failLogin(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, s.frontendURL(r)+"/auth/error?message="+msg, http.StatusFound)
}

// callbackURL is the redirect URI registered with the provider.
func (s *Server) callbackURL(r *http.Request) string {
	return requestOrigin(r) + "/auth/callback"
}

// frontendURL is the configured frontend base, or this request's origin.
func (s *Server) frontendURL(r *http.Request) string {
	if s.opts.FrontendBaseURL != "" {
		return s.opts.FrontendBaseURL
	}
	return requestOrigin(r)
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// localPath returns p when it is a same-site absolute path, else def.
func localPath(p, def string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return def
	}
	return p
}

// dashboardPath points dashboard returns at the tenant's dashboard.
func dashboardPath(p, tenantSeg string) string {
	switch {
	case p == "" || p == defaultReturnPath:
		return defaultReturnPath + "/" + tenantSeg
	case strings.HasPrefix(p, defaultReturnPath) && !strings.Contains(p, tenantSeg):
		return defaultReturnPath + "/" + tenantSeg
	}
	return p
}

func hasGroup(groups []string) bool {
	for _, g := range groups {
		if strings.TrimSpace(g) != "" {
			return true
		}
	}
	return false
}

func auditFields(r *http.Request) []any {
	if info := requestinfo.FromContext(r.Context()); info != nil {
		return info.Fields()
	}
	return nil
}
