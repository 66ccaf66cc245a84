package httpapi

import (
	"net/http"
	"time"
)

// Token cookie names shared with the frontend.
const (
	cookieAccess  = "access_token"
	cookieRefresh = "refresh_token"
	cookieTenant  = "tenant_id"
)

// setCookie writes an HTTP-only, site-wide cookie.  Secure cookies use
// SameSite=None so the frontend on another origin still sends them;
// insecure ones fall back to Lax, which browsers accept over plain HTTP.
func (s *Server) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: s.sameSite(),
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: s.sameSite(),
	})
}

func (s *Server) sameSite() http.SameSite {
	if s.opts.CookieSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
