// internal/acl/middleware.go
//
// Role-string authorization checks and chi middleware.
//
// Context
// -------
// Authorization is role matching only: a caller passes when the union of
// its token roles and manually injected roles contains ANY of the required
// roles.  Roles outside the closed enumeration never match, even if a
// token carries them.
//
// `Authorize` is the check used inside business operations.  `Guard`
// wraps it as chi middleware; the HTTP layer supplies `OnDenied` so denials
// are rendered with the service's error payload.
//
// Notes
// -----
// • Unauthenticated callers get ErrUnauthenticated, authenticated callers
//   without a matching role get ErrForbidden.
// • Oxford commas, two spaces after periods.
package acl

import (
	"context"
	"errors"
	"net/http"

	"github.com/yanizio/ome/internal/auth"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient role")
)

// Authorize checks the request identity in ctx against roles.  With no
// roles it only requires authentication.
func Authorize(ctx context.Context, roles ...auth.Role) error {
	sec := auth.FromContext(ctx)
	if !sec.IsAuthenticated() {
		return ErrUnauthenticated
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if sec.IsInRole(r) {
			return nil
		}
	}
	return ErrForbidden
}

// Guard builds middleware.  The zero value answers denials with plain-text
// status responses.
type Guard struct {
	OnDenied func(w http.ResponseWriter, r *http.Request, err error)
}

// RequireRole ensures the current user possesses ANY of the supplied roles.
func (g Guard) RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		panic("acl.RequireRole: at least one role must be supplied")
	}
	return g.require(roles)
}

// RequireAuthenticated rejects anonymous callers.
func (g Guard) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.require(nil)
}

func (g Guard) require(roles []auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authorize(r.Context(), roles...); err != nil {
				g.deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g Guard) deny(w http.ResponseWriter, r *http.Request, err error) {
	if g.OnDenied != nil {
		g.OnDenied(w, r, err)
		return
	}
	status := http.StatusForbidden
	if errors.Is(err, ErrUnauthenticated) {
		status = http.StatusUnauthorized
	}
	http.Error(w, http.StatusText(status), status)
}

// RequireRole is Guard{}.RequireRole.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return Guard{}.RequireRole(roles...)
}
