// internal/auth/context.go
//
// Request-scoped security context.
//
// Context
// -------
// A `SecurityContext` is created once per request by the authentication
// middleware and travels inside `context.Context`.  Identity reaches it on
// two paths:
//
//   - claims path: `SetPrincipal` with an Identity decoded from a
//     validated bearer token.
//   - manual path: `SetUserID` / `AddRole`, used where no token is at
//     hand.  The realtime hub fills each connection's holder this way from
//     the handshake identity.
//
// `IsInRole` and `Roles` see the union of both paths; `IsAuthenticated` is
// true when either path supplied a user.
//
// Usage
// -----
//
//	sec := auth.NewSecurityContext()
//	ctx = auth.WithSecurity(ctx, sec)
//	…
//	auth.FromContext(ctx).IsInRole(auth.RoleAdmin)
//
// Notes
// -----
// • A SecurityContext is never shared between requests.
// • Oxford commas, two spaces after periods.
package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// securityKey is unexported to avoid context-key collisions.
type securityKey struct{}

// SecurityContext is the mutable identity holder for one request.
type SecurityContext struct {
	mu          sync.RWMutex
	principal   *Identity
	userID      string
	manualRoles []string
}

// NewSecurityContext returns an empty, unauthenticated holder.
func NewSecurityContext() *SecurityContext { return &SecurityContext{} }

// WithSecurity returns a new context carrying sec.
func WithSecurity(ctx context.Context, sec *SecurityContext) context.Context {
	return context.WithValue(ctx, securityKey{}, sec)
}

// FromContext returns the SecurityContext stored in ctx.  When none was
// installed it returns an empty holder so callers never nil-check.
func FromContext(ctx context.Context) *SecurityContext {
	if sec, ok := ctx.Value(securityKey{}).(*SecurityContext); ok && sec != nil {
		return sec
	}
	return &SecurityContext{}
}

// SetPrincipal installs the claims-derived identity.
func (s *SecurityContext) SetPrincipal(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := id
	cp.Roles = append([]string(nil), id.Roles...)
	s.principal = &cp
}

// SetUserID sets the user on the manual path.
func (s *SecurityContext) SetUserID(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// AddRole appends a role on the manual path.  Duplicates are ignored.
func (s *SecurityContext) AddRole(role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.manualRoles {
		if r == role {
			return
		}
	}
	s.manualRoles = append(s.manualRoles, role)
}

// Principal returns a copy of the claims-derived identity, if any.
func (s *SecurityContext) Principal() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return Identity{}, false
	}
	return *s.principal, true
}

// UserID prefers the manually injected id over the principal's subject.
func (s *SecurityContext) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID != "" {
		return s.userID
	}
	if s.principal != nil && s.principal.Authenticated {
		return s.principal.UserID
	}
	return ""
}

// Username returns the principal's preferred username.
func (s *SecurityContext) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil || !s.principal.Authenticated {
		return ""
	}
	return s.principal.Username
}

// Email returns the principal's email.
func (s *SecurityContext) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil || !s.principal.Authenticated {
		return ""
	}
	return s.principal.Email
}

// IsAuthenticated is true when a principal authenticated or a manual user id
// was injected.
func (s *SecurityContext) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAuthenticatedLocked()
}

func (s *SecurityContext) isAuthenticatedLocked() bool {
	return (s.principal != nil && s.principal.Authenticated) || s.userID != ""
}

// Roles returns the de-duplicated union of principal and manual roles.
// Unauthenticated holders report no roles.
func (s *SecurityContext) Roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isAuthenticatedLocked() {
		return nil
	}
	seen := make(map[string]struct{}, 8)
	out := make([]string, 0, 8)
	add := func(rs []string) {
		for _, r := range rs {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	if s.principal != nil {
		add(s.principal.Roles)
	}
	add(s.manualRoles)
	return out
}

// IsInRole reports whether the union of roles contains role and role is a
// member of the closed enumeration.
func (s *SecurityContext) IsInRole(role Role) bool {
	if !role.Valid() {
		return false
	}
	for _, r := range s.Roles() {
		if r == string(role) {
			return true
		}
	}
	return false
}

// TenantClaim returns the tenant id carried by the validated token, or
// uuid.Nil when the principal has none.
func (s *SecurityContext) TenantClaim() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil || !s.principal.Authenticated {
		return uuid.Nil
	}
	return s.principal.TenantID
}
