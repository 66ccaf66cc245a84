package auth

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrNoTenantGroup is returned when a token carries no usable groups claim.
var ErrNoTenantGroup = errors.New("no tenant group in claims")

// Identity is the resolved caller for one request.
type Identity struct {
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Roles         []string  `json:"roles"`
	TenantID      uuid.UUID `json:"tenantId"`
	TenantKey     string    `json:"-"` // raw claim value when it is not a UUID
	Authenticated bool      `json:"authenticated"`
}

// Claims is the decode-only view of a token that Identity is built from.
// oidc.TokenInfo satisfies it.
type Claims interface {
	Subject() string
	PreferredUsername() string
	EmailAddress() string
	TenantClaim() string
	RoleClaims() []string
}

// NewIdentity maps claims onto an Identity.  Role strings are copied
// verbatim.  The tenant claim is parsed as a UUID; any other value is kept
// in TenantKey for a directory lookup by the caller.
func NewIdentity(c Claims) Identity {
	id := Identity{
		UserID:        c.Subject(),
		Username:      c.PreferredUsername(),
		Email:         c.EmailAddress(),
		Roles:         append([]string(nil), c.RoleClaims()...),
		Authenticated: c.Subject() != "",
	}
	raw := strings.TrimSpace(c.TenantClaim())
	if raw == "" {
		return id
	}
	if tid, err := uuid.Parse(raw); err == nil {
		id.TenantID = tid
	} else {
		id.TenantKey = raw
	}
	return id
}

// TenantFromGroups extracts the tenant segment from a groups claim of the
// form "/parentGroup/<tenant>".  The first non-empty group is used and the
// path segment after its final "/" is returned.  A group ending in "/"
// yields ErrNoTenantGroup rather than an empty tenant.
func TenantFromGroups(groups []string) (string, error) {
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		seg := g[strings.LastIndex(g, "/")+1:]
		if seg == "" {
			return "", ErrNoTenantGroup
		}
		return seg, nil
	}
	return "", ErrNoTenantGroup
}
