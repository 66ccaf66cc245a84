// internal/tenant/context.go
//
// Per-request tenant resolution.
//
// Context
// -------
// A `Context` is created once per request by the authentication middleware
// and stored in `context.Context`.  The tenant id is resolved lazily on the
// first `TenantID` call and memoized for the rest of the request.  Sources,
// first match wins:
//
//  1. tenant claim of the validated token (via `ClaimSource`),
//  2. query parameter `tenantId`,
//  3. header `X-TenantId`.
//
// When none yields a UUID the request is Unresolved and `TenantID` returns
// `uuid.Nil`.  Tenant-scoped reads then return empty results; this is "no
// tenant selected", not an error.  `SetTenantID` overwrites and re-pins the
// value for the remainder of the request.
//
// Notes
// -----
// • One Context per request; never share across requests.
// • Oxford commas, two spaces after periods.
package tenant

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	QueryParam = "tenantId"
	Header     = "X-TenantId"
)

// ClaimSource supplies the tenant id embedded in a validated token.
// *auth.SecurityContext satisfies it.
type ClaimSource interface {
	TenantClaim() uuid.UUID
}

// Context holds the memoized tenant for one request.
type Context struct {
	mu       sync.Mutex
	claims   ClaimSource
	query    string
	header   string
	resolved bool
	id       uuid.UUID
}

// NewContext captures the request-side sources.  claims may be nil.
func NewContext(r *http.Request, claims ClaimSource) *Context {
	c := &Context{claims: claims}
	if r != nil {
		c.query = strings.TrimSpace(r.URL.Query().Get(QueryParam))
		c.header = strings.TrimSpace(r.Header.Get(Header))
	}
	return c
}

// Fixed returns a Context already pinned to id.  Used by background work
// that acts on behalf of a known tenant.
func Fixed(id uuid.UUID) *Context {
	return &Context{resolved: true, id: id}
}

// TenantID returns the resolved tenant, or uuid.Nil when Unresolved.
func (c *Context) TenantID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resolved {
		c.id = c.resolveLocked()
		c.resolved = true
	}
	return c.id
}

// Resolved reports whether a tenant is selected.
func (c *Context) Resolved() bool { return c.TenantID() != uuid.Nil }

// SetTenantID re-pins the tenant for the rest of the request.
func (c *Context) SetTenantID(id uuid.UUID) {
	c.mu.Lock()
	c.id = id
	c.resolved = true
	c.mu.Unlock()
}

func (c *Context) resolveLocked() uuid.UUID {
	if c.claims != nil {
		if id := c.claims.TenantClaim(); id != uuid.Nil {
			return id
		}
	}
	if id, err := uuid.Parse(c.query); err == nil && id != uuid.Nil {
		return id
	}
	if id, err := uuid.Parse(c.header); err == nil && id != uuid.Nil {
		return id
	}
	return uuid.Nil
}

//
// context.Context helpers
//

type ctxKey struct{}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the request's tenant Context.  When none was
// installed an Unresolved Context is returned.
func FromContext(ctx context.Context) *Context {
	if tc, ok := ctx.Value(ctxKey{}).(*Context); ok && tc != nil {
		return tc
	}
	return Fixed(uuid.Nil)
}

// ID is shorthand for FromContext(ctx).TenantID().
func ID(ctx context.Context) uuid.UUID { return FromContext(ctx).TenantID() }
