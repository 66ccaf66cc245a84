package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/metrics"
	"github.com/yanizio/ome/internal/tenant"
)

// TenantGateway persists tenant-scoped entities.  Every read is limited to
// the request's tenant; with no tenant selected reads are empty and writes
// fail with ErrTenantUnresolved.
type TenantGateway[E any, P tenantRecord[E]] struct {
	c core[E, P]
}

// NewTenantGateway registers t for tenant-scoped entity type E.
func NewTenantGateway[E any, P tenantRecord[E]](db sqlx.ExtContext, t Table) *TenantGateway[E, P] {
	return &TenantGateway[E, P]{c: newCore[E, P](db, t, true)}
}

// Get returns the entity with id in the current tenant or ErrNotFound.
func (g *TenantGateway[E, P]) Get(ctx context.Context, id uuid.UUID) (P, error) {
	return g.c.get(ctx, id, false)
}

// GetIncludingDeleted also sees soft-deleted rows of the current tenant.
func (g *TenantGateway[E, P]) GetIncludingDeleted(ctx context.Context, id uuid.UUID) (P, error) {
	return g.c.get(ctx, id, true)
}

// List returns the current tenant's non-deleted entities matching p.
func (g *TenantGateway[E, P]) List(ctx context.Context, p Predicate) ([]P, error) {
	return g.c.list(ctx, p, false)
}

// ListIncludingDeleted enumerates the current tenant's rows, soft-deleted
// ones included.
func (g *TenantGateway[E, P]) ListIncludingDeleted(ctx context.Context, p Predicate) ([]P, error) {
	return g.c.list(ctx, p, true)
}

// Add stamps the current tenant (ignoring whatever the caller set), the
// creation fields, and inserts e.
func (g *TenantGateway[E, P]) Add(ctx context.Context, e P) (P, error) {
	tid := tenant.ID(ctx)
	if tid == uuid.Nil {
		return nil, ErrTenantUnresolved
	}
	e.Tenancy().TenantID = tid
	return g.c.add(ctx, e)
}

// Update rewrites e after the cross-tenant guard.
func (g *TenantGateway[E, P]) Update(ctx context.Context, e P) error {
	if err := g.guard(ctx, e); err != nil {
		return err
	}
	return g.c.update(ctx, e)
}

// Delete marks e deleted after the cross-tenant guard.
func (g *TenantGateway[E, P]) Delete(ctx context.Context, e P) error {
	if err := g.guard(ctx, e); err != nil {
		return err
	}
	return g.c.delete(ctx, e)
}

func (g *TenantGateway[E, P]) guard(ctx context.Context, e P) error {
	cur := tenant.ID(ctx)
	if cur == uuid.Nil {
		return ErrTenantUnresolved
	}
	if owner := e.Tenancy().TenantID; owner != cur {
		metrics.CrossTenantDenialsTotal.Inc()
		logger.FromContext(ctx).Warnw("cross-tenant access denied",
			"table", g.c.table.Name,
			"entity_id", e.Base().ID,
			"entity_tenant", owner,
			"current_tenant", cur,
			"user_id", auth.FromContext(ctx).UserID(),
		)
		return ErrCrossTenantAccess
	}
	return nil
}
