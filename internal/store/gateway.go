// internal/store/gateway.go
//
// Tenant-aware data gateway.
//
// Context
// -------
// All persistence for domain entities goes through a gateway.  Two flavours
// share one implementation:
//
//   - `Gateway`: any entity embedding domain.Model.  Applies the
//     soft-delete filter to every default read.
//   - `TenantGateway`: entities embedding domain.TenantModel.  Adds the
//     `tenant_id = <current tenant>` filter to every read, stamps the
//     tenant on Add, and rejects Update or Delete of an entity stamped with
//     another tenant.
//
// The current tenant comes from tenant.FromContext(ctx) and the acting user
// from auth.FromContext(ctx); both are resolved before the gateway is
// reached, so the gateway never re-resolves.
//
// Workflow (writes)
// -----------------
//  1. Guard: tenant resolved, entity tenant matches (TenantGateway only).
//  2. Stamp audit columns (created or modified) with now and the user id.
//  3. Pre-check every registered unique key with one COUNT query each.
//  4. Write with a named statement.  A racing insert that still trips the
//     database constraint (MySQL 1062) is reported as *DuplicateError.
//
// Notes
// -----
// • Delete is logical: `is_deleted = 1` plus modifier stamps.  Rows are
//   never physically removed.
// • A row owned by another tenant reads as ErrNotFound.
// • Oxford commas, two spaces after periods.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/domain"
	"github.com/yanizio/ome/internal/metrics"
	"github.com/yanizio/ome/internal/tenant"
)

// SystemActor stamps writes made without an authenticated user.
const SystemActor = "system"

type record[E any] interface {
	*E
	domain.Record
}

type tenantRecord[E any] interface {
	*E
	domain.TenantRecord
}

// core holds the SQL shared by both gateway flavours.
type core[E any, P record[E]] struct {
	db     sqlx.ExtContext
	table  Table
	tenant bool
	cols   string
	now    func() time.Time
}

func newCore[E any, P record[E]](db sqlx.ExtContext, t Table, tenantScoped bool) core[E, P] {
	return core[E, P]{
		db:     db,
		table:  t,
		tenant: tenantScoped,
		cols:   strings.Join(t.allColumns(tenantScoped), ", "),
		now:    time.Now,
	}
}

// scope returns the default filters.  ok is false when the gateway is
// tenant-scoped and no tenant is selected.
func (c *core[E, P]) scope(ctx context.Context, includeDeleted bool) (where []string, args []any, ok bool) {
	if !includeDeleted {
		where = append(where, "is_deleted = 0")
	}
	if c.tenant {
		tid := tenant.ID(ctx)
		if tid == uuid.Nil {
			return nil, nil, false
		}
		where = append(where, "tenant_id = ?")
		args = append(args, tid)
	}
	return where, args, true
}

func whereSQL(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (c *core[E, P]) get(ctx context.Context, id uuid.UUID, includeDeleted bool) (P, error) {
	where, args, ok := c.scope(ctx, includeDeleted)
	if !ok || id == uuid.Nil {
		return nil, ErrNotFound
	}
	where = append([]string{"id = ?"}, where...)
	args = append([]any{id}, args...)

	q := "SELECT " + c.cols + " FROM " + c.table.Name + whereSQL(where) + " LIMIT 1"
	var e E
	if err := sqlx.GetContext(ctx, c.db, &e, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", c.table.Name, err)
	}
	return P(&e), nil
}

func (c *core[E, P]) list(ctx context.Context, p Predicate, includeDeleted bool) ([]P, error) {
	where, args, ok := c.scope(ctx, includeDeleted)
	if !ok {
		return []P{}, nil
	}
	if p.clause != "" {
		where = append(where, "("+p.clause+")")
		args = append(args, p.args...)
	}

	q := "SELECT " + c.cols + " FROM " + c.table.Name + whereSQL(where) + " ORDER BY created_at, id"
	var rows []E
	if err := sqlx.SelectContext(ctx, c.db, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", c.table.Name, err)
	}
	out := make([]P, len(rows))
	for i := range rows {
		out[i] = P(&rows[i])
	}
	return out, nil
}

func (c *core[E, P]) add(ctx context.Context, e P) (P, error) {
	e.Base().StampCreated(c.now().UTC(), actor(ctx))

	if err := c.checkUnique(ctx, e, false); err != nil {
		return nil, err
	}

	cols := c.table.allColumns(c.tenant)
	q := "INSERT INTO " + c.table.Name + " (" + c.cols + ") VALUES (:" + strings.Join(cols, ", :") + ")"
	if _, err := sqlx.NamedExecContext(ctx, c.db, q, e); err != nil {
		if isDuplicateKey(err) {
			metrics.DuplicateRejectionsTotal.WithLabelValues(c.table.Name).Inc()
			return nil, &DuplicateError{Table: c.table.Name}
		}
		return nil, fmt.Errorf("insert %s: %w", c.table.Name, err)
	}
	return e, nil
}

func (c *core[E, P]) update(ctx context.Context, e P) error {
	b := e.Base()
	if b.ID == uuid.Nil {
		return ErrNotFound
	}
	if err := c.checkUnique(ctx, e, true); err != nil {
		return err
	}
	b.StampModified(c.now().UTC(), actor(ctx))

	mutable := c.table.mutableColumns()
	sets := make([]string, 0, len(mutable)+2)
	for _, col := range mutable {
		sets = append(sets, col+" = :"+col)
	}
	sets = append(sets, "last_modified_at = :last_modified_at", "last_modified_by = :last_modified_by")

	where := []string{"id = :id", "is_deleted = 0"}
	if c.tenant {
		where = append(where, "tenant_id = :tenant_id")
	}

	q := "UPDATE " + c.table.Name + " SET " + strings.Join(sets, ", ") + whereSQL(where)
	res, err := sqlx.NamedExecContext(ctx, c.db, q, e)
	if err != nil {
		if isDuplicateKey(err) {
			metrics.DuplicateRejectionsTotal.WithLabelValues(c.table.Name).Inc()
			return &DuplicateError{Table: c.table.Name}
		}
		return fmt.Errorf("update %s: %w", c.table.Name, err)
	}
	return affectedOne(res)
}

func (c *core[E, P]) delete(ctx context.Context, e P) error {
	b := e.Base()
	if b.ID == uuid.Nil {
		return ErrNotFound
	}
	b.StampModified(c.now().UTC(), actor(ctx))

	where := []string{"id = ?", "is_deleted = 0"}
	args := []any{*b.LastModifiedAt, b.LastModifiedBy, b.ID}
	if c.tenant {
		where = append(where, "tenant_id = ?")
		args = append(args, any(e).(domain.TenantRecord).Tenancy().TenantID)
	}

	q := "UPDATE " + c.table.Name + " SET is_deleted = 1, last_modified_at = ?, last_modified_by = ?" + whereSQL(where)
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.table.Name, err)
	}
	if err := affectedOne(res); err != nil {
		return err
	}
	b.IsDeleted = true
	return nil
}

// checkUnique runs one COUNT per registered key.  Per-tenant keys are
// compared within the entity's tenant, soft-deleted rows count only for
// keys whose index covers them, and excludeSelf skips the entity's own
// row during Update.
func (c *core[E, P]) checkUnique(ctx context.Context, e P, excludeSelf bool) error {
	for _, k := range c.table.Unique {
		var conds []string
		if !k.IncludeDeleted {
			conds = append(conds, "is_deleted = 0")
		}
		for _, col := range k.Columns {
			conds = append(conds, col+" = :"+col)
		}
		if c.tenant && !k.Global {
			conds = append(conds, "tenant_id = :tenant_id")
		}
		if excludeSelf {
			conds = append(conds, "id <> :id")
		}

		q, args, err := sqlx.Named("SELECT COUNT(*) FROM "+c.table.Name+whereSQL(conds), e)
		if err != nil {
			return fmt.Errorf("unique check %s: %w", c.table.Name, err)
		}
		var n int
		if err := sqlx.GetContext(ctx, c.db, &n, c.db.Rebind(q), args...); err != nil {
			return fmt.Errorf("unique check %s: %w", c.table.Name, err)
		}
		if n > 0 {
			metrics.DuplicateRejectionsTotal.WithLabelValues(c.table.Name).Inc()
			return &DuplicateError{Table: c.table.Name, Key: k.Columns}
		}
	}
	return nil
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func actor(ctx context.Context) string {
	if id := auth.FromContext(ctx).UserID(); id != "" {
		return id
	}
	return SystemActor
}

//
// Gateway (soft-delete only)
//

// Gateway persists entities that are not tenant-scoped.
type Gateway[E any, P record[E]] struct {
	c core[E, P]
}

// NewGateway registers t for entity type E.
func NewGateway[E any, P record[E]](db sqlx.ExtContext, t Table) *Gateway[E, P] {
	return &Gateway[E, P]{c: newCore[E, P](db, t, false)}
}

// Get returns the non-deleted entity with id or ErrNotFound.
func (g *Gateway[E, P]) Get(ctx context.Context, id uuid.UUID) (P, error) {
	return g.c.get(ctx, id, false)
}

// GetIncludingDeleted is the administrative read that also sees
// soft-deleted rows.
func (g *Gateway[E, P]) GetIncludingDeleted(ctx context.Context, id uuid.UUID) (P, error) {
	return g.c.get(ctx, id, true)
}

// List returns non-deleted entities matching p.
func (g *Gateway[E, P]) List(ctx context.Context, p Predicate) ([]P, error) {
	return g.c.list(ctx, p, false)
}

// ListIncludingDeleted is the administrative enumeration of every row.
func (g *Gateway[E, P]) ListIncludingDeleted(ctx context.Context, p Predicate) ([]P, error) {
	return g.c.list(ctx, p, true)
}

// Add stamps creation fields and inserts e.
func (g *Gateway[E, P]) Add(ctx context.Context, e P) (P, error) { return g.c.add(ctx, e) }

// Update stamps modification fields and rewrites the mutable columns.
func (g *Gateway[E, P]) Update(ctx context.Context, e P) error { return g.c.update(ctx, e) }

// Delete marks e deleted.
func (g *Gateway[E, P]) Delete(ctx context.Context, e P) error { return g.c.delete(ctx, e) }
