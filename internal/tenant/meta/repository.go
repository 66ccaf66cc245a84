// internal/tenant/meta/repository.go
//
// Tenant-table query helpers.
//
// Context
// -------
// These functions provide read-only access to the **tenants** table for
// the tenant Directory:
//
//   - `ActiveByID`: record lookup on first request for a tenant.
//   - `ActiveExists`: cheap existence check used by the auth middleware.
//   - `ActiveIDByKey`: maps a non-UUID group segment (tenant name or
//     external group id) to the tenant id.
//
// Every helper excludes inactive and soft-deleted rows at SQL level so
// callers never see a retired tenant.
//
// Workflow
// --------
//  1. Callers supply a *sqlx.DB that is already connected to the control-
//     plane database.
//  2. Each helper executes exactly one parameterised SELECT.
//  3. Errors are returned verbatim so the caller can wrap or log them
//     using the project logger.
//
// Notes
// -----
//   - All single-row queries carry `LIMIT 1`.
//   - Oxford commas, two spaces after periods, no m-dash.
package meta

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ActiveByID fetches a single tenant that is active and not deleted.
// sql.ErrNoRows is returned when there is no such tenant.
func ActiveByID(ctx context.Context, db sqlx.QueryerContext, id uuid.UUID) (*Record, error) {
	const q = `
        SELECT ` + Columns + `
        FROM   tenants
        WHERE  id = ?
          AND  is_active  = 1
          AND  is_deleted = 0
        LIMIT  1`
	var rec Record
	if err := sqlx.GetContext(ctx, db, &rec, q, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ActiveExists reports whether an active, non-deleted tenant has id.
func ActiveExists(ctx context.Context, db sqlx.QueryerContext, id uuid.UUID) (bool, error) {
	const q = `
        SELECT COUNT(*)
        FROM   tenants
        WHERE  id = ?
          AND  is_active  = 1
          AND  is_deleted = 0`
	var n int
	if err := sqlx.GetContext(ctx, db, &n, q, id); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveIDByKey resolves a tenant name or external group id to the tenant
// id.  sql.ErrNoRows is returned when nothing matches.
func ActiveIDByKey(ctx context.Context, db sqlx.QueryerContext, key string) (uuid.UUID, error) {
	const q = `
        SELECT id
        FROM   tenants
        WHERE  (name = ? OR external_group_id = ?)
          AND  is_active  = 1
          AND  is_deleted = 0
        LIMIT  1`
	var id uuid.UUID
	if err := sqlx.GetContext(ctx, db, &id, q, key, key); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
