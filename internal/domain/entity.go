// internal/domain/entity.go
//
// Base types shared by every persisted entity.
//
// Context
// -------
// Two embeddable structs describe the audit and tenancy columns that the
// data gateway owns:
//
//   - `Model`: id, created/modified stamps, and the soft-delete flag.
//   - `TenantModel`: `Model` plus the owning tenant id.
//
// Entities embed one of them and thereby satisfy `Record` or
// `TenantRecord`.  The gateway is generic over those interfaces, so the
// tenant and soft-delete filters are attached at compile time rather than by
// walking type metadata at runtime.
//
// Notes
// -----
//   - Rows are never removed physically.  `IsDeleted` marks a logical delete.
//   - `LastModifiedAt` is NULL until the first update.
//   - Oxford commas, two spaces after periods.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Model holds the audit columns present on every table.
type Model struct {
	ID             uuid.UUID  `db:"id"               json:"id"`
	CreatedAt      time.Time  `db:"created_at"       json:"createdAt"`
	CreatedBy      string     `db:"created_by"       json:"createdBy"`
	LastModifiedAt *time.Time `db:"last_modified_at" json:"lastModifiedAt,omitempty"`
	LastModifiedBy string     `db:"last_modified_by" json:"lastModifiedBy,omitempty"`
	IsDeleted      bool       `db:"is_deleted"       json:"-"`
}

// Base exposes the audit block to the gateway.
func (m *Model) Base() *Model { return m }

// TenantModel adds the owning tenant to Model.
type TenantModel struct {
	Model
	TenantID uuid.UUID `db:"tenant_id" json:"tenantId"`
}

// Tenancy exposes the tenant block to the gateway.
func (m *TenantModel) Tenancy() *TenantModel { return m }

// Record is satisfied by any pointer to a struct embedding Model.
type Record interface {
	Base() *Model
}

// TenantRecord is satisfied by any pointer to a struct embedding TenantModel.
type TenantRecord interface {
	Record
	Tenancy() *TenantModel
}

// StampCreated assigns a fresh id, fills the creation columns, and clears
// any modification or delete state the caller left behind.
func (m *Model) StampCreated(at time.Time, by string) {
	m.ID = uuid.New()
	m.CreatedAt = at
	m.CreatedBy = by
	m.LastModifiedAt = nil
	m.LastModifiedBy = ""
	m.IsDeleted = false
}

// StampModified fills the modification columns.
func (m *Model) StampModified(at time.Time, by string) {
	m.LastModifiedAt = &at
	m.LastModifiedBy = by
}
