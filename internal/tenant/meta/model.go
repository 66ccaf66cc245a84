// internal/tenant/meta/model.go
//
// `tenants` table row model.
//
// Context
// -------
// The `Record` struct mirrors one row in the control-plane **tenants**
// table.  It is read by the tenant Directory on first lookup and by the
// administrative tenant endpoints that list, create, or retire tenants.
//
// Schema reference
//
//	CREATE TABLE tenants (
//	    id                 CHAR(36)      PRIMARY KEY,
//	    name               VARCHAR(128)  NOT NULL UNIQUE,
//	    display_name       VARCHAR(256)  NOT NULL DEFAULT '',
//	    external_group_id  VARCHAR(256)  NOT NULL UNIQUE,
//	    is_active          TINYINT(1)    NOT NULL DEFAULT 1,
//	    connection_string  VARCHAR(1024) NOT NULL DEFAULT '',
//	    is_deleted         TINYINT(1)    NOT NULL DEFAULT 0,
//	    created_at         TIMESTAMP     NOT NULL,
//	    created_by         VARCHAR(128)  NOT NULL DEFAULT '',
//	    last_modified_at   TIMESTAMP NULL,
//	    last_modified_by   VARCHAR(128)  NOT NULL DEFAULT ''
//	);
//
// Notes
// -----
// • `ConnectionString` is a secret and is never serialized outbound.
// • Tenants are not tenant-scoped themselves; only the soft-delete filter
//   applies to them.
// • This struct contains no behaviour, pure data model for sqlx scans.
package meta

import "github.com/yanizio/ome/internal/domain"

// Table is the control-plane table name.
const Table = "tenants"

// Columns lists every column in Record order; update both together.
const Columns = `id, created_at, created_by, last_modified_at, last_modified_by,
               is_deleted, name, display_name, external_group_id, is_active,
               connection_string`

// Record mirrors one row in the `tenants` table.
type Record struct {
	domain.Model
	Name             string `db:"name"              json:"name"               validate:"required,max=128"`
	DisplayName      string `db:"display_name"      json:"displayName"        validate:"max=256"`
	ExternalGroupID  string `db:"external_group_id" json:"externalGroupId"    validate:"required,max=256"`
	IsActive         bool   `db:"is_active"         json:"isActive"`
	ConnectionString string `db:"connection_string" json:"-"`
}
