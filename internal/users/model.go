// internal/users/model.go
//
// Tenant-scoped user and role-assignment rows.
//
// Context
// -------
// A User is the local mirror of an identity-provider account inside one
// tenant.  Role assignments live in `user_roles`, one row per role name;
// `User.Roles` is filled by the service from those rows and never bound to
// a column.
//
// Schema reference
//
//	CREATE TABLE users (
//	    id                CHAR(36)     PRIMARY KEY,
//	    tenant_id         CHAR(36)     NOT NULL,
//	    keycloak_id       VARCHAR(64)  NOT NULL UNIQUE,
//	    username          VARCHAR(100) NOT NULL,
//	    email             VARCHAR(254) NOT NULL,
//	    first_name        VARCHAR(100) NOT NULL DEFAULT '',
//	    last_name         VARCHAR(100) NOT NULL DEFAULT '',
//	    is_active         TINYINT(1)   NOT NULL DEFAULT 1,
//	    ...audit columns...,
//	    UNIQUE KEY (tenant_id, username),
//	    UNIQUE KEY (tenant_id, email)
//	);
//
// Notes
// -----
// • `keycloak_id` is unique across tenants and never rewritten by Update.
// • The unique indexes cover soft-deleted rows, so a deleted user's
//   username, email, and keycloak id stay taken.
// • Oxford commas, two spaces after periods.
package users

import (
	"github.com/google/uuid"

	"github.com/yanizio/ome/internal/domain"
	"github.com/yanizio/ome/internal/store"
)

// User is one account inside a tenant.
type User struct {
	domain.TenantModel
	KeycloakID string   `db:"keycloak_id" json:"keycloakId"`
	Username   string   `db:"username"    json:"username"`
	Email      string   `db:"email"       json:"email"`
	FirstName  string   `db:"first_name"  json:"firstName"`
	LastName   string   `db:"last_name"   json:"lastName"`
	IsActive   bool     `db:"is_active"   json:"isActive"`
	Roles      []string `db:"-"           json:"roles"`
}

// UserRole assigns one role name to a user.
type UserRole struct {
	domain.TenantModel
	UserID   uuid.UUID `db:"user_id"   json:"userId"`
	RoleName string    `db:"role_name" json:"roleName"`
}

// UserTable registers the users table with the gateway.
var UserTable = store.Table{
	Name:      "users",
	Columns:   []string{"keycloak_id", "username", "email", "first_name", "last_name", "is_active"},
	Immutable: []string{"keycloak_id"},
	Unique: []store.UniqueKey{
		{Columns: []string{"keycloak_id"}, Global: true, IncludeDeleted: true},
		{Columns: []string{"username"}, IncludeDeleted: true},
		{Columns: []string{"email"}, IncludeDeleted: true},
	},
}

// RoleTable registers user_roles.  Rows are only added or retired.
var RoleTable = store.Table{
	Name:      "user_roles",
	Columns:   []string{"user_id", "role_name"},
	Immutable: []string{"user_id", "role_name"},
}
