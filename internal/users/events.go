package users

import (
	"github.com/google/uuid"

	"github.com/yanizio/ome/internal/events"
)

const (
	KindUserCreated events.Kind = "user.created"
	KindUserUpdated events.Kind = "user.updated"
	KindUserDeleted events.Kind = "user.deleted"
)

// UserCreated is published after a user row and its roles are written.
type UserCreated struct {
	events.Meta
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	CreatedBy string    `json:"createdBy"`
	TenantID  uuid.UUID `json:"tenantId"`
}

// UserUpdated is published after an update commits.
type UserUpdated struct {
	events.Meta
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	UpdatedBy string    `json:"updatedBy"`
	TenantID  uuid.UUID `json:"tenantId"`
}

// UserDeleted is published after the logical delete.
type UserDeleted struct {
	events.Meta
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	DeletedBy string    `json:"deletedBy"`
	TenantID  uuid.UUID `json:"tenantId"`
}

func (UserCreated) EventKind() events.Kind { return KindUserCreated }
func (UserUpdated) EventKind() events.Kind { return KindUserUpdated }
func (UserDeleted) EventKind() events.Kind { return KindUserDeleted }

// Tenant reports the tenant the event belongs to.
func (e UserCreated) Tenant() uuid.UUID { return e.TenantID }
func (e UserUpdated) Tenant() uuid.UUID { return e.TenantID }
func (e UserDeleted) Tenant() uuid.UUID { return e.TenantID }
