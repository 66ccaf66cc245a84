// internal/users/service.go
//
// User management operations.
//
// Context
// -------
// The service is the business layer over two tenant gateways (users and
// user_roles).  Every mutation:
//
//  1. checks the caller holds `OmeAdmin` or `OmeSuperUser`,
//  2. validates the input,
//  3. writes the user row and its role rows through gateways bound to one
//     transaction (tenant stamping, duplicate pre-checks, cross-tenant
//     guard, and soft delete all happen there), and
//  4. publishes the matching domain event once the transaction commits.
//
// A failed write rolls back the user and role rows together and publishes
// nothing.  A failed handler fails the operation as a whole even though
// the rows are already committed; callers see the publish error.
//
// Notes
// -----
// • Role names outside the closed enumeration are dropped silently.
// • Reads only require an authenticated caller; the gateway limits them to
//   the current tenant.
// • Oxford commas, two spaces after periods.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/ome/internal/acl"
	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/events"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/store"
	"github.com/yanizio/ome/internal/tenant"
)

// ErrInvalidInput wraps validation failures.
var ErrInvalidInput = errors.New("invalid user input")

// managers may create, update, and delete users.
var managers = []auth.Role{auth.RoleAdmin, auth.RoleSuperUser}

// Input carries the writable user fields.  KeycloakID is ignored by Update.
type Input struct {
	KeycloakID string   `json:"keycloakId" validate:"required,max=64"`
	Username   string   `json:"username"   validate:"required,max=100"`
	Email      string   `json:"email"      validate:"required,email,max=254"`
	FirstName  string   `json:"firstName"  validate:"max=100"`
	LastName   string   `json:"lastName"   validate:"max=100"`
	IsActive   *bool    `json:"isActive"`
	Roles      []string `json:"roles"`
}

// repos pairs the two gateways over one connection or transaction.
type repos struct {
	users *store.TenantGateway[User, *User]
	roles *store.TenantGateway[UserRole, *UserRole]
}

func newRepos(db sqlx.ExtContext) repos {
	return repos{
		users: store.NewTenantGateway[User](db, UserTable),
		roles: store.NewTenantGateway[UserRole](db, RoleTable),
	}
}

// Service implements user management for the current tenant.
type Service struct {
	db       *sqlx.DB
	pool     repos
	events   events.Publisher
	validate *validator.Validate
}

// NewService wires both gateways on db.  pub receives the user events.
func NewService(db *sqlx.DB, pub events.Publisher) *Service {
	return &Service{
		db:       db,
		pool:     newRepos(db),
		events:   pub,
		validate: validator.New(),
	}
}

// inTx runs fn with gateways bound to a single transaction and commits
// when fn succeeds.
func (s *Service) inTx(ctx context.Context, fn func(r repos) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(newRepos(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Create adds a user and its roles.
func (s *Service) Create(ctx context.Context, in Input) (*User, error) {
	if err := acl.Authorize(ctx, managers...); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	u := &User{
		KeycloakID: in.KeycloakID,
		Username:   in.Username,
		Email:      in.Email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		IsActive:   in.IsActive == nil || *in.IsActive,
	}
	roles := KnownRoles(in.Roles)
	err := s.inTx(ctx, func(r repos) error {
		if _, err := r.users.Add(ctx, u); err != nil {
			return err
		}
		for _, name := range roles {
			if _, err := r.roles.Add(ctx, &UserRole{UserID: u.ID, RoleName: name}); err != nil {
				return fmt.Errorf("add role %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.Roles = roles

	logger.FromContext(ctx).Infow("user created", "user_id", u.ID, "username", u.Username)
	err = s.events.Publish(ctx, UserCreated{
		Meta:      events.NewMeta(),
		UserID:    u.ID,
		Username:  u.Username,
		CreatedBy: auth.FromContext(ctx).UserID(),
		TenantID:  u.TenantID,
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Update rewrites the mutable fields of user id and replaces its role set.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*User, error) {
	if err := acl.Authorize(ctx, managers...); err != nil {
		return nil, err
	}
	u, err := s.pool.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.KeycloakID = u.KeycloakID
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	u.Username = in.Username
	u.Email = in.Email
	u.FirstName = in.FirstName
	u.LastName = in.LastName
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	var roles []string
	err = s.inTx(ctx, func(r repos) error {
		if err := r.users.Update(ctx, u); err != nil {
			return err
		}
		var err error
		roles, err = replaceRoles(ctx, r, u.ID, KnownRoles(in.Roles))
		return err
	})
	if err != nil {
		return nil, err
	}
	u.Roles = roles

	logger.FromContext(ctx).Infow("user updated", "user_id", u.ID, "username", u.Username)
	err = s.events.Publish(ctx, UserUpdated{
		Meta:      events.NewMeta(),
		UserID:    u.ID,
		Username:  u.Username,
		UpdatedBy: auth.FromContext(ctx).UserID(),
		TenantID:  u.TenantID,
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Delete retires user id and its role rows.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := acl.Authorize(ctx, managers...); err != nil {
		return err
	}
	u, err := s.pool.users.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(r repos) error {
		if err := r.users.Delete(ctx, u); err != nil {
			return err
		}
		_, err := replaceRoles(ctx, r, u.ID, nil)
		return err
	})
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Infow("user deleted", "user_id", u.ID, "username", u.Username)
	return s.events.Publish(ctx, UserDeleted{
		Meta:      events.NewMeta(),
		UserID:    u.ID,
		Username:  u.Username,
		DeletedBy: auth.FromContext(ctx).UserID(),
		TenantID:  u.TenantID,
	})
}

// Get returns one user of the current tenant with its roles.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	if err := acl.Authorize(ctx); err != nil {
		return nil, err
	}
	u, err := s.pool.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.roles.List(ctx, store.Where("user_id = ?", u.ID))
	if err != nil {
		return nil, err
	}
	u.Roles = roleNames(rows)
	return u, nil
}

// List returns every user of the current tenant with its roles.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	if err := acl.Authorize(ctx); err != nil {
		return nil, err
	}
	if tenant.ID(ctx) == uuid.Nil {
		return []*User{}, nil
	}
	list, err := s.pool.users.List(ctx, store.All())
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}
	rows, err := s.pool.roles.List(ctx, store.All())
	if err != nil {
		return nil, err
	}

	byUser := make(map[uuid.UUID][]string, len(list))
	for _, r := range rows {
		byUser[r.UserID] = append(byUser[r.UserID], r.RoleName)
	}
	for _, u := range list {
		u.Roles = byUser[u.ID]
		if u.Roles == nil {
			u.Roles = []string{}
		}
	}
	return list, nil
}

// replaceRoles retires role rows not in want and adds the missing ones.
func replaceRoles(ctx context.Context, r repos, userID uuid.UUID, want []string) ([]string, error) {
	current, err := r.roles.List(ctx, store.Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(want))
	for _, name := range want {
		keep[name] = true
	}
	have := make(map[string]bool, len(current))
	for _, row := range current {
		if keep[row.RoleName] && !have[row.RoleName] {
			have[row.RoleName] = true
			continue
		}
		if err := r.roles.Delete(ctx, row); err != nil {
			return nil, fmt.Errorf("retire role %s: %w", row.RoleName, err)
		}
	}
	for _, name := range want {
		if have[name] {
			continue
		}
		if _, err := r.roles.Add(ctx, &UserRole{UserID: userID, RoleName: name}); err != nil {
			return nil, fmt.Errorf("add role %s: %w", name, err)
		}
	}
	if want == nil {
		want = []string{}
	}
	return want, nil
}

// KnownRoles keeps the names that belong to the role enumeration, in
// input order and without duplicates.
func KnownRoles(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[auth.Role]bool, len(in))
	for _, s := range in {
		r, ok := auth.ParseRole(s)
		if !ok || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r.String())
	}
	return out
}

func roleNames(rows []*UserRole) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.RoleName)
	}
	return out
}
