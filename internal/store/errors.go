package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound covers missing rows, soft-deleted rows, and rows owned by
	// another tenant.  The last case is deliberately indistinguishable.
	ErrNotFound = errors.New("entity not found")

	// ErrCrossTenantAccess rejects a mutation on an entity stamped with a
	// different tenant than the caller's.  Never retried.
	ErrCrossTenantAccess = errors.New("cross-tenant access denied")

	// ErrDuplicateEntity is matched by every *DuplicateError.
	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrTenantUnresolved is returned by writes made without a tenant.
	ErrTenantUnresolved = errors.New("tenant not resolved")
)

// DuplicateError names the unique key a write collided with.  Key is empty
// when the collision was reported by the database rather than the
// pre-check.
type DuplicateError struct {
	Table string
	Key   []string
}

func (e *DuplicateError) Error() string {
	if len(e.Key) == 0 {
		return fmt.Sprintf("duplicate %s", e.Table)
	}
	return fmt.Sprintf("duplicate %s (%s)", e.Table, strings.Join(e.Key, ", "))
}

// Is lets errors.Is(err, ErrDuplicateEntity) match.
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicateEntity }

// mysqlDuplicateKey is ER_DUP_ENTRY.
const mysqlDuplicateKey = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateKey
}
