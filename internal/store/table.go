// internal/store/table.go
//
// Table registration for the data gateway.
//
// Context
// -------
// Every entity type is registered once, at gateway construction, with a
// `Table` describing its row shape.  The gateway derives all SQL from this
// description; nothing walks type metadata at query time.
//
//   - `Columns`: entity-specific columns, in scan order.  The audit
//     columns (and `tenant_id` for tenant-scoped tables) are prepended by
//     the gateway and must not be listed here.
//   - `Immutable`: subset of Columns that Update never rewrites.
//   - `Unique`: keys pre-checked before Add and Update.  A key is
//     per-tenant unless `Global` is set.  The pre-check skips soft-deleted
//     rows unless `IncludeDeleted` is set, which must match whether the
//     database index covers them.
//
// Notes
// -----
// • Column names double as sqlx `db` tags on the entity struct.
// • Oxford commas, two spaces after periods.
package store

import "strings"

// UniqueKey is one uniqueness constraint enforced by the backing store.
type UniqueKey struct {
	Columns        []string
	Global         bool
	IncludeDeleted bool
}

// Table describes one entity table.
type Table struct {
	Name      string
	Columns   []string
	Immutable []string
	Unique    []UniqueKey
}

var auditColumns = []string{
	"id", "created_at", "created_by", "last_modified_at", "last_modified_by", "is_deleted",
}

func (t Table) allColumns(tenantScoped bool) []string {
	cols := append([]string(nil), auditColumns...)
	if tenantScoped {
		cols = append(cols, "tenant_id")
	}
	return append(cols, t.Columns...)
}

func (t Table) mutableColumns() []string {
	skip := make(map[string]struct{}, len(t.Immutable))
	for _, c := range t.Immutable {
		skip[c] = struct{}{}
	}
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if _, ok := skip[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Predicate narrows List.  The clause uses `?` placeholders and is ANDed
// with the tenant and soft-delete filters.
type Predicate struct {
	clause string
	args   []any
}

// Where builds a Predicate.
func Where(clause string, args ...any) Predicate {
	return Predicate{clause: strings.TrimSpace(clause), args: args}
}

// All matches every visible row.
func All() Predicate { return Predicate{} }
