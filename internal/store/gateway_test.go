package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/domain"
	"github.com/yanizio/ome/internal/tenant"
)

type widget struct {
	domain.TenantModel
	Name string `db:"name"`
	Code string `db:"code"`
}

var widgetTable = Table{
	Name:      "widgets",
	Columns:   []string{"name", "code"},
	Immutable: []string{"code"},
	Unique: []UniqueKey{
		{Columns: []string{"name"}},
		{Columns: []string{"code"}, Global: true},
	},
}

var widgetCols = []string{
	"id", "created_at", "created_by", "last_modified_at", "last_modified_by",
	"is_deleted", "tenant_id", "name", "code",
}

const (
	qSelect     = "SELECT id, created_at, created_by, last_modified_at, last_modified_by, is_deleted, tenant_id, name, code FROM widgets"
	qDupName    = "SELECT COUNT(*) FROM widgets WHERE is_deleted = 0 AND name = ? AND tenant_id = ?"
	qDupCode    = "SELECT COUNT(*) FROM widgets WHERE is_deleted = 0 AND code = ?"
	qInsert     = "INSERT INTO widgets (id, created_at, created_by, last_modified_at, last_modified_by, is_deleted, tenant_id, name, code) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	qUpdate     = "UPDATE widgets SET name = ?, last_modified_at = ?, last_modified_by = ? WHERE id = ? AND is_deleted = 0 AND tenant_id = ?"
	qSoftDelete = "UPDATE widgets SET is_deleted = 1, last_modified_at = ?, last_modified_by = ? WHERE id = ? AND is_deleted = 0 AND tenant_id = ?"
)

func newWidgetGateway(t *testing.T) (*TenantGateway[widget, *widget], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTenantGateway[widget](sqlx.NewDb(db, "mysql"), widgetTable), mock
}

func ctxFor(tid uuid.UUID, user string) context.Context {
	sec := auth.NewSecurityContext()
	if user != "" {
		sec.SetUserID(user)
	}
	ctx := auth.WithSecurity(context.Background(), sec)
	return tenant.WithContext(ctx, tenant.Fixed(tid))
}

func TestGetFiltersByTenantAndDeleted(t *testing.T) {
	g, mock := newWidgetGateway(t)
	tid, id := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(qSelect+" WHERE id = ? AND is_deleted = 0 AND tenant_id = ? LIMIT 1")).
		WithArgs(id, tid).
		WillReturnRows(sqlmock.NewRows(widgetCols))

	if _, err := g.Get(ctxFor(tid, "u1"), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUnresolvedTenantReadsEmpty(t *testing.T) {
	g, mock := newWidgetGateway(t)
	ctx := ctxFor(uuid.Nil, "u1")

	rows, err := g.List(ctx, All())
	if err != nil || len(rows) != 0 {
		t.Fatalf("List = %v, %v; want empty", rows, err)
	}
	if _, err := g.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
	if _, err := g.Add(ctx, &widget{Name: "x"}); !errors.Is(err, ErrTenantUnresolved) {
		t.Fatalf("Add err = %v, want ErrTenantUnresolved", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}

func TestListAppliesPredicate(t *testing.T) {
	g, mock := newWidgetGateway(t)
	tid := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(qSelect+" WHERE is_deleted = 0 AND tenant_id = ? AND (name = ?) ORDER BY created_at, id")).
		WithArgs(tid, "gizmo").
		WillReturnRows(sqlmock.NewRows(widgetCols).
			AddRow(uuid.NewString(), now, "u1", nil, "", false, tid.String(), "gizmo", "G-1"))

	rows, err := g.List(ctxFor(tid, "u1"), Where("name = ?", "gizmo"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 || rows[0].Code != "G-1" || rows[0].TenantID != tid {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddStampsTenantAndAudit(t *testing.T) {
	g, mock := newWidgetGateway(t)
	tid := uuid.New()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g.c.now = func() time.Time { return fixed }

	mock.ExpectQuery(regexp.QuoteMeta(qDupName)).
		WithArgs("gizmo", tid).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(qDupCode)).
		WithArgs("G-1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(qInsert)).
		WithArgs(sqlmock.AnyArg(), fixed, "u1", nil, "", false, tid, "gizmo", "G-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	foreign := uuid.New()
	w := &widget{Name: "gizmo", Code: "G-1"}
	w.TenantID = foreign
	w.CreatedBy = "spoofed"

	got, err := g.Add(ctxFor(tid, "u1"), w)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got.TenantID != tid {
		t.Fatalf("tenant = %s, want current %s", got.TenantID, tid)
	}
	if got.ID == uuid.Nil || got.CreatedBy != "u1" || !got.CreatedAt.Equal(fixed) {
		t.Fatalf("audit not stamped: %+v", got.Model)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddDuplicatePreCheck(t *testing.T) {
	g, mock := newWidgetGateway(t)
	tid := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(qDupName)).
		WithArgs("gizmo", tid).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	_, err := g.Add(ctxFor(tid, "u1"), &widget{Name: "gizmo", Code: "G-2"})
	var dup *DuplicateError
	if !errors.As(err, &dup) || !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("Add err = %v, want DuplicateError", err)
	}
	if len(dup.Key) != 1 || dup.Key[0] != "name" {
		t.Fatalf("duplicate key = %v", dup.Key)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A key whose index covers soft-deleted rows is pre-checked against them
// too, so re-adding a retired value reports the key instead of tripping the
// index.
func TestAddDuplicateCountsDeletedRowsWhenIndexed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	table := widgetTable
	table.Unique = []UniqueKey{{Columns: []string{"name"}, IncludeDeleted: true}}
	g := NewTenantGateway[widget](sqlx.NewDb(db, "mysql"), table)
	tid := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM widgets WHERE name = ? AND tenant_id = ?")).
		WithArgs("gizmo", tid).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	_, err = g.Add(ctxFor(tid, "u1"), &widget{Name: "gizmo", Code: "G-3"})
	var dup *DuplicateError
	if !errors.As(err, &dup) || len(dup.Key) != 1 || dup.Key[0] != "name" {
		t.Fatalf("Add err = %v, want DuplicateError on name", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// The losing side of two concurrent adds passes the pre-check and is
// stopped by the unique index.
func TestAddRacingInsertIsDuplicate(t *testing.T) {
	g, mock := newWidgetGateway(t)
	tid := uuid.New()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta(qDupName)).
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
		mock.ExpectQuery(regexp.QuoteMeta(qDupCode)).
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
		ins := mock.ExpectExec(regexp.QuoteMeta(qInsert))
		if i == 0 {
			ins.WillReturnResult(sqlmock.NewResult(0, 1))
		} else {
			ins.WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
		}
	}

	ctx := ctxFor(tid, "u1")
	_, err1 := g.Add(ctx, &widget{Name: "gizmo", Code: "G-1"})
	_, err2 := g.Add(ctx, &widget{Name: "gizmo", Code: "G-1"})

	var ok, dup int
	for _, err := range []error{err1, err2} {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateEntity):
			dup++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("ok=%d dup=%d, want 1 and 1", ok, dup)
	}
}

func TestUpdateRejectsCrossTenant(t *testing.T) {
	g, mock := newWidgetGateway(t)
	w := &widget{Name: "gizmo"}
	w.ID = uuid.New()
	w.TenantID = uuid.New()

	ctx := ctxFor(uuid.New(), "u1")
	if err := g.Update(ctx, w); !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("Update err = %v, want ErrCrossTenantAccess", err)
	}
	if err := g.Delete(ctx, w); !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("Delete err = %v, want ErrCrossTenantAccess", err)
	}
	if w.LastModifiedAt != nil || w.IsDeleted {
		t.Fatal("entity mutated by a rejected call")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected statements: %v", err)
	}
}

func TestUpdateStampsModifierAndSkipsImmutable(t *testing.T) {
	g, mock := newWidgetGateway(t)
	tid := uuid.New()
	w := &widget{Name: "renamed", Code: "G-1"}
	w.ID = uuid.New()
	w.TenantID = tid

	mock.ExpectQuery(regexp.QuoteMeta(qDupName + " AND id <> ?")).
		WithArgs("renamed", tid, w.ID).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(qDupCode + " AND id <> ?")).
		WithArgs("G-1", w.ID).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(qUpdate)).
		WithArgs("renamed", sqlmock.AnyArg(), "u2", w.ID, tid).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := g.Update(ctxFor(tid, "u2"), w); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if w.LastModifiedBy != "u2" || w.LastModifiedAt == nil {
		t.Fatalf("modifier not stamped: %+v", w.Model)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteIsLogicalAndVisibleToAdminPath(t *testing.T) {
	g, mock := newWidgetGateway(t)
	tid := uuid.New()
	w := &widget{Name: "gizmo", Code: "G-1"}
	w.ID = uuid.New()
	w.TenantID = tid
	ctx := ctxFor(tid, "u1")

	mock.ExpectExec(regexp.QuoteMeta(qSoftDelete)).
		WithArgs(sqlmock.AnyArg(), "u1", w.ID, tid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(qSelect+" WHERE id = ? AND is_deleted = 0 AND tenant_id = ? LIMIT 1")).
		WithArgs(w.ID, tid).
		WillReturnRows(sqlmock.NewRows(widgetCols))
	mock.ExpectQuery(regexp.QuoteMeta(qSelect+" WHERE id = ? AND tenant_id = ? LIMIT 1")).
		WithArgs(w.ID, tid).
		WillReturnRows(sqlmock.NewRows(widgetCols).
			AddRow(w.ID.String(), time.Now(), "u1", time.Now(), "u1", true, tid.String(), "gizmo", "G-1"))

	if err := g.Delete(ctx, w); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !w.IsDeleted {
		t.Fatal("IsDeleted not set")
	}
	if _, err := g.Get(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
	}
	got, err := g.GetIncludingDeleted(ctx, w.ID)
	if err != nil || !got.IsDeleted {
		t.Fatalf("GetIncludingDeleted = %+v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteMissingRowIsNotFound(t *testing.T) {
	g, mock := newWidgetGateway(t)
	tid := uuid.New()
	w := &widget{}
	w.ID = uuid.New()
	w.TenantID = tid

	mock.ExpectExec(regexp.QuoteMeta(qSoftDelete)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := g.Delete(ctxFor(tid, ""), w); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete err = %v, want ErrNotFound", err)
	}
}
