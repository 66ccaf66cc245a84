package tenant

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	qByID = `
        SELECT id, created_at, created_by, last_modified_at, last_modified_by,
               is_deleted, name, display_name, external_group_id, is_active,
               connection_string
        FROM   tenants
        WHERE  id = ?
          AND  is_active  = 1
          AND  is_deleted = 0
        LIMIT  1`
	qExists = `
        SELECT COUNT(*)
        FROM   tenants
        WHERE  id = ?
          AND  is_active  = 1
          AND  is_deleted = 0`
	qByKey = `
        SELECT id
        FROM   tenants
        WHERE  (name = ? OR external_group_id = ?)
          AND  is_active  = 1
          AND  is_deleted = 0
        LIMIT  1`
)

var tenantCols = []string{
	"id", "created_at", "created_by", "last_modified_at", "last_modified_by",
	"is_deleted", "name", "display_name", "external_group_id", "is_active",
	"connection_string",
}

func newMockDirectory(t *testing.T) (*Directory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDirectory(sqlx.NewDb(db, "sqlmock"), 10*time.Minute), mock
}

func TestLookupCachesPositiveResults(t *testing.T) {
	d, mock := newMockDirectory(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(qByID)).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(tenantCols).AddRow(
			id.String(), time.Now(), "seed", nil, "", false,
			"acme", "Acme Corp", "acme-corp", true, "secret-dsn"))

	for i := 0; i < 3; i++ {
		rec, err := d.Lookup(context.Background(), id)
		if err != nil {
			t.Fatalf("Lookup #%d: %v", i, err)
		}
		if rec.Name != "acme" || rec.ConnectionString != "secret-dsn" {
			t.Fatalf("unexpected record %+v", rec)
		}
	}
	if cs, err := d.ConnectionString(context.Background(), id); err != nil || cs != "secret-dsn" {
		t.Fatalf("ConnectionString = %q, %v", cs, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLookupDoesNotCacheMisses(t *testing.T) {
	d, mock := newMockDirectory(t)
	id := uuid.New()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta(qByID)).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows(tenantCols))
	}
	for i := 0; i < 2; i++ {
		if _, err := d.Lookup(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Lookup err = %v, want ErrNotFound", err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExistsCachesBothOutcomes(t *testing.T) {
	d, mock := newMockDirectory(t)
	known, unknown := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(qExists)).
		WithArgs(known.String()).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(qExists)).
		WithArgs(unknown.String()).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	for i := 0; i < 2; i++ {
		if ok, err := d.Exists(context.Background(), known); err != nil || !ok {
			t.Fatalf("Exists(known) = %v, %v", ok, err)
		}
		if ok, err := d.Exists(context.Background(), unknown); err != nil || ok {
			t.Fatalf("Exists(unknown) = %v, %v", ok, err)
		}
	}
	if ok, _ := d.Exists(context.Background(), uuid.Nil); ok {
		t.Fatal("Exists(Nil) = true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveKeyAndExpiry(t *testing.T) {
	d, mock := newMockDirectory(t)
	now := time.Now()
	d.now = func() time.Time { return now }
	id := uuid.New()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta(qByKey)).
			WithArgs("acme-corp", "acme-corp").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
	}

	got, err := d.ResolveKey(context.Background(), "acme-corp")
	if err != nil || got != id {
		t.Fatalf("ResolveKey = %s, %v", got, err)
	}
	if _, err := d.ResolveKey(context.Background(), "acme-corp"); err != nil {
		t.Fatalf("cached ResolveKey: %v", err)
	}

	now = now.Add(11 * time.Minute)
	if n := d.evictExpired(); n != 1 {
		t.Fatalf("evicted %d entries, want 1", n)
	}
	if _, err := d.ResolveKey(context.Background(), "acme-corp"); err != nil {
		t.Fatalf("ResolveKey after expiry: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// Two requests share one load.  Cancelling the request that started it
// must not fail the one that joined.
func TestSharedLoadSurvivesStarterCancellation(t *testing.T) {
	d, mock := newMockDirectory(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(qExists)).
		WithArgs(id.String()).
		WillDelayFor(300 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	type result struct {
		ok  bool
		err error
	}
	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	resA := make(chan result, 1)
	go func() {
		ok, err := d.Exists(ctxA, id)
		resA <- result{ok, err}
	}()
	time.Sleep(50 * time.Millisecond)

	resB := make(chan result, 1)
	go func() {
		ok, err := d.Exists(context.Background(), id)
		resB <- result{ok, err}
	}()
	time.Sleep(50 * time.Millisecond)
	cancelA()

	select {
	case a := <-resA:
		if !errors.Is(a.err, context.Canceled) {
			t.Fatalf("cancelled caller err = %v, want context.Canceled", a.err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("cancelled caller still waiting on the shared load")
	}

	b := <-resB
	if b.err != nil || !b.ok {
		t.Fatalf("joined caller = %v, %v; want true, nil", b.ok, b.err)
	}
	if ok, err := d.Exists(context.Background(), id); err != nil || !ok {
		t.Fatalf("cached Exists = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
