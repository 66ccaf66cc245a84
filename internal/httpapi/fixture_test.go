package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/ome/internal/events"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/oidc"
	"github.com/yanizio/ome/internal/oidc/oidctest"
	"github.com/yanizio/ome/internal/session"
	"github.com/yanizio/ome/internal/tenant"
	"github.com/yanizio/ome/internal/users"
)

// Directory queries, as issued by tenant/meta.
const (
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

const frontend = "https://app.example.test"

type fixture struct {
	idp  *oidctest.Provider
	mock sqlmock.Sqlmock
	logs *logger.TenantBuffer
	srv  *Server
	h    http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	idp := oidctest.New(t)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	xdb := sqlx.NewDb(db, "sqlmock")

	client := oidc.New(idp.Config(), nil)
	t.Cleanup(client.Close)

	if opts.FrontendBaseURL == "" {
		opts.FrontendBaseURL = frontend + "/"
	}
	buf := logger.NewTenantBuffer(10, nil)
	srv := New(opts, Deps{
		OIDC:      client,
		Directory: tenant.NewDirectory(xdb, time.Minute),
		Sessions:  session.NewMemoryStore(time.Minute),
		Users:     users.NewService(xdb, events.NewDispatcher()),
		Tenants:   NewTenantGateway(xdb),
		Logs:      buf,
	})
	return &fixture{idp: idp, mock: mock, logs: buf, srv: srv, h: srv.Routes()}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

// token signs a valid access token for subject with the given roles and
// extra claims.
func (f *fixture) token(t *testing.T, subject string, roles []string, extra jwt.MapClaims) string {
	t.Helper()
	c := f.idp.Claims(subject)
	if len(roles) > 0 {
		c["roles"] = roles
	}
	for k, v := range extra {
		c[k] = v
	}
	return f.idp.Sign(t, c)
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Code
}
