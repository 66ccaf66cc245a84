package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/ome/internal/store"
	"github.com/yanizio/ome/internal/tenant"
	"github.com/yanizio/ome/internal/tenant/meta"
)

// TenantTable registers the control-plane tenants table with the
// soft-delete gateway.  Names and external group ids are unique across
// the whole installation.
var TenantTable = store.Table{
	Name:      meta.Table,
	Columns:   []string{"name", "display_name", "external_group_id", "is_active", "connection_string"},
	Immutable: []string{"name"},
	Unique: []store.UniqueKey{
		{Columns: []string{"name"}, Global: true},
		{Columns: []string{"external_group_id"}, Global: true},
	},
}

// NewTenantGateway returns the administrative tenants gateway over db.
func NewTenantGateway(db sqlx.ExtContext) *store.Gateway[meta.Record, *meta.Record] {
	return store.NewGateway[meta.Record](db, TenantTable)
}

// tenantView exposes the soft-delete flag to administrators.
type tenantView struct {
	*meta.Record
	IsDeleted bool `json:"isDeleted"`
}

func viewOf(rec *meta.Record) tenantView { return tenantView{Record: rec, IsDeleted: rec.IsDeleted} }

type tenantInput struct {
	Name             string `json:"name"`
	DisplayName      string `json:"displayName"`
	ExternalGroupID  string `json:"externalGroupId"`
	IsActive         *bool  `json:"isActive"`
	ConnectionString string `json:"connectionString"`
}

func (s *Server) currentTenant(w http.ResponseWriter, r *http.Request) {
	tid := tenant.ID(r.Context())
	if tid == uuid.Nil {
		writeError(w, r, store.ErrTenantUnresolved)
		return
	}
	rec, err := s.deps.Directory.Lookup(r.Context(), tid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listTenants(w http.ResponseWriter, r *http.Request) {
	var (
		list []*meta.Record
		err  error
	)
	if all, _ := strconv.ParseBool(r.URL.Query().Get("includeDeleted")); all {
		list, err = s.deps.Tenants.ListIncludingDeleted(r.Context(), store.All())
	} else {
		list, err = s.deps.Tenants.List(r.Context(), store.All())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]tenantView, len(list))
	for i, rec := range list {
		out[i] = viewOf(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createTenant(w http.ResponseWriter, r *http.Request) {
	var in tenantInput
	if !decode(w, r, &in) {
		return
	}
	rec := &meta.Record{
		Name:             tenant.Slug(in.Name),
		DisplayName:      in.DisplayName,
		ExternalGroupID:  in.ExternalGroupID,
		IsActive:         in.IsActive == nil || *in.IsActive,
		ConnectionString: in.ConnectionString,
	}
	if err := s.validate.Struct(rec); err != nil {
		writeError(w, r, badRequest("invalid tenant: "+err.Error()))
		return
	}
	if _, err := s.deps.Tenants.Add(r.Context(), rec); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(rec))
}

func (s *Server) deleteTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.deps.Tenants.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Tenants.Delete(r.Context(), rec); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
