package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/tenant"
	"github.com/yanizio/ome/internal/users"
)

const maxBody = 1 << 20

type meResponse struct {
	User     auth.Identity `json:"user"`
	TenantID *uuid.UUID    `json:"tenantId"`
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	sec := auth.FromContext(r.Context())
	id, _ := sec.Principal()
	id.UserID = sec.UserID()
	id.Roles = sec.Roles()
	id.Authenticated = true

	resp := meResponse{User: id}
	if tid := tenant.ID(r.Context()); tid != uuid.Nil {
		resp.TenantID = &tid
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := s.deps.Users.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in users.Input
	if !decode(w, r, &in) {
		return
	}
	u, err := s.deps.Users.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in users.Input
	if !decode(w, r, &in) {
		return
	}
	u, err := s.deps.Users.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Users.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} URL parameter, answering 400 when malformed.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, badRequest("malformed id"))
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, badRequest("malformed request body"))
		return false
	}
	return true
}
