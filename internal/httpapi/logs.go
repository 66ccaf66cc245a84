package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/yanizio/ome/internal/store"
	"github.com/yanizio/ome/internal/tenant"
)

const (
	defaultLogCount = 100
	maxLogCount     = 1000
)

// logs returns the newest buffered entries of the current tenant.
func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	tid := tenant.ID(r.Context())
	if tid == uuid.Nil {
		writeError(w, r, store.ErrTenantUnresolved)
		return
	}
	n := defaultLogCount
	if v := r.URL.Query().Get("max"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, r, badRequest("max must be a positive integer"))
			return
		}
		n = min(parsed, maxLogCount)
	}
	writeJSON(w, http.StatusOK, s.deps.Logs.Latest(tid.String(), n))
}
