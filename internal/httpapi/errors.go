package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/yanizio/ome/internal/acl"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/store"
	"github.com/yanizio/ome/internal/tenant"
	"github.com/yanizio/ome/internal/users"
)

// Stable error codes of the JSON error payload.
const (
	codeUnauthorized = "UNAUTHORIZED"
	codeForbidden    = "FORBIDDEN"
	codeBadRequest   = "BAD_REQUEST"
	codeNotFound     = "NOT_FOUND"
	codeConflict     = "CONFLICT"
	codeInternal     = "INTERNAL_SERVER_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// badRequest carries a client-facing message for malformed input.
type badRequest string

func (b badRequest) Error() string { return string(b) }

// writeError maps err onto a status and a fixed message.  Internal error
// text never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		body   = errorBody{Code: codeInternal, Message: "internal server error"}
		br     badRequest
	)
	switch {
	case errors.Is(err, acl.ErrUnauthenticated):
		status, body = http.StatusUnauthorized, errorBody{codeUnauthorized, "authentication required"}
	case errors.Is(err, acl.ErrForbidden):
		status, body = http.StatusForbidden, errorBody{codeForbidden, "insufficient role"}
	case errors.Is(err, store.ErrCrossTenantAccess):
		status, body = http.StatusForbidden, errorBody{codeForbidden, "entity belongs to another tenant"}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, tenant.ErrNotFound):
		status, body = http.StatusNotFound, errorBody{codeNotFound, "not found"}
	case errors.Is(err, store.ErrDuplicateEntity):
		status, body = http.StatusConflict, errorBody{codeConflict, "duplicate entity"}
		var de *store.DuplicateError
		if errors.As(err, &de) && len(de.Key) > 0 {
			body.Message = "duplicate " + strings.Join(de.Key, ", ")
		}
	case errors.Is(err, store.ErrTenantUnresolved):
		status, body = http.StatusBadRequest, errorBody{codeBadRequest, "no tenant selected"}
	case errors.Is(err, users.ErrInvalidInput):
		status, body = http.StatusBadRequest, errorBody{codeBadRequest, "invalid input"}
	case errors.As(err, &br):
		status, body = http.StatusBadRequest, errorBody{codeBadRequest, string(br)}
	default:
		logger.FromContext(r.Context()).Errorw("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as the JSON error body used by every API route.
func WriteError(w http.ResponseWriter, r *http.Request, err error) { writeError(w, r, err) }
