// internal/session/session.go
//
// Server-side OAuth login sessions.
//
// Context
//   The login redirect stores {state, redirectUri} under a random session
//   id before sending the browser to the identity provider.  The callback
//   loads it back by the id carried in an HTTP-only cookie, compares the
//   state, and deletes it.  Nothing else lives in the session.
//
//   Two stores satisfy `Store`: Redis (shared across replicas) and an
//   in-memory map used when no Redis URL is configured.
//
// Style
//   Two-space sentence spacing, Oxford comma, terse inline notes.
//
//------------------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName carries the session id.
const DefaultCookieName = "ome_session"

// ErrNotFound is returned for missing or expired sessions.
var ErrNotFound = errors.New("session not found")

// State is the data saved between login and callback.
type State struct {
	State       string `json:"state"`
	RedirectURI string `json:"redirectUri"`
}

// Store persists State by session id with a fixed TTL.
type Store interface {
	Save(ctx context.Context, id string, s State) error
	Load(ctx context.Context, id string) (State, error)
	Delete(ctx context.Context, id string) error
}

// NewID returns a random session id.
func NewID() string { return uuid.NewString() }

// SetCookie writes the session id cookie.
func SetCookie(w http.ResponseWriter, name, id string, secure bool, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// ClearCookie expires the session id cookie.
func ClearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// IDFromRequest returns the session id cookie value.
//
// ok == false when the cookie is missing or empty.
func IDFromRequest(r *http.Request, name string) (id string, ok bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
