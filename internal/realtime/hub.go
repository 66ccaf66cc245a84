// internal/realtime/hub.go
//
// Per-tenant websocket fan-out of domain events.
//
// Context
// -------
// The subscription endpoint upgrades an already-authenticated request to a
// websocket.  The HTTP authentication middleware has populated the
// security context and pinned the tenant before the hub sees the request;
// the hub only checks the outcome.  Each connection then gets its own
// SecurityContext, filled on the manual path with the handshake's user and
// roles; the request's holder is not kept past the upgrade.
//
// The hub subscribes to the user events on the dispatcher and forwards each
// one as `{"type": "<kind>", "payload": {...}}` to the connections of the
// event's tenant.  Nothing crosses tenants.
//
// Workflow
// --------
//  1. ServeHTTP checks identity and tenant, upgrades, and registers the
//     client under its tenant.
//  2. writePump drains the client's buffered send channel and pings.
//  3. readPump discards inbound frames and notices disconnects.
//  4. Broadcast never blocks: a client whose buffer is full is dropped.
//
// Notes
// -----
// • The client send channel is closed only under the hub's write lock.
// • Oxford commas, two spaces after periods.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yanizio/ome/internal/acl"
	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/events"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/metrics"
	"github.com/yanizio/ome/internal/store"
	"github.com/yanizio/ome/internal/tenant"
	"github.com/yanizio/ome/internal/users"
)

const (
	sendBuffer   = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxInbound   = 4096
)

// Message is the frame written to subscribers.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	tenant uuid.UUID
	user   string
	sec    *auth.SecurityContext
}

// Hub tracks subscribers by tenant.
type Hub struct {
	// OnDenied renders a refused upgrade.  Nil answers with plain-text
	// 401 or 400 responses.
	OnDenied func(w http.ResponseWriter, r *http.Request, err error)

	mu       sync.RWMutex
	clients  map[uuid.UUID]map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub returns an empty hub.  Cross-origin upgrades are accepted only
// from allowedOrigins (scheme://host); same-host and Origin-less requests
// always pass.
func NewHub(allowedOrigins ...string) *Hub {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}
	h := &Hub{clients: make(map[uuid.UUID]map[*client]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed[strings.ToLower(origin)]; ok {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
	return h
}

// Register subscribes the hub to the user events on d.
func (h *Hub) Register(d *events.Dispatcher) {
	events.On(d, users.KindUserCreated, func(_ context.Context, e users.UserCreated) error {
		h.Broadcast(e.TenantID, Message{Type: string(e.EventKind()), Payload: e})
		return nil
	})
	events.On(d, users.KindUserUpdated, func(_ context.Context, e users.UserUpdated) error {
		h.Broadcast(e.TenantID, Message{Type: string(e.EventKind()), Payload: e})
		return nil
	})
	events.On(d, users.KindUserDeleted, func(_ context.Context, e users.UserDeleted) error {
		h.Broadcast(e.TenantID, Message{Type: string(e.EventKind()), Payload: e})
		return nil
	})
}

// Broadcast queues m for every connection of tenantID and returns how many
// accepted it.  Connections with a full buffer are dropped.
func (h *Hub) Broadcast(tenantID uuid.UUID, m Message) int {
	data, err := json.Marshal(m)
	if err != nil {
		zap.S().Errorw("realtime marshal failed", "type", m.Type, "err", err)
		return 0
	}

	var delivered int
	var slow []*client
	h.mu.RLock()
	for c := range h.clients[tenantID] {
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		zap.S().Warnw("realtime client too slow, dropping", "tenant_id", c.tenant, "user_id", c.user)
		h.remove(c)
	}
	return delivered
}

// Count reports the open connections for tenantID.
func (h *Hub) Count(tenantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenantID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tid, set := range h.clients {
		for c := range set {
			close(c.send)
			metrics.RealtimeConnections.Dec()
		}
		delete(h.clients, tid)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.tenant]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.tenant] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeConnections.Inc()
}

// remove unregisters c and closes its send channel.  Safe to call twice.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.tenant]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.tenant)
	}
	close(c.send)
	metrics.RealtimeConnections.Dec()
}

// ServeHTTP upgrades an authenticated, tenant-pinned request.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sec := auth.FromContext(ctx)
	if !sec.IsAuthenticated() {
		h.deny(w, r, acl.ErrUnauthenticated)
		return
	}
	tid := tenant.ID(ctx)
	if tid == uuid.Nil {
		h.deny(w, r, store.ErrTenantUnresolved)
		return
	}

	log := logger.FromContext(ctx)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		log.Warnw("realtime upgrade failed", "err", err)
		return
	}

	connSec := connIdentity(sec)
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), tenant: tid, user: connSec.UserID(), sec: connSec}
	h.add(c)
	log.Infow("realtime connected", "remote", r.RemoteAddr, "roles", connSec.Roles())

	go c.writePump()
	c.readPump()

	h.remove(c)
	log.Infow("realtime disconnected", "remote", r.RemoteAddr)
}

// connIdentity copies the handshake identity onto a connection-owned
// holder.
func connIdentity(sec *auth.SecurityContext) *auth.SecurityContext {
	conn := auth.NewSecurityContext()
	conn.SetUserID(sec.UserID())
	for _, r := range sec.Roles() {
		conn.AddRole(r)
	}
	return conn
}

func (h *Hub) deny(w http.ResponseWriter, r *http.Request, err error) {
	if h.OnDenied != nil {
		h.OnDenied(w, r, err)
		return
	}
	if err == acl.ErrUnauthenticated {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}

func (c *client) readPump() {
	c.conn.SetReadLimit(maxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
