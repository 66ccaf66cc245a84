package tenant

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/ome/internal/metrics"
	"github.com/yanizio/ome/internal/tenant/meta"
)

// Static defaults.  Override via the `tenant` config section.
const (
	DefaultTTL    = 10 * time.Minute
	EvictInterval = time.Minute
	LoadTimeout   = 5 * time.Second
)

// ErrNotFound is returned when no active, non-deleted tenant matches.
var ErrNotFound = errors.New("tenant not found")

// Directory is the cached view of the tenants table.  Entries live for a
// fixed TTL after load and are never invalidated on tenant update; bounded
// staleness is accepted.  Safe for concurrent use.
type Directory struct {
	db  sqlx.QueryerContext
	ttl time.Duration
	sfg singleflight.Group
	m   sync.Map // cache key → *entry
	now func() time.Time
}

// NewDirectory constructs a Directory over the control-plane database.
// ttl <= 0 selects DefaultTTL.  Call Run to start the evictor.
func NewDirectory(db sqlx.QueryerContext, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{db: db, ttl: ttl, now: time.Now}
}

// Lookup returns the active tenant with id.  Only positive results are
// cached; a miss is queried again on the next call.
func (d *Directory) Lookup(ctx context.Context, id uuid.UUID) (*meta.Record, error) {
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	v, err := d.load(ctx, "rec:"+id.String(), func(ctx context.Context) (any, error) {
		rec, err := meta.ActiveByID(ctx, d.db, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return rec, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*meta.Record), nil
}

// Exists reports whether an active tenant has id.  Both outcomes are
// cached so repeated checks for unknown ids do not reach the database.
func (d *Directory) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	v, err := d.load(ctx, "exists:"+id.String(), func(ctx context.Context) (any, error) {
		return meta.ActiveExists(ctx, d.db, id)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ConnectionString returns the tenant's connection secret.
func (d *Directory) ConnectionString(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := d.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.ConnectionString, nil
}

// ResolveKey maps a tenant name or external group id to the tenant id.
func (d *Directory) ResolveKey(ctx context.Context, key string) (uuid.UUID, error) {
	if key == "" {
		return uuid.Nil, ErrNotFound
	}
	v, err := d.load(ctx, "key:"+key, func(ctx context.Context) (any, error) {
		id, err := meta.ActiveIDByKey(ctx, d.db, key)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return id, err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return v.(uuid.UUID), nil
}

// load serves key from cache or runs fn once per key across concurrent
// callers.  Whatever fn returns without error is cached, so loaders that
// report absence as a value (Exists) get negative caching and loaders that
// report it as ErrNotFound do not.
//
// The shared load is detached from the caller that started it and bounded
// by LoadTimeout.  Each caller waits on its own ctx, so one cancelled
// request never fails the others joined to the same key.
func (d *Directory) load(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if v, ok := d.cached(key); ok {
		metrics.TenantCacheHitsTotal.Inc()
		return v, nil
	}

	ch := d.sfg.DoChan(key, func() (any, error) {
		// Double-check after singleflight barrier.
		if v, ok := d.cached(key); ok {
			return v, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		val, err := fn(lctx)
		metrics.TenantLoadTotal.Inc()
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				metrics.TenantLoadErrorsTotal.Inc()
			}
			return nil, err
		}
		d.store(key, val)
		return val, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (d *Directory) cached(key string) (any, bool) {
	v, ok := d.m.Load(key)
	if !ok {
		return nil, false
	}
	ent := v.(*entry)
	if ent.expired(d.now()) {
		if d.m.CompareAndDelete(key, ent) {
			metrics.CachedTenants.Dec()
		}
		return nil, false
	}
	return ent.value, true
}

func (d *Directory) store(key string, val any) {
	ent := &entry{value: val, expires: d.now().Add(d.ttl).UnixNano()}
	if _, loaded := d.m.Swap(key, ent); !loaded {
		metrics.CachedTenants.Inc()
	}
}
