// internal/logger/tenantbuffer.go
//
// Per-tenant in-memory log buffer.
//
// Context
// -------
// `TenantBuffer` is a `zapcore.Core` teed next to the file sink.  Every entry
// that carries a `tenant_id` field, either on the logger (`With`) or on the
// call itself, is copied into a bounded ring owned by that tenant.
// Administrators read their own tenant's recent entries through
// `GET /api/logs`; nothing else in the process needs the buffer.
//
// Concurrency
// -----------
// Rings live in a `sync.Map` keyed by tenant id.  Each ring has its own
// mutex, so writers for different tenants never contend and there is no
// process-wide lock.
//
// Notes
// -----
// • `Latest` drains: returned entries are removed from the ring.
// • `Cleanup` prunes entries by age and drops rings that become empty.  A
//   dropped ring is marked dead under its lock; a writer that loaded it
//   just before starts over on a fresh ring.
// • The buffer captures at the same level as the file sink.
// • Oxford commas, two spaces after periods.
package logger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// TenantField is the field key that routes an entry into a tenant ring.
const TenantField = "tenant_id"

// BufferedEntry is one captured log line.
type BufferedEntry struct {
	Time    time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type ring struct {
	mu      sync.Mutex
	entries []BufferedEntry
	dead    bool
}

// TenantBuffer captures tenant-tagged entries.  Zero value is not usable;
// call NewTenantBuffer.
type TenantBuffer struct {
	size  int
	level zapcore.LevelEnabler
	rings sync.Map // tenant id → *ring
}

// NewTenantBuffer returns a buffer holding at most size entries per tenant
// at level and above.  A nil level captures info and above.
func NewTenantBuffer(size int, level zapcore.LevelEnabler) *TenantBuffer {
	if size <= 0 {
		size = 500
	}
	if level == nil {
		level = zapcore.InfoLevel
	}
	return &TenantBuffer{size: size, level: level}
}

// Core returns a zapcore.Core that feeds the buffer.
func (b *TenantBuffer) Core() zapcore.Core { return &bufferCore{buf: b} }

func (b *TenantBuffer) append(tenantID string, e BufferedEntry) {
	for {
		v, _ := b.rings.LoadOrStore(tenantID, &ring{})
		r := v.(*ring)
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		if len(r.entries) >= b.size {
			copy(r.entries, r.entries[1:])
			r.entries = r.entries[:len(r.entries)-1]
		}
		r.entries = append(r.entries, e)
		r.mu.Unlock()
		return
	}
}

// Latest removes and returns up to max of the most recent entries for
// tenantID, oldest first.
func (b *TenantBuffer) Latest(tenantID string, max int) []BufferedEntry {
	v, ok := b.rings.Load(tenantID)
	if !ok || max <= 0 {
		return nil
	}
	r := v.(*ring)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if max > n {
		max = n
	}
	out := make([]BufferedEntry, max)
	copy(out, r.entries[n-max:])
	r.entries = r.entries[:n-max]
	return out
}

// Cleanup drops entries older than maxAge and removes empty rings.
func (b *TenantBuffer) Cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	b.rings.Range(func(key, value any) bool {
		r := value.(*ring)
		r.mu.Lock()
		keep := r.entries[:0]
		for _, e := range r.entries {
			if e.Time.After(cutoff) {
				keep = append(keep, e)
			}
		}
		r.entries = keep
		if len(keep) == 0 {
			r.dead = true
			b.rings.CompareAndDelete(key, r)
		}
		r.mu.Unlock()
		return true
	})
}

// Run calls Cleanup every interval until ctx is cancelled.
func (b *TenantBuffer) Run(ctx context.Context, interval, maxAge time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Cleanup(maxAge)
		}
	}
}

//
// zapcore.Core implementation
//

type bufferCore struct {
	buf    *TenantBuffer
	fields []zapcore.Field
	tenant string
}

func (c *bufferCore) Enabled(l zapcore.Level) bool { return c.buf.level.Enabled(l) }

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &bufferCore{
		buf:    c.buf,
		fields: append(append([]zapcore.Field(nil), c.fields...), fields...),
		tenant: c.tenant,
	}
	if t := tenantOf(fields); t != "" {
		clone.tenant = t
	}
	return clone
}

func (c *bufferCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *bufferCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	tenant := c.tenant
	if t := tenantOf(fields); t != "" {
		tenant = t
	}
	if tenant == "" {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	c.buf.append(tenant, BufferedEntry{
		Time:    e.Time,
		Level:   e.Level.String(),
		Message: e.Message,
		Fields:  enc.Fields,
	})
	return nil
}

func (c *bufferCore) Sync() error { return nil }

func tenantOf(fields []zapcore.Field) string {
	for _, f := range fields {
		if f.Key != TenantField {
			continue
		}
		switch f.Type {
		case zapcore.StringType:
			return f.String
		case zapcore.StringerType:
			if s, ok := f.Interface.(fmt.Stringer); ok {
				return s.String()
			}
		}
	}
	return ""
}
