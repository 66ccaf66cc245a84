// evictor.go houses the eviction loop for Directory.  Every interval it
// scans the map and removes entries whose TTL has elapsed.  Each eviction
// updates Prometheus counters; the pass total is logged at DEBUG.
package tenant

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/ome/internal/metrics"
)

// Run evicts expired entries every interval until ctx is cancelled.
func (d *Directory) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = EvictInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := d.evictExpired(); n > 0 {
				zap.S().Debugw("tenant directory evicted", "entries", n)
			}
		}
	}
}

func (d *Directory) evictExpired() int {
	now := d.now()
	var n int
	d.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		if ent.expired(now) && d.m.CompareAndDelete(key, ent) {
			n++
			metrics.TenantEvictTotal.Inc()
			metrics.CachedTenants.Dec()
		}
		return true
	})
	return n
}
