// internal/tenant/entry.go
//
// Directory cache entry.
//
// Context
// -------
// The Directory stores one `entry` per cache key.  Keys are prefixed by
// kind so the three lookups share one map:
//
//   - `rec:<uuid>`     → *meta.Record (positive results only)
//   - `exists:<uuid>`  → bool (both outcomes)
//   - `key:<segment>`  → uuid.UUID (positive results only)
//
// `expires` is a UnixNano deadline fixed at load time.  Reads never extend
// it; the evictor and the read path both drop expired entries.
//
// Notes
// -----
//   - Values are treated as immutable once stored.
//   - Oxford commas, two spaces after periods.
package tenant

import "time"

type entry struct {
	value   any
	expires int64 // UnixNano
}

func (e *entry) expired(now time.Time) bool { return now.UnixNano() >= e.expires }
