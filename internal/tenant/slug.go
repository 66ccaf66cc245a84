// internal/tenant/slug.go
//
// Tenant name normalization.
//
// Tenant names double as the dashboard path segment and as one of the keys
// ResolveKey matches, so they are stored as lower-kebab ASCII:
//
//  1. Lower-case everything.
//  2. Turn each run of characters outside [a-z0-9] into one "-".
//  3. Trim leading and trailing "-".
//
// Notes
// -----
// • An input with no usable characters yields "".  Callers reject it.
// • Names are capped at 128 bytes, matching the column.
package tenant

import "strings"

const maxNameLen = 128

// Slug converts a display name into a tenant name.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > maxNameLen {
		out = strings.TrimRight(out[:maxNameLen], "-")
	}
	return out
}
