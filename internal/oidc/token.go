package oidc

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yanizio/ome/internal/auth"
)

// TokenInfo is the decode-only view of an access token.  It is transient
// and never persisted.
type TokenInfo struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	TenantID  string    `json:"tenantId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Roles     []string  `json:"roles"`
	Groups    []string  `json:"groups,omitempty"`
}

// TokenInfo decodes token claims without verifying the signature.  Callers
// must have validated the token already.  The tenant comes from `tenant_id`,
// then the legacy `tenantId`, then the last segment of the first group.
// Roles are read from `roles`, `role`, and `realm_access.roles`.
func (c *Client) TokenInfo(token string) (*TokenInfo, error) {
	return DecodeToken(token)
}

// DecodeToken is TokenInfo without a Client.
func DecodeToken(token string) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	info := &TokenInfo{
		UserID:   stringClaim(claims, "sub"),
		Username: stringClaim(claims, "preferred_username"),
		Email:    stringClaim(claims, "email"),
		Groups:   stringsClaim(claims["groups"]),
	}

	info.TenantID = stringClaim(claims, "tenant_id")
	if info.TenantID == "" {
		info.TenantID = stringClaim(claims, "tenantId")
	}
	if info.TenantID == "" {
		if seg, err := auth.TenantFromGroups(info.Groups); err == nil {
			info.TenantID = seg
		}
	}

	if exp, ok := claims["exp"].(float64); ok {
		info.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}

	seen := map[string]struct{}{}
	addRoles := func(rs []string) {
		for _, r := range rs {
			if _, dup := seen[r]; r == "" || dup {
				continue
			}
			seen[r] = struct{}{}
			info.Roles = append(info.Roles, r)
		}
	}
	addRoles(stringsClaim(claims["roles"]))
	addRoles(stringsClaim(claims["role"]))
	if ra, ok := claims["realm_access"].(map[string]any); ok {
		addRoles(stringsClaim(ra["roles"]))
	}
	return info, nil
}

// Claims methods let TokenInfo feed auth.NewIdentity.

func (t *TokenInfo) Subject() string           { return t.UserID }
func (t *TokenInfo) PreferredUsername() string { return t.Username }
func (t *TokenInfo) EmailAddress() string      { return t.Email }
func (t *TokenInfo) TenantClaim() string       { return t.TenantID }
func (t *TokenInfo) RoleClaims() []string      { return t.Roles }

// Expired reports whether the token's exp has passed.
func (t *TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

func stringClaim(c jwt.MapClaims, key string) string {
	s, _ := c[key].(string)
	return strings.TrimSpace(s)
}

func stringsClaim(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
