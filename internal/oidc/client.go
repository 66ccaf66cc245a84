// internal/oidc/client.go
//
// OpenID Connect client for the external identity provider.
//
// Context
// -------
// The provider is a Keycloak-style realm.  Endpoints are derived from the
// base URL and realm:
//
//	{base}/realms/{realm}/protocol/openid-connect/{auth,token,logout,certs}
//
// The client covers the whole login lifecycle:
//
//   - `AuthorizationURL`: pure URL construction, no I/O.
//   - `ExchangeCode` / `Refresh`: form POSTs to the token endpoint.
//   - `Revoke`: logout call that never fails the caller.
//   - `Validate`: signature, issuer, audience, and expiry check
//     against the realm JWKS; answers false on any failure.
//   - `TokenInfo`: decode-only claim extraction (see token.go).
//
// Validation and decoding are separate on purpose: a pipeline stage that
// already trusts a token calls `TokenInfo` alone and skips the JWKS work.
//
// Notes
// -----
// • The JWKS is fetched lazily on the first Validate and refreshed in the
//   background by keyfunc.  Concurrent first calls share one fetch, and
//   each waits only as long as its own context allows.
// • A failed fetch is remembered for jwksRetryAfter; Validate answers
//   false without calling out again until the window passes.
// • Oxford commas, two spaces after periods.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/metrics"
)

// Scope is the fixed scope set requested at login.
const Scope = "openid profile email"

// jwksRetryAfter also serves as keyfunc's refresh rate limit.
const jwksRetryAfter = time.Minute

var errClientClosed = errors.New("oidc: client closed")

// Config carries provider coordinates and validation toggles.
type Config struct {
	BaseURL             string
	Realm               string
	ClientID            string
	ClientSecret        string
	Issuer              string // overrides {base}/realms/{realm}
	ValidateIssuer      bool
	ValidateAudience    bool
	HTTPTimeout         time.Duration
	JWKSRefreshInterval time.Duration
}

// TokenSet is the token endpoint's success payload.
type TokenSet struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	IDToken          string `json:"id_token,omitempty"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
}

// Client talks to one realm.  Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	base string

	jwksMu     sync.Mutex
	jwks       *keyfunc.JWKS
	jwksErr    error
	jwksErrAt  time.Time
	closed     bool
	jwksFlight singleflight.Group
}

// New returns a Client.  hc may be nil.
func New(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if cfg.JWKSRefreshInterval <= 0 {
		cfg.JWKSRefreshInterval = time.Hour
	}
	return &Client{
		cfg:  cfg,
		http: hc,
		base: strings.TrimRight(cfg.BaseURL, "/") + "/realms/" + url.PathEscape(cfg.Realm),
	}
}

func (c *Client) endpoint(name string) string {
	return c.base + "/protocol/openid-connect/" + name
}

// IssuerURL is the expected `iss` claim.
func (c *Client) IssuerURL() string {
	if c.cfg.Issuer != "" {
		return c.cfg.Issuer
	}
	return c.base
}

//
// Authorization code flow
//

// AuthorizationURL builds the provider login URL.  Parameter order is fixed
// and every value is percent-encoded.
func (c *Client) AuthorizationURL(redirectURI, state string) string {
	params := [][2]string{
		{"response_type", "code"},
		{"client_id", c.cfg.ClientID},
		{"redirect_uri", redirectURI},
		{"state", state},
		{"scope", Scope},
	}
	var b strings.Builder
	b.WriteString(c.endpoint("auth"))
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(percentEncode(p[1]))
	}
	return b.String()
}

func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}
	return c.tokenRequest(ctx, "exchange", form)
}

// Refresh trades a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
	}
	return c.tokenRequest(ctx, "refresh", form)
}

// Revoke ends the provider session.  Failures are logged and swallowed so
// local logout always completes.
func (c *Client) Revoke(ctx context.Context, refreshToken string) {
	log := logger.FromContext(ctx)
	if refreshToken == "" {
		return
	}
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
	}
	resp, err := c.post(ctx, c.endpoint("logout"), form)
	if err != nil {
		metrics.IdentityCallsTotal.WithLabelValues("revoke", "error").Inc()
		log.Warnw("identity logout failed", "err", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		metrics.IdentityCallsTotal.WithLabelValues("revoke", "rejected").Inc()
		log.Warnw("identity logout rejected", "status", resp.StatusCode)
		return
	}
	metrics.IdentityCallsTotal.WithLabelValues("revoke", "ok").Inc()
}

func (c *Client) tokenRequest(ctx context.Context, op string, form url.Values) (*TokenSet, error) {
	resp, err := c.post(ctx, c.endpoint("token"), form)
	if err != nil {
		metrics.IdentityCallsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		metrics.IdentityCallsTotal.WithLabelValues(op, "rejected").Inc()
		return nil, &ExchangeError{Op: op, StatusCode: resp.StatusCode}
	}

	var ts TokenSet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ts); err != nil {
		metrics.IdentityCallsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s: decode token response: %w: %w", op, ErrUpstreamUnavailable, err)
	}
	if ts.AccessToken == "" {
		metrics.IdentityCallsTotal.WithLabelValues(op, "rejected").Inc()
		return nil, &ExchangeError{Op: op, StatusCode: resp.StatusCode}
	}
	metrics.IdentityCallsTotal.WithLabelValues(op, "ok").Inc()
	return &ts, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

//
// Signature validation
//

// Validate reports whether token is signed by the realm, unexpired, and,
// when enabled, carries the expected issuer and audience.  Every failure,
// including an unreachable JWKS endpoint, yields false.
func (c *Client) Validate(ctx context.Context, token string) bool {
	ok, reason := c.validate(ctx, token)
	if ok {
		metrics.TokenValidationsTotal.WithLabelValues("valid").Inc()
		return true
	}
	metrics.TokenValidationsTotal.WithLabelValues(reason).Inc()
	logger.FromContext(ctx).Debugw("token rejected", "reason", reason)
	return false
}

func (c *Client) validate(ctx context.Context, token string) (bool, string) {
	if token == "" {
		return false, "empty"
	}
	jwks, err := c.keySet(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, "canceled"
		}
		return false, "jwks_unavailable"
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	tok, err := parser.ParseWithClaims(token, claims, jwks.Keyfunc)
	if err != nil || !tok.Valid {
		return false, "invalid"
	}
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return false, "expired"
	}
	if c.cfg.ValidateIssuer && !claims.VerifyIssuer(c.IssuerURL(), true) {
		return false, "issuer"
	}
	if c.cfg.ValidateAudience && !claims.VerifyAudience(c.cfg.ClientID, true) {
		return false, "audience"
	}
	return true, ""
}

// keySet returns the realm JWKS, fetching it on first use.  The caller
// stops waiting when ctx ends; the shared fetch carries on for the others.
func (c *Client) keySet(ctx context.Context) (*keyfunc.JWKS, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.jwksMu.Lock()
	jwks, failed, failedAt := c.jwks, c.jwksErr, c.jwksErrAt
	c.jwksMu.Unlock()
	if jwks != nil {
		return jwks, nil
	}
	if failed != nil && time.Since(failedAt) < jwksRetryAfter {
		return nil, failed
	}

	ch := c.jwksFlight.DoChan("jwks", func() (any, error) { return c.fetchKeySet() })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keyfunc.JWKS), nil
	}
}

// fetchKeySet runs without jwksMu held; keyfunc bounds the request with
// the HTTP timeout.
func (c *Client) fetchKeySet() (*keyfunc.JWKS, error) {
	c.jwksMu.Lock()
	if c.jwks != nil {
		defer c.jwksMu.Unlock()
		return c.jwks, nil
	}
	c.jwksMu.Unlock()

	timeout := c.http.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	jwks, err := keyfunc.Get(c.endpoint("certs"), keyfunc.Options{
		Client:            c.http,
		RefreshInterval:   c.cfg.JWKSRefreshInterval,
		RefreshRateLimit:  jwksRetryAfter,
		RefreshTimeout:    timeout,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			zap.S().Warnw("jwks refresh failed", "err", err)
		},
	})

	c.jwksMu.Lock()
	defer c.jwksMu.Unlock()
	if err != nil {
		metrics.IdentityCallsTotal.WithLabelValues("jwks", "error").Inc()
		zap.S().Warnw("jwks fetch failed", "err", err, "retry_after", jwksRetryAfter)
		c.jwksErr, c.jwksErrAt = err, time.Now()
		return nil, err
	}
	metrics.IdentityCallsTotal.WithLabelValues("jwks", "ok").Inc()
	if c.closed {
		jwks.EndBackground()
		return nil, errClientClosed
	}
	c.jwks, c.jwksErr = jwks, nil
	return jwks, nil
}

// Close stops the background JWKS refresh.
func (c *Client) Close() {
	c.jwksMu.Lock()
	defer c.jwksMu.Unlock()
	c.closed = true
	if c.jwks != nil {
		c.jwks.EndBackground()
		c.jwks = nil
	}
}
