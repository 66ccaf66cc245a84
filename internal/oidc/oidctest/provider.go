// Package oidctest runs an in-process identity provider for tests.  It
// serves the realm's certs, token, and logout endpoints from an
// httptest.Server and signs RS256 tokens with a throwaway key.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yanizio/ome/internal/oidc"
)

// Provider is a fake realm.  Register codes and refresh tokens before use.
type Provider struct {
	Server   *httptest.Server
	Key      *rsa.PrivateKey
	KID      string
	Realm    string
	ClientID string

	mu           sync.Mutex
	codes        map[string]*oidc.TokenSet
	refreshes    map[string]*oidc.TokenSet
	logoutCalls  int
	logoutStatus int
}

// New starts a Provider and closes it when t finishes.
func New(t testing.TB) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}
	p := &Provider{
		Key:          key,
		KID:          "test-kid",
		Realm:        "ome",
		ClientID:     "ome-api",
		codes:        map[string]*oidc.TokenSet{},
		refreshes:    map[string]*oidc.TokenSet{},
		logoutStatus: http.StatusNoContent,
	}

	prefix := "/realms/" + p.Realm + "/protocol/openid-connect/"
	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"certs", p.serveCerts)
	mux.HandleFunc(prefix+"token", p.serveToken)
	mux.HandleFunc(prefix+"logout", p.serveLogout)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// Issuer is the realm issuer URL.
func (p *Provider) Issuer() string { return p.Server.URL + "/realms/" + p.Realm }

// Config returns a client configuration pointing at the fake realm with
// issuer and audience validation on.
func (p *Provider) Config() oidc.Config {
	return oidc.Config{
		BaseURL:          p.Server.URL,
		Realm:            p.Realm,
		ClientID:         p.ClientID,
		ClientSecret:     "s3cret",
		ValidateIssuer:   true,
		ValidateAudience: true,
		HTTPTimeout:      2 * time.Second,
	}
}

// Claims returns a valid claim set for subject that callers can adjust.
func (p *Provider) Claims(subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                p.Issuer(),
		"aud":                p.ClientID,
		"sub":                subject,
		"preferred_username": subject,
		"email":              subject + "@example.test",
		"iat":                now.Unix(),
		"exp":                now.Add(5 * time.Minute).Unix(),
	}
}

// Sign returns an RS256 token over claims.
func (p *Provider) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = p.KID
	s, err := tok.SignedString(p.Key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// AddCode makes code exchangeable for ts.
func (p *Provider) AddCode(code string, ts *oidc.TokenSet) {
	p.mu.Lock()
	p.codes[code] = ts
	p.mu.Unlock()
}

// AddRefresh makes refreshToken redeemable for ts.
func (p *Provider) AddRefresh(refreshToken string, ts *oidc.TokenSet) {
	p.mu.Lock()
	p.refreshes[refreshToken] = ts
	p.mu.Unlock()
}

// SetLogoutStatus changes the logout endpoint's answer.
func (p *Provider) SetLogoutStatus(code int) {
	p.mu.Lock()
	p.logoutStatus = code
	p.mu.Unlock()
}

// LogoutCalls reports how many logout requests arrived.
func (p *Provider) LogoutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logoutCalls
}

func (p *Provider) serveCerts(w http.ResponseWriter, _ *http.Request) {
	pub := p.Key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": p.KID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *Provider) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.ParseForm() != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	p.mu.Lock()
	var ts *oidc.TokenSet
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		ts = p.codes[r.PostForm.Get("code")]
	case "refresh_token":
		ts = p.refreshes[r.PostForm.Get("refresh_token")]
	}
	p.mu.Unlock()

	if ts == nil || r.PostForm.Get("client_id") != p.ClientID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (p *Provider) serveLogout(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.logoutCalls++
	status := p.logoutStatus
	p.mu.Unlock()
	w.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
