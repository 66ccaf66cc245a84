package oidc_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yanizio/ome/internal/oidc"
	"github.com/yanizio/ome/internal/oidc/oidctest"
)

func TestAuthorizationURL(t *testing.T) {
	c := oidc.New(oidc.Config{BaseURL: "https://id.example.com/", Realm: "ome", ClientID: "ome api"}, nil)

	got := c.AuthorizationURL("https://app.example.com/auth/callback?x=1&y=2", "st/ate")
	want := "https://id.example.com/realms/ome/protocol/openid-connect/auth" +
		"?response_type=code" +
		"&client_id=ome%20api" +
		"&redirect_uri=https%3A%2F%2Fapp.example.com%2Fauth%2Fcallback%3Fx%3D1%26y%3D2" +
		"&state=st%2Fate" +
		"&scope=openid%20profile%20email"
	if got != want {
		t.Fatalf("AuthorizationURL\n got: %s\nwant: %s", got, want)
	}
	if again := c.AuthorizationURL("https://app.example.com/auth/callback?x=1&y=2", "st/ate"); again != got {
		t.Fatal("AuthorizationURL is not deterministic")
	}
}

func TestExchangeCode(t *testing.T) {
	p := oidctest.New(t)
	p.AddCode("good", &oidc.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 300})
	c := oidc.New(p.Config(), nil)

	ts, err := c.ExchangeCode(context.Background(), "good", "https://app/cb")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if ts.AccessToken != "at" || ts.RefreshToken != "rt" {
		t.Fatalf("unexpected token set %+v", ts)
	}

	_, err = c.ExchangeCode(context.Background(), "bad", "https://app/cb")
	var ex *oidc.ExchangeError
	if !errors.As(err, &ex) || ex.StatusCode != http.StatusBadRequest || !errors.Is(err, oidc.ErrExchangeFailed) {
		t.Fatalf("bad code err = %v, want ExchangeError(400)", err)
	}
}

func TestRefresh(t *testing.T) {
	p := oidctest.New(t)
	p.AddRefresh("rt", &oidc.TokenSet{AccessToken: "at2", RefreshToken: "rt2"})
	c := oidc.New(p.Config(), nil)

	ts, err := c.Refresh(context.Background(), "rt")
	if err != nil || ts.AccessToken != "at2" {
		t.Fatalf("Refresh = %+v, %v", ts, err)
	}
	if _, err := c.Refresh(context.Background(), "revoked"); !errors.Is(err, oidc.ErrExchangeFailed) {
		t.Fatalf("Refresh(revoked) err = %v, want ErrExchangeFailed", err)
	}
}

func TestUpstreamUnavailable(t *testing.T) {
	p := oidctest.New(t)
	cfg := p.Config()
	p.Server.Close()
	c := oidc.New(cfg, nil)

	if _, err := c.ExchangeCode(context.Background(), "x", "y"); !errors.Is(err, oidc.ErrUpstreamUnavailable) {
		t.Fatalf("ExchangeCode err = %v, want ErrUpstreamUnavailable", err)
	}
	if _, err := c.Refresh(context.Background(), "x"); !errors.Is(err, oidc.ErrUpstreamUnavailable) {
		t.Fatalf("Refresh err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestRevokeNeverFails(t *testing.T) {
	p := oidctest.New(t)
	c := oidc.New(p.Config(), nil)

	c.Revoke(context.Background(), "rt")
	p.SetLogoutStatus(http.StatusBadRequest)
	c.Revoke(context.Background(), "rt")
	if n := p.LogoutCalls(); n != 2 {
		t.Fatalf("logout calls = %d, want 2", n)
	}

	p.Server.Close()
	c.Revoke(context.Background(), "rt") // must not panic or block
}

func TestValidate(t *testing.T) {
	p := oidctest.New(t)
	c := oidc.New(p.Config(), nil)
	t.Cleanup(c.Close)

	expired := p.Claims("u1")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	wrongIss := p.Claims("u1")
	wrongIss["iss"] = "https://evil.example.com/realms/ome"
	wrongAud := p.Claims("u1")
	wrongAud["aud"] = "someone-else"
	noExp := p.Claims("u1")
	delete(noExp, "exp")

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, p.Claims("u1"))
	hsToken, _ := hs.SignedString([]byte("shared"))

	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid", p.Sign(t, p.Claims("u1")), true},
		{"expired", p.Sign(t, expired), false},
		{"wrong issuer", p.Sign(t, wrongIss), false},
		{"wrong audience", p.Sign(t, wrongAud), false},
		{"missing exp", p.Sign(t, noExp), false},
		{"hmac signed", hsToken, false},
		{"garbage", "not.a.token", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Validate(context.Background(), tc.token); got != tc.want {
				t.Fatalf("Validate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateTogglesOff(t *testing.T) {
	p := oidctest.New(t)
	cfg := p.Config()
	cfg.ValidateIssuer = false
	cfg.ValidateAudience = false
	c := oidc.New(cfg, nil)
	t.Cleanup(c.Close)

	claims := p.Claims("u1")
	claims["iss"] = "https://elsewhere"
	claims["aud"] = "other"
	if !c.Validate(context.Background(), p.Sign(t, claims)) {
		t.Fatal("Validate = false with issuer and audience checks disabled")
	}
}

func TestValidateUnreachableJWKS(t *testing.T) {
	p := oidctest.New(t)
	token := p.Sign(t, p.Claims("u1"))
	cfg := p.Config()
	p.Server.Close()

	c := oidc.New(cfg, nil)
	if c.Validate(context.Background(), token) {
		t.Fatal("Validate = true with JWKS endpoint down")
	}
}

// hangingJWKS serves a certs endpoint that never answers until the test
// ends.
func hangingJWKS(t *testing.T) oidc.Config {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return oidc.Config{BaseURL: srv.URL, Realm: "ome", ClientID: "ome-api", HTTPTimeout: 10 * time.Second}
}

func TestValidateReturnsWhenContextEnds(t *testing.T) {
	c := oidc.New(hangingJWKS(t), nil)
	t.Cleanup(c.Close)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if c.Validate(cancelled, "a.b.c") {
		t.Fatal("Validate = true with a cancelled context")
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("cancelled Validate took %v", d)
	}

	// Concurrent callers share the stalled fetch and each leaves on its
	// own deadline instead of queueing behind the others.
	elapsed := make([]time.Duration, 3)
	var wg sync.WaitGroup
	for i := range elapsed {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			start := time.Now()
			if c.Validate(ctx, "a.b.c") {
				t.Error("Validate = true while JWKS hangs")
			}
			elapsed[i] = time.Since(start)
		}(i)
	}
	wg.Wait()
	for i, d := range elapsed {
		if d > time.Second {
			t.Fatalf("caller %d waited %v", i, d)
		}
	}
}

func TestValidateRemembersFailedFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := oidc.New(oidc.Config{BaseURL: srv.URL, Realm: "ome", ClientID: "ome-api"}, nil)
	t.Cleanup(c.Close)

	for i := 0; i < 3; i++ {
		if c.Validate(context.Background(), "a.b.c") {
			t.Fatal("Validate = true with a failing JWKS endpoint")
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("JWKS fetched %d times, want 1", n)
	}
}
