package oidc_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/yanizio/ome/internal/auth"
	"github.com/yanizio/ome/internal/oidc"
	"github.com/yanizio/ome/internal/oidc/oidctest"
)

func TestTokenInfoGroupsRoundTrip(t *testing.T) {
	p := oidctest.New(t)
	claims := p.Claims("kc-123")
	claims["groups"] = []string{"/companies/acme-corp"}
	claims["realm_access"] = map[string]any{"roles": []string{"OmeAdmin", "offline_access"}}
	claims["roles"] = []string{"OmeTechnician", "OmeAdmin"}

	info, err := oidc.DecodeToken(p.Sign(t, claims))
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if info.TenantID != "acme-corp" {
		t.Fatalf("TenantID = %q, want acme-corp", info.TenantID)
	}
	if info.UserID != "kc-123" || info.Email != "kc-123@example.test" {
		t.Fatalf("identity claims = %+v", info)
	}
	want := []string{"OmeTechnician", "OmeAdmin", "offline_access"}
	if !reflect.DeepEqual(info.Roles, want) {
		t.Fatalf("Roles = %v, want %v", info.Roles, want)
	}
	if info.ExpiresAt.IsZero() {
		t.Fatal("ExpiresAt not decoded")
	}
}

func TestTokenInfoTenantClaimPrecedence(t *testing.T) {
	p := oidctest.New(t)

	c1 := p.Claims("u")
	c1["tenant_id"] = "t-primary"
	c1["tenantId"] = "t-legacy"
	c1["groups"] = []string{"/g/t-group"}

	c2 := p.Claims("u")
	c2["tenantId"] = "t-legacy"
	c2["role"] = "OmeTrainee"

	for _, tc := range []struct {
		token string
		want  string
	}{
		{p.Sign(t, c1), "t-primary"},
		{p.Sign(t, c2), "t-legacy"},
	} {
		info, err := oidc.DecodeToken(tc.token)
		if err != nil {
			t.Fatalf("DecodeToken: %v", err)
		}
		if info.TenantID != tc.want {
			t.Fatalf("TenantID = %q, want %q", info.TenantID, tc.want)
		}
	}
}

func TestTokenInfoFeedsIdentity(t *testing.T) {
	p := oidctest.New(t)
	claims := p.Claims("kc-9")
	claims["tenant_id"] = "5b0e6d1e-8a4b-4c9e-9a51-0f7a3f1c2d3e"
	claims["roles"] = []string{"OmeSuperUser"}

	info, err := oidc.DecodeToken(p.Sign(t, claims))
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	id := auth.NewIdentity(info)
	if !id.Authenticated || id.TenantID.String() != "5b0e6d1e-8a4b-4c9e-9a51-0f7a3f1c2d3e" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestTokenInfoMalformed(t *testing.T) {
	for _, tok := range []string{"", "abc", "a.b.c"} {
		if _, err := oidc.DecodeToken(tok); !errors.Is(err, oidc.ErrMalformedToken) {
			t.Fatalf("DecodeToken(%q) err = %v, want ErrMalformedToken", tok, err)
		}
	}
}
