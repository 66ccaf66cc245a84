package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testYAML = `
http:
  listen_addr: ":8080"
  frontend_base_url: "https://app.example.com"
identity:
  base_url: "https://id.example.com"
  realm: "ome"
  client_id: "ome-api"
  client_secret: "vault:kv/ome/identity#client_secret"
  validate_issuer: true
database:
  host: "db"
  name: "ome"
  user: "ome"
  password: "vault:kv/ome/db#password"
logging:
  dir: "/var/log/ome"
tenant:
  cache_ttl: "5m"
`

type fakeResolver map[string]string

func (f fakeResolver) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := f[ref]; ok {
		return v, nil
	}
	return "", errors.New("unknown ref")
}

func writeRoot(t *testing.T, yaml string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestLoadResolvesSecretsAndDefaults(t *testing.T) {
	root := writeRoot(t, testYAML)
	t.Setenv("OME_HTTP__LISTEN_ADDR", ":9090")
	t.Setenv("OME_AUTH__REJECT_UNREFRESHABLE", "true")

	cfg, err := LoadFrom(context.Background(), root, fakeResolver{
		"vault:kv/ome/identity#client_secret": "s3cret",
		"vault:kv/ome/db#password":            "pw",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.HTTP.ListenAddr != ":9090" {
		t.Fatalf("env override lost: %q", cfg.HTTP.ListenAddr)
	}
	if cfg.Identity.ClientSecret != "s3cret" || cfg.Database.Password != "pw" {
		t.Fatal("vault references not resolved")
	}
	if !cfg.Auth.RejectUnrefreshable || !cfg.Identity.ValidateIssuer {
		t.Fatal("boolean settings lost")
	}
	if cfg.Tenant.CacheTTL != 5*time.Minute || cfg.Tenant.EvictInterval != time.Minute {
		t.Fatalf("tenant durations = %v / %v", cfg.Tenant.CacheTTL, cfg.Tenant.EvictInterval)
	}
	if cfg.HTTP.RealtimePath != "/graphql/ws" || cfg.Database.Port != 3306 || cfg.Session.CookieName != "ome_session" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if Get() != cfg {
		t.Fatal("Get does not return the loaded config")
	}
}

func TestLoadFailsWithoutResolver(t *testing.T) {
	root := writeRoot(t, testYAML)
	if _, err := LoadFrom(context.Background(), root, nil); err == nil {
		t.Fatal("vault reference accepted without a resolver")
	}
}

func TestLoadValidates(t *testing.T) {
	root := writeRoot(t, `
http:
  listen_addr: "not an address"
identity:
  base_url: "https://id.example.com"
  realm: "ome"
  client_id: "ome-api"
  client_secret: "x"
database:
  host: "db"
  name: "ome"
  user: "ome"
  password: "pw"
logging:
  dir: "/tmp"
`)
	if _, err := LoadFrom(context.Background(), root, nil); err == nil {
		t.Fatal("invalid listen_addr accepted")
	}
}
