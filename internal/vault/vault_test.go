package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	vault "github.com/hashicorp/vault/api"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		in        string
		path, key string
		ok        bool
	}{
		{"vault:kv/ome/identity#client_secret", "kv/ome/identity", "client_secret", true},
		{"vault:kv/db#password", "kv/db", "password", true},
		{"vault:kv#password", "", "", false},
		{"vault:kv/db", "", "", false},
		{"vault:kv/db#", "", "", false},
		{"plain-value", "", "", false},
	}
	for _, tc := range cases {
		path, key, ok := ParseRef(tc.in)
		if path != tc.path || key != tc.key || ok != tc.ok {
			t.Fatalf("ParseRef(%q) = %q, %q, %v", tc.in, path, key, ok)
		}
	}
}

func TestResolveReadsKVv2AndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/kv/data/ome/db" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"password":"s3cret"},` +
			`"metadata":{"created_time":"2024-01-01T00:00:00Z","deletion_time":"","destroyed":false,"version":1}}}`))
	}))
	t.Cleanup(srv.Close)

	cfg := vault.DefaultConfig()
	cfg.Address = srv.URL
	api, err := vault.NewClient(cfg)
	if err != nil {
		t.Fatalf("vault client: %v", err)
	}
	api.SetToken("test")
	c := Wrap(api)

	for i := 0; i < 2; i++ {
		got, err := c.Resolve(context.Background(), "vault:kv/ome/db#password")
		if err != nil || got != "s3cret" {
			t.Fatalf("Resolve = %q, %v", got, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("vault hit %d times, want cached after first", hits.Load())
	}

	if _, err := c.Resolve(context.Background(), "vault:kv/ome/db#missing"); err == nil {
		t.Fatal("missing key resolved")
	}
}
