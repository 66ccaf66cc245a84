// internal/config/model.go
//
// Typed configuration model.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                       – dotenv values,
//   • `conf/global.yaml`                    – primary static file,
//   • `OME_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with `vault:` is resolved through the
// Vault client *before* unmarshalling, so the model never stores Vault
// references, only plain strings.
//
// Validation happens immediately after unmarshal and defaulting; the app
// fails fast if required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Durations accept Go syntax ("10m", "90s").
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables and the public URLs the API hands out.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"       validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	FrontendBaseURL string        `koanf:"frontend_base_url" validate:"omitempty,url"`
	RealtimePath    string        `koanf:"realtime_path"     validate:"startswith=/"`
	APIPaths        []string      `koanf:"api_paths"         validate:"dive,startswith=/"`
	AllowedOrigins  []string      `koanf:"allowed_origins"   validate:"dive,url"`
	ShutdownGrace   time.Duration `koanf:"shutdown_grace"`
}

//
// Identity section
//

// Identity configures the OIDC provider (one realm, one confidential client).
type Identity struct {
	BaseURL             string        `koanf:"base_url"              validate:"required,url"`
	Realm               string        `koanf:"realm"                 validate:"required"`
	ClientID            string        `koanf:"client_id"             validate:"required"`
	ClientSecret        string        `koanf:"client_secret"         validate:"required"`
	Issuer              string        `koanf:"issuer"                validate:"omitempty,url"`
	ValidateIssuer      bool          `koanf:"validate_issuer"`
	ValidateAudience    bool          `koanf:"validate_audience"`
	HTTPTimeout         time.Duration `koanf:"http_timeout"`
	JWKSRefreshInterval time.Duration `koanf:"jwks_refresh_interval"`
}

//
// Database section
//

// Database describes the MySQL control-plane connection.  The password is
// normally a `vault:` reference.
type Database struct {
	Host            string        `koanf:"host"              validate:"required"`
	Port            int           `koanf:"port"              validate:"min=1,max=65535"`
	Name            string        `koanf:"name"              validate:"required"`
	User            string        `koanf:"user"              validate:"required"`
	Password        string        `koanf:"password"          validate:"required"`
	TLSCAPath       string        `koanf:"tls_ca_path"`
	Params          string        `koanf:"params"`
	MaxOpen         int           `koanf:"max_open"          validate:"min=0"`
	MaxIdle         int           `koanf:"max_idle"          validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

//
// Session section
//

// Session configures the OAuth state store.  An empty RedisURL selects the
// in-process store.
type Session struct {
	RedisURL   string        `koanf:"redis_url"   validate:"omitempty,url"`
	TTL        time.Duration `koanf:"ttl"`
	CookieName string        `koanf:"cookie_name"`
}

//
// Auth section
//

// Auth controls token cookies and the refresh fallback.
type Auth struct {
	CookieSecure        bool          `koanf:"cookie_secure"`
	CookieMaxAge        time.Duration `koanf:"cookie_max_age"`
	RefreshCookieMaxAge time.Duration `koanf:"refresh_cookie_max_age"`
	RejectUnrefreshable bool          `koanf:"reject_unrefreshable"`
}

//
// Tenant section
//

// Tenant tunes the tenant directory cache.
type Tenant struct {
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	EvictInterval time.Duration `koanf:"evict_interval"`
}

//
// Logging section
//

// Logging configures the zap file sink and the per-tenant buffer.
type Logging struct {
	Dir              string        `koanf:"dir"                validate:"required"`
	Level            string        `koanf:"level"              validate:"omitempty,oneof=debug info warn error"`
	Tee              bool          `koanf:"tee"`
	TenantBufferSize int           `koanf:"tenant_buffer_size" validate:"min=0"`
	BufferMaxAge     time.Duration `koanf:"buffer_max_age"`
}

//
// GeoIP section
//

// GeoIP points at an optional GeoLite2-City database.
type GeoIP struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // OME_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Identity Identity `koanf:"identity"`
	Database Database `koanf:"database"`
	Session  Session  `koanf:"session"`
	Auth     Auth     `koanf:"auth"`
	Tenant   Tenant   `koanf:"tenant"`
	Logging  Logging  `koanf:"logging"`
	GeoIP    GeoIP    `koanf:"geoip"`
	Paths    Paths    `koanf:"-"`
}

// applyDefaults fills zero values the YAML may leave out.
func (c *Config) applyDefaults() {
	if c.HTTP.RealtimePath == "" {
		c.HTTP.RealtimePath = "/graphql/ws"
	}
	if len(c.HTTP.APIPaths) == 0 {
		c.HTTP.APIPaths = []string{"/graphql", "/api"}
	}
	if c.HTTP.ShutdownGrace == 0 {
		c.HTTP.ShutdownGrace = 15 * time.Second
	}
	if c.Identity.HTTPTimeout == 0 {
		c.Identity.HTTPTimeout = 10 * time.Second
	}
	if c.Identity.JWKSRefreshInterval == 0 {
		c.Identity.JWKSRefreshInterval = time.Hour
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 15
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 10 * time.Minute
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "ome_session"
	}
	if c.Auth.CookieMaxAge == 0 {
		c.Auth.CookieMaxAge = time.Hour
	}
	if c.Auth.RefreshCookieMaxAge == 0 {
		c.Auth.RefreshCookieMaxAge = 30 * 24 * time.Hour
	}
	if c.Tenant.CacheTTL == 0 {
		c.Tenant.CacheTTL = 10 * time.Minute
	}
	if c.Tenant.EvictInterval == 0 {
		c.Tenant.EvictInterval = time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.TenantBufferSize == 0 {
		c.Logging.TenantBufferSize = 500
	}
	if c.Logging.BufferMaxAge == 0 {
		c.Logging.BufferMaxAge = time.Hour
	}
}
