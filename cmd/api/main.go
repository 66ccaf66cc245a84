// cmd/api/main.go
//
// OME API – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load .env and, when VAULT_ADDR is set, connect to Vault so `vault:`
//     references in the configuration can be resolved.
//
//  2. Load conf/global.yaml with OME_* overrides and validate it.
//
//  3. Start the rotating file logger with the per-tenant buffer attached.
//
//  4. Open the control-plane database and start the tenant directory
//     evictor.
//
//  5. Choose the login-session store (Redis when configured, memory
//     otherwise).
//
//  6. Wire the identity client, event dispatcher, user service, realtime
//     hub, and HTTP API.
//
//  7. Serve until SIGINT or SIGTERM, then drain within the grace period.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/ome/internal/config"
	"github.com/yanizio/ome/internal/database"
	"github.com/yanizio/ome/internal/events"
	"github.com/yanizio/ome/internal/httpapi"
	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/middleware"
	"github.com/yanizio/ome/internal/oidc"
	"github.com/yanizio/ome/internal/realtime"
	"github.com/yanizio/ome/internal/requestinfo"
	"github.com/yanizio/ome/internal/server"
	"github.com/yanizio/ome/internal/session"
	"github.com/yanizio/ome/internal/tenant"
	"github.com/yanizio/ome/internal/users"
	"github.com/yanizio/ome/internal/vault"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		zap.S().Errorw("fatal", "err", err)
		_ = zap.S().Sync()
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	// Console logger until the configured one is up.
	boot, err := zap.NewProduction()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(boot)

	//
	// ── 1.  Secrets and configuration ───────────────────────────────────
	//
	var secrets config.SecretResolver
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx)
		if err != nil {
			return err
		}
		secrets = vc
	}
	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		return err
	}

	//
	// ── 2.  Logger with per-tenant buffer ───────────────────────────────
	//
	lvl, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	buf := logger.NewTenantBuffer(cfg.Logging.TenantBufferSize, lvl)
	lg, err := logger.New(cfg.Logging.Dir, cfg.Logging.Level, cfg.Logging.Tee || runningInTTY(), buf.Core())
	if err != nil {
		return err
	}
	defer lg.Sync()
	go buf.Run(ctx, time.Minute, cfg.Logging.BufferMaxAge)

	if err := requestinfo.InitGeo(cfg.GeoIP.DBPath); err != nil {
		lg.Warnw("geoip disabled", "err", err)
	}
	defer requestinfo.CloseGeo()

	//
	// ── 3.  Control-plane database and tenant directory ────────────────
	//
	db, err := database.Open(ctx, database.Options{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Name:            cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		TLSCAPath:       cfg.Database.TLSCAPath,
		Params:          cfg.Database.Params,
		MaxOpen:         cfg.Database.MaxOpen,
		MaxIdle:         cfg.Database.MaxIdle,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	lg.Infow("database online", "host", cfg.Database.Host, "name", cfg.Database.Name)

	dir := tenant.NewDirectory(db, cfg.Tenant.CacheTTL)
	go dir.Run(ctx, cfg.Tenant.EvictInterval)

	//
	// ── 4.  Login sessions ──────────────────────────────────────────────
	//
	sessions, err := openSessions(ctx, cfg.Session)
	if err != nil {
		return err
	}

	//
	// ── 5.  Services ────────────────────────────────────────────────────
	//
	idp := oidc.New(oidc.Config{
		BaseURL:             cfg.Identity.BaseURL,
		Realm:               cfg.Identity.Realm,
		ClientID:            cfg.Identity.ClientID,
		ClientSecret:        cfg.Identity.ClientSecret,
		Issuer:              cfg.Identity.Issuer,
		ValidateIssuer:      cfg.Identity.ValidateIssuer,
		ValidateAudience:    cfg.Identity.ValidateAudience,
		HTTPTimeout:         cfg.Identity.HTTPTimeout,
		JWKSRefreshInterval: cfg.Identity.JWKSRefreshInterval,
	}, nil)
	defer idp.Close()

	bus := events.NewDispatcher()
	hub := realtime.NewHub(cfg.HTTP.AllowedOrigins...)
	hub.OnDenied = httpapi.WriteError
	hub.Register(bus)
	defer hub.Close()

	api := httpapi.New(httpapi.Options{
		FrontendBaseURL:     cfg.HTTP.FrontendBaseURL,
		RealtimePath:        cfg.HTTP.RealtimePath,
		APIPaths:            cfg.HTTP.APIPaths,
		CookieSecure:        cfg.Auth.CookieSecure,
		CookieMaxAge:        cfg.Auth.CookieMaxAge,
		RefreshCookieMaxAge: cfg.Auth.RefreshCookieMaxAge,
		RejectUnrefreshable: cfg.Auth.RejectUnrefreshable,
		SessionCookie:       cfg.Session.CookieName,
		SessionTTL:          cfg.Session.TTL,
	}, httpapi.Deps{
		OIDC:      idp,
		Directory: dir,
		Sessions:  sessions,
		Users:     users.NewService(db, bus),
		Tenants:   httpapi.NewTenantGateway(db),
		Logs:      buf,
		Realtime:  hub,
	})

	//
	// ── 6.  Router and server ───────────────────────────────────────────
	//
	root := chi.NewRouter()
	root.Use(chimw.RealIP)
	root.Use(middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS))
	root.Use(middleware.Security)
	root.Handle("/metrics", promhttp.Handler())
	root.Get("/healthz", healthz(db))
	root.Mount("/", api.Routes())

	return server.Run(ctx, server.New(cfg.HTTP.ListenAddr, root), cfg.HTTP.ShutdownGrace)
}

// openSessions dials Redis when a URL is configured.  The in-memory store
// is swept in the background.
func openSessions(ctx context.Context, c config.Session) (session.Store, error) {
	if c.RedisURL != "" {
		client, err := session.Dial(ctx, c.RedisURL)
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			_ = client.Close()
		}()
		return session.NewRedisStore(client, c.TTL), nil
	}

	zap.S().Warnw("session.redis_url not set, login sessions are process-local")
	mem := session.NewMemoryStore(c.TTL)
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				mem.Sweep()
			}
		}
	}()
	return mem, nil
}

// runningInTTY reports whether stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func healthz(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}
}
