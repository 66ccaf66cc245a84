// Package database centralises sqlx connection helpers.  The driver is
// go-sql-driver/mysql, which also works with MariaDB.
//
// Public entry points:
//
//	BuildDSN(opts)        – assembles the DSN, registering the CA bundle
//	                        with the driver when TLS is configured.
//	Open(ctx, opts)       – opens, sizes, and pings the pool.
//
// Open pings before returning so callers fail fast during bootstrap.
// Callers Close() the returned *sqlx.DB on shutdown.
package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// TLSConfigName is the name the CA bundle is registered under.
const TLSConfigName = "ome-ca"

// Options describes one MySQL connection.
type Options struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	TLSCAPath       string
	Params          string // extra DSN parameters, "k=v&k2=v2"
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// BuildDSN returns
// `{user}:{password}@tcp({host}:{port})/{name}?parseTime=true&loc=UTC`
// plus clientFoundRows (so updates that change nothing still count as a
// match) and `tls=ome-ca` when a CA path is set.
func BuildDSN(o Options) (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	cfg.DBName = o.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true

	if o.Params != "" {
		vals, err := url.ParseQuery(o.Params)
		if err != nil {
			return "", fmt.Errorf("database params: %w", err)
		}
		cfg.Params = make(map[string]string, len(vals))
		for k := range vals {
			cfg.Params[k] = vals.Get(k)
		}
	}

	if o.TLSCAPath != "" {
		if err := registerCA(o.TLSCAPath); err != nil {
			return "", err
		}
		cfg.TLSConfig = TLSConfigName
	}
	return cfg.FormatDSN(), nil
}

func registerCA(path string) error {
	pem, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read database CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("database CA %s: no certificates found", path)
	}
	return mysql.RegisterTLSConfig(TLSConfigName, &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	})
}

// Open builds the DSN, opens the pool, applies sizing, and pings.
func Open(ctx context.Context, o Options) (*sqlx.DB, error) {
	dsn, err := BuildDSN(o)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(o.MaxOpen)
	db.SetMaxIdleConns(o.MaxIdle)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return db, nil
}
