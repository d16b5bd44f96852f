package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"csatnotes/internal/config"

	_ "github.com/lib/pq"
)

const postgresPingTimeout = 10 * time.Second

// PostgresDSN builds the connection URL for the remote store from the
// account (host[:port]), user and credential settings.
func PostgresDSN(cfg config.Config) (string, error) {
	var missing []string
	if strings.TrimSpace(cfg.StoreAccount) == "" {
		missing = append(missing, "store_account")
	}
	if strings.TrimSpace(cfg.StoreUser) == "" {
		missing = append(missing, "store_user")
	}
	if cfg.StorePassword == "" {
		missing = append(missing, "store_password")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing store credentials: %s", strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.StoreUser, cfg.StorePassword),
		Host:   strings.TrimSpace(cfg.StoreAccount),
		Path:   "/" + cfg.StoreDatabase,
	}
	q := url.Values{}
	q.Set("sslmode", cfg.StoreSSLMode)
	q.Set("application_name", "csatnotes")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConnectPostgres opens the remote store once and verifies it with a ping.
// There is no retry loop: a failure is reported to the operator as is.
func ConnectPostgres(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dsn, err := PostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.StoreAccount, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
