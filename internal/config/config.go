package config

import (
	"errors"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
)

const redactedPassword = "xxxxx"

// PoolSettings describes the database connection pool.
type PoolSettings struct {
	URL            string // password redacted
	ConnectTimeout int32  // seconds
	IdleTimeout    int32  // seconds
	MaxLifetime    int32  // seconds
	MinConnections int32
	MaxConnections int32
}

// App is the configuration shared by every request handler. It is built once
// at startup and never modified; changing it requires a restart.
type App struct {
	Version     string
	StoreType   string
	Language    string
	CORSOrigins []string
	Postgres    *PoolSettings // nil for the memory store
	Pool        *pgxpool.Pool // nil for the memory store
}

// Validate checks the fields the server cannot run without.
func (a *App) Validate() error {
	if a.Language == "" {
		return errors.New("default language is required")
	}
	if a.StoreType == "postgres" && (a.Postgres == nil || a.Pool == nil) {
		return errors.New("postgres store requires pool settings and a pool")
	}
	return nil
}

// SanitizeDBURL replaces the password in a postgres connection URL, in the
// userinfo or the password query parameter, so the URL can be logged. Anything
// that doesn't parse as a URL is replaced entirely.
func SanitizeDBURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return redactedPassword
	}

	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redactedPassword)
	}

	query := u.Query()
	if query.Has("password") {
		query.Set("password", redactedPassword)
		u.RawQuery = query.Encode()
	}

	return u.String()
}
