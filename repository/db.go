// Package repository opens the database, applies the embedded migrations
// and builds the auth repository manager on top of it.
package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-secure-auth"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

type Option func(*Options)

func WithMaxOpenConns(n int) Option {
	return func(o *Options) { o.MaxOpenConns = n }
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *Options) { o.ConnMaxLifetime = d }
}

func WithPingTimeout(d time.Duration) Option {
	return func(o *Options) { o.PingTimeout = d }
}

// DialectFor picks the dialect from the DSN scheme. Anything that is not a
// postgres URL is handed to sqlite.
func DialectFor(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to dsn and pings it.
func Open(ctx context.Context, dsn string, opts ...Option) (*bun.DB, error) {
	o := Options{
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		PingTimeout:  5 * time.Second,
	}

	var db *bun.DB
	switch DialectFor(dsn) {
	case DialectPostgres:
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, openError(err, DialectPostgres)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		dsn = strings.TrimPrefix(dsn, "sqlite://")
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, openError(err, DialectSQLite)
		}
		// sqlite serializes writers and an in memory database lives as
		// long as its connection
		o.MaxOpenConns, o.MaxIdleConns = 1, 1
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	for _, opt := range opts {
		opt(&o)
	}

	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxIdleConns)
	if o.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(o.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.PingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, openError(err, Dialect(db))
	}

	return db, nil
}

// Dialect names the dialect db was opened with.
func Dialect(db *bun.DB) string {
	if db.Dialect().Name() == dialect.PG {
		return DialectPostgres
	}
	return DialectSQLite
}

// Bootstrap opens dsn, migrates it and returns the repository manager.
func Bootstrap(ctx context.Context, dsn string, opts ...Option) (*bun.DB, auth.RepositoryManager, error) {
	db, err := Open(ctx, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	if _, err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return db, repo, nil
}

func openError(err error, dialect string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open database").
		WithTextCode("DATABASE_UNAVAILABLE").
		WithMetadata(map[string]any{"dialect": dialect})
}
