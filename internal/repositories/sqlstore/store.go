// Package sqlstore persists products, preorders and sync state in PostgreSQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vinylyard/api/internal/repositories"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	operationTimeout = 5 * time.Second
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store is a repositories.Registry backed by database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
}

var _ repositories.Registry = (*Store)(nil)

// Option customises Open.
type Option func(*openConfig)

type openConfig struct {
	maxOpenConns int
	open         sqlOpenFunc
}

// WithMaxOpenConns bounds the PostgreSQL pool. SQLite always uses a single connection.
func WithMaxOpenConns(n int) Option {
	return func(cfg *openConfig) {
		if n > 0 {
			cfg.maxOpenConns = n
		}
	}
}

// Open connects to the database and applies the schema idempotently.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	cfg := openConfig{maxOpenConns: 10, open: sql.Open}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("sqlstore: dsn is required")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := cfg.open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", d.driver, err)
	}
	if d.driver == DriverSQLite {
		// One writer avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}

	initCtx, cancel := context.WithTimeout(ctx, 2*operationTimeout)
	defer cancel()
	if err := db.PingContext(initCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: connect: %w", err)
	}
	for _, stmt := range d.setup {
		if _, err := db.ExecContext(initCtx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlstore: execute %q: %w", stmt, err)
		}
	}
	return &Store{db: db, dialect: d}, nil
}

func (s *Store) Products() repositories.ProductRepository {
	return &productRepository{db: s.db, d: s.dialect}
}
func (s *Store) Preorders() repositories.PreorderRepository {
	return &preorderRepository{db: s.db, d: s.dialect}
}
func (s *Store) SyncState() repositories.SyncStateRepository {
	return &syncStateRepository{db: s.db, d: s.dialect}
}

// DB exposes the pool for seeding in tests and operator tooling.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return repositories.NewProductError("store.ping", repositories.ProductErrorUnavailable, err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// dialect hides the placeholder, list-membership and constraint differences between drivers.
type dialect struct {
	driver string
	setup  []string
	// notIn renders "column NOT IN <list>" for a single bound list argument.
	notIn     func(column string) string
	listArg   func(values []string) (any, error)
	uniqueErr func(err error) (constraint string, ok bool)
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql", "pq":
		return postgresDialect(), nil
	case DriverSQLite, "sqlite":
		return sqliteDialect(), nil
	default:
		return dialect{}, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// rebind rewrites '?' placeholders to $n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, operationTimeout)
}
