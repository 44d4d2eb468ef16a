package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/trailtrack/licensed/internal/model"
)

// Options selects and tunes the backing database. The zero value opens a
// private in-memory SQLite database, which is what tests use.
type Options struct {
	Driver          string // sqlite (default), postgres, mysql
	DSN             string
	DataDir         string // sqlite only, used when DSN is empty
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// dialect captures the handful of SQL differences between backends.
type dialect struct {
	name       string
	driverName string
	timestamp  string
	forUpdate  string
	isolation  sql.IsolationLevel
	// exact is appended to identifier columns (license keys, machine ids,
	// checkout sessions) so equality compares bytes, not a folded form.
	exact string
}

var dialects = map[string]dialect{
	"sqlite": {
		name:       "sqlite",
		driverName: "sqlite",
		timestamp:  "DATETIME",
	},
	"postgres": {
		name:       "postgres",
		driverName: "pgx",
		timestamp:  "TIMESTAMPTZ",
		forUpdate:  " FOR UPDATE",
		isolation:  sql.LevelReadCommitted,
	},
	"mysql": {
		name:       "mysql",
		driverName: "mysql",
		timestamp:  "DATETIME(6)",
		forUpdate:  " FOR UPDATE",
		isolation:  sql.LevelReadCommitted,
		exact:      " CHARACTER SET utf8mb4 COLLATE utf8mb4_bin",
	},
}

// rebind rewrites ? placeholders into the dialect's bind style.
func (d dialect) rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(d.driverName), query)
}

func lookupDialect(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return dialects["sqlite"], nil
	case "postgres", "postgresql", "pgx":
		return dialects["postgres"], nil
	case "mysql", "mariadb":
		return dialects["mysql"], nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// Store persists licenses, their activation ledger, purchases, and admin
// accounts in a single SQL database.
//
// Writes and locked transactions go through db. Plain reads go through rdb,
// which is a separate read-only pool for a file-backed SQLite database (so
// readers are not queued behind the single writer connection) and the same
// pool as db everywhere else.
type Store struct {
	db      *sqlx.DB
	rdb     *sqlx.DB
	dialect dialect
}

// defaultSQLiteReaders sizes the SQLite read pool when MaxOpenConns is unset.
const defaultSQLiteReaders = 4

// Open connects to the database described by opts and applies migrations.
func Open(opts Options) (*Store, error) {
	d, err := lookupDialect(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := buildDSN(d, opts)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.name, err)
	}

	if d.name == "sqlite" {
		// One writer connection serializes every transaction, which is also
		// what makes the per-license lock hold on SQLite.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	s := &Store{db: db, rdb: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", d.name, err)
	}

	if readDSN, ok := readerDSN(d, opts); ok {
		rdb, err := sqlx.Connect(d.driverName, readDSN)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open %s read pool: %w", d.name, err)
		}
		n := opts.MaxOpenConns
		if n <= 0 {
			n = defaultSQLiteReaders
		}
		rdb.SetMaxOpenConns(n)
		s.rdb = rdb
	}
	return s, nil
}

// readerDSN returns the DSN of a separate read-only pool. Only a SQLite file
// in WAL mode under the data directory gets one; an in-memory database is
// private to its single connection.
func readerDSN(d dialect, opts Options) (string, bool) {
	if d.name != "sqlite" || opts.DSN != "" || opts.DataDir == "" {
		return "", false
	}
	return sqliteFile(opts.DataDir) + "?_pragma=busy_timeout(5000)&_pragma=query_only(1)", true
}

func sqliteFile(dataDir string) string {
	return filepath.Join(dataDir, "licensed.db")
}

func buildDSN(d dialect, opts Options) (string, error) {
	switch d.name {
	case "sqlite":
		if opts.DSN != "" {
			return opts.DSN, nil
		}
		if opts.DataDir == "" {
			return ":memory:", nil
		}
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return "", fmt.Errorf("create data dir: %w", err)
		}
		return sqliteFile(opts.DataDir) +
			"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", nil
	case "mysql":
		cfg, err := mysql.ParseDSN(opts.DSN)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		// Report matched rather than changed rows so conditional updates
		// that rewrite identical values still count as a hit.
		cfg.ClientFoundRows = true
		return cfg.FormatDSN(), nil
	default:
		if opts.DSN == "" {
			return "", fmt.Errorf("%s requires a dsn", d.name)
		}
		return opts.DSN, nil
	}
}

// Driver returns the normalized backend name (sqlite, postgres, mysql).
func (s *Store) Driver() string {
	return s.dialect.name
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	if s.rdb != s.db {
		return s.rdb.PingContext(ctx)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.rdb != s.db {
		if err := s.rdb.Close(); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// Tx is a unit of work on the store. Every statement issued through a Tx
// commits or rolls back together.
type Tx struct {
	tx      *sqlx.Tx
	dialect dialect
}

func (s *Store) inTx(ctx context.Context, fn func(tx *Tx) error) error {
	var opts *sql.TxOptions
	if s.dialect.isolation != sql.LevelDefault {
		opts = &sql.TxOptions{Isolation: s.dialect.isolation}
	}

	sqlTx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&Tx{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithLicenseLock runs fn in a transaction that holds an exclusive lock on
// the license identified by key. Concurrent callers for the same key run one
// after another; callers for different keys do not block each other on
// PostgreSQL and MySQL. fn must use tx for every query it issues. If fn
// returns an error nothing it wrote is kept. ErrNotFound is returned when no
// license has that key.
func (s *Store) WithLicenseLock(ctx context.Context, key string, fn func(tx *Tx, lic *model.License) error) error {
	return s.inTx(ctx, func(tx *Tx) error {
		lic, err := tx.lockLicense(ctx, key)
		if err != nil {
			return err
		}
		return fn(tx, lic)
	})
}

// WithPurchaseLock runs fn in a transaction holding the purchase row for the
// given checkout session. ErrNotFound is returned when the session is unknown.
func (s *Store) WithPurchaseLock(ctx context.Context, sessionID string, fn func(tx *Tx, p *model.Purchase) error) error {
	return s.inTx(ctx, func(tx *Tx) error {
		p, err := tx.lockPurchase(ctx, sessionID)
		if err != nil {
			return err
		}
		return fn(tx, p)
	})
}
