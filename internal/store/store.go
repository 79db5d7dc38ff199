// Package store is the SQL record store behind the site: projects, contact
// messages, users, role grants, and sessions. It runs on SQLite, PostgreSQL,
// MySQL, or SQL Server through sqlx and keeps its schema with golang-migrate.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/foliodesk/folio/internal/backend"
)

// Supported dialects.
const (
	DialectSQLite    = "sqlite"
	DialectPostgres  = "postgres"
	DialectMySQL     = "mysql"
	DialectSQLServer = "sqlserver"
)

var (
	// ErrNotFound is returned when a lookup, update, or delete matches no row.
	// It is the same value as backend.ErrNotFound so callers of either
	// package can test for it.
	ErrNotFound = backend.ErrNotFound

	// ErrConflict is returned when an insert violates a unique constraint.
	ErrConflict = errors.New("already exists")
)

// Options configures Open.
type Options struct {
	Driver       string // sqlite (default), postgres, mysql, sqlserver
	DSN          string // empty with sqlite means in-memory
	MaxOpenConns int
	SkipMigrate  bool
	Publisher    backend.Publisher
	Logger       *slog.Logger
}

// Store manages the site's persistent records.
type Store struct {
	db         *sqlx.DB
	dialect    string
	driverName string
	dsn        string
	pub        backend.Publisher
	logger     *slog.Logger
}

// Open connects to the configured database and applies pending migrations
// unless SkipMigrate is set.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dialect, err := normalizeDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	driverName, dsn, err := prepareDSN(dialect, opts.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:         db,
		dialect:    dialect,
		driverName: driverName,
		dsn:        dsn,
		pub:        opts.Publisher,
		logger:     logger,
	}
	if !opts.SkipMigrate {
		if err := s.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	return s, nil
}

// OpenMemory opens a migrated in-memory SQLite store. Intended for tests and
// throwaway runs.
func OpenMemory(pub backend.Publisher) (*Store, error) {
	return Open(context.Background(), Options{Driver: DialectSQLite, Publisher: pub})
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the normalized dialect name.
func (s *Store) Dialect() string {
	return s.dialect
}

// SetPublisher sets where insert events are sent. It must be called before
// the store is shared between goroutines.
func (s *Store) SetPublisher(pub backend.Publisher) {
	s.pub = pub
}

// Projects returns the projects table.
func (s *Store) Projects() *ProjectTable {
	return &ProjectTable{s: s}
}

// Messages returns the contact_messages table.
func (s *Store) Messages() *MessageTable {
	return &MessageTable{s: s}
}

func (s *Store) now() time.Time {
	return time.Now().UTC()
}

// ---------------------------------------------------------------------------
// Dialects
// ---------------------------------------------------------------------------

func normalizeDialect(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlserver", "mssql":
		return DialectSQLServer, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// prepareDSN returns the database/sql driver name and a DSN with the
// options the store depends on.
func prepareDSN(dialect, dsn string) (string, string, error) {
	switch dialect {
	case DialectSQLite:
		if dsn == "" || dsn == ":memory:" {
			return "sqlite", ":memory:", nil
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", "", fmt.Errorf("create data dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
		return "sqlite", dsn, nil
	case DialectPostgres:
		if dsn == "" {
			return "", "", errors.New("postgres requires database.dsn")
		}
		return "pgx", dsn, nil
	case DialectMySQL:
		if dsn == "" {
			return "", "", errors.New("mysql requires database.dsn")
		}
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Timestamps must scan into time.Time, migration files hold several
		// statements each, and an UPDATE that changes nothing must still
		// report the matched row.
		cfg.ParseTime = true
		cfg.MultiStatements = true
		cfg.ClientFoundRows = true
		return "mysql", cfg.FormatDSN(), nil
	case DialectSQLServer:
		if dsn == "" {
			return "", "", errors.New("sqlserver requires database.dsn")
		}
		return "sqlserver", dsn, nil
	}
	return "", "", fmt.Errorf("unsupported dialect %q", dialect)
}

// ---------------------------------------------------------------------------
// Query building
// ---------------------------------------------------------------------------

// buildSelect renders a SELECT for table from q. Columns in filters and
// order clauses must appear in allowed. Placeholders are rebound for the
// store's dialect.
func (s *Store) buildSelect(table string, allowed map[string]bool, q backend.Query, defaultOrder []backend.Order) (string, []interface{}, error) {
	var (
		b    strings.Builder
		args []interface{}
	)
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)

	for i, f := range q.Filters {
		if err := checkColumn(allowed, f.Column); err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(f.Column)
		b.WriteString(" = ?")
		args = append(args, f.Value)
	}

	order := q.Order
	if len(order) == 0 {
		order = defaultOrder
	}
	for i, o := range order {
		if err := checkColumn(allowed, o.Column); err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(o.String())
	}

	return s.db.Rebind(b.String()), args, nil
}

func checkColumn(allowed map[string]bool, col string) error {
	if err := backend.ValidateIdentifier(col); err != nil {
		return err
	}
	if !allowed[col] {
		return fmt.Errorf("unknown column %q", col)
	}
	return nil
}

// isUniqueViolation reports whether err looks like a unique constraint
// failure in any supported dialect.
func isUniqueViolation(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry") ||
		strings.Contains(lower, "violation of unique")
}
