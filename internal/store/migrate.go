package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	migratesqlserver "github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies all pending up migrations.
func (s *Store) Migrate() error {
	m, done, err := s.migrator()
	if err != nil {
		return err
	}
	defer done()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migrations.
func (s *Store) MigrateDown(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, done, err := s.migrator()
	if err != nil {
		return err
	}
	defer done()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied schema version. Zero means no
// migration has run.
func (s *Store) MigrationVersion() (version uint, dirty bool, err error) {
	m, done, err := s.migrator()
	if err != nil {
		return 0, false, err
	}
	defer done()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// migrator builds a migrate instance for the store's dialect. SQLite shares
// the store's handle (an in-memory database exists only there), so its
// instance is never closed. Other dialects get a private connection pool that
// done releases.
func (s *Store) migrator() (*migrate.Migrate, func(), error) {
	src, err := iofs.New(migrationsFS, "migrations/"+s.dialect)
	if err != nil {
		return nil, nil, fmt.Errorf("load migrations: %w", err)
	}

	if s.dialect == DialectSQLite {
		drv, err := migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("migration driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, s.dialect, drv)
		if err != nil {
			return nil, nil, fmt.Errorf("init migrations: %w", err)
		}
		return m, func() {}, nil
	}

	db, err := sql.Open(s.driverName, s.dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration connection: %w", err)
	}

	var drv database.Driver
	switch s.dialect {
	case DialectPostgres:
		drv, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	case DialectMySQL:
		drv, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case DialectSQLServer:
		drv, err = migratesqlserver.WithInstance(db, &migratesqlserver.Config{})
	default:
		err = fmt.Errorf("no migration driver for %q", s.dialect)
	}
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.dialect, drv)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			s.logger.Warn("close migrator", "source_error", srcErr, "db_error", dbErr)
		}
	}, nil
}
