// Package schema applies the server's SQL migrations with sql-migrate.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	migrate "github.com/rubenv/sql-migrate"
)

// DefaultTable records applied migrations.
const DefaultTable = "schema_migrations"

// Locker serializes migrations across processes. *lock.Locker implements it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Migrator applies the migrations found in a directory.
type Migrator struct {
	db      *sql.DB
	dialect string
	set     migrate.MigrationSet
	source  migrate.MigrationSource
}

// Dialect maps a database/sql driver name to a sql-migrate dialect.
func Dialect(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return "mysql", nil
	case "postgres", "pgx":
		return "postgres", nil
	case "sqlite3", "sqlite":
		return "sqlite3", nil
	case "mssql", "sqlserver":
		return "mssql", nil
	}
	return "", fmt.Errorf("schema: no migration dialect for driver %q", driver)
}

// New returns a Migrator for the .sql files in dir. An empty table selects
// DefaultTable.
func New(db *sql.DB, driver, dir, table string) (*Migrator, error) {
	return NewWithSource(db, driver, &migrate.FileMigrationSource{Dir: dir}, table)
}

// NewWithSource is New with an explicit migration source.
func NewWithSource(db *sql.DB, driver string, source migrate.MigrationSource, table string) (*Migrator, error) {
	dialect, err := Dialect(driver)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = DefaultTable
	}
	return &Migrator{
		db:      db,
		dialect: dialect,
		set:     migrate.MigrationSet{TableName: table},
		source:  source,
	}, nil
}

// Pending lists the ids of migrations not yet applied.
func (m *Migrator) Pending() ([]string, error) {
	planned, _, err := m.set.PlanMigration(m.db, m.dialect, m.source, migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("plan migrations: %w", err)
	}
	ids := make([]string, 0, len(planned))
	for _, p := range planned {
		ids = append(ids, p.Id)
	}
	return ids, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up() (int, error) {
	n, err := m.set.Exec(m.db, m.dialect, m.source, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}

// UpLocked runs Up while holding the migration lock, so that replicas
// starting together apply each migration once.
func (m *Migrator) UpLocked(ctx context.Context, l Locker, ttl time.Duration) (int, error) {
	var n int
	err := l.WithLock(ctx, "migrate:"+m.set.TableName, ttl, func(context.Context) error {
		var err error
		n, err = m.Up()
		return err
	})
	return n, err
}
