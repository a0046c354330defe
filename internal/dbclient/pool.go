package dbclient

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Pool hands out dedicated connections from a database/sql pool. Pool sizing
// is left to database/sql.
type Pool struct {
	db *sqlx.DB
}

// OpenPool prepares a pool for the named driver. The package registers
// "mysql" and "postgres" through its driver imports.
// No connection is made until Open is called.
func OpenPool(driverName, dsn string) (*Pool, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", driverName, err)
	}
	return NewPool(db), nil
}

// NewPool wraps an existing handle.
func NewPool(db *sqlx.DB) *Pool {
	return &Pool{db: db}
}

// Open checks out one physical connection and verifies it is alive.
func (p *Pool) Open(ctx context.Context) (Client, error) {
	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, &ConnectivityError{Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &ConnectivityError{Err: err}
	}
	return NewConn(conn, p.db.DriverName()), nil
}

// DB returns the underlying handle.
func (p *Pool) DB() *sqlx.DB {
	return p.db
}

// Close closes the pool and every idle connection in it.
func (p *Pool) Close() error {
	return p.db.Close()
}
