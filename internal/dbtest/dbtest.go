// Package dbtest provides database doubles for tests: connections backed by
// go-sqlmock and a Client wrapper that records every command it forwards.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/sqlexec_go/internal/dbclient"
)

// DriverName is the driver name sqlmock handles are registered under.
const DriverName = "sqlmock"

// NewDB returns a sqlmock-backed handle matching statements by exact text.
// The handle is closed when the test ends.
func NewDB(t testing.TB) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, DriverName), mock
}

// NewConn returns a Conn on a dedicated sqlmock connection.
func NewConn(t testing.TB) (*dbclient.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := NewDB(t)
	conn, err := db.Connx(context.Background())
	if err != nil {
		t.Fatalf("Connx() failed: %v", err)
	}
	return dbclient.NewConn(conn, DriverName), mock
}

// Recorder forwards to Client and keeps every command it was given.
type Recorder struct {
	dbclient.Client

	Commands []dbclient.Command
	Closed   int
}

// NewRecorder wraps c.
func NewRecorder(c dbclient.Client) *Recorder {
	return &Recorder{Client: c}
}

// Exec records cmd and forwards it.
func (r *Recorder) Exec(ctx context.Context, cmd dbclient.Command) (sql.Result, error) {
	r.Commands = append(r.Commands, cmd)
	return r.Client.Exec(ctx, cmd)
}

// Query records cmd and forwards it.
func (r *Recorder) Query(ctx context.Context, cmd dbclient.Command) (dbclient.Rows, error) {
	r.Commands = append(r.Commands, cmd)
	return r.Client.Query(ctx, cmd)
}

// Close counts the call and forwards it.
func (r *Recorder) Close() error {
	r.Closed++
	return r.Client.Close()
}

// Last returns the most recent command, or the zero Command.
func (r *Recorder) Last() dbclient.Command {
	if len(r.Commands) == 0 {
		return dbclient.Command{}
	}
	return r.Commands[len(r.Commands)-1]
}

// Opener hands out recorded sqlmock connections.
type Opener struct {
	db   *sqlx.DB
	Mock sqlmock.Sqlmock

	// Err, when set, is returned by Open instead of a connection.
	Err error

	Opened []*Recorder
	Closed bool
}

// NewOpener returns an Opener over one sqlmock handle.
func NewOpener(t testing.TB) *Opener {
	t.Helper()
	db, mock := NewDB(t)
	return &Opener{db: db, Mock: mock}
}

// Open checks out a new connection and wraps it in a Recorder.
func (o *Opener) Open(ctx context.Context) (dbclient.Client, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	conn, err := o.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	rec := NewRecorder(dbclient.NewConn(conn, DriverName))
	o.Opened = append(o.Opened, rec)
	return rec, nil
}

// Close marks the opener closed.
func (o *Opener) Close() error {
	o.Closed = true
	return nil
}
