// Package dbclient is the database client an executor delegates to. It binds
// positional or named parameters, applies command deadlines, runs statements
// on a dedicated connection or an explicit transaction and classifies driver
// failures as statement or connectivity errors.
package dbclient

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Kind tells the client how to interpret a command's text.
type Kind int

const (
	// Text is a plain SQL statement.
	Text Kind = iota
	// StoredProcedure is the name of a stored procedure; arguments are passed
	// to it in order.
	StoredProcedure
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case StoredProcedure:
		return "stored_procedure"
	}
	return "unknown"
}

// Command is one statement to run.
type Command struct {
	// Text is the SQL statement, or the procedure name for StoredProcedure.
	Text string
	// Args are positional arguments bound to ? placeholders, which are
	// rewritten to the driver's style ($1, @p1). With Args set, every ? in
	// Text is a placeholder; a command without parameters is sent as
	// written. A slice argument expands into a parenthesised list for an
	// IN (?) placeholder.
	Args []any
	// Named is a struct or map bound to :name placeholders. It cannot be
	// combined with Args.
	Named any
	// Tx runs the command inside the caller's transaction when set.
	Tx *sqlx.Tx
	// Timeout bounds the command; zero or negative means no deadline.
	Timeout time.Duration
	// Kind selects how Text is interpreted.
	Kind Kind
}

// Rows is a forward-only cursor over one or more result sets.
// *sql.Rows and *sqlx.Rows implement it.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	NextResultSet() bool
	Err() error
	Close() error
}

// Client runs commands against one connection.
type Client interface {
	// Exec runs a command that returns no rows.
	Exec(ctx context.Context, cmd Command) (sql.Result, error)

	// Query runs a command returning one or more result sets. The command's
	// deadline stays in force until the rows are closed.
	Query(ctx context.Context, cmd Command) (Rows, error)

	// Begin starts a transaction on the client's connection.
	Begin(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)

	// Close releases the connection.
	Close() error
}
