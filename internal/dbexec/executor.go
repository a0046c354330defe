// Package dbexec is the executor layer between application code and the
// database client. An Executor owns one connection and one default command
// timeout, resolves every call's timeout against that default, and maps
// result sets onto Go values, optionally trimming their strings.
//
// An Executor is not safe for concurrent use. Create one per unit of work
// with a Factory.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sqlexec_go/internal/crud"
	"github.com/sqlexec_go/internal/dbclient"
)

// ExecutorConfig configures NewExecutor.
type ExecutorConfig struct {
	// DefaultTimeout applies to calls that set no timeout of their own.
	// Zero means DefaultTimeout; a negative value means no deadline.
	DefaultTimeout time.Duration
	// CRUD generates the convention CRUD statements. Nil uses a private
	// MySQL builder.
	CRUD   *crud.Builder
	Logger *log.Logger
}

// Executor runs commands on one exclusively owned connection.
type Executor struct {
	client  dbclient.Client
	timeout time.Duration
	crud    *crud.Builder
	logger  *log.Logger

	// active is the open cursor or unbuffered sequence holding the
	// connection, if any.
	active io.Closer
	closed bool
}

// NewExecutor takes ownership of client.
func NewExecutor(client dbclient.Client, cfg ExecutorConfig) *Executor {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.CRUD == nil {
		cfg.CRUD = crud.NewBuilder(crud.MySQL)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Executor{
		client:  client,
		timeout: cfg.DefaultTimeout,
		crud:    cfg.CRUD,
		logger:  cfg.Logger,
	}
}

// DefaultTimeout returns the timeout applied to calls that set none.
func (e *Executor) DefaultTimeout() time.Duration {
	return e.timeout
}

// Begin starts a transaction on the executor's connection. Pass it to
// commands through Options.Tx; the caller commits or rolls it back.
func (e *Executor) Begin(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.client.Begin(ctx, opts)
}

// resolveTimeout applies the call-site timeout if present, else the default.
func (e *Executor) resolveTimeout(d time.Duration) time.Duration {
	if d != 0 {
		return d
	}
	return e.timeout
}

func (e *Executor) command(query string, o Options) dbclient.Command {
	return dbclient.Command{
		Text:    query,
		Args:    o.Args,
		Named:   o.Named,
		Tx:      o.Tx,
		Timeout: e.resolveTimeout(o.Timeout),
		Kind:    o.Kind,
	}
}

func (e *Executor) ready() error {
	if e.closed {
		return ErrClosed
	}
	if e.active != nil {
		return ErrBusy
	}
	return nil
}

func (e *Executor) acquire(c io.Closer) {
	e.active = c
}

func (e *Executor) release(c io.Closer) {
	if e.active == c {
		e.active = nil
	}
}

// Execute runs a command and returns the number of rows affected.
func (e *Executor) Execute(ctx context.Context, query string, opts Options) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	res, err := e.client.Exec(ctx, e.command(query, opts))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecuteProc is Execute for a stored procedure.
func (e *Executor) ExecuteProc(ctx context.Context, name string, opts Options) (int64, error) {
	opts.Kind = dbclient.StoredProcedure
	return e.Execute(ctx, name, opts)
}

// Close closes any open cursor or sequence and then the connection. Every
// later operation fails with ErrClosed. Close is idempotent.
func (e *Executor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.active != nil {
		e.logger.Printf("dbexec: closing executor with an open %T", e.active)
		errs = append(errs, e.active.Close())
		e.active = nil
	}
	errs = append(errs, e.client.Close())
	return errors.Join(errs...)
}
