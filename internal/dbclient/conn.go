package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
)

// execer is implemented by *sqlx.Conn and *sqlx.Tx so commands can run
// against either the dedicated connection or an explicit transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

var namedMapper = reflectx.NewMapperFunc("db", sqlx.NameMapper)

// Conn is a Client over one dedicated database connection.
type Conn struct {
	conn     *sqlx.Conn
	bindType int
}

// NewConn wraps an open connection. driverName selects the placeholder style.
func NewConn(conn *sqlx.Conn, driverName string) *Conn {
	return &Conn{
		conn:     conn,
		bindType: sqlx.BindType(driverName),
	}
}

// Exec runs a command that returns no rows.
func (c *Conn) Exec(ctx context.Context, cmd Command) (sql.Result, error) {
	query, args, err := c.bind(cmd)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, cmd.Timeout)
	defer cancel()

	res, err := c.execer(cmd.Tx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(query, err)
	}
	return res, nil
}

// Query runs a command returning rows. The deadline is released when the
// returned rows are closed.
func (c *Conn) Query(ctx context.Context, cmd Command) (Rows, error) {
	query, args, err := c.bind(cmd)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, cmd.Timeout)
	rows, err := c.execer(cmd.Tx).QueryxContext(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, classify(query, err)
	}
	return &streamRows{Rows: rows, query: query, cancel: cancel}, nil
}

// Begin starts a transaction on the connection.
func (c *Conn) Begin(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	tx, err := c.conn.BeginTxx(ctx, opts)
	if err != nil {
		return nil, classify("BEGIN", err)
	}
	return tx, nil
}

// Close returns the connection to its pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) execer(tx *sqlx.Tx) execer {
	if tx != nil {
		return tx
	}
	return c.conn
}

// bind produces the driver-ready statement and argument list for cmd.
func (c *Conn) bind(cmd Command) (string, []any, error) {
	if strings.TrimSpace(cmd.Text) == "" {
		return "", nil, ErrEmptyCommand
	}
	if cmd.Named != nil && len(cmd.Args) > 0 {
		return "", nil, ErrMixedParameters
	}

	query, args := cmd.Text, cmd.Args
	if cmd.Kind == StoredProcedure {
		if cmd.Named != nil {
			keys, err := namedKeys(cmd.Named)
			if err != nil {
				return "", nil, err
			}
			query = procCall(query, c.bindType, keys)
		} else {
			query = procCall(query, c.bindType, make([]string, len(args)))
		}
	}

	var err error
	if cmd.Named != nil {
		query, args, err = sqlx.Named(query, cmd.Named)
		if err != nil {
			return "", nil, fmt.Errorf("bind named parameters: %w", err)
		}
	}
	if len(args) == 0 {
		// No bindvars to rewrite; a literal ? (the PostgreSQL jsonb
		// operators) passes through untouched.
		return query, args, nil
	}
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand parameters: %w", err)
	}
	return sqlx.Rebind(c.bindType, query), args, nil
}

// procCall builds the statement invoking a stored procedure. Empty keys
// become positional placeholders, others :name placeholders.
func procCall(name string, bindType int, keys []string) string {
	params := make([]string, len(keys))
	for i, k := range keys {
		if k == "" {
			params[i] = "?"
		} else {
			params[i] = ":" + k
		}
	}
	if bindType == sqlx.AT {
		if len(params) == 0 {
			return "EXEC " + name
		}
		return "EXEC " + name + " " + strings.Join(params, ", ")
	}
	return "CALL " + name + "(" + strings.Join(params, ", ") + ")"
}

// namedKeys lists the parameter names of a named argument: sorted keys for a
// map, top-level fields in declaration order for a struct.
func namedKeys(arg any) ([]string, error) {
	v := reflect.Indirect(reflect.ValueOf(arg))
	switch v.Kind() {
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return keys, nil
	case reflect.Struct:
		var keys []string
		for _, fi := range namedMapper.TypeMap(v.Type()).Index {
			if len(fi.Index) != 1 || fi.Embedded {
				continue
			}
			keys = append(keys, fi.Name)
		}
		return keys, nil
	}
	return nil, fmt.Errorf("named parameters must be a struct or map, got %T", arg)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// streamRows ties a command's deadline to the lifetime of its rows.
type streamRows struct {
	*sqlx.Rows
	query  string
	cancel context.CancelFunc
}

func (r *streamRows) Err() error {
	return classify(r.query, r.Rows.Err())
}

func (r *streamRows) Close() error {
	err := r.Rows.Close()
	r.cancel()
	return err
}
