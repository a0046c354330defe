package dbexec

import (
	"context"
	"reflect"

	"github.com/sqlexec_go/internal/dbclient"
	"github.com/sqlexec_go/internal/normalize"
	"github.com/sqlexec_go/internal/rowmap"
)

func query[T any](ctx context.Context, e *Executor, q string, opts Options, plan planFunc[T]) (*Sequence[T], error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rows, err := e.client.Query(ctx, e.command(q, opts))
	if err != nil {
		return nil, err
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	if len(columns) == 0 {
		return bufferedSequence[T](nil), rows.Close()
	}
	scan, err := plan(columns)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}

	if !opts.Unbuffered {
		items, err := drain(rows, scan)
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
		return bufferedSequence(items), nil
	}

	s := &Sequence[T]{}
	s.stream = &stream[T]{
		rows: rows,
		scan: scan,
		check: func() error {
			if e.closed {
				return ErrClosed
			}
			return nil
		},
		close: func() error {
			e.release(s)
			return rows.Close()
		},
	}
	e.acquire(s)
	return s, nil
}

func pair[A, B, R any](fn func(A, B) R) func([]reflect.Value) R {
	return func(parts []reflect.Value) R {
		return fn(rowmap.As[A](parts[0]), rowmap.As[B](parts[1]))
	}
}

// Query maps each row of the result onto T: a struct by column name, a
// pointer to one, a rowmap.Record, or a scalar taken from the first column.
func Query[T any](ctx context.Context, e *Executor, q string, opts Options) (*Sequence[T], error) {
	return query[T](ctx, e, q, opts, single[T])
}

// QueryRecords is Query returning untyped records.
func (e *Executor) QueryRecords(ctx context.Context, q string, opts Options) (*Sequence[rowmap.Record], error) {
	return Query[rowmap.Record](ctx, e, q, opts)
}

// QueryMap maps each joined row onto an A and a B, split at opts.SplitOn,
// and combines them with fn.
func QueryMap[A, B, R any](ctx context.Context, e *Executor, q string, fn func(A, B) R, opts Options) (*Sequence[R], error) {
	plan := split(splitOn(opts.SplitOn, DefaultSplitOn), pair(fn), reflect.TypeFor[A](), reflect.TypeFor[B]())
	return query(ctx, e, q, opts, plan)
}

// QueryMultiple runs a command returning several result sets and returns a
// cursor over them. The cursor holds the connection until it is closed.
func (e *Executor) QueryMultiple(ctx context.Context, q string, opts Options) (*Cursor, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rows, err := e.client.Query(ctx, e.command(q, opts))
	if err != nil {
		return nil, err
	}
	c := &Cursor{e: e, rows: rows}
	e.acquire(c)
	return c, nil
}

// QueryAndNormalize is a buffered Query whose results have every string
// field trimmed.
func QueryAndNormalize[T any](ctx context.Context, e *Executor, q string, opts Options) ([]T, error) {
	opts.Unbuffered = false
	s, err := Query[T](ctx, e, q, opts)
	if err != nil {
		return nil, err
	}
	items, err := s.Collect()
	if err != nil {
		return nil, err
	}
	return normalize.Strings(items), nil
}

// QueryMapAndNormalize is a buffered QueryMap whose results have every
// string field trimmed.
func QueryMapAndNormalize[A, B, R any](ctx context.Context, e *Executor, q string, fn func(A, B) R, opts Options) ([]R, error) {
	opts.Unbuffered = false
	s, err := QueryMap(ctx, e, q, fn, opts)
	if err != nil {
		return nil, err
	}
	items, err := s.Collect()
	if err != nil {
		return nil, err
	}
	return normalize.Strings(items), nil
}

// QueryProc is Query for a stored procedure.
func QueryProc[T any](ctx context.Context, e *Executor, name string, opts Options) (*Sequence[T], error) {
	opts.Kind = dbclient.StoredProcedure
	return Query[T](ctx, e, name, opts)
}

// QueryRecordsProc is QueryRecords for a stored procedure.
func (e *Executor) QueryRecordsProc(ctx context.Context, name string, opts Options) (*Sequence[rowmap.Record], error) {
	opts.Kind = dbclient.StoredProcedure
	return e.QueryRecords(ctx, name, opts)
}

// QueryMapProc is QueryMap for a stored procedure.
func QueryMapProc[A, B, R any](ctx context.Context, e *Executor, name string, fn func(A, B) R, opts Options) (*Sequence[R], error) {
	opts.Kind = dbclient.StoredProcedure
	return QueryMap(ctx, e, name, fn, opts)
}

// QueryMultipleProc is QueryMultiple for a stored procedure.
func (e *Executor) QueryMultipleProc(ctx context.Context, name string, opts Options) (*Cursor, error) {
	opts.Kind = dbclient.StoredProcedure
	return e.QueryMultiple(ctx, name, opts)
}
