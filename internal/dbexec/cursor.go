package dbexec

import (
	"reflect"

	"github.com/sqlexec_go/internal/dbclient"
	"github.com/sqlexec_go/internal/rowmap"
)

// Cursor reads the result sets of one command in order, one per read. It
// cannot rewind. Close releases the result stream and the executor.
type Cursor struct {
	e    *Executor
	rows dbclient.Rows

	// reads counts started reads; a lazy sequence is valid only while it
	// belongs to the latest one.
	reads  int
	closed bool
}

// advance moves to the next result set. The first read uses the set the
// command opened on.
func (c *Cursor) advance() error {
	if c.closed {
		return ErrClosed
	}
	c.reads++
	if c.reads == 1 {
		return nil
	}
	if !c.rows.NextResultSet() {
		if err := c.rows.Err(); err != nil {
			return err
		}
		return ErrNoMoreResults
	}
	return nil
}

// Close releases the result stream. It is idempotent.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.e.release(c)
	return c.rows.Close()
}

// ReadRecords reads the next result set as untyped records.
func (c *Cursor) ReadRecords(opts ReadOptions) (*Sequence[rowmap.Record], error) {
	return Read[rowmap.Record](c, opts)
}

func read[T any](c *Cursor, opts ReadOptions, plan planFunc[T]) (*Sequence[T], error) {
	if err := c.advance(); err != nil {
		return nil, err
	}
	columns, err := c.rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return bufferedSequence[T](nil), nil
	}
	scan, err := plan(columns)
	if err != nil {
		return nil, err
	}
	if !opts.Unbuffered {
		items, err := drain(c.rows, scan)
		if err != nil {
			return nil, err
		}
		return bufferedSequence(items), nil
	}

	at := c.reads
	return &Sequence[T]{stream: &stream[T]{
		rows: c.rows,
		scan: scan,
		check: func() error {
			switch {
			case c.closed:
				return ErrClosed
			case c.reads != at:
				return ErrCursorAdvanced
			}
			return nil
		},
		close: func() error { return nil },
	}}, nil
}

// Read reads the next result set as T.
func Read[T any](c *Cursor, opts ReadOptions) (*Sequence[T], error) {
	return read[T](c, opts, single[T])
}

// Read2 reads the next result set, mapping each row onto two shapes split at
// opts.SplitOn and combining them with fn.
func Read2[A, B, R any](c *Cursor, fn func(A, B) R, opts ReadOptions) (*Sequence[R], error) {
	plan := split(splitOn(opts.SplitOn, defaultReadSplitOn), pair(fn),
		reflect.TypeFor[A](), reflect.TypeFor[B]())
	return read(c, opts, plan)
}

// Read3 is Read2 for three shapes.
func Read3[A, B, C, R any](c *Cursor, fn func(A, B, C) R, opts ReadOptions) (*Sequence[R], error) {
	join := func(p []reflect.Value) R {
		return fn(rowmap.As[A](p[0]), rowmap.As[B](p[1]), rowmap.As[C](p[2]))
	}
	plan := split(splitOn(opts.SplitOn, defaultReadSplitOn), join,
		reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C]())
	return read(c, opts, plan)
}

// Read4 is Read2 for four shapes.
func Read4[A, B, C, D, R any](c *Cursor, fn func(A, B, C, D) R, opts ReadOptions) (*Sequence[R], error) {
	join := func(p []reflect.Value) R {
		return fn(rowmap.As[A](p[0]), rowmap.As[B](p[1]), rowmap.As[C](p[2]), rowmap.As[D](p[3]))
	}
	plan := split(splitOn(opts.SplitOn, defaultReadSplitOn), join,
		reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C](), reflect.TypeFor[D]())
	return read(c, opts, plan)
}

// Read5 is Read2 for five shapes.
func Read5[A, B, C, D, E, R any](c *Cursor, fn func(A, B, C, D, E) R, opts ReadOptions) (*Sequence[R], error) {
	join := func(p []reflect.Value) R {
		return fn(rowmap.As[A](p[0]), rowmap.As[B](p[1]), rowmap.As[C](p[2]), rowmap.As[D](p[3]), rowmap.As[E](p[4]))
	}
	plan := split(splitOn(opts.SplitOn, defaultReadSplitOn), join,
		reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C](), reflect.TypeFor[D](), reflect.TypeFor[E]())
	return read(c, opts, plan)
}
