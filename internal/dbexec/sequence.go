package dbexec

import (
	"iter"
	"reflect"

	"github.com/sqlexec_go/internal/rowmap"
)

// scanFunc maps the current row to a value.
type scanFunc[T any] func(r rowmap.Rows) (T, error)

// planFunc prepares a scanFunc for a result set's columns.
type planFunc[T any] func(columns []string) (scanFunc[T], error)

// stream is the lazy source behind an unbuffered Sequence.
type stream[T any] struct {
	rows  rowmap.Rows
	scan  scanFunc[T]
	check func() error
	close func() error
}

// Sequence is the result of a query. A buffered sequence holds every row and
// may be iterated any number of times. An unbuffered sequence reads rows on
// demand, can be iterated once, and must be drained or closed to release the
// connection.
type Sequence[T any] struct {
	items  []T
	stream *stream[T]
	used   bool
	closed bool
}

func bufferedSequence[T any](items []T) *Sequence[T] {
	if items == nil {
		items = make([]T, 0)
	}
	return &Sequence[T]{items: items}
}

// Buffered reports whether every row has already been read.
func (s *Sequence[T]) Buffered() bool {
	return s.stream == nil
}

// All iterates the sequence. Errors are yielded with the zero T and end the
// iteration.
func (s *Sequence[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if s.stream == nil {
			for _, item := range s.items {
				if !yield(item, nil) {
					return
				}
			}
			return
		}

		var zero T
		switch {
		case s.used:
			yield(zero, ErrConsumed)
			return
		case s.closed:
			yield(zero, ErrClosed)
			return
		}
		s.used = true
		defer s.Close()

		for {
			if err := s.stream.check(); err != nil {
				yield(zero, err)
				return
			}
			if !s.stream.rows.Next() {
				break
			}
			v, err := s.stream.scan(s.stream.rows)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := s.stream.rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// Collect returns every remaining item. For a buffered sequence this is the
// backing slice.
func (s *Sequence[T]) Collect() ([]T, error) {
	if s.stream == nil {
		return s.items, nil
	}
	out := make([]T, 0)
	for v, err := range s.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Close releases an unbuffered sequence without reading the rest of it. It is
// a no-op for buffered sequences and safe to call more than once.
func (s *Sequence[T]) Close() error {
	if s.stream == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.stream.close()
}

func drain[T any](r rowmap.Rows, scan scanFunc[T]) ([]T, error) {
	out := make([]T, 0)
	for r.Next() {
		v, err := scan(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, r.Err()
}

// single maps every column onto T.
func single[T any](columns []string) (scanFunc[T], error) {
	plan, err := rowmap.NewPlan(reflect.TypeFor[T](), columns)
	if err != nil {
		return nil, err
	}
	return func(r rowmap.Rows) (T, error) {
		vals, err := plan.Scan(r)
		if err != nil {
			var zero T
			return zero, err
		}
		return rowmap.As[T](vals[0]), nil
	}, nil
}

// split maps a joined row onto types and combines the parts with join.
func split[R any](on string, join func(parts []reflect.Value) R, types ...reflect.Type) planFunc[R] {
	return func(columns []string) (scanFunc[R], error) {
		plan, err := rowmap.NewSplitPlan(columns, on, types...)
		if err != nil {
			return nil, err
		}
		return func(r rowmap.Rows) (R, error) {
			parts, err := plan.Scan(r)
			if err != nil {
				var zero R
				return zero, err
			}
			return join(parts), nil
		}, nil
	}
}
