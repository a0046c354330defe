package rowmap

import (
	"reflect"

	"github.com/jmoiron/sqlx"
)

// Rows is the part of a result cursor needed to read one result set.
type Rows interface {
	sqlx.ColScanner
	Next() bool
}

// All reads the remaining rows of the current result set of r as T. It never
// returns a nil slice on success.
func All[T any](r Rows) ([]T, error) {
	columns, err := r.Columns()
	if err != nil {
		return nil, err
	}
	plan, err := NewPlan(reflect.TypeFor[T](), columns)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	for r.Next() {
		vals, err := plan.Scan(r)
		if err != nil {
			return nil, err
		}
		out = append(out, As[T](vals[0]))
	}
	return out, r.Err()
}

// As returns v, whose type is exactly T, as a T. Unlike a type assertion it
// handles interface types holding nil.
func As[T any](v reflect.Value) T {
	var out T
	reflect.ValueOf(&out).Elem().Set(v)
	return out
}
