// Package rowmap maps database rows onto Go values: structs (by column name),
// pointers to structs, scalars (first column) and untyped Records. A row may
// also be split into several shapes at named split columns.
package rowmap

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
)

var (
	// ErrSplitColumn is returned when a split column is missing from the result set.
	ErrSplitColumn = errors.New("split column not found")

	// ErrNoColumns is returned when a result set reports no columns.
	ErrNoColumns = errors.New("result set has no columns")
)

var (
	mapper      = reflectx.NewMapperTagFunc("db", strings.ToLower, strings.ToLower)
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
	recordType  = reflect.TypeFor[Record]()
)

// Mapper returns the field mapper used for column lookups. A field maps to its
// db tag when present, otherwise to its name, lower-cased either way; columns
// are lower-cased before lookup.
func Mapper() *reflectx.Mapper {
	return mapper
}

type shape int

const (
	shapeScalar shape = iota
	shapeStruct
	shapeStructPtr
	shapeRecord
)

func isStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct &&
		t != timeType &&
		!reflect.PointerTo(t).Implements(scannerType)
}

func shapeOf(t reflect.Type) shape {
	switch {
	case t == recordType:
		return shapeRecord
	case isStruct(t):
		return shapeStruct
	case t.Kind() == reflect.Pointer && isStruct(t.Elem()):
		return shapeStructPtr
	}
	return shapeScalar
}

// target maps the columns [lo, hi) of a row onto one type. An optional
// target yields the zero value when its first column is NULL.
type target struct {
	typ      reflect.Type
	shape    shape
	lo, hi   int
	columns  []string
	fields   [][]int
	optional bool
}

func newTarget(t reflect.Type, columns []string, lo, hi int) *target {
	tg := &target{
		typ:     t,
		shape:   shapeOf(t),
		lo:      lo,
		hi:      hi,
		columns: columns[lo:hi],
	}
	if tg.shape == shapeStruct || tg.shape == shapeStructPtr {
		names := make([]string, 0, hi-lo)
		for _, c := range tg.columns {
			names = append(names, strings.ToLower(c))
		}
		tg.fields = mapper.TraversalsByName(reflectx.Deref(t), names)
	}
	return tg
}

// bind fills dest[lo:hi] with scan destinations and returns a function that
// yields the mapped value once the row has been scanned.
func (tg *target) bind(dest []any) func() (reflect.Value, error) {
	if tg.optional {
		return tg.bindOptional(dest)
	}
	switch tg.shape {
	case shapeStruct, shapeStructPtr:
		pv := reflect.New(reflectx.Deref(tg.typ))
		v := pv.Elem()
		for i, index := range tg.fields {
			if len(index) == 0 {
				dest[tg.lo+i] = new(any)
				continue
			}
			dest[tg.lo+i] = reflectx.FieldByIndexes(v, index).Addr().Interface()
		}
		if tg.shape == shapeStructPtr {
			return func() (reflect.Value, error) { return pv, nil }
		}
		return func() (reflect.Value, error) { return v, nil }
	case shapeRecord:
		values := tg.holders(dest)
		return func() (reflect.Value, error) { return tg.record(values), nil }
	default:
		pv := reflect.New(tg.typ)
		dest[tg.lo] = pv.Interface()
		for i := tg.lo + 1; i < tg.hi; i++ {
			dest[i] = new(any)
		}
		return func() (reflect.Value, error) { return pv.Elem(), nil }
	}
}

// bindOptional scans the target's columns into holders and converts them
// only when the first column is not NULL, so the unmatched side of an outer
// join maps to the zero value (nil for pointers) instead of failing.
func (tg *target) bindOptional(dest []any) func() (reflect.Value, error) {
	values := tg.holders(dest)
	return func() (reflect.Value, error) {
		if values[0] == nil {
			return reflect.Zero(tg.typ), nil
		}
		switch tg.shape {
		case shapeRecord:
			return tg.record(values), nil
		case shapeStruct, shapeStructPtr:
			pv := reflect.New(reflectx.Deref(tg.typ))
			for i, index := range tg.fields {
				if len(index) == 0 {
					continue
				}
				if err := assign(reflectx.FieldByIndexes(pv.Elem(), index), values[i]); err != nil {
					return reflect.Value{}, fmt.Errorf("column %q: %w", tg.columns[i], err)
				}
			}
			if tg.shape == shapeStructPtr {
				return pv, nil
			}
			return pv.Elem(), nil
		default:
			v := reflect.New(tg.typ).Elem()
			if err := assign(v, values[0]); err != nil {
				return reflect.Value{}, fmt.Errorf("column %q: %w", tg.columns[0], err)
			}
			return v, nil
		}
	}
}

func (tg *target) holders(dest []any) []any {
	values := make([]any, tg.hi-tg.lo)
	for i := range values {
		dest[tg.lo+i] = &values[i]
	}
	return values
}

func (tg *target) record(values []any) reflect.Value {
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return reflect.ValueOf(NewRecord(tg.columns, values))
}

// Plan maps the rows of one result set onto one or more types.
type Plan struct {
	targets []*target
	width   int
}

// NewPlan prepares a plan mapping every column of a row onto t.
func NewPlan(t reflect.Type, columns []string) (*Plan, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	return &Plan{
		targets: []*target{newTarget(t, columns, 0, len(columns))},
		width:   len(columns),
	}, nil
}

// NewSplitPlan prepares a plan mapping a joined row onto len(types) shapes,
// the boundaries being located with SplitPoints. A shape after the first
// whose split column is NULL maps to its zero value.
func NewSplitPlan(columns []string, splitOn string, types ...reflect.Type) (*Plan, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	points, err := SplitPoints(columns, splitOn, len(types))
	if err != nil {
		return nil, err
	}
	p := &Plan{width: len(columns)}
	lo := 0
	for i, t := range types {
		hi := len(columns)
		if i < len(points) {
			hi = points[i]
		}
		tg := newTarget(t, columns, lo, hi)
		tg.optional = i > 0
		p.targets = append(p.targets, tg)
		lo = hi
	}
	return p, nil
}

// Scan reads the current row and returns one value per planned type.
func (p *Plan) Scan(r sqlx.ColScanner) ([]reflect.Value, error) {
	if len(p.targets) == 1 && p.targets[0].shape == shapeRecord {
		rec, err := ScanRecord(r)
		if err != nil {
			return nil, err
		}
		return []reflect.Value{reflect.ValueOf(rec)}, nil
	}
	dest := make([]any, p.width)
	finish := make([]func() (reflect.Value, error), len(p.targets))
	for i, tg := range p.targets {
		finish[i] = tg.bind(dest)
	}
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	out := make([]reflect.Value, len(finish))
	for i, f := range finish {
		v, err := f()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SplitPoints returns the column indexes at which the second and later of
// parts shapes begin. splitOn is either one column name, used for every
// boundary, or a comma separated list with one name per boundary. Each
// boundary is the first matching column after the previous one; column 0
// never starts a new shape. Names match case-insensitively.
func SplitPoints(columns []string, splitOn string, parts int) ([]int, error) {
	if parts < 2 {
		return nil, nil
	}
	names := strings.Split(splitOn, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	if len(names) != 1 && len(names) != parts-1 {
		return nil, fmt.Errorf("%w: %d names given for %d shapes", ErrSplitColumn, len(names), parts)
	}

	points := make([]int, parts-1)
	pos := 0
	for i := range points {
		name := names[0]
		if len(names) > 1 {
			name = names[i]
		}
		next := -1
		for c := pos + 1; c < len(columns); c++ {
			if strings.EqualFold(columns[c], name) {
				next = c
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("%w: %q", ErrSplitColumn, name)
		}
		points[i] = next
		pos = next
	}
	return points, nil
}
