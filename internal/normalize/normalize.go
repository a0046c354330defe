// Package normalize trims the textual fields of query results in place.
package normalize

import (
	"database/sql"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/sqlexec_go/internal/rowmap"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindStringPtr
	kindNullString
	kindNested
)

type field struct {
	index []int
	kind  fieldKind
}

// plan lists the trimmable fields of one struct type.
type plan struct {
	fields []field
}

var (
	plans          sync.Map // reflect.Type -> *plan
	nullStringType = reflect.TypeFor[sql.NullString]()
	recordType     = reflect.TypeFor[rowmap.Record]()
	timeType       = reflect.TypeFor[time.Time]()
	scannerType    = reflect.TypeFor[sql.Scanner]()
)

// Strings trims every textual field of every element of items and returns
// items. Elements are modified in place; the slice is neither reordered nor
// resized. Textual fields are exported, settable fields of a string kind,
// pointers to one, and sql.NullString; nil pointers and invalid NullStrings
// are left alone. Embedded structs, exported struct fields and non-nil
// pointers to structs are walked; time.Time and sql.Scanner types are not.
func Strings[T any](items []T) []T {
	if len(items) == 0 {
		return items
	}
	s := reflect.ValueOf(items)
	for i := 0; i < s.Len(); i++ {
		value(s.Index(i))
	}
	return items
}

// One trims the textual fields of the struct p points to.
func One(p any) {
	if p == nil {
		return
	}
	value(reflect.ValueOf(p))
}

func value(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return
		}
		value(v.Elem())
	case reflect.Struct:
		if v.Type() == recordType {
			trimRecord(v.Interface().(rowmap.Record))
			return
		}
		if !v.CanAddr() {
			return
		}
		planFor(v.Type()).apply(v)
	}
}

func trimRecord(r rowmap.Record) {
	values := r.Values()
	for i, v := range values {
		if s, ok := v.(string); ok {
			values[i] = strings.TrimSpace(s)
		}
	}
}

func planFor(t reflect.Type) *plan {
	if p, ok := plans.Load(t); ok {
		return p.(*plan)
	}
	p, _ := plans.LoadOrStore(t, &plan{fields: collect(t, nil)})
	return p.(*plan)
}

func collect(t reflect.Type, prefix []int) []field {
	var out []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		// Exported fields promoted from an unexported embedded struct are
		// still settable.
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Type != nullStringType {
			out = append(out, collect(sf.Type, index)...)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		switch {
		case sf.Type == nullStringType:
			out = append(out, field{index: index, kind: kindNullString})
		case sf.Type.Kind() == reflect.String:
			out = append(out, field{index: index, kind: kindString})
		case sf.Type.Kind() == reflect.Pointer && sf.Type.Elem().Kind() == reflect.String:
			out = append(out, field{index: index, kind: kindStringPtr})
		case nested(sf.Type):
			out = append(out, field{index: index, kind: kindNested})
		}
	}
	return out
}

// nested reports whether a field of type t holds a struct worth walking.
// Nested values are planned by their own type when reached, so recursive
// types are fine.
func nested(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType {
		return false
	}
	return t == recordType || !reflect.PointerTo(t).Implements(scannerType)
}

func (p *plan) apply(v reflect.Value) {
	for _, f := range p.fields {
		fv := v.FieldByIndex(f.index)
		switch f.kind {
		case kindString:
			fv.SetString(strings.TrimSpace(fv.String()))
		case kindStringPtr:
			if fv.IsNil() {
				continue
			}
			fv.Elem().SetString(strings.TrimSpace(fv.Elem().String()))
		case kindNullString:
			ns := fv.Addr().Interface().(*sql.NullString)
			if ns.Valid {
				ns.String = strings.TrimSpace(ns.String)
			}
		case kindNested:
			value(fv)
		}
	}
}
