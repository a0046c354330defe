package crud

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/reflectx"

	"github.com/sqlexec_go/internal/rowmap"
)

// column is one mapped entity field.
type column struct {
	name     string // database column
	alias    string // label the row mapper expects
	index    []int
	typ      reflect.Type
	goName   string
	key      bool
	readOnly bool
}

// entity is the mapping of one struct type onto a table.
type entity struct {
	typ     reflect.Type
	table   string
	columns []*column
	key     *column
}

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	valuerType  = reflect.TypeFor[driver.Valuer]()
	timeType    = reflect.TypeFor[time.Time]()
	bytesType   = reflect.TypeFor[[]byte]()
)

// simple reports whether a field of type t maps onto a single column.
func simple(t reflect.Type) bool {
	if t == timeType || t == bytesType {
		return true
	}
	if reflect.PointerTo(t).Implements(scannerType) || t.Implements(valuerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Pointer:
		return simple(t.Elem())
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return false
	case reflect.Array:
		// Fixed-size byte arrays such as uuid.UUID.
		return t.Elem().Kind() == reflect.Uint8
	}
	return true
}

func describe(t reflect.Type, tables TableNameResolver, columns ColumnNameResolver) (*entity, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct", ErrEntity, t)
	}
	e := &entity{typ: t, table: tables.ResolveTableName(t)}
	if e.table == "" {
		return nil, fmt.Errorf("%w: %v has no table name", ErrEntity, t)
	}
	tm := rowmap.Mapper().TypeMap(t)
	e.walk(t, nil, tm, columns)

	for _, c := range e.columns {
		if c.key {
			e.key = c
			break
		}
	}
	if e.key == nil {
		for _, c := range e.columns {
			if strings.EqualFold(c.goName, "id") {
				c.key = true
				e.key = c
				break
			}
		}
	}
	return e, nil
}

func (e *entity) walk(t reflect.Type, prefix []int, tm *reflectx.StructMap, resolver ColumnNameResolver) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		opts := strings.Split(sf.Tag.Get("crud"), ",")
		if sf.Tag.Get("db") == "-" || opts[0] == "-" {
			continue
		}
		index := append(append([]int(nil), prefix...), i)
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && !simple(sf.Type) {
			e.walk(sf.Type, index, tm, resolver)
			continue
		}
		if !simple(sf.Type) {
			continue
		}
		c := &column{
			name:   resolver.ResolveColumnName(sf),
			index:  index,
			typ:    sf.Type,
			goName: sf.Name,
		}
		if fi := tm.GetByTraversal(index); fi != nil {
			c.alias = fi.Path
		} else {
			c.alias = strings.ToLower(sf.Name)
		}
		for _, o := range opts {
			switch strings.TrimSpace(o) {
			case "key":
				c.key = true
			case "readonly":
				c.readOnly = true
			}
		}
		e.columns = append(e.columns, c)
	}
}

// lookup finds a column by Go field name or column name.
func (e *entity) lookup(name string) *column {
	for _, c := range e.columns {
		if strings.EqualFold(c.goName, name) || strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

// selectList renders the projected columns, aliasing those whose column name
// differs from the row mapper's label.
func (e *entity) selectList(d Dialect) string {
	parts := make([]string, 0, len(e.columns))
	for _, c := range e.columns {
		if strings.EqualFold(c.name, c.alias) {
			parts = append(parts, d.Quote(c.name))
			continue
		}
		parts = append(parts, d.Quote(c.name)+" AS "+d.Quote(c.alias))
	}
	return strings.Join(parts, ", ")
}

// where renders an equality filter. Keys are matched against field and column
// names; nil values test IS NULL and slice values become IN lists.
func (e *entity) where(d Dialect, criteria map[string]any) (string, []any, error) {
	if len(criteria) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	var args []any
	for _, k := range keys {
		c := e.lookup(k)
		if c == nil {
			return "", nil, fmt.Errorf("%w: %q on %s", ErrUnknownColumn, k, e.table)
		}
		v := criteria[k]
		switch {
		case v == nil:
			parts = append(parts, d.Quote(c.name)+" IS NULL")
		case isList(v):
			parts = append(parts, d.Quote(c.name)+" IN (?)")
			args = append(args, v)
		default:
			parts = append(parts, d.Quote(c.name)+" = ?")
			args = append(args, v)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func isList(v any) bool {
	if _, ok := v.(driver.Valuer); ok {
		return false
	}
	t := reflect.TypeOf(v)
	return t.Kind() == reflect.Slice && t != bytesType
}
