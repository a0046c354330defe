package crud

import (
	"reflect"
	"strings"
)

// TableNamer lets an entity type choose its own table name.
type TableNamer interface {
	TableName() string
}

// TableNameResolver maps an entity type to its table.
type TableNameResolver interface {
	ResolveTableName(t reflect.Type) string
}

// ColumnNameResolver maps an entity field to its column.
type ColumnNameResolver interface {
	ResolveColumnName(f reflect.StructField) string
}

// TableNameFunc adapts a function to TableNameResolver.
type TableNameFunc func(t reflect.Type) string

func (f TableNameFunc) ResolveTableName(t reflect.Type) string { return f(t) }

// ColumnNameFunc adapts a function to ColumnNameResolver.
type ColumnNameFunc func(f reflect.StructField) string

func (f ColumnNameFunc) ResolveColumnName(sf reflect.StructField) string { return f(sf) }

var tableNamerType = reflect.TypeFor[TableNamer]()

// defaultTables uses TableName() when the type has it, else the type name.
type defaultTables struct{}

func (defaultTables) ResolveTableName(t reflect.Type) string {
	if reflect.PointerTo(t).Implements(tableNamerType) {
		return reflect.New(t).Interface().(TableNamer).TableName()
	}
	return t.Name()
}

// defaultColumns uses the db tag name when present, else the field name.
type defaultColumns struct{}

func (defaultColumns) ResolveColumnName(f reflect.StructField) string {
	if name := tagName(f.Tag.Get("db")); name != "" {
		return name
	}
	return f.Name
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}
