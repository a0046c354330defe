// Package crud generates and runs convention-based CRUD statements for
// struct entities: the table comes from the type, columns from the exported
// fields, and the key from a `crud:"key"` tag or a field named ID.
//
// Field tags:
//
//	db:"name"          column name (default: the field name)
//	db:"-", crud:"-"   not mapped
//	crud:"key"         primary key
//	crud:"readonly"    read, never inserted or updated
package crud

import (
	"errors"
	"reflect"
	"sync"

	"github.com/golang/groupcache/lru"
)

var (
	// ErrNotFound is returned by Get when no row has the given key.
	ErrNotFound = errors.New("crud: no such entity")

	// ErrEntity is returned for a type that cannot be mapped to a table.
	ErrEntity = errors.New("crud: invalid entity")

	// ErrNoKey is returned for key-based operations on an entity without a key.
	ErrNoKey = errors.New("crud: entity has no key")

	// ErrUnknownColumn is returned for criteria naming no mapped field.
	ErrUnknownColumn = errors.New("crud: unknown column")

	// ErrNoConditions is returned by DeleteList without any filter.
	ErrNoConditions = errors.New("crud: delete list requires conditions")
)

const cacheSize = 512

type cacheKey struct {
	typ reflect.Type
	op  string
	gen uint64
}

// Builder holds the dialect and name resolvers used to generate statements,
// and caches entity mappings and statements per type. It is safe for
// concurrent use; changing the configuration invalidates the cache.
type Builder struct {
	mu      sync.Mutex
	dialect Dialect
	tables  TableNameResolver
	columns ColumnNameResolver
	gen     uint64
	cache   *lru.Cache
}

// NewBuilder returns a Builder for dialect d with the default resolvers.
func NewBuilder(d Dialect) *Builder {
	return &Builder{
		dialect: d,
		tables:  defaultTables{},
		columns: defaultColumns{},
		cache:   lru.New(cacheSize),
	}
}

// Dialect returns the current dialect.
func (b *Builder) Dialect() Dialect {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dialect
}

// SetDialect changes the dialect.
func (b *Builder) SetDialect(d Dialect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialect = d
	b.gen++
}

// SetTableNameResolver replaces the table resolver; nil restores the default.
func (b *Builder) SetTableNameResolver(r TableNameResolver) {
	if r == nil {
		r = defaultTables{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables = r
	b.gen++
}

// SetColumnNameResolver replaces the column resolver; nil restores the default.
func (b *Builder) SetColumnNameResolver(r ColumnNameResolver) {
	if r == nil {
		r = defaultColumns{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.columns = r
	b.gen++
}

// snapshot is a consistent view of the configuration for one call.
type snapshot struct {
	b       *Builder
	dialect Dialect
	tables  TableNameResolver
	columns ColumnNameResolver
	gen     uint64
}

func (b *Builder) snapshot() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshot{b: b, dialect: b.dialect, tables: b.tables, columns: b.columns, gen: b.gen}
}

func (s snapshot) entity(t reflect.Type) (*entity, error) {
	key := cacheKey{typ: t, op: "entity", gen: s.gen}
	if v, ok := s.b.get(key); ok {
		return v.(*entity), nil
	}
	e, err := describe(t, s.tables, s.columns)
	if err != nil {
		return nil, err
	}
	s.b.put(key, e)
	return e, nil
}

// statement returns the cached statement for op on t, building it on a miss.
func (s snapshot) statement(t reflect.Type, op string, build func() (string, error)) (string, error) {
	key := cacheKey{typ: t, op: op, gen: s.gen}
	if v, ok := s.b.get(key); ok {
		return v.(string), nil
	}
	q, err := build()
	if err != nil {
		return "", err
	}
	s.b.put(key, q)
	return q, nil
}

func (b *Builder) get(key cacheKey) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Get(key)
}

func (b *Builder) put(key cacheKey, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Add(key, v)
}
