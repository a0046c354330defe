package crud

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"

	"github.com/sqlexec_go/internal/dbclient"
	"github.com/sqlexec_go/internal/rowmap"
)

// Session is what one CRUD call runs with.
type Session struct {
	Client  dbclient.Client
	Tx      *sqlx.Tx
	Timeout time.Duration
}

func (s Session) command(query string, args []any) dbclient.Command {
	return dbclient.Command{
		Text:    query,
		Args:    args,
		Tx:      s.Tx,
		Timeout: s.Timeout,
	}
}

var uuidType = reflect.TypeFor[uuid.UUID]()

// SequentialID returns a time-ordered UUID (version 7), suitable as a key
// that indexes in insertion order.
func SequentialID() (uuid.UUID, error) {
	return uuid.NewV7()
}

func entityType[T any]() reflect.Type {
	return reflectx.Deref(reflect.TypeFor[T]())
}

func structValue(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil %T", ErrEntity, entity)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a struct", ErrEntity, entity)
	}
	return v, nil
}

func query[T any](ctx context.Context, s Session, q string, args []any) ([]T, error) {
	rows, err := s.Client.Query(ctx, s.command(q, args))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rowmap.All[T](rows)
}

func exec(ctx context.Context, s Session, q string, args []any) (int64, error) {
	res, err := s.Client.Exec(ctx, s.command(q, args))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s snapshot) selectAll(e *entity) (string, error) {
	return s.statement(e.typ, "select", func() (string, error) {
		return "SELECT " + e.selectList(s.dialect) + " FROM " + s.dialect.Quote(e.table), nil
	})
}

func conditions(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return ""
	}
	return " " + c
}

// Get returns the entity whose key equals id, or ErrNotFound.
func Get[T any](ctx context.Context, b *Builder, s Session, id any) (T, error) {
	var zero T
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return zero, err
	}
	if e.key == nil {
		return zero, fmt.Errorf("%w: %s", ErrNoKey, e.table)
	}
	q, err := snap.statement(e.typ, "get", func() (string, error) {
		base, err := snap.selectAll(e)
		if err != nil {
			return "", err
		}
		return base + " WHERE " + snap.dialect.Quote(e.key.name) + " = ?", nil
	})
	if err != nil {
		return zero, err
	}
	items, err := query[T](ctx, s, q, []any{id})
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, ErrNotFound
	}
	return items[0], nil
}

// GetList returns the entities matching every criterion; nil criteria list
// the whole table.
func GetList[T any](ctx context.Context, b *Builder, s Session, criteria map[string]any) ([]T, error) {
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return nil, err
	}
	base, err := snap.selectAll(e)
	if err != nil {
		return nil, err
	}
	where, args, err := e.where(snap.dialect, criteria)
	if err != nil {
		return nil, err
	}
	return query[T](ctx, s, base+where, args)
}

// GetListWhere returns the entities selected by a raw clause such as
// "WHERE age > ?".
func GetListWhere[T any](ctx context.Context, b *Builder, s Session, clause string, args ...any) ([]T, error) {
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return nil, err
	}
	base, err := snap.selectAll(e)
	if err != nil {
		return nil, err
	}
	return query[T](ctx, s, base+conditions(clause), args)
}

// GetListPaged returns one page of entities. pageNumber is 1-based; values
// below 1 select the first page. An empty orderBy orders by the key.
func GetListPaged[T any](ctx context.Context, b *Builder, s Session, pageNumber, rowsPerPage int, clause, orderBy string, args ...any) ([]T, error) {
	if rowsPerPage < 1 {
		return nil, fmt.Errorf("crud: rows per page must be positive, got %d", rowsPerPage)
	}
	if pageNumber < 1 {
		pageNumber = 1
	}
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderBy) == "" {
		if e.key == nil {
			return nil, fmt.Errorf("%w: %s needs an explicit order", ErrNoKey, e.table)
		}
		orderBy = snap.dialect.Quote(e.key.name)
	}
	base, err := snap.selectAll(e)
	if err != nil {
		return nil, err
	}
	q := base + conditions(clause) + " ORDER BY " + orderBy + " " + snap.dialect.page(pageNumber, rowsPerPage)
	return query[T](ctx, s, q, args)
}

// Insert inserts entity, which must be a pointer to a struct. A zero integer
// key is left to the database and read back; an empty string or uuid.UUID key
// is filled with a SequentialID. The key is stored into entity and returned.
func (b *Builder) Insert(ctx context.Context, s Session, entity any) (any, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: insert needs a struct pointer, got %T", ErrEntity, entity)
	}
	v = v.Elem()

	snap := b.snapshot()
	e, err := snap.entity(v.Type())
	if err != nil {
		return nil, err
	}

	var key reflect.Value
	auto := false
	if e.key != nil {
		key = v.FieldByIndex(e.key.index)
		if key.IsZero() {
			switch {
			case isInteger(key.Kind()):
				auto = true
			case key.Kind() == reflect.String:
				id, err := SequentialID()
				if err != nil {
					return nil, err
				}
				key.SetString(id.String())
			case key.Type() == uuidType:
				id, err := SequentialID()
				if err != nil {
					return nil, err
				}
				key.Set(reflect.ValueOf(id))
			}
		}
	}

	op := "insert"
	if auto {
		op = "insert:auto"
	}
	var args []any
	for _, c := range e.columns {
		if c.readOnly || (auto && c == e.key) {
			continue
		}
		args = append(args, v.FieldByIndex(c.index).Interface())
	}
	q, err := snap.statement(e.typ, op, func() (string, error) {
		var cols, marks []string
		for _, c := range e.columns {
			if c.readOnly || (auto && c == e.key) {
				continue
			}
			cols = append(cols, snap.dialect.Quote(c.name))
			marks = append(marks, "?")
		}
		q := "INSERT INTO " + snap.dialect.Quote(e.table) +
			" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
		if auto && snap.dialect.returning() {
			q += " RETURNING " + snap.dialect.Quote(e.key.name)
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}

	if auto && snap.dialect.returning() {
		rows, err := s.Client.Query(ctx, s.command(q, args))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("crud: insert into %s returned no key", e.table)
		}
		if err := rows.Scan(key.Addr().Interface()); err != nil {
			return nil, err
		}
		return key.Interface(), rows.Err()
	}

	res, err := s.Client.Exec(ctx, s.command(q, args))
	if err != nil {
		return nil, err
	}
	if auto {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		if isUnsigned(key.Kind()) {
			key.SetUint(uint64(id))
		} else {
			key.SetInt(id)
		}
	}
	if !key.IsValid() {
		return nil, nil
	}
	return key.Interface(), nil
}

// InsertKey is Insert returning the key as K.
func InsertKey[K any](ctx context.Context, b *Builder, s Session, entity any) (K, error) {
	var zero K
	id, err := b.Insert(ctx, s, entity)
	if err != nil {
		return zero, err
	}
	if k, ok := id.(K); ok {
		return k, nil
	}
	want := reflect.TypeFor[K]()
	v := reflect.ValueOf(id)
	if !v.IsValid() || !v.Type().ConvertibleTo(want) {
		return zero, fmt.Errorf("crud: key %v (%T) is not convertible to %v", id, id, want)
	}
	return v.Convert(want).Interface().(K), nil
}

// Update writes every mapped, writable field of entity to the row with its
// key and returns the number of rows affected.
func (b *Builder) Update(ctx context.Context, s Session, entity any) (int64, error) {
	v, err := structValue(entity)
	if err != nil {
		return 0, err
	}
	snap := b.snapshot()
	e, err := snap.entity(v.Type())
	if err != nil {
		return 0, err
	}
	if e.key == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoKey, e.table)
	}
	var args []any
	for _, c := range e.columns {
		if c.key || c.readOnly {
			continue
		}
		args = append(args, v.FieldByIndex(c.index).Interface())
	}
	args = append(args, v.FieldByIndex(e.key.index).Interface())

	q, err := snap.statement(e.typ, "update", func() (string, error) {
		var sets []string
		for _, c := range e.columns {
			if c.key || c.readOnly {
				continue
			}
			sets = append(sets, snap.dialect.Quote(c.name)+" = ?")
		}
		if len(sets) == 0 {
			return "", fmt.Errorf("%w: %s has no updatable columns", ErrEntity, e.table)
		}
		return "UPDATE " + snap.dialect.Quote(e.table) + " SET " + strings.Join(sets, ", ") +
			" WHERE " + snap.dialect.Quote(e.key.name) + " = ?", nil
	})
	if err != nil {
		return 0, err
	}
	return exec(ctx, s, q, args)
}

func (s snapshot) deleteByKey(e *entity) (string, error) {
	if e.key == nil {
		return "", fmt.Errorf("%w: %s", ErrNoKey, e.table)
	}
	return s.statement(e.typ, "delete", func() (string, error) {
		return "DELETE FROM " + s.dialect.Quote(e.table) + " WHERE " + s.dialect.Quote(e.key.name) + " = ?", nil
	})
}

// Delete removes the row with entity's key.
func (b *Builder) Delete(ctx context.Context, s Session, entity any) (int64, error) {
	v, err := structValue(entity)
	if err != nil {
		return 0, err
	}
	snap := b.snapshot()
	e, err := snap.entity(v.Type())
	if err != nil {
		return 0, err
	}
	q, err := snap.deleteByKey(e)
	if err != nil {
		return 0, err
	}
	return exec(ctx, s, q, []any{v.FieldByIndex(e.key.index).Interface()})
}

// DeleteByID removes the T row whose key equals id.
func DeleteByID[T any](ctx context.Context, b *Builder, s Session, id any) (int64, error) {
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return 0, err
	}
	q, err := snap.deleteByKey(e)
	if err != nil {
		return 0, err
	}
	return exec(ctx, s, q, []any{id})
}

// DeleteList removes the T rows matching every criterion. Empty criteria are
// rejected with ErrNoConditions.
func DeleteList[T any](ctx context.Context, b *Builder, s Session, criteria map[string]any) (int64, error) {
	if len(criteria) == 0 {
		return 0, ErrNoConditions
	}
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return 0, err
	}
	where, args, err := e.where(snap.dialect, criteria)
	if err != nil {
		return 0, err
	}
	return exec(ctx, s, "DELETE FROM "+snap.dialect.Quote(e.table)+where, args)
}

// DeleteListWhere removes the T rows selected by a raw clause. A blank clause
// is rejected with ErrNoConditions.
func DeleteListWhere[T any](ctx context.Context, b *Builder, s Session, clause string, args ...any) (int64, error) {
	if strings.TrimSpace(clause) == "" {
		return 0, ErrNoConditions
	}
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return 0, err
	}
	return exec(ctx, s, "DELETE FROM "+snap.dialect.Quote(e.table)+conditions(clause), args)
}

// RecordCount counts the T rows matching every criterion.
func RecordCount[T any](ctx context.Context, b *Builder, s Session, criteria map[string]any) (int64, error) {
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return 0, err
	}
	where, args, err := e.where(snap.dialect, criteria)
	if err != nil {
		return 0, err
	}
	return count(ctx, s, "SELECT COUNT(1) FROM "+snap.dialect.Quote(e.table)+where, args)
}

// RecordCountWhere counts the T rows selected by a raw clause.
func RecordCountWhere[T any](ctx context.Context, b *Builder, s Session, clause string, args ...any) (int64, error) {
	snap := b.snapshot()
	e, err := snap.entity(entityType[T]())
	if err != nil {
		return 0, err
	}
	return count(ctx, s, "SELECT COUNT(1) FROM "+snap.dialect.Quote(e.table)+conditions(clause), args)
}

func count(ctx context.Context, s Session, q string, args []any) (int64, error) {
	n, err := query[int64](ctx, s, q, args)
	if err != nil {
		return 0, err
	}
	if len(n) == 0 {
		return 0, nil
	}
	return n[0], nil
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return isUnsigned(k)
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
