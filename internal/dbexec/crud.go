package dbexec

import (
	"context"

	"github.com/google/uuid"

	"github.com/sqlexec_go/internal/crud"
)

// Convention CRUD. Only Options.Tx and Options.Timeout apply; the *Where
// variants also take their parameters from Options.Args.

func (e *Executor) session(opts Options) (crud.Session, error) {
	if err := e.ready(); err != nil {
		return crud.Session{}, err
	}
	return crud.Session{
		Client:  e.client,
		Tx:      opts.Tx,
		Timeout: e.resolveTimeout(opts.Timeout),
	}, nil
}

// Get returns the T whose key equals id, or crud.ErrNotFound.
func Get[T any](ctx context.Context, e *Executor, id any, opts Options) (T, error) {
	s, err := e.session(opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return crud.Get[T](ctx, e.crud, s, id)
}

// GetList returns the T rows matching every criterion, keyed by field or
// column name.
func GetList[T any](ctx context.Context, e *Executor, criteria map[string]any, opts Options) ([]T, error) {
	s, err := e.session(opts)
	if err != nil {
		return nil, err
	}
	return crud.GetList[T](ctx, e.crud, s, criteria)
}

// GetListWhere returns the T rows selected by a raw clause such as
// "WHERE age > ?".
func GetListWhere[T any](ctx context.Context, e *Executor, clause string, opts Options) ([]T, error) {
	s, err := e.session(opts)
	if err != nil {
		return nil, err
	}
	return crud.GetListWhere[T](ctx, e.crud, s, clause, opts.Args...)
}

// GetAll returns every T row.
func GetAll[T any](ctx context.Context, e *Executor, opts Options) ([]T, error) {
	return GetList[T](ctx, e, nil, opts)
}

// GetListPaged returns one 1-based page of T rows.
func GetListPaged[T any](ctx context.Context, e *Executor, pageNumber, rowsPerPage int, clause, orderBy string, opts Options) ([]T, error) {
	s, err := e.session(opts)
	if err != nil {
		return nil, err
	}
	return crud.GetListPaged[T](ctx, e.crud, s, pageNumber, rowsPerPage, clause, orderBy, opts.Args...)
}

// Insert inserts the struct entity points to and returns its key.
func (e *Executor) Insert(ctx context.Context, entity any, opts Options) (any, error) {
	s, err := e.session(opts)
	if err != nil {
		return nil, err
	}
	return e.crud.Insert(ctx, s, entity)
}

// InsertKey is Insert returning the key as K.
func InsertKey[K any](ctx context.Context, e *Executor, entity any, opts Options) (K, error) {
	s, err := e.session(opts)
	if err != nil {
		var zero K
		return zero, err
	}
	return crud.InsertKey[K](ctx, e.crud, s, entity)
}

// Update writes entity to the row with its key.
func (e *Executor) Update(ctx context.Context, entity any, opts Options) (int64, error) {
	s, err := e.session(opts)
	if err != nil {
		return 0, err
	}
	return e.crud.Update(ctx, s, entity)
}

// Delete removes the row with entity's key.
func (e *Executor) Delete(ctx context.Context, entity any, opts Options) (int64, error) {
	s, err := e.session(opts)
	if err != nil {
		return 0, err
	}
	return e.crud.Delete(ctx, s, entity)
}

// DeleteByID removes the T row whose key equals id.
func DeleteByID[T any](ctx context.Context, e *Executor, id any, opts Options) (int64, error) {
	s, err := e.session(opts)
	if err != nil {
		return 0, err
	}
	return crud.DeleteByID[T](ctx, e.crud, s, id)
}

// DeleteList removes the T rows matching every criterion.
func DeleteList[T any](ctx context.Context, e *Executor, criteria map[string]any, opts Options) (int64, error) {
	s, err := e.session(opts)
	if err != nil {
		return 0, err
	}
	return crud.DeleteList[T](ctx, e.crud, s, criteria)
}

// DeleteListWhere removes the T rows selected by a raw clause.
func DeleteListWhere[T any](ctx context.Context, e *Executor, clause string, opts Options) (int64, error) {
	s, err := e.session(opts)
	if err != nil {
		return 0, err
	}
	return crud.DeleteListWhere[T](ctx, e.crud, s, clause, opts.Args...)
}

// RecordCount counts the T rows matching every criterion.
func RecordCount[T any](ctx context.Context, e *Executor, criteria map[string]any, opts Options) (int64, error) {
	s, err := e.session(opts)
	if err != nil {
		return 0, err
	}
	return crud.RecordCount[T](ctx, e.crud, s, criteria)
}

// RecordCountWhere counts the T rows selected by a raw clause.
func RecordCountWhere[T any](ctx context.Context, e *Executor, clause string, opts Options) (int64, error) {
	s, err := e.session(opts)
	if err != nil {
		return 0, err
	}
	return crud.RecordCountWhere[T](ctx, e.crud, s, clause, opts.Args...)
}

// Dialect returns the dialect CRUD statements are generated for.
func (e *Executor) Dialect() crud.Dialect {
	return e.crud.Dialect()
}

// SetDialect changes the CRUD dialect. The builder is shared by every
// executor of a factory.
func (e *Executor) SetDialect(d crud.Dialect) {
	e.crud.SetDialect(d)
}

// SetTableNameResolver replaces how entity types map to tables.
func (e *Executor) SetTableNameResolver(r crud.TableNameResolver) {
	e.crud.SetTableNameResolver(r)
}

// SetColumnNameResolver replaces how entity fields map to columns.
func (e *Executor) SetColumnNameResolver(r crud.ColumnNameResolver) {
	e.crud.SetColumnNameResolver(r)
}

// SequentialID returns a time-ordered UUID for use as a key.
func (e *Executor) SequentialID() (uuid.UUID, error) {
	return crud.SequentialID()
}
