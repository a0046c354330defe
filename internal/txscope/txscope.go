// Package txscope wraps a transaction in a scope that commits only when the
// work inside it was marked complete:
//
//	scope, err := txscope.Begin(ctx, exec, nil)
//	if err != nil {
//		return err
//	}
//	defer scope.Close()
//	if _, err := exec.Execute(ctx, q, dbexec.Options{Tx: scope.Tx()}); err != nil {
//		return err
//	}
//	scope.Complete()
//	return scope.Close()
package txscope

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Beginner starts transactions. *dbexec.Executor and dbclient.Client
// implement it.
type Beginner interface {
	Begin(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Scope is one transaction. It is not safe for concurrent use.
type Scope struct {
	tx       *sqlx.Tx
	complete bool
	done     bool
	err      error
}

// Begin starts a transaction.
func Begin(ctx context.Context, b Beginner, opts *sql.TxOptions) (*Scope, error) {
	tx, err := b.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Scope{tx: tx}, nil
}

// Tx returns the transaction handle to pass to commands.
func (s *Scope) Tx() *sqlx.Tx {
	return s.tx
}

// Complete marks the work done; Close will commit.
func (s *Scope) Complete() {
	s.complete = true
}

// Close commits a completed scope and rolls back any other. Later calls
// return the first call's result.
func (s *Scope) Close() error {
	if s.done {
		return s.err
	}
	s.done = true
	if s.complete {
		s.err = s.tx.Commit()
		return s.err
	}
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.err = err
	}
	return s.err
}
