package dbexec

import (
	"errors"
	"fmt"

	"github.com/sqlexec_go/internal/rowmap"
)

var (
	// ErrClosed is returned by every operation on a closed Executor, Cursor
	// or Factory.
	ErrClosed = errors.New("dbexec: use after close")

	// ErrBusy is returned when an operation is started while a cursor or an
	// unbuffered sequence still holds the executor's connection.
	ErrBusy = errors.New("dbexec: connection is held by an open cursor or sequence")

	// ErrNoMoreResults is returned by a cursor read past the last result set.
	ErrNoMoreResults = errors.New("dbexec: no more result sets")

	// ErrCursorAdvanced is returned by an unbuffered sequence whose result set
	// the cursor has already moved past.
	ErrCursorAdvanced = errors.New("dbexec: cursor advanced past this result set")

	// ErrConsumed is returned when an unbuffered sequence is iterated twice.
	ErrConsumed = errors.New("dbexec: sequence already consumed")

	// ErrSplitColumn is returned when a split column is absent from a joined row.
	ErrSplitColumn = rowmap.ErrSplitColumn
)

// ConfigurationError reports invalid construction arguments. It is returned
// before any connection is attempted.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}
