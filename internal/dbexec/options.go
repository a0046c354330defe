package dbexec

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sqlexec_go/internal/dbclient"
)

const (
	// DefaultTimeout is the command timeout used when none is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultSplitOn marks where the second shape begins in a joined row.
	DefaultSplitOn = "Id"

	defaultReadSplitOn = "id"
)

// Options are the per-call settings shared by every executor operation.
// The zero value runs a buffered text command with the executor's default
// timeout and no parameters.
type Options struct {
	// Args are positional parameters.
	Args []any
	// Named is a struct or map bound to :name parameters.
	Named any
	// Tx runs the command in the caller's transaction.
	Tx *sqlx.Tx
	// Unbuffered streams rows lazily instead of reading them all before
	// returning. The sequence must be consumed or closed before the
	// executor is used again.
	Unbuffered bool
	// Timeout overrides the executor's default when non-zero. A negative
	// value disables the deadline.
	Timeout time.Duration
	// Kind selects text or stored procedure.
	Kind dbclient.Kind
	// SplitOn names the column where each further shape of a mapped row
	// begins, or a comma separated list with one name per shape. Defaults
	// to DefaultSplitOn.
	SplitOn string
}

// ReadOptions are the settings of one cursor read.
type ReadOptions struct {
	// Unbuffered streams the result set lazily. The sequence is invalidated
	// by the next read.
	Unbuffered bool
	// SplitOn is as in Options; cursor reads default to "id".
	SplitOn string
}

func splitOn(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
