package dbclient

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var (
	// ErrEmptyCommand is returned for a command with blank text.
	ErrEmptyCommand = errors.New("command text is empty")

	// ErrMixedParameters is returned when a command sets both Args and Named.
	ErrMixedParameters = errors.New("named and positional parameters cannot be combined")
)

// StatementError reports a statement the database rejected: malformed SQL,
// a constraint violation, a type mismatch.
type StatementError struct {
	Query string
	Err   error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement failed: %v", e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Code returns the server error code when the driver reports one: the MySQL
// error number or the PostgreSQL SQLSTATE. It is empty otherwise.
func (e *StatementError) Code() string {
	var myErr *mysql.MySQLError
	if errors.As(e.Err, &myErr) {
		return strconv.Itoa(int(myErr.Number))
	}
	var pqErr *pq.Error
	if errors.As(e.Err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// ConnectivityError reports that the database could not be reached or the
// connection was lost.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// classify wraps a driver error. Context errors and errors that are already
// classified are returned unchanged.
func classify(query string, err error) error {
	if err == nil {
		return nil
	}
	var stmtErr *StatementError
	var connErr *ConnectivityError
	if errors.As(err, &stmtErr) || errors.As(err, &connErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isConnectivity(err) {
		return &ConnectivityError{Err: err}
	}
	return &StatementError{Query: query, Err: err}
}

func isConnectivity(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// SQLSTATE class 08: connection exception.
		return pqErr.Code.Class() == "08"
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
