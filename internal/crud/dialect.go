package crud

import (
	"fmt"
	"strings"
)

// Dialect selects identifier quoting, paging and identity retrieval for
// generated statements.
type Dialect int

const (
	MySQL Dialect = iota
	PostgreSQL
	SQLite
	SQLServer
)

func (d Dialect) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case PostgreSQL:
		return "postgresql"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// ParseDialect accepts a dialect name or a database/sql driver name.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "":
		return MySQL, nil
	case "postgresql", "postgres", "pgx", "pq":
		return PostgreSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	}
	return MySQL, fmt.Errorf("unknown dialect %q", s)
}

// Quote encloses an identifier in the dialect's quotes.
func (d Dialect) Quote(name string) string {
	switch d {
	case MySQL:
		return "`" + name + "`"
	case SQLServer:
		return "[" + name + "]"
	}
	return `"` + name + `"`
}

// page renders the paging clause for a 1-based page.
func (d Dialect) page(pageNumber, rowsPerPage int) string {
	offset := (pageNumber - 1) * rowsPerPage
	if d == SQLServer {
		return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, rowsPerPage)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", rowsPerPage, offset)
}

// returning reports whether inserted keys are read back with RETURNING
// instead of LastInsertId.
func (d Dialect) returning() bool {
	return d == PostgreSQL
}
