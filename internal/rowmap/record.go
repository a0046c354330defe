package rowmap

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Record is an untyped row: the result set's column names in order, with the
// value read for each. Byte slices read from the driver are stored as strings.
type Record struct {
	columns []string
	values  []any
}

// NewRecord builds a Record. columns and values must have the same length.
func NewRecord(columns []string, values []any) Record {
	return Record{columns: columns, values: values}
}

// ScanRecord reads the current row of r as a Record.
func ScanRecord(r sqlx.ColScanner) (Record, error) {
	columns, err := r.Columns()
	if err != nil {
		return Record{}, err
	}
	values, err := sqlx.SliceScan(r)
	if err != nil {
		return Record{}, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return NewRecord(columns, values), nil
}

// Columns returns the column names in result order.
func (r Record) Columns() []string { return r.columns }

// Values returns the backing value slice; writes are visible through r.
func (r Record) Values() []any { return r.values }

// Len returns the number of columns.
func (r Record) Len() int { return len(r.values) }

// Get returns the value of the first column named name. An exact match is
// preferred over a case-insensitive one.
func (r Record) Get(name string) (any, bool) {
	for i, c := range r.columns {
		if c == name {
			return r.values[i], true
		}
	}
	for i, c := range r.columns {
		if strings.EqualFold(c, name) {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map copies the record into a map. Duplicate column names keep the last value.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// MarshalJSON encodes the record as a JSON object keeping column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
