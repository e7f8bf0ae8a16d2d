package sqldb

import (
	"errors"
	"fmt"
)

var (
	ErrTableNotFound = errors.New("sqldb: table not found")
	ErrClosed        = errors.New("sqldb: engine closed")
)

// UnsupportedTypeError is returned when a schema column names a datatype
// outside the fixed enumeration. The table is not created.
type UnsupportedTypeError struct {
	Table    string
	Column   string
	Datatype string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("unsupported datatype %q", e.Datatype)
	}
	return fmt.Sprintf("%s.%s: unsupported datatype %q", e.Table, e.Column, e.Datatype)
}

// SchemaError reports a schema document that is well-formed JSON but cannot
// describe a table.
type SchemaError struct {
	Table  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Table == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema %s: %s", e.Table, e.Reason)
}

// SQLError wraps a failure reported by the underlying database.
type SQLError struct {
	Statement string
	Err       error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("sql %q: %v", abbreviate(e.Statement, 80), e.Err)
}

func (e *SQLError) Unwrap() error { return e.Err }

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
