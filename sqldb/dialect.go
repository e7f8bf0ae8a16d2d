package sqldb

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect hides the differences between the embedded sqlite engine and a
// Postgres schema namespace.
type Dialect interface {
	Name() string
	ColumnType(c Constrains) string
	PrimaryKey() string
	BoolLiteral(b bool) string
	// Rebind rewrites '?' placeholders of host-side statements.
	Rebind(query string) string
	TableExistsQuery() string
	ListTablesQuery() string
	// NameMatch is a predicate on the meta table's name column that
	// compares table names the way the engine resolves them.
	NameMatch() string
}

type sqliteDialect struct{}

// SQLite is the embedded dialect backed by modernc.org/sqlite.
var SQLite Dialect = sqliteDialect{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) ColumnType(c Constrains) string {
	switch c.Datatype.normalize() {
	case Int, Int32:
		return "INTEGER"
	case Int8:
		return "TINYINT"
	case Int16:
		return "SMALLINT"
	case Int64:
		return "BIGINT"
	case Uint, Uint32:
		return "INTEGER UNSIGNED"
	case Uint8:
		return "TINYINT UNSIGNED"
	case Uint16:
		return "SMALLINT UNSIGNED"
	case Uint64:
		return "BIGINT UNSIGNED"
	case Float32:
		return "FLOAT"
	case Float64:
		return "DOUBLE"
	case Text:
		return textType(c.Length)
	case Bool:
		return "BOOLEAN"
	case Timestamp:
		return "TIMESTAMP"
	}
	return ""
}

func (sqliteDialect) PrimaryKey() string {
	return quote(PrimaryKeyColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (sqliteDialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) TableExistsQuery() string {
	return `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND lower(name) = lower(?)`
}

// SQLite resolves identifiers case-insensitively.
func (sqliteDialect) NameMatch() string { return "lower(name) = lower(?)" }

func (sqliteDialect) ListTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

type postgresDialect struct{}

// Postgres is the lib/pq dialect. Each project lives in its own schema
// namespace selected through search_path.
var Postgres Dialect = postgresDialect{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) ColumnType(c Constrains) string {
	switch c.Datatype.normalize() {
	case Int, Int32, Uint16:
		return "INTEGER"
	case Int8, Int16, Uint8:
		return "SMALLINT"
	case Int64, Uint, Uint32:
		return "BIGINT"
	case Uint64:
		return "NUMERIC(20,0)"
	case Float32:
		return "REAL"
	case Float64:
		return "DOUBLE PRECISION"
	case Text:
		return textType(c.Length)
	case Bool:
		return "BOOLEAN"
	case Timestamp:
		return "TIMESTAMPTZ"
	}
	return ""
}

func (postgresDialect) PrimaryKey() string {
	return quote(PrimaryKeyColumn) + " BIGSERIAL PRIMARY KEY"
}

func (postgresDialect) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (postgresDialect) Rebind(query string) string {
	var sb strings.Builder
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
		case c == '?' && !inString:
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func (postgresDialect) TableExistsQuery() string {
	return `SELECT count(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`
}

func (postgresDialect) NameMatch() string { return "name = ?" }

func (postgresDialect) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
}

func textType(length int) string {
	if length > 0 {
		return fmt.Sprintf("VARCHAR(%d)", length)
	}
	return "TEXT"
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
