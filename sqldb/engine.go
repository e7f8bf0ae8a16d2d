// Package sqldb is the embedded relational engine guest modules reach through
// ExecSQL and QuerySQL. Tables are created from declarative JSON schema
// documents; statements are passed through unchanged and results are encoded
// as JSON-safe rows.
package sqldb

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// CreateResult is the outcome of CreateTableFromSchema.
type CreateResult string

const (
	Success CreateResult = "SUCCESS"
	Exist   CreateResult = "EXIST"
)

// Engine serializes every statement: there is no concurrency inside one
// project's SQL engine. Statements autocommit individually.
type Engine struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool

	// lastCreated keeps meta created_at strictly increasing so export
	// order is creation order even within one clock tick.
	lastCreated int64
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// OpenSQLite opens an embedded database. An empty dsn opens a private
// in-memory database.
func OpenSQLite(ctx context.Context, dsn string, opts ...Option) (*Engine, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps a :memory: database alive and matches the
	// single-writer model
	db.SetMaxOpenConns(1)
	e, err := New(ctx, db, SQLite, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// OpenPostgres connects with lib/pq and confines the engine to the schema
// namespace, creating it when missing.
func OpenPostgres(ctx context.Context, dsn, namespace string, opts ...Option) (*Engine, error) {
	if err := checkIdentifier(namespace); err != nil {
		return nil, fmt.Errorf("namespace %w", err)
	}
	namespace = strings.ToLower(namespace)
	db, err := sql.Open("postgres", withSearchPath(dsn, namespace))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quote(namespace)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create namespace %s: %w", namespace, err)
	}
	e, err := New(ctx, db, Postgres, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func withSearchPath(dsn, namespace string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if u, err := url.Parse(dsn); err == nil {
			q := u.Query()
			q.Set("search_path", namespace)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return strings.TrimSpace(dsn + " search_path=" + namespace)
}

// New wraps an open database and makes sure the schema meta table exists.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Engine, error) {
	e := &Engine{db: db, dialect: dialect, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	if err := e.init(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) init(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name VARCHAR(63) PRIMARY KEY,
	doc TEXT NOT NULL,
	created_at BIGINT NOT NULL
)`, quote(MetaTable)))
	if err != nil {
		return fmt.Errorf("init %s: %w", MetaTable, err)
	}
	return nil
}

func (e *Engine) Dialect() Dialect { return e.dialect }

// CreateTableFromSchema creates the table s describes. An existing table is
// left untouched and reported as Exist unless overwrite is set, in which case
// it is dropped and recreated without its data.
func (e *Engine) CreateTableFromSchema(ctx context.Context, s *TableSchema, overwrite bool) (CreateResult, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	doc, err := s.Document()
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}

	exists, err := e.tableExists(ctx, s.Name)
	if err != nil {
		return "", err
	}
	if exists && !overwrite {
		return Exist, nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	stmts := CreateStatements(e.dialect, s)
	if exists {
		stmts = append([]string{"DROP TABLE " + quote(s.Name)}, stmts...)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return "", &SQLError{Statement: stmt, Err: err}
		}
	}
	createdAt, err := e.saveSchema(ctx, tx, s.Name, doc)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	e.lastCreated = createdAt

	e.logger.Info("table created",
		zap.String("table", s.Name),
		zap.String("dialect", e.dialect.Name()),
		zap.Bool("overwrite", exists))
	return Success, nil
}

func (e *Engine) saveSchema(ctx context.Context, tx *sql.Tx, name string, doc []byte) (int64, error) {
	del := e.dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s", quote(MetaTable), e.dialect.NameMatch()))
	if _, err := tx.ExecContext(ctx, del, name); err != nil {
		return 0, &SQLError{Statement: del, Err: err}
	}
	createdAt := time.Now().UnixNano()
	if createdAt <= e.lastCreated {
		createdAt = e.lastCreated + 1
	}
	ins := e.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (name, doc, created_at) VALUES (?, ?, ?)", quote(MetaTable)))
	if _, err := tx.ExecContext(ctx, ins, name, string(doc), createdAt); err != nil {
		return 0, &SQLError{Statement: ins, Err: err}
	}
	return createdAt, nil
}

func (e *Engine) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	q := e.dialect.Rebind(e.dialect.TableExistsQuery())
	if err := e.db.QueryRowContext(ctx, q, name).Scan(&n); err != nil {
		return false, &SQLError{Statement: q, Err: err}
	}
	return n > 0, nil
}

// DropTable drops a table and forgets its schema.
func (e *Engine) DropTable(ctx context.Context, name string) error {
	if err := checkIdentifier(name); err != nil || strings.EqualFold(name, MetaTable) {
		return ErrTableNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	exists, err := e.tableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTableNotFound
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := "DROP TABLE " + quote(name)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return &SQLError{Statement: stmt, Err: err}
	}
	del := e.dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s", quote(MetaTable), e.dialect.NameMatch()))
	if _, err := tx.ExecContext(ctx, del, name); err != nil {
		return &SQLError{Statement: del, Err: err}
	}
	return tx.Commit()
}

// Tables lists user tables, hiding the schema meta table.
func (e *Engine) Tables(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	q := e.dialect.ListTablesQuery()
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, &SQLError{Statement: q, Err: err}
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if strings.EqualFold(name, MetaTable) || strings.HasPrefix(name, "sqlite_") {
			continue
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ExportSchemas returns the stored schema documents in creation order. Each
// document is exactly what was loaded, so export/import round-trips.
func (e *Engine) ExportSchemas(ctx context.Context) ([]json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	q := fmt.Sprintf("SELECT doc FROM %s ORDER BY created_at, name", quote(MetaTable))
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, &SQLError{Statement: q, Err: err}
	}
	defer rows.Close()

	docs := []json.RawMessage{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, json.RawMessage(doc))
	}
	return docs, rows.Err()
}

// Exec runs a DDL or DML statement and returns the affected-row count. DDL
// statements report zero.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}

	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &SQLError{Statement: query, Err: err}
	}
	if isDDL(query) {
		return 0, nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func isDDL(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "CREATE", "DROP", "ALTER":
		return true
	}
	return false
}

// Query runs a SELECT and returns its rows as a JSON array of objects whose
// keys keep the column order of the result set.
func (e *Engine) Query(ctx context.Context, query string, args ...any) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &SQLError{Statement: query, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &SQLError{Statement: query, Err: err}
	}
	keys := make([][]byte, len(cols))
	for i, c := range cols {
		if c == SoftDeletionColumn {
			continue
		}
		keys[i], _ = json.Marshal(c)
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	first := true
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &SQLError{Statement: query, Err: err}
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteByte('{')
		wrote := false
		for i, v := range vals {
			if keys[i] == nil {
				continue
			}
			if wrote {
				buf.WriteByte(',')
			}
			wrote = true
			buf.Write(keys[i])
			buf.WriteByte(':')
			val, err := json.Marshal(jsonSafe(v))
			if err != nil {
				return nil, fmt.Errorf("encode column %s: %w", cols[i], err)
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	if err := rows.Err(); err != nil {
		return nil, &SQLError{Statement: query, Err: err}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// maxSafeInt is the largest integer a JSON number holds exactly in a
// double.
const maxSafeInt = 1<<53 - 1

func jsonSafe(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int64:
		if t > maxSafeInt || t < -maxSafeInt {
			return strconv.FormatInt(t, 10)
		}
		return t
	case uint64:
		if t > maxSafeInt {
			return strconv.FormatUint(t, 10)
		}
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return strconv.FormatFloat(t, 'g', -1, 64)
		}
		return t
	case float32:
		return jsonSafe(float64(t))
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// Close closes the underlying database.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

// IsSQLError reports whether err came from the database rather than from
// schema validation.
func IsSQLError(err error) bool {
	var se *SQLError
	return errors.As(err, &se)
}
