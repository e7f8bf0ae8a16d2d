package sqldb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Columns managed by the engine itself.
const (
	PrimaryKeyColumn   = "f_id"
	SoftDeletionColumn = "f_deleted_at"
	MetaTable          = "t_sql_meta_schema"
)

const maxIdentifier = 63

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableSchema is a user-authored table description. It is also the export
// format: a schema loaded from JSON exports byte-for-byte as it was loaded
// (modulo insignificant whitespace).
type TableSchema struct {
	Name             string   `json:"name"`
	Desc             string   `json:"desc,omitempty"`
	Cols             []Column `json:"cols"`
	Keys             []Key    `json:"keys,omitempty"`
	WithSoftDeletion bool     `json:"withSoftDeletion"`
	WithPrimaryKey   bool     `json:"withPrimaryKey"`

	raw json.RawMessage
}

type Column struct {
	Name       string     `json:"name"`
	Constrains Constrains `json:"constrains"`
}

type Constrains struct {
	Datatype Datatype        `json:"datatype"`
	Length   int             `json:"length,omitempty"`
	Default  json.RawMessage `json:"default,omitempty"`
	Desc     string          `json:"desc,omitempty"`
	Null     *bool           `json:"null,omitempty"`
	Unique   bool            `json:"unique,omitempty"`
}

type Key struct {
	Name        string   `json:"name"`
	IsUnique    bool     `json:"isUnique"`
	ColumnNames []string `json:"columnNames"`
}

// UnmarshalJSON decodes and validates a schema, so unsupported datatypes
// surface when the document is loaded rather than when SQL is generated.
func (s *TableSchema) UnmarshalJSON(b []byte) error {
	type plain TableSchema
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = TableSchema(p)
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	s.raw = buf.Bytes()
	return s.Validate()
}

// Document returns the JSON form stored for export.
func (s *TableSchema) Document() (json.RawMessage, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	return json.Marshal(s)
}

// Validate checks names, datatypes, defaults and keys.
func (s *TableSchema) Validate() error {
	if err := checkIdentifier(s.Name); err != nil {
		return &SchemaError{Table: s.Name, Reason: "table name " + err.Error()}
	}
	if strings.EqualFold(s.Name, MetaTable) {
		return &SchemaError{Table: s.Name, Reason: "table name is reserved"}
	}
	if len(s.Cols) == 0 && !s.WithPrimaryKey {
		return &SchemaError{Table: s.Name, Reason: "table has no columns"}
	}

	seen := make(map[string]bool, len(s.Cols))
	for i, c := range s.Cols {
		if err := checkIdentifier(c.Name); err != nil {
			return &SchemaError{Table: s.Name, Reason: fmt.Sprintf("column %d name %v", i, err)}
		}
		lower := strings.ToLower(c.Name)
		if lower == PrimaryKeyColumn || lower == SoftDeletionColumn {
			return &SchemaError{Table: s.Name, Reason: fmt.Sprintf("column name %q is reserved", c.Name)}
		}
		if seen[lower] {
			return &SchemaError{Table: s.Name, Reason: fmt.Sprintf("duplicate column %q", c.Name)}
		}
		seen[lower] = true

		d := c.Constrains.Datatype.normalize()
		if !d.Valid() {
			return &UnsupportedTypeError{Table: s.Name, Column: c.Name, Datatype: string(c.Constrains.Datatype)}
		}
		if c.Constrains.Length < 0 {
			return &SchemaError{Table: s.Name, Reason: fmt.Sprintf("column %q has a negative length", c.Name)}
		}
		if _, err := parseDefault(c.Constrains.Default); err != nil {
			return &SchemaError{Table: s.Name, Reason: fmt.Sprintf("column %q default: %v", c.Name, err)}
		}
	}

	keys := make(map[string]bool, len(s.Keys))
	for _, k := range s.Keys {
		if err := checkIdentifier(k.Name); err != nil {
			return &SchemaError{Table: s.Name, Reason: "key name " + err.Error()}
		}
		if keys[strings.ToLower(k.Name)] {
			return &SchemaError{Table: s.Name, Reason: fmt.Sprintf("duplicate key %q", k.Name)}
		}
		keys[strings.ToLower(k.Name)] = true
		if len(k.ColumnNames) == 0 {
			return &SchemaError{Table: s.Name, Reason: fmt.Sprintf("key %q has no columns", k.Name)}
		}
		for _, col := range k.ColumnNames {
			if !seen[strings.ToLower(col)] && !strings.EqualFold(col, PrimaryKeyColumn) {
				return &SchemaError{Table: s.Name, Reason: fmt.Sprintf("key %q references unknown column %q", k.Name, col)}
			}
		}
	}
	return nil
}

func checkIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("is empty")
	}
	if len(name) > maxIdentifier {
		return fmt.Errorf("%q is longer than %d characters", name, maxIdentifier)
	}
	if !identifier.MatchString(name) {
		return fmt.Errorf("%q is not a valid identifier", name)
	}
	return nil
}

// ParseSchemas decodes a schema document holding a single table object or an
// array of them.
func ParseSchemas(data []byte) ([]*TableSchema, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &SchemaError{Reason: "empty document"}
	}
	if trimmed[0] == '[' {
		var list []*TableSchema
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one TableSchema
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []*TableSchema{&one}, nil
}

type defaultValue struct {
	kind  byte // 's' string, 'n' number, 'b' bool, 0 null
	text  string
	truth bool
}

func parseDefault(raw json.RawMessage) (*defaultValue, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return &defaultValue{}, nil
	case string:
		return &defaultValue{kind: 's', text: t}, nil
	case json.Number:
		return &defaultValue{kind: 'n', text: t.String()}, nil
	case bool:
		return &defaultValue{kind: 'b', truth: t}, nil
	}
	return nil, fmt.Errorf("must be a string, number, boolean or null")
}
