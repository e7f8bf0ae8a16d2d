package sqldb

import (
	"fmt"
	"strings"
)

// CreateStatements renders the DDL for s: the CREATE TABLE followed by one
// CREATE INDEX per key. s must already be valid.
func CreateStatements(d Dialect, s *TableSchema) []string {
	var defs []string
	if s.WithPrimaryKey {
		defs = append(defs, d.PrimaryKey())
	}
	for _, c := range s.Cols {
		defs = append(defs, columnDef(d, c))
	}
	if s.WithSoftDeletion {
		defs = append(defs, quote(SoftDeletionColumn)+" BIGINT NOT NULL DEFAULT 0")
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quote(s.Name), strings.Join(defs, ",\n\t"))}
	for _, k := range s.Keys {
		cols := make([]string, 0, len(k.ColumnNames)+1)
		for _, c := range k.ColumnNames {
			cols = append(cols, quote(c))
		}
		kind := "INDEX"
		if k.IsUnique {
			kind = "UNIQUE INDEX"
			// soft-deleted rows must not block re-inserting the same key
			if s.WithSoftDeletion {
				cols = append(cols, quote(SoftDeletionColumn))
			}
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %s %s ON %s (%s)",
			kind, quote(s.Name+"_"+k.Name), quote(s.Name), strings.Join(cols, ", ")))
	}
	return stmts
}

func columnDef(d Dialect, c Column) string {
	var sb strings.Builder
	sb.WriteString(quote(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(d.ColumnType(c.Constrains))

	if c.Constrains.Null != nil && !*c.Constrains.Null {
		sb.WriteString(" NOT NULL")
	}
	if c.Constrains.Unique {
		sb.WriteString(" UNIQUE")
	}
	if def, _ := parseDefault(c.Constrains.Default); def != nil {
		sb.WriteString(" DEFAULT ")
		switch def.kind {
		case 's':
			sb.WriteString(quoteString(def.text))
		case 'n':
			sb.WriteString(def.text)
		case 'b':
			sb.WriteString(d.BoolLiteral(def.truth))
		default:
			sb.WriteString("NULL")
		}
	}
	if lo, hi, ok := c.Constrains.Datatype.normalize().bounds(); ok {
		name := quote(c.Name)
		if hi == "" {
			fmt.Fprintf(&sb, " CHECK (%s >= %s)", name, lo)
		} else {
			fmt.Fprintf(&sb, " CHECK (%s BETWEEN %s AND %s)", name, lo, hi)
		}
	}
	return sb.String()
}
