package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wasmlab-server/sqldb"
)

var (
	schemaOverwrite bool
	schemaDialect   string
	schemaShowDDL   bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Validate and apply table schema documents",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <schema.json>...",
	Short: "Check schema documents and print the tables they describe",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dialect := sqldb.SQLite
		switch schemaDialect {
		case "sqlite":
		case "postgres":
			dialect = sqldb.Postgres
		default:
			return fmt.Errorf("unknown dialect %q", schemaDialect)
		}

		failed := 0
		for _, path := range args {
			schemas, err := readSchemas(path)
			if err != nil {
				pterm.Error.Printf("%s: %v\n", path, err)
				failed++
				continue
			}
			for _, s := range schemas {
				renderSchema(s)
				if schemaShowDDL {
					pterm.Println(strings.Join(sqldb.CreateStatements(dialect, s), ";\n") + ";")
					pterm.Println()
				}
			}
			pterm.Success.Printf("%s: %d table(s) valid\n", path, len(schemas))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d document(s) invalid", failed, len(args))
		}
		return nil
	},
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply <schema.json>...",
	Short: "Create the tables of schema documents in the project database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		p, err := e.projects.Get(ctx, project)
		if err != nil {
			return err
		}

		var schemas []*sqldb.TableSchema
		for _, path := range args {
			s, err := readSchemas(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			schemas = append(schemas, s...)
		}

		// document order is the export order
		rows := pterm.TableData{{"Table", "Result"}}
		for _, s := range schemas {
			res, err := p.SQL.CreateTableFromSchema(ctx, s, schemaOverwrite)
			if err != nil {
				return fmt.Errorf("%s: %w", s.Name, err)
			}
			rows = append(rows, []string{s.Name, string(res)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	schemaValidateCmd.Flags().StringVar(&schemaDialect, "dialect", "sqlite", "dialect used for --ddl (sqlite or postgres)")
	schemaValidateCmd.Flags().BoolVar(&schemaShowDDL, "ddl", false, "print the generated statements")
	schemaApplyCmd.Flags().BoolVar(&schemaOverwrite, "overwrite", false, "drop and recreate existing tables")
	schemaCmd.AddCommand(schemaValidateCmd, schemaApplyCmd)
}

func readSchemas(path string) ([]*sqldb.TableSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return sqldb.ParseSchemas(data)
}

func renderSchema(s *sqldb.TableSchema) {
	rows := pterm.TableData{{"Column", "Datatype", "Length", "Default", "Null", "Unique"}}
	for _, c := range s.Cols {
		length := ""
		if c.Constrains.Length > 0 {
			length = strconv.Itoa(c.Constrains.Length)
		}
		null := "yes"
		if c.Constrains.Null != nil && !*c.Constrains.Null {
			null = "no"
		}
		rows = append(rows, []string{
			c.Name,
			string(c.Constrains.Datatype),
			length,
			string(c.Constrains.Default),
			null,
			strconv.FormatBool(c.Constrains.Unique),
		})
	}
	title := s.Name
	if s.Desc != "" {
		title += " (" + s.Desc + ")"
	}
	pterm.DefaultSection.Println(title)
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	for _, k := range s.Keys {
		kind := "index"
		if k.IsUnique {
			kind = "unique"
		}
		pterm.Printf("  %s %s (%s)\n", kind, k.Name, strings.Join(k.ColumnNames, ", "))
	}
	pterm.Printf("  primary key: %v, soft deletion: %v\n", s.WithPrimaryKey, s.WithSoftDeletion)
}
