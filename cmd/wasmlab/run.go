package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wasmlab-server/sqldb"
	"wasmlab-server/wasmvm"
)

var (
	runPayload    string
	runRID        int32
	runEntry      string
	runSchemas    []string
	runShowCalls  bool
	runFailOnTrap bool
)

var runCmd = &cobra.Command{
	Use:   "run <module.wasm|source.ts>",
	Short: "Run a guest module once and print its IO",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		binary, err := loadBinary(ctx, e, args[0])
		if err != nil {
			return err
		}
		p, err := e.projects.Get(ctx, project)
		if err != nil {
			return err
		}
		for _, path := range runSchemas {
			if err := applySchemaFile(ctx, p.SQL, path, false); err != nil {
				return err
			}
		}

		trapped, err := runOnce(ctx, e, binary, runRID, runPayload)
		if err != nil {
			return err
		}
		if trapped && runFailOnTrap {
			return errors.New("guest trapped")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runPayload, "payload", "{}", "JSON payload returned by GetDataByRID")
	runCmd.Flags().Int32Var(&runRID, "rid", 1, "record id passed to the entry point")
	runCmd.Flags().StringVar(&runEntry, "entry", "", "entry point (default from config)")
	runCmd.Flags().StringSliceVar(&runSchemas, "schema", nil, "table schema files to create before running")
	runCmd.Flags().BoolVar(&runShowCalls, "calls", false, "print the host call journal")
	runCmd.Flags().BoolVar(&runFailOnTrap, "fail-on-trap", false, "exit non-zero when the guest traps")
}

func loadBinary(ctx context.Context, e *env, path string) ([]byte, error) {
	if filepath.Ext(path) == ".wasm" {
		return os.ReadFile(path)
	}
	res, err := compileFile(ctx, e.compiler, path)
	if err != nil {
		return nil, err
	}
	return res.Binary, nil
}

// runOnce loads binary into the project runtime, invokes it and renders the
// result. It reports whether the guest trapped.
func runOnce(ctx context.Context, e *env, binary []byte, rid int32, payload string) (bool, error) {
	if !json.Valid([]byte(payload)) {
		return false, fmt.Errorf("payload is not valid JSON")
	}
	p, err := e.projects.Get(ctx, project)
	if err != nil {
		return false, err
	}
	entry := runEntry
	if entry == "" {
		entry = e.cfg.Sandbox.EntryPoint
	}
	handle, err := p.Runtime.Load(ctx, binary, entry)
	if err != nil {
		return false, err
	}
	defer handle.Close(ctx)

	res, err := handle.Invoke(ctx, rid, payload)
	var trap *wasmvm.TrapError
	if err != nil && !errors.As(err, &trap) {
		return false, err
	}
	renderResult(res, runShowCalls)
	return trap != nil, nil
}

func applySchemaFile(ctx context.Context, engine *sqldb.Engine, path string, overwrite bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	schemas, err := sqldb.ParseSchemas(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, s := range schemas {
		res, err := engine.CreateTableFromSchema(ctx, s, overwrite)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		pterm.Info.Printf("table %s: %s\n", s.Name, res)
	}
	return nil
}
