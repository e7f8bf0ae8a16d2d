package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmlab-server/sqldb"
	"wasmlab-server/wasmvm"
	"wasmlab-server/wasmvm/wasmvmtest"
)

// execute runs the root command with fresh flag values
func execute(t *testing.T, args ...string) error {
	t.Helper()
	runPayload, runRID, runEntry, runSchemas = "{}", 1, "", nil
	runShowCalls, runFailOnTrap = false, false
	schemaOverwrite, schemaDialect, schemaShowDDL = false, "sqlite", false
	project, dataDir, verbose = "local", "", false

	cfg := filepath.Join(t.TempDir(), "missing.toml")
	rootCmd.SetArgs(append([]string{"--config", cfg}, args...))
	return rootCmd.Execute()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

const logSchema = `{"name":"t_log","cols":[{"name":"number","constrains":{"datatype":"UINT8"}}],"withPrimaryKey":true}`

func TestRunWasm(t *testing.T) {
	m := wasmvmtest.New()
	logFn := m.Host(wasmvm.FnLog)
	execSQL := m.Host(wasmvm.FnExecSQL)
	m.Memory(1)
	m.Entry(wasmvm.DefaultEntryPoint,
		wasmvmtest.Str(m.String("hello")), wasmvmtest.Call(logFn),
		wasmvmtest.Str(m.String("INSERT INTO t_log (number) VALUES (1)")), wasmvmtest.Str(m.String("")),
		wasmvmtest.Call(execSQL),
	)
	bin := writeFile(t, "guest.wasm", m.Bytes())
	schema := writeFile(t, "schema.json", []byte(logSchema))

	assert.NoError(t, execute(t, "run", bin, "--schema", schema, "--calls"))
}

func TestRunFailOnTrap(t *testing.T) {
	m := wasmvmtest.New()
	m.Memory(1)
	m.Entry(wasmvm.DefaultEntryPoint, wasmvmtest.Unreachable())
	bin := writeFile(t, "trap.wasm", m.Bytes())

	assert.NoError(t, execute(t, "run", bin))
	assert.EqualError(t, execute(t, "run", bin, "--fail-on-trap"), "guest trapped")
}

func TestRunRejectsInvalidPayload(t *testing.T) {
	m := wasmvmtest.New()
	m.Memory(1)
	m.Entry(wasmvm.DefaultEntryPoint, wasmvmtest.I32Const(0))
	bin := writeFile(t, "guest.wasm", m.Bytes())

	assert.ErrorContains(t, execute(t, "run", bin, "--payload", "{"), "not valid JSON")
}

func TestSchemaValidate(t *testing.T) {
	good := writeFile(t, "good.json", []byte(logSchema))
	bad := writeFile(t, "bad.json", []byte(`{"name":"t","cols":[{"name":"c","constrains":{"datatype":"DECIMAL"}}]}`))

	assert.NoError(t, execute(t, "schema", "validate", good, "--ddl", "--dialect", "postgres"))
	assert.ErrorContains(t, execute(t, "schema", "validate", good, bad), "1 of 2 document(s) invalid")
	assert.Error(t, execute(t, "schema", "validate", good, "--dialect", "oracle"))
}

func TestSchemaApply(t *testing.T) {
	good := writeFile(t, "good.json", []byte(logSchema))
	dir := t.TempDir()

	assert.NoError(t, execute(t, "schema", "apply", good, "--data-dir", dir))
	_, err := os.Stat(filepath.Join(dir, "local.db"))
	assert.NoError(t, err)
}

func TestSchemaApplyKeepsDocumentOrder(t *testing.T) {
	doc := writeFile(t, "tables.json", []byte(`[
	  {"name":"t_zeta","cols":[{"name":"v","constrains":{"datatype":"INT"}}]},
	  {"name":"t_alpha","cols":[{"name":"v","constrains":{"datatype":"INT"}}]},
	  {"name":"t_mid","cols":[{"name":"v","constrains":{"datatype":"INT"}}]}
	]`))
	dir := t.TempDir()
	require.NoError(t, execute(t, "schema", "apply", doc, "--data-dir", dir))

	ctx := context.Background()
	e, err := sqldb.OpenSQLite(ctx, "file:"+filepath.Join(dir, "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	docs, err := e.ExportSchemas(ctx)
	require.NoError(t, err)
	var names []string
	for _, d := range docs {
		var s struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(d, &s))
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"t_zeta", "t_alpha", "t_mid"}, names)
}
