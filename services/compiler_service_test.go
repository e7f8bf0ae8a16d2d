package services

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmlab-server/models"
)

// fakeASC writes an executable shell script standing in for the compiler.
// Arguments follow asc: input -o out.wasm -t out.wat flags...
func fakeASC(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "asc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

func TestCompileSuccess(t *testing.T) {
	captured := filepath.Join(t.TempDir(), "input.ts")
	asc := fakeASC(t, `cp "$1" "`+captured+`"
printf 'wasm-bytes' > "$3"
printf '(module)' > "$5"`)

	c := NewCompilerService(asc, t.TempDir(), 5*time.Second, nil)
	res := c.Compile(context.Background(), "export function start(rid: i32): i32 { return rid }")
	require.Nil(t, res.Err)
	assert.Equal(t, []byte("wasm-bytes"), res.Binary)
	assert.Equal(t, "(module)", res.Text)

	input, err := os.ReadFile(captured)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(input), Prelude))
	assert.True(t, strings.HasSuffix(string(input), "return rid }"))
}

func TestCompileDiagnostics(t *testing.T) {
	asc := fakeASC(t, `echo "WARNING AS201: unused local" >&2
echo "" >&2
echo "ERROR TS1005: ';' expected." >&2
echo "   in input.ts(3,10)" >&2
exit 1`)

	c := NewCompilerService(asc, t.TempDir(), 5*time.Second, nil)
	res := c.Compile(context.Background(), "export function start(: i32")
	require.NotNil(t, res.Err)
	assert.Nil(t, res.Binary)
	assert.Equal(t, "ERROR TS1005: ';' expected.\n   in input.ts(3,10)", res.Err.Message)
	assert.Contains(t, res.Err.Diagnostics, "WARNING AS201")
	assert.Equal(t, "compile error: "+res.Err.Message, res.Err.Error())
}

func TestCompileNoBinary(t *testing.T) {
	asc := fakeASC(t, "exit 0")

	c := NewCompilerService(asc, t.TempDir(), 5*time.Second, nil)
	res := c.Compile(context.Background(), "")
	require.NotNil(t, res.Err)
	assert.Equal(t, "compiler produced no binary", res.Err.Message)
}

func TestCompileTimeout(t *testing.T) {
	asc := fakeASC(t, "exec sleep 5")

	c := NewCompilerService(asc, t.TempDir(), 200*time.Millisecond, nil)
	start := time.Now()
	res := c.Compile(context.Background(), "")
	require.NotNil(t, res.Err)
	assert.Contains(t, res.Err.Message, "compile timed out after")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCompileCleansWorkDir(t *testing.T) {
	asc := fakeASC(t, `printf 'x' > "$3"`)
	workDir := t.TempDir()

	c := NewCompilerService(asc, workDir, 5*time.Second, nil)
	require.Nil(t, c.Compile(context.Background(), "").Err)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAggregateErrors(t *testing.T) {
	diag := "ERROR TS2304: Cannot find name 'x'.\n   in input.ts(1,1)\n\nWARNING: ignored\n\nERROR AS100: Not implemented."
	assert.Equal(t, "ERROR TS2304: Cannot find name 'x'.\n   in input.ts(1,1)\n\nERROR AS100: Not implemented.", aggregateErrors(diag))
	assert.Empty(t, aggregateErrors("WARNING: only warnings"))
}

// sourceCompiler copies a prebuilt guest binary as the compile output and
// fails any source containing BROKEN.
func sourceCompiler(t *testing.T, binary []byte) *CompilerService {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(bin, binary, 0644))
	asc := fakeASC(t, `if grep -q BROKEN "$1"; then echo "ERROR TS1005: broken" >&2; exit 1; fi
cp "`+bin+`" "$3"`)
	return NewCompilerService(asc, t.TempDir(), 5*time.Second, nil)
}

func TestCreateAndRecompileFromSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, time.Second)
	env.modules.compiler = sourceCompiler(t, echoGuest().Bytes())

	gm, err := env.modules.CreateModule(ctx, testProject, &models.CreateModuleRequest{
		FileKey: "echo.ts",
		Source:  "export function start(rid: i32): i32 { return rid }",
	})
	require.NoError(t, err)
	assert.Equal(t, "echo.ts", gm.Name)
	assert.Equal(t, SourceKey(testProject, gm.ID), gm.SourceKey)

	src, err := env.storage.Get(ctx, gm.SourceKey)
	require.NoError(t, err)
	assert.Equal(t, gm.Source, string(src))

	_, err = env.modules.Recompile(ctx, testProject, gm.ID, &models.UpdateModuleRequest{Source: "BROKEN"})
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "ERROR TS1005: broken", compileErr.Message)

	// the previous binary is still loaded
	got, err := env.modules.GetModule(ctx, testProject, gm.ID)
	require.NoError(t, err)
	assert.Equal(t, gm.Source, got.Source)
	resp, err := env.modules.Debug(ctx, testProject, gm.ID, &models.DebugRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, resp.Status)

	updated, err := env.modules.Recompile(ctx, testProject, gm.ID, &models.UpdateModuleRequest{Source: "// v2"})
	require.NoError(t, err)
	assert.Equal(t, "// v2", updated.Source)
	assert.False(t, updated.UpdatedAt.Before(gm.UpdatedAt))
}
