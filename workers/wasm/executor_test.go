package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wasmlab-server/config"
	"wasmlab-server/models"
	"wasmlab-server/services"
	"wasmlab-server/wasmvm"
	"wasmlab-server/wasmvm/wasmvmtest"
)

func newExecutor(t *testing.T, tx wasmvm.TxDispatcher, timeout time.Duration) (*Executor, services.StorageService) {
	t.Helper()
	projects, err := services.NewProjectService(config.Default(), nil, tx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = projects.Close(context.Background()) })
	storage, err := services.NewLocalStorageService(t.TempDir())
	require.NoError(t, err)
	return NewExecutor(projects, storage, timeout, zap.NewNop()), storage
}

func store(t *testing.T, storage services.StorageService, m *wasmvmtest.Module) string {
	t.Helper()
	key := services.BinaryKey("demo", "m1")
	require.NoError(t, storage.Save(context.Background(), key, m.Bytes(), services.ContentTypeWasm))
	return key
}

func TestExecuteSuccess(t *testing.T) {
	exec, storage := newExecutor(t, nil, time.Second)

	m := wasmvmtest.New()
	logFn := m.Host(wasmvm.FnLog)
	getData := m.Host(wasmvm.FnGetDataByRID)
	m.Memory(1)
	m.Alloc()
	m.Entry(wasmvm.DefaultEntryPoint,
		wasmvmtest.LocalGet(0), wasmvmtest.Call(getData),
		wasmvmtest.LocalSet(1), wasmvmtest.Echo(logFn, 1),
		wasmvmtest.I32Const(3),
	)

	res := exec.Execute(context.Background(), &models.ExecutionRequest{
		InvocationID: "inv-1",
		Project:      "demo",
		BinaryKey:    store(t, storage, m),
		RecordID:     9,
		Payload:      `{"x":1}`,
	})
	assert.Equal(t, "inv-1", res.InvocationID)
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, int32(3), res.ExitCode)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, `{"x":1}`, res.Entries[0].Message)
}

func TestExecuteTrap(t *testing.T) {
	exec, storage := newExecutor(t, nil, time.Second)

	m := wasmvmtest.New()
	m.Memory(1)
	m.Entry(wasmvm.DefaultEntryPoint, wasmvmtest.Unreachable())

	res := exec.Execute(context.Background(), &models.ExecutionRequest{
		InvocationID: "inv-2",
		Project:      "demo",
		BinaryKey:    store(t, storage, m),
		RecordID:     1,
	})
	assert.Equal(t, models.StatusTrap, res.Status)
	assert.Equal(t, "unreachable", res.Trap)
}

func TestExecuteMissingBinary(t *testing.T) {
	exec, _ := newExecutor(t, nil, time.Second)

	res := exec.Execute(context.Background(), &models.ExecutionRequest{
		InvocationID: "inv-3",
		Project:      "demo",
		BinaryKey:    services.BinaryKey("demo", "gone"),
	})
	assert.Equal(t, models.StatusFail, res.Status)
	assert.Contains(t, res.ErrorMessage, services.ErrArtifactNotFound.Error())
}

func TestExecuteTimeout(t *testing.T) {
	release := make(chan struct{})
	tx := wasmvm.DispatchFunc(func(context.Context, wasmvm.TxRequest) (string, error) {
		<-release
		return "0x1", nil
	})
	exec, storage := newExecutor(t, tx, 50*time.Millisecond)
	t.Cleanup(func() { close(release) })

	m := wasmvmtest.New()
	sendTx := m.Host(wasmvm.FnSendTx)
	m.Memory(1)
	m.Alloc()
	m.Entry(wasmvm.DefaultEntryPoint,
		wasmvmtest.I32Const(1),
		wasmvmtest.Str(m.String("0x01")), wasmvmtest.Str(m.String("1")), wasmvmtest.Str(m.String("0x")),
		wasmvmtest.Call(sendTx), wasmvmtest.Drop(),
		wasmvmtest.I32Const(0),
	)

	res := exec.Execute(context.Background(), &models.ExecutionRequest{
		InvocationID: "inv-4",
		Project:      "demo",
		BinaryKey:    store(t, storage, m),
		RecordID:     1,
	})
	assert.Equal(t, models.StatusTimeout, res.Status)
	assert.Contains(t, res.ErrorMessage, "timed out")
}

func TestCheckSharedStores(t *testing.T) {
	shared := config.Default()
	shared.KV.Backend = "redis"
	shared.SQL.DataDir = t.TempDir()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(c *config.Config) { *c = config.Default() }, "kv.backend"},
		{"memory kv", func(c *config.Config) { c.KV.Backend = "memory" }, "kv.backend"},
		{"in-memory sqlite", func(c *config.Config) { c.SQL.DataDir = "" }, "without sql.data_dir"},
		{"unknown dialect", func(c *config.Config) { c.SQL.Dialect = "mysql" }, "unknown sql dialect"},
		{"sqlite files", func(c *config.Config) {}, ""},
		{"postgres", func(c *config.Config) {
			c.SQL.Dialect = "postgres"
			c.SQL.DataDir = ""
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := shared
			tt.mutate(&cfg)
			err := checkSharedStores(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
