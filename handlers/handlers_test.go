package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"wasmlab-server/config"
	"wasmlab-server/models"
	"wasmlab-server/services"
	"wasmlab-server/sqldb"
	"wasmlab-server/wasmvm"
	"wasmlab-server/wasmvm/wasmvmtest"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()

	projects, err := services.NewProjectService(cfg, nil, nil, nil)
	require.NoError(t, err)
	storage, err := services.NewLocalStorageService(t.TempDir())
	require.NoError(t, err)
	modules := services.NewModuleService(projects, nil, storage, nil, nil, services.ModuleConfig{
		InvokeTimeout: time.Second,
	}, nil)
	triggers := services.NewTriggerService(modules, nil)
	t.Cleanup(func() {
		triggers.Close()
		modules.Close(ctx)
		_ = projects.Close(ctx)
	})

	mh := NewModuleHandler(modules)
	ph := NewProjectHandler(projects)
	th := NewTriggerHandler(triggers)

	app := fiber.New(AppConfig())
	p := app.Group("/api/projects/:project")
	p.Post("/modules", mh.CreateModule)
	p.Get("/modules", mh.ListModules)
	p.Get("/modules/:id", mh.GetModule)
	p.Delete("/modules/:id", mh.DeleteModule)
	p.Post("/modules/:id/debug", mh.DebugModule)
	p.Post("/modules/:id/invoke", mh.InvokeModule)
	p.Get("/modules/:id/logs", mh.GetLogs)
	p.Delete("/modules/:id/logs", mh.ResetLogs)
	p.Get("/modules/:id/payload", mh.GetPayload)
	p.Get("/invocations/:invocationId", mh.GetInvocationResult)
	p.Post("/tables", ph.CreateTables)
	p.Get("/tables", ph.ListTables)
	p.Get("/tables/export", ph.ExportTables)
	p.Delete("/tables/:name", ph.DropTable)
	p.Post("/sql", ph.RunSQL)
	p.Get("/kv", ph.ListKV)
	p.Get("/kv/:key", ph.GetKV)
	p.Put("/kv/:key", ph.SetKV)
	p.Post("/modules/:id/triggers", th.CreateTrigger)
	p.Get("/triggers", th.ListTriggers)
	p.Delete("/triggers/:triggerId", th.DeleteTrigger)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func echoBinary() []byte {
	m := wasmvmtest.New()
	logFn := m.Host(wasmvm.FnLog)
	getData := m.Host(wasmvm.FnGetDataByRID)
	m.Memory(1)
	m.Alloc()
	m.Entry(wasmvm.DefaultEntryPoint,
		wasmvmtest.LocalGet(0), wasmvmtest.Call(getData),
		wasmvmtest.LocalSet(1), wasmvmtest.Echo(logFn, 1),
		wasmvmtest.I32Const(0),
	)
	return m.Bytes()
}

func createModule(t *testing.T, app *fiber.App) models.GuestModule {
	t.Helper()
	status, body := do(t, app, http.MethodPost, "/api/projects/demo/modules", models.CreateModuleRequest{
		Name:   "echo.ts",
		Binary: echoBinary(),
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var m models.GuestModule
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func TestModuleLifecycle(t *testing.T) {
	app := newTestApp(t)
	m := createModule(t, app)
	base := "/api/projects/demo/modules/" + m.ID

	status, body := do(t, app, http.MethodGet, "/api/projects/demo/modules", nil)
	require.Equal(t, http.StatusOK, status)
	var items []models.GuestModuleListItem
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 1)
	assert.Equal(t, m.ID, items[0].ID)

	status, body = do(t, app, http.MethodPost, base+"/debug", `{"payload":{"amount":10}}`)
	require.Equal(t, http.StatusOK, status, string(body))
	var resp models.InvokeResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, models.StatusSuccess, resp.Status)
	require.Len(t, resp.Stdout, 1)
	assert.Equal(t, `{"amount":10}`, resp.Stdout[0].Message)

	status, body = do(t, app, http.MethodGet, base+"/payload", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"file_key":"echo.ts","payload":{"amount":10}}`, string(body))

	// an empty body reuses the cached payload
	status, body = do(t, app, http.MethodPost, base+"/debug", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, `{"amount":10}`, resp.Stdout[0].Message)

	status, body = do(t, app, http.MethodGet, base+"/logs", nil)
	require.Equal(t, http.StatusOK, status)
	var runs []models.IORun
	require.NoError(t, json.Unmarshal(body, &runs))
	assert.Len(t, runs, 2)

	status, _ = do(t, app, http.MethodDelete, base+"/logs", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, app, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, app, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateModuleErrors(t *testing.T) {
	app := newTestApp(t)

	m := wasmvmtest.New()
	m.Import(wasmvm.HostModule, "Nope", []api.ValueType{api.ValueTypeI32}, nil)
	m.Memory(1)
	m.Entry(wasmvm.DefaultEntryPoint, wasmvmtest.I32Const(0))

	tests := []struct {
		name    string
		project string
		body    any
		want    int
	}{
		{"link error", "demo", models.CreateModuleRequest{Name: "bad.ts", Binary: m.Bytes()}, http.StatusBadRequest},
		{"missing binary", "demo", models.CreateModuleRequest{Name: "bad.ts"}, http.StatusBadRequest},
		{"no compiler", "demo", models.CreateModuleRequest{Name: "a.ts", Source: "x"}, http.StatusServiceUnavailable},
		{"invalid project", "Bad_Project", models.CreateModuleRequest{Name: "a.ts", Binary: echoBinary()}, http.StatusBadRequest},
		{"malformed body", "demo", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, http.MethodPost, "/api/projects/"+tt.project+"/modules", tt.body)
			assert.Equal(t, tt.want, status, string(body))
		})
	}
}

func TestInvokeWithoutQueue(t *testing.T) {
	app := newTestApp(t)
	m := createModule(t, app)

	status, _ := do(t, app, http.MethodPost, "/api/projects/demo/modules/"+m.ID+"/invoke", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = do(t, app, http.MethodGet, "/api/projects/demo/invocations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTablesAndSQL(t *testing.T) {
	app := newTestApp(t)
	schema := `{"name":"t_log","cols":[{"name":"number","constrains":{"datatype":"UINT8"}}],"withPrimaryKey":true}`

	status, body := do(t, app, http.MethodPost, "/api/projects/demo/tables", schema)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `[{"name":"t_log","result":"SUCCESS"}]`, string(body))

	status, body = do(t, app, http.MethodPost, "/api/projects/demo/tables", schema)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"name":"t_log","result":"EXIST"}]`, string(body))

	status, body = do(t, app, http.MethodPost, "/api/projects/demo/sql", models.QueryRequest{Query: "INSERT INTO t_log (number) VALUES (1)"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"affected":1}`, string(body))

	status, body = do(t, app, http.MethodPost, "/api/projects/demo/sql", models.QueryRequest{Query: "SELECT number FROM t_log"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `[{"number":1}]`, string(body))

	status, body = do(t, app, http.MethodGet, "/api/projects/demo/tables", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `["t_log"]`, string(body))

	status, _ = do(t, app, http.MethodPost, "/api/projects/demo/sql", models.QueryRequest{Query: "SELECT * FROM nope"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodPost, "/api/projects/demo/tables", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodDelete, "/api/projects/demo/tables/t_log", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, app, http.MethodDelete, "/api/projects/demo/tables/t_log", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestKVEndpoints(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, http.MethodPut, "/api/projects/demo/kv/count", `{"value":42}`)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"key":"count","value":"42"}`, string(body))

	status, _ = do(t, app, http.MethodPut, "/api/projects/demo/kv/name", `{"value":"alice"}`)
	require.Equal(t, http.StatusOK, status)

	status, body = do(t, app, http.MethodGet, "/api/projects/demo/kv/name", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"key":"name","value":"alice"}`, string(body))

	status, body = do(t, app, http.MethodGet, "/api/projects/demo/kv", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"key":"count","value":"42"},{"key":"name","value":"alice"}]`, string(body))

	status, _ = do(t, app, http.MethodGet, "/api/projects/demo/kv/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, app, http.MethodPut, "/api/projects/demo/kv/flag", `{"value":true}`)
	assert.Equal(t, http.StatusBadRequest, status)

	// projects do not share keys
	status, _ = do(t, app, http.MethodGet, "/api/projects/other/kv/name", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestParamsOutliveRequest(t *testing.T) {
	app := newTestApp(t)

	status, _ := do(t, app, http.MethodPut, "/api/projects/demo/kv/aaaa", `{"value":"1"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = do(t, app, http.MethodPut, "/api/projects/zzzz/kv/bbbb", `{"value":"2"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodGet, "/api/projects/demo/kv", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"key":"aaaa","value":"1"}]`, string(body))

	status, body = do(t, app, http.MethodGet, "/api/projects/zzzz/kv", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"key":"bbbb","value":"2"}]`, string(body))
}

func TestTriggerEndpoints(t *testing.T) {
	app := newTestApp(t)
	m := createModule(t, app)
	path := "/api/projects/demo/modules/" + m.ID + "/triggers"

	status, _ := do(t, app, http.MethodPost, path, models.CreateTriggerRequest{Interval: "1ms"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, app, http.MethodPost, path, models.CreateTriggerRequest{Interval: "1h"})
	require.Equal(t, http.StatusOK, status, string(body))
	var trig models.SimulationTrigger
	require.NoError(t, json.Unmarshal(body, &trig))

	status, body = do(t, app, http.MethodGet, "/api/projects/demo/triggers", nil)
	require.Equal(t, http.StatusOK, status)
	var list []models.SimulationTrigger
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, trig.ID, list[0].ID)

	status, _ = do(t, app, http.MethodDelete, "/api/projects/demo/triggers/"+trig.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, app, http.MethodDelete, "/api/projects/demo/triggers/"+trig.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&wasmvm.LinkError{Name: "start", Reason: "missing"}, fiber.StatusBadRequest},
		{&sqldb.SchemaError{Reason: "no columns"}, fiber.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", services.ErrInvalidRequest), fiber.StatusBadRequest},
		{services.ErrModuleNotFound, fiber.StatusNotFound},
		{sqldb.ErrTableNotFound, fiber.StatusNotFound},
		{wasmvm.ErrBusy, fiber.StatusConflict},
		{services.ErrKVFull, fiber.StatusInsufficientStorage},
		{services.ErrInvokeTimeout, fiber.StatusGatewayTimeout},
		{services.ErrQueueUnavailable, fiber.StatusServiceUnavailable},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestIsReadStatement(t *testing.T) {
	assert.True(t, isReadStatement("  select 1"))
	assert.True(t, isReadStatement("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.False(t, isReadStatement("INSERT INTO t VALUES (1)"))
	assert.False(t, isReadStatement("DELETE FROM t"))
}
