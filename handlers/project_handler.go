package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"wasmlab-server/middleware"
	"wasmlab-server/models"
	"wasmlab-server/services"
	"wasmlab-server/sqldb"
)

type ProjectHandler struct {
	projects *services.ProjectService
}

func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateTables godoc
// @Summary Create tables from a schema document
// @Description Accepts one table schema or an array of them. Existing tables are reported as EXIST unless overwrite is set.
// @Tags tables
// @Accept json
// @Produce json
// @Param project path string true "Project name"
// @Param overwrite query bool false "Drop and recreate existing tables"
// @Success 200 {array} models.TableResult
// @Failure 400 {object} map[string]string
// @Router /projects/{project}/tables [post]
func (h *ProjectHandler) CreateTables(c *fiber.Ctx) error {
	schemas, err := sqldb.ParseSchemas(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx := middleware.GetXRayContext(c)
	p, err := h.projects.Get(ctx, c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}

	overwrite := c.QueryBool("overwrite", false)
	results := make([]models.TableResult, 0, len(schemas))
	for _, s := range schemas {
		res, err := p.SQL.CreateTableFromSchema(ctx, s, overwrite)
		if err != nil {
			return writeError(c, err)
		}
		results = append(results, models.TableResult{Name: s.Name, Result: string(res)})
	}
	return c.JSON(results)
}

// ListTables godoc
// @Summary List tables
// @Tags tables
// @Produce json
// @Param project path string true "Project name"
// @Success 200 {array} string
// @Router /projects/{project}/tables [get]
func (h *ProjectHandler) ListTables(c *fiber.Ctx) error {
	ctx := middleware.GetXRayContext(c)
	p, err := h.projects.Get(ctx, c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}
	tables, err := p.SQL.Tables(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(tables)
}

// ExportTables godoc
// @Summary Export table schemas
// @Description Returns the schema documents exactly as they were loaded
// @Tags tables
// @Produce json
// @Param project path string true "Project name"
// @Success 200 {array} object
// @Router /projects/{project}/tables/export [get]
func (h *ProjectHandler) ExportTables(c *fiber.Ctx) error {
	ctx := middleware.GetXRayContext(c)
	p, err := h.projects.Get(ctx, c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}
	docs, err := p.SQL.ExportSchemas(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(docs)
}

// DropTable godoc
// @Summary Drop a table
// @Tags tables
// @Param project path string true "Project name"
// @Param name path string true "Table name"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /projects/{project}/tables/{name} [delete]
func (h *ProjectHandler) DropTable(c *fiber.Ctx) error {
	ctx := middleware.GetXRayContext(c)
	p, err := h.projects.Get(ctx, c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}
	if err := p.SQL.DropTable(ctx, c.Params("name")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RunSQL godoc
// @Summary Run a statement against the project database
// @Description Read statements return JSON rows; anything else returns the affected-row count
// @Tags tables
// @Accept json
// @Produce json
// @Param project path string true "Project name"
// @Param query body models.QueryRequest true "Statement and arguments"
// @Success 200 {object} object
// @Router /projects/{project}/sql [post]
func (h *ProjectHandler) RunSQL(c *fiber.Ctx) error {
	var req models.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return badRequest(c, "query is required")
	}
	ctx := middleware.GetXRayContext(c)
	p, err := h.projects.Get(ctx, c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}

	if isReadStatement(req.Query) {
		rows, err := p.SQL.Query(ctx, req.Query, req.Args...)
		if err != nil {
			return writeError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(rows)
	}
	n, err := p.SQL.Exec(ctx, req.Query, req.Args...)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"affected": n})
}

func isReadStatement(q string) bool {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "PRAGMA", "EXPLAIN", "SHOW", "VALUES":
		return true
	}
	return false
}

// ListKV godoc
// @Summary List KV entries
// @Tags kv
// @Produce json
// @Param project path string true "Project name"
// @Success 200 {array} models.KVEntry
// @Router /projects/{project}/kv [get]
func (h *ProjectHandler) ListKV(c *fiber.Ctx) error {
	ctx := middleware.GetXRayContext(c)
	p, err := h.projects.Get(ctx, c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}
	entries, err := p.KV.List(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(entries)
}

// GetKV godoc
// @Summary Get a KV entry
// @Tags kv
// @Produce json
// @Param project path string true "Project name"
// @Param key path string true "Key"
// @Success 200 {object} models.KVEntry
// @Failure 404 {object} map[string]string
// @Router /projects/{project}/kv/{key} [get]
func (h *ProjectHandler) GetKV(c *fiber.Ctx) error {
	ctx := middleware.GetXRayContext(c)
	p, err := h.projects.Get(ctx, c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}
	key := c.Params("key")
	value, found, err := p.KV.Get(ctx, key)
	if err != nil {
		return writeError(c, err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "key not found"})
	}
	return c.JSON(models.KVEntry{Key: key, Value: value})
}

// SetKV godoc
// @Summary Set a KV entry
// @Description The value may be a JSON string or number; numbers are stored in their string form
// @Tags kv
// @Accept json
// @Produce json
// @Param project path string true "Project name"
// @Param key path string true "Key"
// @Param value body models.SetKVRequest true "Value"
// @Success 200 {object} models.KVEntry
// @Router /projects/{project}/kv/{key} [put]
func (h *ProjectHandler) SetKV(c *fiber.Ctx) error {
	var req models.SetKVRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	value, ok := kvValue(req.Value)
	if !ok {
		return badRequest(c, "value must be a string or a number")
	}
	ctx := middleware.GetXRayContext(c)
	p, err := h.projects.Get(ctx, c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}
	key := c.Params("key")
	if err := p.KV.Set(ctx, key, value); err != nil {
		return writeError(c, err)
	}
	return c.JSON(models.KVEntry{Key: key, Value: value})
}

func kvValue(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
