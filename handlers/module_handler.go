package handlers

import (
	"github.com/gofiber/fiber/v2"

	"wasmlab-server/middleware"
	"wasmlab-server/models"
	"wasmlab-server/services"
)

type ModuleHandler struct {
	service *services.ModuleService
}

func NewModuleHandler(svc *services.ModuleService) *ModuleHandler {
	return &ModuleHandler{service: svc}
}

// CreateModule godoc
// @Summary Create a guest module
// @Description Compile guest source (or accept a base64 binary), link it against the host ABI and store it
// @Tags modules
// @Accept json
// @Produce json
// @Param project path string true "Project name"
// @Param module body models.CreateModuleRequest true "Module to create"
// @Success 200 {object} models.GuestModule
// @Failure 400 {object} models.CompileResponse
// @Router /projects/{project}/modules [post]
func (h *ModuleHandler) CreateModule(c *fiber.Ctx) error {
	var req models.CreateModuleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	m, err := h.service.CreateModule(middleware.GetXRayContext(c), c.Params("project"), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(m)
}

// ListModules godoc
// @Summary List modules
// @Tags modules
// @Produce json
// @Param project path string true "Project name"
// @Success 200 {array} models.GuestModuleListItem
// @Router /projects/{project}/modules [get]
func (h *ModuleHandler) ListModules(c *fiber.Ctx) error {
	modules, err := h.service.ListModules(middleware.GetXRayContext(c), c.Params("project"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(modules)
}

// GetModule godoc
// @Summary Get module details
// @Tags modules
// @Produce json
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Success 200 {object} models.GuestModule
// @Failure 404 {object} map[string]string
// @Router /projects/{project}/modules/{id} [get]
func (h *ModuleHandler) GetModule(c *fiber.Ctx) error {
	m, err := h.service.GetModule(middleware.GetXRayContext(c), c.Params("project"), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(m)
}

// UpdateModule godoc
// @Summary Recompile a module
// @Description Replace the module's source; the previous binary stays loaded if compiling or linking fails
// @Tags modules
// @Accept json
// @Produce json
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Param module body models.UpdateModuleRequest true "New source"
// @Success 200 {object} models.GuestModule
// @Failure 400 {object} models.CompileResponse
// @Router /projects/{project}/modules/{id} [put]
func (h *ModuleHandler) UpdateModule(c *fiber.Ctx) error {
	var req models.UpdateModuleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	m, err := h.service.Recompile(middleware.GetXRayContext(c), c.Params("project"), c.Params("id"), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(m)
}

// DeleteModule godoc
// @Summary Delete a module
// @Tags modules
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Success 204
// @Router /projects/{project}/modules/{id} [delete]
func (h *ModuleHandler) DeleteModule(c *fiber.Ctx) error {
	if err := h.service.DeleteModule(middleware.GetXRayContext(c), c.Params("project"), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DebugModule godoc
// @Summary Run a module synchronously
// @Description Invoke the entry point with a fresh record id. A missing payload reuses the cached one. Traps return 200 with status "trap" and the partial IO.
// @Tags modules
// @Accept json
// @Produce json
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Param input body models.DebugRequest false "Record id and payload"
// @Success 200 {object} models.InvokeResponse
// @Failure 409 {object} map[string]string
// @Router /projects/{project}/modules/{id}/debug [post]
func (h *ModuleHandler) DebugModule(c *fiber.Ctx) error {
	var req models.DebugRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	resp, err := h.service.Debug(middleware.GetXRayContext(c), c.Params("project"), c.Params("id"), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp)
}

// InvokeModule godoc
// @Summary Queue a module invocation
// @Description Push the invocation onto the worker queue and return its id
// @Tags modules
// @Accept json
// @Produce json
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Param input body models.InvokeRequest false "Record id and payload"
// @Success 202 {object} models.Invocation
// @Router /projects/{project}/modules/{id}/invoke [post]
func (h *ModuleHandler) InvokeModule(c *fiber.Ctx) error {
	var req models.InvokeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	inv, err := h.service.InvokeAsync(middleware.GetXRayContext(c), c.Params("project"), c.Params("id"), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(inv)
}

// GetInvocationResult godoc
// @Summary Get a queued invocation
// @Description Poll the worker result of a queued invocation
// @Tags invocations
// @Produce json
// @Param project path string true "Project name"
// @Param invocationId path string true "Invocation ID"
// @Success 200 {object} models.Invocation
// @Router /projects/{project}/invocations/{invocationId} [get]
func (h *ModuleHandler) GetInvocationResult(c *fiber.Ctx) error {
	inv, err := h.service.GetInvocationResult(middleware.GetXRayContext(c), c.Params("project"), c.Params("invocationId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(inv)
}

// GetLogs godoc
// @Summary Get the module's session IO log
// @Tags modules
// @Produce json
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Success 200 {array} models.IORun
// @Router /projects/{project}/modules/{id}/logs [get]
func (h *ModuleHandler) GetLogs(c *fiber.Ctx) error {
	runs, err := h.service.Logs(middleware.GetXRayContext(c), c.Params("project"), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(runs)
}

// ResetLogs godoc
// @Summary Clear the module's session IO log
// @Tags modules
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Success 204
// @Router /projects/{project}/modules/{id}/logs [delete]
func (h *ModuleHandler) ResetLogs(c *fiber.Ctx) error {
	if err := h.service.ResetLogs(middleware.GetXRayContext(c), c.Params("project"), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetPayload godoc
// @Summary Get the cached debug payload
// @Tags modules
// @Produce json
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Success 200 {object} models.CachedPayload
// @Router /projects/{project}/modules/{id}/payload [get]
func (h *ModuleHandler) GetPayload(c *fiber.Ctx) error {
	p, err := h.service.CachedPayload(middleware.GetXRayContext(c), c.Params("project"), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(p)
}
