package handlers

import (
	"github.com/gofiber/fiber/v2"

	"wasmlab-server/middleware"
	"wasmlab-server/models"
	"wasmlab-server/services"
)

type TriggerHandler struct {
	service *services.TriggerService
}

func NewTriggerHandler(service *services.TriggerService) *TriggerHandler {
	return &TriggerHandler{service: service}
}

// CreateTrigger godoc
// @Summary Start a simulation trigger for a module
// @Tags triggers
// @Accept json
// @Produce json
// @Param project path string true "Project name"
// @Param id path string true "Module ID"
// @Param trigger body models.CreateTriggerRequest true "Interval and payload"
// @Success 200 {object} models.SimulationTrigger
// @Router /projects/{project}/modules/{id}/triggers [post]
func (h *TriggerHandler) CreateTrigger(c *fiber.Ctx) error {
	var req models.CreateTriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	t, err := h.service.StartTrigger(middleware.GetXRayContext(c), c.Params("project"), c.Params("id"), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(t)
}

// ListTriggers godoc
// @Summary List simulation triggers of a project
// @Tags triggers
// @Produce json
// @Param project path string true "Project name"
// @Success 200 {array} models.SimulationTrigger
// @Router /projects/{project}/triggers [get]
func (h *TriggerHandler) ListTriggers(c *fiber.Ctx) error {
	return c.JSON(h.service.ListTriggers(middleware.GetXRayContext(c), c.Params("project")))
}

// DeleteTrigger godoc
// @Summary Stop a simulation trigger
// @Tags triggers
// @Param project path string true "Project name"
// @Param triggerId path string true "Trigger ID"
// @Success 204
// @Router /projects/{project}/triggers/{triggerId} [delete]
func (h *TriggerHandler) DeleteTrigger(c *fiber.Ctx) error {
	if err := h.service.StopTrigger(middleware.GetXRayContext(c), c.Params("project"), c.Params("triggerId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
