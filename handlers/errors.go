package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"wasmlab-server/models"
	"wasmlab-server/services"
	"wasmlab-server/sqldb"
	"wasmlab-server/wasmvm"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var (
		linkErr   *wasmvm.LinkError
		typeErr   *sqldb.UnsupportedTypeError
		schemaErr *sqldb.SchemaError
		sqlErr    *sqldb.SQLError
	)
	switch {
	case errors.As(err, &linkErr),
		errors.As(err, &typeErr),
		errors.As(err, &schemaErr),
		errors.As(err, &sqlErr),
		errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrInvalidProject):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrModuleNotFound),
		errors.Is(err, services.ErrInvocationNotFound),
		errors.Is(err, services.ErrTriggerNotFound),
		errors.Is(err, sqldb.ErrTableNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, wasmvm.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrKVFull):
		return fiber.StatusInsufficientStorage
	case errors.Is(err, services.ErrInvokeTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, services.ErrQueueUnavailable),
		errors.Is(err, services.ErrNoCompiler):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	var compileErr *services.CompileError
	if errors.As(err, &compileErr) {
		return c.Status(fiber.StatusBadRequest).JSON(models.CompileResponse{
			Error:       compileErr.Message,
			Diagnostics: compileErr.Diagnostics,
		})
	}
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
