package middleware

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/strategy/ctxmissing"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const SegmentName = "wasmlab-server"

// ConfigureXRay sets the recorder up for processes that may call
// instrumented services outside a traced request (the worker, or the server
// with tracing off). Missing segments are then ignored instead of logged.
func ConfigureXRay() error {
	return xray.Configure(xray.Config{
		ServiceVersion:         "1.0",
		ContextMissingStrategy: ctxmissing.NewDefaultIgnoreErrorStrategy(),
	})
}

// XRayMiddleware wraps Fiber requests with AWS X-Ray tracing
func XRayMiddleware(logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		// Skip tracing for health checks to reduce noise
		if c.Path() == "/health" {
			return c.Next()
		}

		ctx, seg := xray.BeginSegment(context.Background(), SegmentName)
		defer func() {
			if seg != nil {
				seg.Close(nil)
			}
		}()

		// Add HTTP request metadata
		if seg.GetHTTP() != nil {
			seg.GetHTTP().GetRequest().Method = c.Method()
			seg.GetHTTP().GetRequest().URL = c.OriginalURL()
			seg.GetHTTP().GetRequest().ClientIP = c.IP()
			seg.GetHTTP().GetRequest().UserAgent = c.Get("User-Agent")
		}

		seg.AddAnnotation("route", c.Path())
		seg.AddAnnotation("method", c.Method())

		// Store X-Ray context in Fiber locals for downstream use
		c.Locals("xray-ctx", ctx)
		c.Locals("xray-seg", seg)

		err := c.Next()

		if seg.GetHTTP() != nil {
			seg.GetHTTP().GetResponse().Status = c.Response().StatusCode()
		}

		if err != nil {
			logger.Warn("request error", zap.String("path", c.Path()), zap.Error(err))
			seg.AddError(err)
			if seg.GetHTTP() != nil {
				seg.GetHTTP().GetResponse().Status = fiber.StatusInternalServerError
			}
		}

		return err
	}
}

// GetXRayContext retrieves X-Ray context from Fiber locals. Without the
// middleware it is a background context, never the request's fasthttp one.
func GetXRayContext(c *fiber.Ctx) context.Context {
	if ctx, ok := c.Locals("xray-ctx").(context.Context); ok {
		return ctx
	}
	return context.Background()
}
