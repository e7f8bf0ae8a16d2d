package handlers

import "github.com/gofiber/fiber/v2"

// AppConfig is the Fiber configuration the API is served with. Handlers keep
// route params as project names, module ids and KV keys, so params must not
// alias the pooled request buffers.
func AppConfig() fiber.Config {
	return fiber.Config{
		AppName:   "wasmlab",
		BodyLimit: 16 * 1024 * 1024,
		Immutable: true,
	}
}
