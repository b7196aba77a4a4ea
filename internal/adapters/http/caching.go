package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses that do not set one.
// Location, queue and seat state change constantly and are never cached.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "no-cache"
		case path == "/metrics":
			ttl = "no-cache"
		case strings.HasPrefix(path, "/v1/location"),
			strings.HasPrefix(path, "/v1/queue"),
			strings.HasPrefix(path, "/v1/seats"):
			ttl = "no-store"
		case strings.HasPrefix(path, "/v1/libraries"):
			ttl = "private, max-age=300"
		case strings.HasPrefix(path, "/docs"):
			ttl = "public, max-age=3600"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}
