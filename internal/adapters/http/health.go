package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": version,
		})
	}
}

// ReadyHandler runs every readiness check. The agent stays ready while the
// backend is unreachable since bookings are queued; only required checks
// (the local store) fail readiness.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps.Checks)+1)
		allOK := true

		for _, chk := range deps.Checks {
			if err := chk.Ping(ctx); err != nil {
				checks[chk.Name] = "error: " + err.Error()
				if !chk.Optional {
					allOK = false
				}
				continue
			}
			checks[chk.Name] = "ok"
		}

		if deps.Queue != nil {
			if deps.Queue.Status().IsOnline {
				checks["connectivity"] = "online"
			} else {
				checks["connectivity"] = "offline"
			}
		}

		status := "ready"
		code := fiber.StatusOK
		if !allOK {
			status = "not ready"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
