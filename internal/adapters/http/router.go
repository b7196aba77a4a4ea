package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/studyspot/internal/pkg/metrics"
)

// RouterConfig tunes the middleware stack.
type RouterConfig struct {
	RequestTimeout time.Duration
	RateLimit      int // requests per minute per IP; 0 disables limiting
	DocsPath       string
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies, cfg RouterConfig) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	if cfg.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	t := func(h fiber.Handler) fiber.Handler {
		return timeout.NewWithContext(h, cfg.RequestTimeout)
	}

	v1 := app.Group("/v1")

	v1.Get("/location", LocationStatusHandler(deps))
	v1.Post("/location/init", t(InitLocationHandler(deps)))
	v1.Get("/location/target", GetTargetHandler(deps))
	v1.Put("/location/target", t(SetTargetHandler(deps)))
	v1.Post("/location/refresh", t(RefreshLocationHandler(deps)))
	v1.Post("/location/nearest", t(NearestLibraryHandler(deps)))
	v1.Post("/location/watch", t(StartWatchHandler(deps)))
	v1.Delete("/location/watch", StopWatchHandler(deps))

	v1.Get("/libraries", t(ListLibrariesHandler(deps)))
	v1.Get("/libraries/:id", t(GetLibraryHandler(deps)))
	v1.Get("/seats", t(ListSeatsHandler(deps)))

	v1.Post("/bookings", t(CreateBookingHandler(deps)))
	v1.Delete("/bookings/:id", t(CancelBookingHandler(deps)))
	v1.Post("/bookings/:id/check-in", t(CheckInHandler(deps)))

	v1.Get("/queue", QueueStatusHandler(deps))
	v1.Get("/queue/actions", PendingActionsHandler(deps))
	v1.Post("/queue/sync", t(SyncQueueHandler(deps)))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, cfg.DocsPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
