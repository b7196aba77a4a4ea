package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/studyspot/internal/adapters/http"
	natsadapter "github.com/samirrijal/studyspot/internal/adapters/nats"
	"github.com/samirrijal/studyspot/internal/adapters/postgres"
	"github.com/samirrijal/studyspot/internal/adapters/probe"
	"github.com/samirrijal/studyspot/internal/adapters/rest"
	"github.com/samirrijal/studyspot/internal/adapters/valkey"
	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
	"github.com/samirrijal/studyspot/internal/core/usecases"
	"github.com/samirrijal/studyspot/internal/pkg/config"
	"github.com/samirrijal/studyspot/internal/pkg/logging"
	"github.com/samirrijal/studyspot/internal/pkg/telemetry"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load("studyspot-agent")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Durable store for the queue and cached reads
	store, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer store.Close()
	cache := usecases.NewPersistentCache(store, cfg.Valkey.KeyPrefix)

	// NATS carries location fixes, seat changes and connectivity
	nc, err := natsadapter.Connect(cfg.NATS.URL, "studyspot-agent")
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Close()

	feed, err := natsadapter.NewChangeFeed(nc)
	if err != nil {
		log.Fatalf("change feed: %v", err)
	}

	// Booking backend
	var bk ports.BookingBackend
	switch cfg.Backend.Driver {
	case "rest":
		bk = rest.New(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if db == nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		bk = postgres.NewBookingBackend(db)
	}
	if err := bk.Ping(ctx); err != nil {
		slog.Warn("booking backend unreachable, starting offline", "driver", cfg.Backend.Driver, "error", err)
	}

	var connectivity ports.Connectivity = nc
	if cfg.Queue.Connectivity == "probe" {
		prober := probe.New(bk, cfg.Queue.ProbeInterval, 5*time.Second)
		go prober.Run(ctx)
		connectivity = prober
	}

	// Offline queue
	queue := usecases.NewActionQueue(cache, usecases.NewBookingDispatcher(bk), connectivity, usecases.QueueConfig{
		MaxAttempts:    cfg.Queue.MaxAttempts,
		InitialBackoff: cfg.Queue.InitialBackoff,
		MaxBackoff:     cfg.Queue.MaxBackoff,
		Multiplier:     2,
		Jitter:         0.2,
	})
	if err := queue.Load(ctx); err != nil {
		slog.Warn("restore queue failed", "error", err)
	}
	queue.StartListening()
	go queue.Run(ctx)
	defer queue.Close()

	// Location
	sampler := usecases.NewGeoSampler(natsadapter.NewLocationProvider(nc, cfg.NATS.DeviceID))
	libraries := usecases.NewLibraryService(bk, cache)
	coordinator := usecases.NewLocationCoordinator(sampler, libraries, usecases.WatchOptions{
		Accuracy:          domain.Accuracy(cfg.Location.Accuracy),
		MinInterval:       cfg.Location.WatchInterval,
		MinDistanceMeters: cfg.Location.WatchDistance,
	}, usecases.WithSearchRadius(cfg.Location.SearchRadius))
	defer coordinator.Close()

	// Seats
	seats := usecases.NewSeatService(bk, cache, feed)
	stopSeats, err := seats.Listen(ctx)
	if err != nil {
		slog.Warn("seat change feed unavailable", "error", err)
	} else {
		defer stopSeats()
	}

	deps := &http.Dependencies{
		Location:  coordinator,
		Queue:     queue,
		Bookings:  usecases.NewBookingService(queue, coordinator),
		Libraries: libraries,
		Seats:     seats,
		Version:   version,
		Checks: []http.ReadinessCheck{
			{Name: "valkey", Ping: store.Ping},
			{Name: "backend", Ping: bk.Ping, Optional: true},
			{Name: "nats", Optional: true, Ping: func(context.Context) error {
				if !nc.Ready() {
					return errors.New("not connected")
				}
				return nil
			}},
		},
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "StudySpot Agent",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.AllowOrigins, ", "),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps, http.RouterConfig{
		RequestTimeout: cfg.Location.SampleTimeout,
		DocsPath:       "api/openapi.yaml",
	})

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("agent starting", "addr", addr, "backend", cfg.Backend.Driver, "connectivity", cfg.Queue.Connectivity)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("agent stopped", "pending", queue.Status().PendingCount)
}
