package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/studyspot/internal/adapters/nats"
	"github.com/samirrijal/studyspot/internal/adapters/postgres"
	"github.com/samirrijal/studyspot/internal/core/usecases"
	"github.com/samirrijal/studyspot/internal/pkg/config"
	"github.com/samirrijal/studyspot/internal/pkg/logging"
)

// seatrelay polls the backend database for seat status changes and
// publishes them on the change feed agents subscribe to.
func main() {
	cfg, err := config.Load("studyspot-seatrelay")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if db == nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err != nil {
		slog.Warn("database unreachable, relay will retry each poll", "error", err)
	}

	nc, err := natsadapter.Connect(cfg.NATS.URL, "studyspot-seatrelay")
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Close()

	feed, err := natsadapter.NewChangeFeed(nc)
	if err != nil {
		log.Fatalf("change feed: %v", err)
	}

	relay := usecases.NewSeatRelay(postgres.NewBookingBackend(db), feed, cfg.Relay.PollInterval, time.Now())

	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()

	slog.Info("seat relay started", "interval", cfg.Relay.PollInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("received signal, shutting down seat relay", "signal", sig.String())
	cancel()
	<-done
	slog.Info("seat relay stopped", "watermark", relay.Watermark())
}
