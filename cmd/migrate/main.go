package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/studyspot/internal/pkg/config"
	"github.com/samirrijal/studyspot/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|status> [dir]")
	}

	cfg, err := config.Load("studyspot-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	dir := "migrations"
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := ensureTable(ctx, pool); err != nil {
		log.Fatalf("schema_migrations: %v", err)
	}

	switch os.Args[1] {
	case "up":
		if err := up(ctx, pool, dir); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	case "status":
		if err := status(ctx, pool, dir); err != nil {
			log.Fatalf("status: %v", err)
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func ensureTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func applied(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(names))
	for _, n := range names {
		done[n] = true
	}
	return done, nil
}

// up applies every pending migration in its own transaction.
func up(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	all, err := files(dir)
	if err != nil {
		return err
	}
	done, err := applied(ctx, pool)
	if err != nil {
		return err
	}

	count := 0
	for _, f := range all {
		name := filepath.Base(f)
		if done[name] {
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
		slog.Info("migration applied", "name", name)
		count++
	}

	slog.Info("migrations complete", "applied", count, "total", len(all))
	return nil
}

func status(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	all, err := files(dir)
	if err != nil {
		return err
	}
	done, err := applied(ctx, pool)
	if err != nil {
		return err
	}
	for _, f := range all {
		name := filepath.Base(f)
		state := "pending"
		if done[name] {
			state = "applied"
		}
		fmt.Printf("%-8s %s\n", state, name)
	}
	return nil
}
