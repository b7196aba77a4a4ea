package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// classify turns a pgx error into a domain.DeliveryError so the action queue
// knows whether to retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PermanentError(domain.CodeNotFound, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" || pgErr.Code == "23P01":
			return domain.PermanentError(domain.CodeSlotTaken, err)
		case pgErr.Code == "23503" || pgErr.Code == "P0002":
			return domain.PermanentError(domain.CodeNotFound, err)
		case pgErr.Code == "23514" || pgErr.Code == "23502" || strings.HasPrefix(pgErr.Code, "22"):
			return domain.PermanentError(domain.CodeInvalid, err)
		default:
			// 08xxx connection, 57P01 shutdown, 40001/40P01 serialization and
			// deadlock failures all clear up on their own.
			return domain.RetryableError(domain.CodeUnavailable, err)
		}
	}

	// Connect errors, timeouts and anything unrecognized are retried; the
	// queue's attempt limit bounds them.
	return domain.RetryableError(domain.CodeUnavailable, err)
}
