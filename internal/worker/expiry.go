package worker

import (
	"context"
	"errors"
	"time"

	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderExpirer is the slice of the order service the sweeper needs.
type OrderExpirer interface {
	ListExpiredPending(ctx context.Context, limit int) ([]uuid.UUID, error)
	Expire(ctx context.Context, id uuid.UUID) (*model.Order, error)
}

// ExpirySweeper periodically closes PENDING orders whose payment deadline
// has passed. Each order is expired in its own transaction, so one
// contended or already-transitioned order never blocks the rest of the
// batch.
type ExpirySweeper struct {
	orders   OrderExpirer
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

// NewExpirySweeper creates a new sweeper.
func NewExpirySweeper(orders OrderExpirer, interval time.Duration, batch int, logger zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		orders:   orders,
		interval: interval,
		batch:    batch,
		logger:   logger.With().Str("component", "expiry-sweeper").Logger(),
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.interval).
		Int("batch", s.batch).
		Msg("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep expires one batch of overdue orders. An order that was paid or
// cancelled between listing and expiry loses the status compare-and-swap;
// that is the expected outcome of the race, not a failure.
func (s *ExpirySweeper) sweep(ctx context.Context) {
	ids, err := s.orders.ListExpiredPending(ctx, s.batch)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list expired orders")
		return
	}
	if len(ids) == 0 {
		return
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		if _, err := s.orders.Expire(ctx, id); err != nil {
			if errors.Is(err, model.ErrInvalidStateTransition) || errors.Is(err, model.ErrOrderNotFound) {
				continue
			}
			s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to expire order")
			continue
		}
		expired++
	}

	s.logger.Info().
		Int("candidates", len(ids)).
		Int("expired", expired).
		Msg("expiry sweep finished")
}
