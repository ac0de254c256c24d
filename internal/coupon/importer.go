package coupon

import (
	"context"
	"fmt"
	"time"

	"kidsbook/internal/repository"

	"github.com/rs/zerolog"
)

// Importer applies campaign files to the coupon table. Upserts key on the
// coupon code, so re-running an import refreshes definitions without
// disturbing claimed counts.
type Importer struct {
	loader     Loader
	couponRepo repository.CouponRepository
	logger     zerolog.Logger
}

// NewImporter creates a new campaign importer.
func NewImporter(loader Loader, couponRepo repository.CouponRepository, logger zerolog.Logger) *Importer {
	return &Importer{
		loader:     loader,
		couponRepo: couponRepo,
		logger:     logger.With().Str("component", "coupon-importer").Logger(),
	}
}

// Import loads the campaign file at path and upserts every definition.
// Returns the number of definitions applied.
func (i *Importer) Import(ctx context.Context, path string) (int, error) {
	defs, err := i.loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}

	for n, def := range defs {
		c := def.ToModel(time.Now().UTC())
		if err := i.couponRepo.Upsert(ctx, c); err != nil {
			i.logger.Error().
				Err(err).
				Str("code", def.Code).
				Int("applied", n).
				Msg("campaign import aborted")
			return n, fmt.Errorf("failed to upsert coupon %s: %w", def.Code, err)
		}
	}

	i.logger.Info().
		Str("file", path).
		Int("definitions", len(defs)).
		Msg("campaign import applied")
	return len(defs), nil
}
