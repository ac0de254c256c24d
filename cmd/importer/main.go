package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kidsbook/internal/config"
	"kidsbook/internal/coupon"
	"kidsbook/internal/database"
	"kidsbook/internal/repository"
)

// importer applies a coupon campaign file (gzipped JSON lines) to the
// database. The file is fetched from S3 when configured, with a local
// file-system fallback, and applied as upserts keyed on the coupon code.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var path string
	flag.StringVar(&path, "file", "", "campaign file to import (S3 key suffix or local path)")
	flag.Parse()

	if path == "" {
		return fmt.Errorf("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	fileLoader := coupon.NewFileLoader(logger)
	var s3Loader coupon.Loader
	if cfg.S3.Enabled {
		s3Loader, err = coupon.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialise S3 loader, using local file system only")
			s3Loader = nil
		}
	}
	loader := coupon.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, cfg.S3.Enabled, logger)

	couponRepo := repository.NewCouponRepository(pool, logger)
	importer := coupon.NewImporter(loader, couponRepo, logger)

	applied, err := importer.Import(ctx, path)
	if err != nil {
		return fmt.Errorf("import failed after %d definitions: %w", applied, err)
	}

	logger.Info().Int("applied", applied).Msg("campaign import complete")
	return nil
}
