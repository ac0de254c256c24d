package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kidsbook/internal/cache"
	"kidsbook/internal/config"
	"kidsbook/internal/database"
	"kidsbook/internal/events"
	"kidsbook/internal/handler"
	"kidsbook/internal/metrics"
	"kidsbook/internal/repository"
	"kidsbook/internal/router"
	"kidsbook/internal/service"
	"kidsbook/internal/worker"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting kidsbook commerce API server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	// Optional product-read cache
	var productCache *cache.ProductCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		productCache = cache.New(rdb, cfg.Redis.CacheTTL, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("product cache enabled")
	}

	// Optional lifecycle-event publishing
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close event publisher")
			}
		}()
		publisher = kp
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("event publishing enabled")
	}

	m := metrics.New()

	// Initialize repositories
	productRepo := repository.NewProductRepository(pool, logger)
	couponRepo := repository.NewCouponRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	refundRepo := repository.NewRefundRepository(pool, logger)

	// Initialize services
	productService := service.NewProductService(productRepo, productCache, logger)
	couponService := service.NewCouponService(couponRepo, publisher, m, logger)
	orderService := service.NewOrderService(
		orderRepo, productRepo, couponRepo,
		publisher, m, productCache, cfg.Order.PaymentTTL, logger,
	)
	refundService := service.NewRefundService(
		refundRepo, orderRepo, productRepo,
		publisher, m, productCache, logger,
	)

	// Initialize HTTP handlers
	productHandler := handler.NewProductHandler(productService, logger)
	couponHandler := handler.NewCouponHandler(couponService, logger)
	orderHandler := handler.NewOrderHandler(orderService, logger)
	refundHandler := handler.NewRefundHandler(refundService, logger)

	mux := router.New(productHandler, couponHandler, orderHandler, refundHandler, m, cfg.Auth.APIKey, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweeper := worker.NewExpirySweeper(orderService, cfg.Order.SweepInterval, cfg.Order.SweepBatch, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("expiry sweeper error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("server shutdown completed")
	return nil
}
