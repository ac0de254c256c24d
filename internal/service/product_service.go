package service

import (
	"context"
	"fmt"
	"time"

	"kidsbook/internal/cache"
	"kidsbook/internal/model"
	"kidsbook/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// productService implements ProductService.
type productService struct {
	productRepo repository.ProductRepository
	cache       *cache.ProductCache
	logger      zerolog.Logger
}

// NewProductService creates a new product service.
func NewProductService(productRepo repository.ProductRepository, productCache *cache.ProductCache, logger zerolog.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		cache:       productCache,
		logger:      logger.With().Str("service", "product").Logger(),
	}
}

// Create inserts a new DRAFT product.
func (s *productService) Create(ctx context.Context, req *model.CreateProductRequest) (*model.Product, error) {
	if req == nil {
		return nil, fmt.Errorf("product request is nil")
	}
	if req.Title == "" {
		return nil, fmt.Errorf("product title is required")
	}
	if req.PriceCents < 0 {
		return nil, fmt.Errorf("product price must not be negative")
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("product stock must not be negative")
	}

	now := time.Now().UTC()
	p := &model.Product{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		Status:      model.ProductDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.productRepo.Create(ctx, p); err != nil {
		s.logger.Error().Err(err).Str("title", req.Title).Msg("failed to create product")
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info().Str("product_id", p.ID.String()).Str("title", p.Title).Msg("product created")
	return p, nil
}

// GetByID retrieves a single product, through the cache when enabled.
func (s *productService) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	if p := s.cache.Get(ctx, id); p != nil {
		return p, nil
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to get product")
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, model.ErrProductNotFound
	}

	s.cache.Set(ctx, product)
	return product, nil
}

// List retrieves products with pagination.
func (s *productService) List(ctx context.Context, limit, offset int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	products, err := s.productRepo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("failed to list products")
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return products, nil
}

// SetStatus publishes or unpublishes a product.
func (s *productService) SetStatus(ctx context.Context, id uuid.UUID, status model.ProductStatus) error {
	if status != model.ProductPublished && status != model.ProductUnpublished {
		return fmt.Errorf("unsupported product status: %s", status)
	}

	if err := s.productRepo.UpdateStatus(ctx, id, status); err != nil {
		s.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to set product status")
		return err
	}

	s.cache.Invalidate(ctx, id)
	s.logger.Info().
		Str("product_id", id.String()).
		Str("status", string(status)).
		Msg("product status updated")
	return nil
}
