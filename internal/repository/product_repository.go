package repository

import (
	"context"
	"errors"
	"fmt"

	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const productColumns = "id, title, description, price_cents, stock, status, created_at, updated_at"

// productRepository implements ProductRepository using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

// Create inserts a new product.
func (r *productRepository) Create(ctx context.Context, p *model.Product) error {
	query := `
		INSERT INTO products (id, title, description, price_cents, stock, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Title, p.Description, p.PriceCents, p.Stock, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", p.ID.String()).Msg("failed to create product")
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// GetByID retrieves a single product by its ID.
func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	var p model.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Description, &p.PriceCents, &p.Stock, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("product_id", id.String()).Msg("product not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to query product")
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}

// List retrieves products with pagination support.
func (r *productRepository) List(ctx context.Context, limit, offset int) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY title LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error().Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("failed to query products")
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.PriceCents, &p.Stock, &p.Status, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan product row")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating product rows")
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// UpdateStatus moves a product between publication states.
func (r *productRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ProductStatus) error {
	query := `UPDATE products SET status = $2, updated_at = now() WHERE id = $1`

	ct, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to update product status")
		return fmt.Errorf("failed to update product status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrProductNotFound
	}

	return nil
}

// ReserveStock atomically decrements stock when enough is available. The
// conditional UPDATE is a single statement, so concurrent reservations on
// the same product serialise on the row and can never drive stock negative.
func (r *productRepository) ReserveStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, quantity int) (*model.Product, error) {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND status = 'PUBLISHED' AND stock >= $2
		RETURNING ` + productColumns

	var p model.Product
	err := tx.QueryRow(ctx, query, id, quantity).Scan(
		&p.ID, &p.Title, &p.Description, &p.PriceCents, &p.Stock, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == nil {
		r.logger.Debug().
			Str("product_id", id.String()).
			Int("quantity", quantity).
			Int("stock_after", p.Stock).
			Msg("stock reserved")
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to reserve stock")
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	// No row matched: distinguish a missing/unpublished product from
	// insufficient stock for caller-visible errors.
	var status model.ProductStatus
	var stock int
	err = tx.QueryRow(ctx, `SELECT status, stock FROM products WHERE id = $1`, id).Scan(&status, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect product: %w", err)
	}
	if status != model.ProductPublished {
		return nil, model.ErrProductNotFound
	}

	r.logger.Debug().
		Str("product_id", id.String()).
		Int("requested", quantity).
		Int("available", stock).
		Msg("insufficient stock")
	return nil, model.ErrInsufficientStock
}

// ReleaseStock atomically increments stock (cancellation or refund restock).
func (r *productRepository) ReleaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, quantity int) error {
	query := `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`

	ct, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to release stock")
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrProductNotFound
	}

	r.logger.Debug().
		Str("product_id", id.String()).
		Int("quantity", quantity).
		Msg("stock released")
	return nil
}
