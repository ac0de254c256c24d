package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container, applies the schema and
// returns a ready connection pool.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	applySchema(t, pool)

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// applySchema applies the migration schema to the test database.
func applySchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	schema, err := os.ReadFile("../../migrations/schema.sql")
	if err != nil {
		t.Fatalf("failed to read schema file: %v", err)
	}

	if _, err := pool.Exec(context.Background(), string(schema)); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
}

// SeedProduct inserts a published product with the given price and stock.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, priceCents int64, stock int) *model.Product {
	t.Helper()

	now := time.Now().UTC()
	p := &model.Product{
		ID:         uuid.New(),
		Title:      "Integration test activity",
		PriceCents: priceCents,
		Stock:      stock,
		Status:     model.ProductPublished,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, title, description, price_cents, stock, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Title, p.Description, p.PriceCents, p.Stock, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return p
}

// SeedCoupon inserts an enabled coupon valid for the next 24 hours.
func SeedCoupon(t *testing.T, pool *pgxpool.Pool, c *model.Coupon) *model.Coupon {
	t.Helper()

	now := time.Now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.ValidFrom.IsZero() {
		c.ValidFrom = now.Add(-time.Hour)
	}
	if c.ValidUntil.IsZero() {
		c.ValidUntil = now.Add(24 * time.Hour)
	}
	c.CreatedAt = now

	_, err := pool.Exec(context.Background(),
		`INSERT INTO coupons (id, code, title, discount_type, value, min_amount_cents,
		   max_discount_cents, total_quantity, claimed_quantity, limit_per_user,
		   valid_from, valid_until, is_enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.Code, c.Title, c.DiscountType, c.Value, c.MinAmountCents,
		c.MaxDiscountCents, c.TotalQuantity, c.ClaimedQuantity, c.LimitPerUser,
		c.ValidFrom, c.ValidUntil, c.IsEnabled, c.CreatedAt,
	)
	if err != nil {
		t.Fatalf("failed to seed coupon: %v", err)
	}
	return c
}

// ProductStock reads the current stock for a product.
func ProductStock(t *testing.T, pool *pgxpool.Pool, id uuid.UUID) int {
	t.Helper()

	var stock int
	err := pool.QueryRow(context.Background(),
		"SELECT stock FROM products WHERE id = $1", id).Scan(&stock)
	if err != nil {
		t.Fatalf("failed to read product stock: %v", err)
	}
	return stock
}

// CouponClaimed reads the claimed count for a coupon.
func CouponClaimed(t *testing.T, pool *pgxpool.Pool, id uuid.UUID) int {
	t.Helper()

	var claimed int
	err := pool.QueryRow(context.Background(),
		"SELECT claimed_quantity FROM coupons WHERE id = $1", id).Scan(&claimed)
	if err != nil {
		t.Fatalf("failed to read claimed quantity: %v", err)
	}
	return claimed
}

// CleanupDB clears all data between tests.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{"refunds", "orders", "user_coupons", "coupons", "products"}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}
