package service

import (
	"context"
	"time"

	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// MockProductRepository is a mock implementation of ProductRepository.
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, p *model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) List(ctx context.Context, limit, offset int) ([]model.Product, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ProductStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockProductRepository) ReserveStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, quantity int) (*model.Product, error) {
	args := m.Called(ctx, tx, id, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) ReleaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, quantity int) error {
	args := m.Called(ctx, tx, id, quantity)
	return args.Error(0)
}

// MockCouponRepository is a mock implementation of CouponRepository.
type MockCouponRepository struct {
	mock.Mock
}

func (m *MockCouponRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCouponRepository) Create(ctx context.Context, c *model.Coupon) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCouponRepository) Upsert(ctx context.Context, c *model.Coupon) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Coupon), args.Error(1)
}

func (m *MockCouponRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Coupon, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Coupon), args.Error(1)
}

func (m *MockCouponRepository) CountUserClaims(ctx context.Context, tx pgx.Tx, couponID uuid.UUID, userID string) (int, error) {
	args := m.Called(ctx, tx, couponID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockCouponRepository) IncrementClaimed(ctx context.Context, tx pgx.Tx, couponID uuid.UUID) error {
	args := m.Called(ctx, tx, couponID)
	return args.Error(0)
}

func (m *MockCouponRepository) InsertUserCoupon(ctx context.Context, tx pgx.Tx, uc *model.UserCoupon) error {
	args := m.Called(ctx, tx, uc)
	return args.Error(0)
}

func (m *MockCouponRepository) GetUserCouponForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.UserCoupon, *model.Coupon, error) {
	args := m.Called(ctx, tx, id)
	var uc *model.UserCoupon
	var c *model.Coupon
	if args.Get(0) != nil {
		uc = args.Get(0).(*model.UserCoupon)
	}
	if args.Get(1) != nil {
		c = args.Get(1).(*model.Coupon)
	}
	return uc, c, args.Error(2)
}

func (m *MockCouponRepository) MarkUsed(ctx context.Context, tx pgx.Tx, id uuid.UUID, userID string, now time.Time) error {
	args := m.Called(ctx, tx, id, userID, now)
	return args.Error(0)
}

func (m *MockCouponRepository) ReleaseUserCoupon(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockCouponRepository) ListForUser(ctx context.Context, userID string) ([]model.UserCoupon, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.UserCoupon), args.Error(1)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) NextOrderNo(ctx context.Context, tx pgx.Tx, now time.Time) (string, error) {
	args := m.Called(ctx, tx, now)
	return args.String(0), args.Error(1)
}

func (m *MockOrderRepository) Create(ctx context.Context, tx pgx.Tx, o *model.Order) error {
	args := m.Called(ctx, tx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus, at time.Time) error {
	args := m.Called(ctx, tx, id, from, to, at)
	return args.Error(0)
}

func (m *MockOrderRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockRefundRepository is a mock implementation of RefundRepository.
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRefundRepository) NextRefundNo(ctx context.Context, tx pgx.Tx, now time.Time) (string, error) {
	args := m.Called(ctx, tx, now)
	return args.String(0), args.Error(1)
}

func (m *MockRefundRepository) Create(ctx context.Context, tx pgx.Tx, rf *model.Refund) error {
	args := m.Called(ctx, tx, rf)
	return args.Error(0)
}

func (m *MockRefundRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Refund), args.Error(1)
}

func (m *MockRefundRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Refund, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Refund), args.Error(1)
}

func (m *MockRefundRepository) HasOpenRefund(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefundRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.RefundStatus, note string, at time.Time) error {
	args := m.Called(ctx, tx, id, from, to, note, at)
	return args.Error(0)
}

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
	committed  bool
	rolledBack bool
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	m.committed = true
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	m.rolledBack = true
	return args.Error(0)
}

// Stub methods to satisfy pgx.Tx interface - these are not used in our tests
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }
