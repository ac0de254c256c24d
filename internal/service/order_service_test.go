package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kidsbook/internal/events"
	"kidsbook/internal/metrics"
	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newOrderService(orderRepo *MockOrderRepository, productRepo *MockProductRepository, couponRepo *MockCouponRepository) OrderService {
	return NewOrderService(
		orderRepo, productRepo, couponRepo,
		events.NopPublisher{}, metrics.New(), nil,
		30*time.Minute, zerolog.Nop(),
	)
}

func publishedProduct(priceCents int64, stock int) *model.Product {
	return &model.Product{
		ID:         uuid.New(),
		Title:      "Pottery workshop",
		PriceCents: priceCents,
		Stock:      stock,
		Status:     model.ProductPublished,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestOrderService_Create_Success(t *testing.T) {
	ctx := context.Background()

	product := publishedProduct(5000, 8)
	req := &model.CreateOrderRequest{
		UserID:    "user-1",
		ProductID: product.ID,
		Quantity:  2,
	}

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockCouponRepo := new(MockCouponRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, mockProductRepo, mockCouponRepo)

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockProductRepo.On("ReserveStock", ctx, mockTx, product.ID, 2).Return(product, nil)
	mockOrderRepo.On("NextOrderNo", ctx, mockTx, mock.AnythingOfType("time.Time")).
		Return("ORD20260828000001", nil)
	mockOrderRepo.On("Create", ctx, mockTx, mock.AnythingOfType("*model.Order")).Return(nil)
	mockTx.On("Commit", ctx).Return(nil)

	order, err := service.Create(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderPending, order.Status)
	assert.Equal(t, "ORD20260828000001", order.OrderNo)
	assert.Equal(t, int64(5000), order.UnitPriceCents)
	assert.Equal(t, int64(10000), order.TotalCents)
	assert.Zero(t, order.DiscountCents)
	assert.True(t, order.PaymentDeadline.After(order.CreatedAt))

	mockOrderRepo.AssertExpectations(t)
	mockProductRepo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
	mockCouponRepo.AssertNotCalled(t, "GetUserCouponForUpdate")
}

func TestOrderService_Create_WithCoupon(t *testing.T) {
	ctx := context.Background()

	product := publishedProduct(5000, 8)
	userCouponID := uuid.New()
	req := &model.CreateOrderRequest{
		UserID:       "user-1",
		ProductID:    product.ID,
		Quantity:     2,
		UserCouponID: &userCouponID,
	}

	coupon := &model.Coupon{
		ID:               uuid.New(),
		Code:             "WELCOME10",
		DiscountType:     model.DiscountPercentage,
		Value:            10,
		MaxDiscountCents: 3000,
		TotalQuantity:    100,
		LimitPerUser:     1,
		ValidFrom:        time.Now().Add(-time.Hour),
		ValidUntil:       time.Now().Add(time.Hour),
		IsEnabled:        true,
	}
	userCoupon := &model.UserCoupon{
		ID:        userCouponID,
		UserID:    "user-1",
		CouponID:  coupon.ID,
		Status:    model.UserCouponAvailable,
		ExpiresAt: coupon.ValidUntil,
	}

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockCouponRepo := new(MockCouponRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, mockProductRepo, mockCouponRepo)

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockProductRepo.On("ReserveStock", ctx, mockTx, product.ID, 2).Return(product, nil)
	mockCouponRepo.On("GetUserCouponForUpdate", ctx, mockTx, userCouponID).
		Return(userCoupon, coupon, nil)
	mockCouponRepo.On("MarkUsed", ctx, mockTx, userCouponID, "user-1", mock.AnythingOfType("time.Time")).
		Return(nil)
	mockOrderRepo.On("NextOrderNo", ctx, mockTx, mock.AnythingOfType("time.Time")).
		Return("ORD20260828000002", nil)
	mockOrderRepo.On("Create", ctx, mockTx, mock.AnythingOfType("*model.Order")).Return(nil)
	mockTx.On("Commit", ctx).Return(nil)

	order, err := service.Create(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, order)
	// 10% of 10000, under the 3000 cap
	assert.Equal(t, int64(1000), order.DiscountCents)
	assert.Equal(t, int64(9000), order.TotalCents)
	require.NotNil(t, order.UserCouponID)
	assert.Equal(t, userCouponID, *order.UserCouponID)

	mockCouponRepo.AssertExpectations(t)
	mockOrderRepo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestOrderService_Create_InsufficientStock(t *testing.T) {
	ctx := context.Background()

	productID := uuid.New()
	req := &model.CreateOrderRequest{
		UserID:    "user-1",
		ProductID: productID,
		Quantity:  5,
	}

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockCouponRepo := new(MockCouponRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, mockProductRepo, mockCouponRepo)

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockProductRepo.On("ReserveStock", ctx, mockTx, productID, 5).
		Return(nil, model.ErrInsufficientStock)
	mockTx.On("Rollback", ctx).Return(nil)

	order, err := service.Create(ctx, req)

	require.Error(t, err)
	assert.Equal(t, model.ErrInsufficientStock, err)
	assert.Nil(t, order)

	mockOrderRepo.AssertNotCalled(t, "Create")
	mockTx.AssertNotCalled(t, "Commit")
	mockTx.AssertExpectations(t)
}

func TestOrderService_Create_CouponFailureAbortsReservation(t *testing.T) {
	ctx := context.Background()

	product := publishedProduct(5000, 8)
	userCouponID := uuid.New()
	req := &model.CreateOrderRequest{
		UserID:       "user-1",
		ProductID:    product.ID,
		Quantity:     1,
		UserCouponID: &userCouponID,
	}

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockCouponRepo := new(MockCouponRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, mockProductRepo, mockCouponRepo)

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockProductRepo.On("ReserveStock", ctx, mockTx, product.ID, 1).Return(product, nil)
	// Instance belongs to a different user
	mockCouponRepo.On("GetUserCouponForUpdate", ctx, mockTx, userCouponID).
		Return(&model.UserCoupon{ID: userCouponID, UserID: "someone-else"}, &model.Coupon{}, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	order, err := service.Create(ctx, req)

	require.Error(t, err)
	assert.Equal(t, model.ErrCouponNotApplicable, err)
	assert.Nil(t, order)

	// The aborted transaction is the rollback: no compensating writes.
	mockTx.AssertNotCalled(t, "Commit")
	mockOrderRepo.AssertNotCalled(t, "Create")
	mockProductRepo.AssertNotCalled(t, "ReleaseStock")
	mockTx.AssertExpectations(t)
}

func TestOrderService_Create_ValidationErrors(t *testing.T) {
	ctx := context.Background()

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockCouponRepo := new(MockCouponRepository)

	service := newOrderService(mockOrderRepo, mockProductRepo, mockCouponRepo)

	tests := []struct {
		name        string
		req         *model.CreateOrderRequest
		expectedErr error
	}{
		{
			name: "Nil request",
			req:  nil,
		},
		{
			name: "Missing user",
			req:  &model.CreateOrderRequest{ProductID: uuid.New(), Quantity: 1},
		},
		{
			name: "Missing product",
			req:  &model.CreateOrderRequest{UserID: "user-1", Quantity: 1},
		},
		{
			name:        "Zero quantity",
			req:         &model.CreateOrderRequest{UserID: "user-1", ProductID: uuid.New(), Quantity: 0},
			expectedErr: model.ErrInvalidQuantity,
		},
		{
			name:        "Negative quantity",
			req:         &model.CreateOrderRequest{UserID: "user-1", ProductID: uuid.New(), Quantity: -3},
			expectedErr: model.ErrInvalidQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := service.Create(ctx, tt.req)

			require.Error(t, err)
			assert.Nil(t, order)
			if tt.expectedErr != nil {
				assert.Equal(t, tt.expectedErr, err)
			}
			mockOrderRepo.AssertNotCalled(t, "BeginTx")
		})
	}
}

func TestOrderService_Create_RetriesContention(t *testing.T) {
	ctx := context.Background()

	product := publishedProduct(5000, 8)
	req := &model.CreateOrderRequest{
		UserID:    "user-1",
		ProductID: product.ID,
		Quantity:  1,
	}

	contended := &pgconn.PgError{Code: "55P03"}

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockCouponRepo := new(MockCouponRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, mockProductRepo, mockCouponRepo)

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	// First attempt loses the row lock, second succeeds.
	mockProductRepo.On("ReserveStock", ctx, mockTx, product.ID, 1).
		Return(nil, contended).Once()
	mockProductRepo.On("ReserveStock", ctx, mockTx, product.ID, 1).
		Return(product, nil).Once()
	mockOrderRepo.On("NextOrderNo", ctx, mockTx, mock.AnythingOfType("time.Time")).
		Return("ORD20260828000003", nil)
	mockOrderRepo.On("Create", ctx, mockTx, mock.AnythingOfType("*model.Order")).Return(nil)
	mockTx.On("Rollback", ctx).Return(nil)
	mockTx.On("Commit", ctx).Return(nil)

	order, err := service.Create(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, order)

	mockProductRepo.AssertExpectations(t)
	mockOrderRepo.AssertExpectations(t)
}

func TestOrderService_Create_SurfacesPersistentContention(t *testing.T) {
	ctx := context.Background()

	product := publishedProduct(5000, 8)
	req := &model.CreateOrderRequest{
		UserID:    "user-1",
		ProductID: product.ID,
		Quantity:  1,
	}

	contended := &pgconn.PgError{Code: "40001"}

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockCouponRepo := new(MockCouponRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, mockProductRepo, mockCouponRepo)

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockProductRepo.On("ReserveStock", ctx, mockTx, product.ID, 1).Return(nil, contended)
	mockTx.On("Rollback", ctx).Return(nil)

	order, err := service.Create(ctx, req)

	require.Error(t, err)
	assert.Equal(t, model.ErrContendedResource, err)
	assert.Nil(t, order)
	mockProductRepo.AssertNumberOfCalls(t, "ReserveStock", 3)
}

func TestOrderService_ConfirmPayment_Success(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()
	pending := &model.Order{
		ID:      orderID,
		OrderNo: "ORD20260828000004",
		Status:  model.OrderPending,
	}

	mockOrderRepo := new(MockOrderRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, new(MockProductRepository), new(MockCouponRepository))

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockOrderRepo.On("GetForUpdate", ctx, mockTx, orderID).Return(pending, nil)
	mockOrderRepo.On("UpdateStatus", ctx, mockTx, orderID,
		model.OrderPending, model.OrderPaid, mock.AnythingOfType("time.Time")).Return(nil)
	mockTx.On("Commit", ctx).Return(nil)

	order, err := service.ConfirmPayment(ctx, orderID)

	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderPaid, order.Status)
	require.NotNil(t, order.PaidAt)

	mockOrderRepo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestOrderService_ConfirmPayment_DuplicateNotification(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()
	paidAt := time.Now()
	paid := &model.Order{
		ID:     orderID,
		Status: model.OrderPaid,
		PaidAt: &paidAt,
	}

	mockOrderRepo := new(MockOrderRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, new(MockProductRepository), new(MockCouponRepository))

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockOrderRepo.On("GetForUpdate", ctx, mockTx, orderID).Return(paid, nil)
	mockTx.On("Commit", ctx).Return(nil)

	order, err := service.ConfirmPayment(ctx, orderID)

	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderPaid, order.Status)
	assert.Equal(t, &paidAt, order.PaidAt)

	// No second transition for a redelivered notification.
	mockOrderRepo.AssertNotCalled(t, "UpdateStatus")
}

func TestOrderService_ConfirmPayment_AlreadyCancelled(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()
	cancelled := &model.Order{ID: orderID, Status: model.OrderCancelled}

	mockOrderRepo := new(MockOrderRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, new(MockProductRepository), new(MockCouponRepository))

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockOrderRepo.On("GetForUpdate", ctx, mockTx, orderID).Return(cancelled, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	order, err := service.ConfirmPayment(ctx, orderID)

	require.Error(t, err)
	assert.Equal(t, model.ErrInvalidStateTransition, err)
	assert.Nil(t, order)
	mockOrderRepo.AssertNotCalled(t, "UpdateStatus")
}

func TestOrderService_Cancel_ReleasesStockAndCoupon(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()
	productID := uuid.New()
	userCouponID := uuid.New()
	pending := &model.Order{
		ID:           orderID,
		ProductID:    productID,
		Quantity:     3,
		UserCouponID: &userCouponID,
		Status:       model.OrderPending,
	}

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockCouponRepo := new(MockCouponRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, mockProductRepo, mockCouponRepo)

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockOrderRepo.On("GetForUpdate", ctx, mockTx, orderID).Return(pending, nil)
	mockOrderRepo.On("UpdateStatus", ctx, mockTx, orderID,
		model.OrderPending, model.OrderCancelled, mock.AnythingOfType("time.Time")).Return(nil)
	mockProductRepo.On("ReleaseStock", ctx, mockTx, productID, 3).Return(nil)
	mockCouponRepo.On("ReleaseUserCoupon", ctx, mockTx, userCouponID).Return(nil)
	mockTx.On("Commit", ctx).Return(nil)

	order, err := service.Cancel(ctx, orderID)

	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderCancelled, order.Status)
	require.NotNil(t, order.CancelledAt)

	mockOrderRepo.AssertExpectations(t)
	mockProductRepo.AssertExpectations(t)
	mockCouponRepo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestOrderService_Cancel_PaidOrderRejected(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()
	paid := &model.Order{ID: orderID, Status: model.OrderPaid}

	mockOrderRepo := new(MockOrderRepository)
	mockProductRepo := new(MockProductRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, mockProductRepo, new(MockCouponRepository))

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockOrderRepo.On("GetForUpdate", ctx, mockTx, orderID).Return(paid, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	order, err := service.Cancel(ctx, orderID)

	require.Error(t, err)
	assert.Equal(t, model.ErrInvalidStateTransition, err)
	assert.Nil(t, order)
	mockProductRepo.AssertNotCalled(t, "ReleaseStock")
}

func TestOrderService_Expire_RacesConfirmPayment(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()
	// The sweep listed the order as PENDING, but payment confirmed first.
	paid := &model.Order{ID: orderID, Status: model.OrderPaid}

	mockOrderRepo := new(MockOrderRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, new(MockProductRepository), new(MockCouponRepository))

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockOrderRepo.On("GetForUpdate", ctx, mockTx, orderID).Return(paid, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	order, err := service.Expire(ctx, orderID)

	require.Error(t, err)
	assert.Equal(t, model.ErrInvalidStateTransition, err)
	assert.Nil(t, order)
	mockOrderRepo.AssertNotCalled(t, "UpdateStatus")
}

func TestOrderService_ConfirmAndComplete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		from   model.OrderStatus
		to     model.OrderStatus
		invoke func(s OrderService, id uuid.UUID) (*model.Order, error)
	}{
		{
			name: "Confirm PAID order",
			from: model.OrderPaid,
			to:   model.OrderConfirmed,
			invoke: func(s OrderService, id uuid.UUID) (*model.Order, error) {
				return s.Confirm(ctx, id)
			},
		},
		{
			name: "Complete CONFIRMED order",
			from: model.OrderConfirmed,
			to:   model.OrderCompleted,
			invoke: func(s OrderService, id uuid.UUID) (*model.Order, error) {
				return s.Complete(ctx, id)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orderID := uuid.New()
			current := &model.Order{ID: orderID, Status: tt.from}

			mockOrderRepo := new(MockOrderRepository)
			mockTx := new(MockTx)

			service := newOrderService(mockOrderRepo, new(MockProductRepository), new(MockCouponRepository))

			mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
			mockOrderRepo.On("GetForUpdate", ctx, mockTx, orderID).Return(current, nil)
			mockOrderRepo.On("UpdateStatus", ctx, mockTx, orderID,
				tt.from, tt.to, mock.AnythingOfType("time.Time")).Return(nil)
			mockTx.On("Commit", ctx).Return(nil)

			order, err := tt.invoke(service, orderID)

			require.NoError(t, err)
			require.NotNil(t, order)
			assert.Equal(t, tt.to, order.Status)
			mockOrderRepo.AssertExpectations(t)
		})
	}
}

func TestOrderService_Confirm_PendingRejected(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()
	pending := &model.Order{ID: orderID, Status: model.OrderPending}

	mockOrderRepo := new(MockOrderRepository)
	mockTx := new(MockTx)

	service := newOrderService(mockOrderRepo, new(MockProductRepository), new(MockCouponRepository))

	mockOrderRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockOrderRepo.On("GetForUpdate", ctx, mockTx, orderID).Return(pending, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	order, err := service.Confirm(ctx, orderID)

	require.Error(t, err)
	assert.Equal(t, model.ErrInvalidStateTransition, err)
	assert.Nil(t, order)
}

func TestOrderService_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()

	mockOrderRepo := new(MockOrderRepository)
	mockOrderRepo.On("GetByID", ctx, orderID).Return(nil, nil)

	service := newOrderService(mockOrderRepo, new(MockProductRepository), new(MockCouponRepository))

	order, err := service.GetByID(ctx, orderID)

	require.Error(t, err)
	assert.Equal(t, model.ErrOrderNotFound, err)
	assert.Nil(t, order)
}

func TestOrderService_GetByID_RepositoryError(t *testing.T) {
	ctx := context.Background()

	orderID := uuid.New()

	mockOrderRepo := new(MockOrderRepository)
	mockOrderRepo.On("GetByID", ctx, orderID).Return(nil, errors.New("database error"))

	service := newOrderService(mockOrderRepo, new(MockProductRepository), new(MockCouponRepository))

	order, err := service.GetByID(ctx, orderID)

	require.Error(t, err)
	assert.Nil(t, order)
	assert.NotEqual(t, model.ErrOrderNotFound, err)
}
