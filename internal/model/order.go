package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// orderTransitions is the allowed-edge table for the order state machine.
// CANCELLED, COMPLETED and REFUNDED are terminal.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderPaid: true, OrderCancelled: true},
	OrderPaid:      {OrderConfirmed: true, OrderRefunded: true},
	OrderConfirmed: {OrderCompleted: true, OrderRefunded: true},
	OrderCompleted: {},
	OrderCancelled: {},
	OrderRefunded:  {},
}

// CanTransition reports whether from -> to is a legal order transition.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return orderTransitions[s][to]
}

// Terminal reports whether no further transition is defined for the status.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order is a booking against a single activity. Unit price and discount are
// snapshotted at creation and never recomputed from the live product.
type Order struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	OrderNo         string      `json:"orderNo" db:"order_no"`
	UserID          string      `json:"userId" db:"user_id"`
	ProductID       uuid.UUID   `json:"productId" db:"product_id"`
	Quantity        int         `json:"quantity" db:"quantity"`
	UnitPriceCents  int64       `json:"unitPriceCents" db:"unit_price_cents"`
	DiscountCents   int64       `json:"discountCents" db:"discount_cents"`
	TotalCents      int64       `json:"totalCents" db:"total_cents"`
	UserCouponID    *uuid.UUID  `json:"userCouponId,omitempty" db:"user_coupon_id"`
	Status          OrderStatus `json:"status" db:"status"`
	PaymentDeadline time.Time   `json:"paymentDeadline" db:"payment_deadline"`
	CreatedAt       time.Time   `json:"createdAt" db:"created_at"`
	PaidAt          *time.Time  `json:"paidAt,omitempty" db:"paid_at"`
	ConfirmedAt     *time.Time  `json:"confirmedAt,omitempty" db:"confirmed_at"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty" db:"completed_at"`
	CancelledAt     *time.Time  `json:"cancelledAt,omitempty" db:"cancelled_at"`
	RefundedAt      *time.Time  `json:"refundedAt,omitempty" db:"refunded_at"`
}

// CreateOrderRequest is the payload for placing an order.
type CreateOrderRequest struct {
	UserID       string     `json:"userId"`
	ProductID    uuid.UUID  `json:"productId"`
	Quantity     int        `json:"quantity"`
	UserCouponID *uuid.UUID `json:"userCouponId,omitempty"`
}

// PaymentNotification is the logical outcome delivered by the payment
// provider: payment confirmed for order X.
type PaymentNotification struct {
	OrderID uuid.UUID `json:"orderId"`
}
