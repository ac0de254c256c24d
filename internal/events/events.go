package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the commerce core. Consumers (admin notification,
// analytics) are external and out of band.
const (
	TypeOrderCreated    = "order.created"
	TypeOrderPaid       = "order.paid"
	TypeOrderCancelled  = "order.cancelled"
	TypeOrderExpired    = "order.expired"
	TypeOrderConfirmed  = "order.confirmed"
	TypeOrderCompleted  = "order.completed"
	TypeOrderRefunded   = "order.refunded"
	TypeCouponClaimed   = "coupon.claimed"
	TypeRefundOpened    = "refund.opened"
	TypeRefundDecided   = "refund.decided"
	TypeRefundCompleted = "refund.completed"
)

// Envelope wraps every published event.
type Envelope struct {
	EventID      string          `json:"eventId"`
	EventType    string          `json:"eventType"`
	EventVersion int             `json:"eventVersion"`
	OccurredAt   time.Time       `json:"occurredAt"`
	Producer     string          `json:"producer"`
	EntityID     string          `json:"entityId"`
	Payload      json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope around a marshalled payload. EntityID keys
// the message so events for one entity stay ordered per partition.
func NewEnvelope(eventType, entityID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "kidsbook-api",
		EntityID:     entityID,
		Payload:      raw,
	}, nil
}

// OrderPayload describes an order lifecycle event.
type OrderPayload struct {
	OrderID       string `json:"orderId"`
	OrderNo       string `json:"orderNo"`
	UserID        string `json:"userId"`
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
	TotalCents    int64  `json:"totalCents"`
	DiscountCents int64  `json:"discountCents"`
	Status        string `json:"status"`
}

// CouponClaimedPayload describes a successful coupon claim.
type CouponClaimedPayload struct {
	CouponID     string `json:"couponId"`
	UserCouponID string `json:"userCouponId"`
	UserID       string `json:"userId"`
}

// RefundPayload describes a refund lifecycle event.
type RefundPayload struct {
	RefundID    string `json:"refundId"`
	RefundNo    string `json:"refundNo"`
	OrderID     string `json:"orderId"`
	AmountCents int64  `json:"amountCents"`
	Status      string `json:"status"`
}
