package model

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus is the lifecycle state of a refund request.
type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundApproved  RefundStatus = "APPROVED"
	RefundRejected  RefundStatus = "REJECTED"
	RefundCompleted RefundStatus = "COMPLETED"
)

// refundTransitions: REJECTED and COMPLETED are terminal; there is no path
// from APPROVED back to PENDING.
var refundTransitions = map[RefundStatus]map[RefundStatus]bool{
	RefundPending:   {RefundApproved: true, RefundRejected: true},
	RefundApproved:  {RefundCompleted: true},
	RefundRejected:  {},
	RefundCompleted: {},
}

// CanTransition reports whether from -> to is a legal refund transition.
func (s RefundStatus) CanTransition(to RefundStatus) bool {
	return refundTransitions[s][to]
}

// Terminal reports whether no further transition is defined for the status.
func (s RefundStatus) Terminal() bool {
	return len(refundTransitions[s]) == 0
}

// Refund is a buyer-initiated reversal request against a paid order. At most
// one non-terminal refund may exist per order at a time.
type Refund struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	RefundNo    string       `json:"refundNo" db:"refund_no"`
	OrderID     uuid.UUID    `json:"orderId" db:"order_id"`
	AmountCents int64        `json:"amountCents" db:"amount_cents"`
	Reason      string       `json:"reason" db:"reason"`
	Status      RefundStatus `json:"status" db:"status"`
	AdminNote   string       `json:"adminNote" db:"admin_note"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	ProcessedAt *time.Time   `json:"processedAt,omitempty" db:"processed_at"`
}

// OpenRefundRequest is the payload for opening a refund.
type OpenRefundRequest struct {
	OrderID     uuid.UUID `json:"orderId"`
	AmountCents int64     `json:"amountCents"`
	Reason      string    `json:"reason"`
}

// DecideRefundRequest is the payload for an administrator decision.
type DecideRefundRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}
