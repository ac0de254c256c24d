package model

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeInvalidQuantity    = "INVALID_QUANTITY"
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeProductNotFound    = "PRODUCT_NOT_FOUND"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeCouponNotFound     = "COUPON_NOT_FOUND"
	ErrCodeRefundNotFound     = "REFUND_NOT_FOUND"
	ErrCodeInsufficientStock  = "INSUFFICIENT_STOCK"
	ErrCodeCouponExhausted    = "COUPON_EXHAUSTED"
	ErrCodePerUserLimit       = "PER_USER_LIMIT_EXCEEDED"
	ErrCodeCouponNotActive    = "COUPON_NOT_ACTIVE"
	ErrCodeCouponNotUsable    = "COUPON_NOT_APPLICABLE"
	ErrCodeInvalidTransition  = "INVALID_STATE_TRANSITION"
	ErrCodeOrderNotRefundable = "ORDER_NOT_REFUNDABLE"
	ErrCodeAmountExceedsOrder = "AMOUNT_EXCEEDS_ORDER"
	ErrCodeRefundAlreadyOpen  = "REFUND_ALREADY_OPEN"
	ErrCodeRefundNotPending   = "REFUND_NOT_PENDING"
	ErrCodeRefundNotApproved  = "REFUND_NOT_APPROVED"
	ErrCodeContendedResource  = "CONTENDED_RESOURCE"
	ErrCodeUnauthorised       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// DomainError is a typed business-rule failure surfaced to callers.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrInvalidQuantity        = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrInvalidRefundAmount    = NewDomainError(ErrCodeInvalidAmount, "Refund amount must be greater than zero")
	ErrProductNotFound        = NewDomainError(ErrCodeProductNotFound, "Product not found")
	ErrOrderNotFound          = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrCouponNotFound         = NewDomainError(ErrCodeCouponNotFound, "Coupon not found")
	ErrRefundNotFound         = NewDomainError(ErrCodeRefundNotFound, "Refund not found")
	ErrInsufficientStock      = NewDomainError(ErrCodeInsufficientStock, "Not enough stock for the requested quantity")
	ErrCouponExhausted        = NewDomainError(ErrCodeCouponExhausted, "Coupon quantity has been exhausted")
	ErrPerUserLimitExceeded   = NewDomainError(ErrCodePerUserLimit, "User has reached the claim limit for this coupon")
	ErrCouponNotActive        = NewDomainError(ErrCodeCouponNotActive, "Coupon is disabled or outside its validity window")
	ErrCouponNotApplicable    = NewDomainError(ErrCodeCouponNotUsable, "Coupon cannot be applied to this order")
	ErrInvalidStateTransition = NewDomainError(ErrCodeInvalidTransition, "Requested status transition is not allowed")
	ErrOrderNotRefundable     = NewDomainError(ErrCodeOrderNotRefundable, "Order is not in a refundable status")
	ErrAmountExceedsOrder     = NewDomainError(ErrCodeAmountExceedsOrder, "Refund amount exceeds the order total")
	ErrRefundAlreadyOpen      = NewDomainError(ErrCodeRefundAlreadyOpen, "Order already has an open refund")
	ErrRefundNotPending       = NewDomainError(ErrCodeRefundNotPending, "Refund has already been decided")
	ErrRefundNotApproved      = NewDomainError(ErrCodeRefundNotApproved, "Refund is not approved")
	ErrContendedResource      = NewDomainError(ErrCodeContendedResource, "Resource is contended, retry the request")
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
