package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"kidsbook/internal/model"
	"kidsbook/internal/service"

	"github.com/rs/zerolog"
)

// CouponHandler handles coupon-related HTTP requests.
type CouponHandler struct {
	service service.CouponService
	logger  zerolog.Logger
}

// NewCouponHandler creates a new coupon handler.
func NewCouponHandler(service service.CouponService, logger zerolog.Logger) *CouponHandler {
	return &CouponHandler{
		service: service,
		logger:  logger.With().Str("handler", "coupon").Logger(),
	}
}

// Create handles POST /api/coupons requests.
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	coupon, err := h.service.Create(r.Context(), &req)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, err.Error(), h.logger)
			return
		}
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, coupon)
}

// Claim handles POST /api/coupons/{id}/claim requests.
func (h *CouponHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid coupon ID format", h.logger)
		return
	}

	var req model.ClaimCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "user ID is required", h.logger)
		return
	}

	claimed, err := h.service.Claim(r.Context(), id, req.UserID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, claimed)
}

// ListForUser handles GET /api/users/{userId}/coupons requests.
func (h *CouponHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "user ID is required", h.logger)
		return
	}

	coupons, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	if coupons == nil {
		coupons = []model.UserCoupon{}
	}
	writeJSON(w, http.StatusOK, coupons)
}

func isValidationError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "required") ||
		strings.Contains(msg, "must be") ||
		strings.Contains(msg, "cannot exceed") ||
		strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "window is empty") ||
		strings.Contains(msg, "nil")
}
