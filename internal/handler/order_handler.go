package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"kidsbook/internal/model"
	"kidsbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	service service.OrderService
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(service service.OrderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

// Create handles POST /api/orders requests.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	order, err := h.service.Create(r.Context(), &req)
	if err != nil {
		if strings.Contains(err.Error(), "required") || strings.Contains(err.Error(), "nil") {
			writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, err.Error(), h.logger)
			return
		}
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetByID handles GET /api/orders/{id} requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid order ID format", h.logger)
		return
	}

	order, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// PaymentNotify handles POST /api/payments/notify requests from the payment
// provider. Duplicate notifications return 200 with the unchanged order.
func (h *OrderHandler) PaymentNotify(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentNotification
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}
	if req.OrderID == uuid.Nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "order ID is required", h.logger)
		return
	}

	order, err := h.service.ConfirmPayment(r.Context(), req.OrderID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Cancel handles POST /api/orders/{id}/cancel requests.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

// Confirm handles POST /api/orders/{id}/confirm requests.
func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm)
}

// Complete handles POST /api/orders/{id}/complete requests.
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete)
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*model.Order, error)) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid order ID format", h.logger)
		return
	}

	order, err := fn(r.Context(), id)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}
