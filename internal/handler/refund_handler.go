package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"kidsbook/internal/model"
	"kidsbook/internal/service"

	"github.com/rs/zerolog"
)

// RefundHandler handles refund-related HTTP requests.
type RefundHandler struct {
	service service.RefundService
	logger  zerolog.Logger
}

// NewRefundHandler creates a new refund handler.
func NewRefundHandler(service service.RefundService, logger zerolog.Logger) *RefundHandler {
	return &RefundHandler{
		service: service,
		logger:  logger.With().Str("handler", "refund").Logger(),
	}
}

// Open handles POST /api/refunds requests.
func (h *RefundHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req model.OpenRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	refund, err := h.service.Open(r.Context(), &req)
	if err != nil {
		if strings.Contains(err.Error(), "required") || strings.Contains(err.Error(), "nil") {
			writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, err.Error(), h.logger)
			return
		}
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, refund)
}

// GetByID handles GET /api/refunds/{id} requests.
func (h *RefundHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid refund ID format", h.logger)
		return
	}

	refund, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, refund)
}

// Decide handles POST /api/refunds/{id}/decide requests.
func (h *RefundHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid refund ID format", h.logger)
		return
	}

	var req model.DecideRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	refund, err := h.service.Decide(r.Context(), id, req.Approve, req.Note)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, refund)
}

// Complete handles POST /api/refunds/{id}/complete requests.
func (h *RefundHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid refund ID format", h.logger)
		return
	}

	refund, err := h.service.Complete(r.Context(), id)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, refund)
}
