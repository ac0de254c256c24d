package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"kidsbook/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	logger.Error().Str("error", message).Int("status", status).Msg("handler error")
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: message})
}

// respondError maps a service error to an HTTP response. Domain errors map
// by code; everything else is an opaque 500.
func respondError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var domainErr *model.DomainError
	if !errors.As(err, &domainErr) {
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error", logger)
		return
	}

	status := http.StatusInternalServerError
	switch domainErr.Code {
	case model.ErrCodeProductNotFound,
		model.ErrCodeOrderNotFound,
		model.ErrCodeCouponNotFound,
		model.ErrCodeRefundNotFound:
		status = http.StatusNotFound
	case model.ErrCodeInvalidQuantity,
		model.ErrCodeInvalidAmount:
		status = http.StatusBadRequest
	case model.ErrCodeInsufficientStock,
		model.ErrCodeCouponExhausted,
		model.ErrCodePerUserLimit,
		model.ErrCodeInvalidTransition,
		model.ErrCodeOrderNotRefundable,
		model.ErrCodeRefundAlreadyOpen,
		model.ErrCodeRefundNotPending,
		model.ErrCodeRefundNotApproved:
		status = http.StatusConflict
	case model.ErrCodeCouponNotActive,
		model.ErrCodeCouponNotUsable,
		model.ErrCodeAmountExceedsOrder:
		status = http.StatusUnprocessableEntity
	case model.ErrCodeContendedResource:
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable
	}

	writeError(w, status, domainErr.Code, domainErr.Message, logger)
}

// pathUUID parses the named chi URL parameter as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func userIDParam(r *http.Request) string {
	return chi.URLParam(r, "userId")
}
