package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"kidsbook/internal/model"
	"kidsbook/internal/service"

	"github.com/rs/zerolog"
)

// ProductHandler handles product-related HTTP requests.
type ProductHandler struct {
	service service.ProductService
	logger  zerolog.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(service service.ProductService, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger.With().Str("handler", "product").Logger(),
	}
}

// Create handles POST /api/products requests.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	product, err := h.service.Create(r.Context(), &req)
	if err != nil {
		if strings.Contains(err.Error(), "required") || strings.Contains(err.Error(), "must not") {
			writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, err.Error(), h.logger)
			return
		}
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

// GetByID handles GET /api/products/{id} requests.
func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid product ID format", h.logger)
		return
	}

	product, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// List handles GET /api/products requests.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	products, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// SetStatus handles PUT /api/products/{id}/status requests.
func (h *ProductHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid product ID format", h.logger)
		return
	}

	var req struct {
		Status model.ProductStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	if err := h.service.SetStatus(r.Context(), id, req.Status); err != nil {
		if strings.Contains(err.Error(), "unsupported") {
			writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, err.Error(), h.logger)
			return
		}
		respondError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
