package router

import (
	"net/http"

	"kidsbook/internal/handler"
	"kidsbook/internal/metrics"
	"kidsbook/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(
	productHandler *handler.ProductHandler,
	couponHandler *handler.CouponHandler,
	orderHandler *handler.OrderHandler,
	refundHandler *handler.RefundHandler,
	m *metrics.Metrics,
	apiKey string,
	logger zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware order: Recovery -> Logging -> metrics -> CORS -> APIKeyAuth
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(m.Middleware)
	r.Use(middleware.CORS)
	r.Use(middleware.APIKeyAuth(apiKey, logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Post("/", productHandler.Create)
			r.Get("/", productHandler.List)
			r.Get("/{id}", productHandler.GetByID)
			r.Put("/{id}/status", productHandler.SetStatus)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/", couponHandler.Create)
			r.Post("/{id}/claim", couponHandler.Claim)
		})
		r.Get("/users/{userId}/coupons", couponHandler.ListForUser)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.Create)
			r.Get("/{id}", orderHandler.GetByID)
			r.Post("/{id}/cancel", orderHandler.Cancel)
			r.Post("/{id}/confirm", orderHandler.Confirm)
			r.Post("/{id}/complete", orderHandler.Complete)
		})
		r.Post("/payments/notify", orderHandler.PaymentNotify)

		r.Route("/refunds", func(r chi.Router) {
			r.Post("/", refundHandler.Open)
			r.Get("/{id}", refundHandler.GetByID)
			r.Post("/{id}/decide", refundHandler.Decide)
			r.Post("/{id}/complete", refundHandler.Complete)
		})
	})

	return r
}
