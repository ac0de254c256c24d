package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kidsbook"

// Metrics bundles the commerce core's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated        prometheus.Counter
	OrdersClosed         *prometheus.CounterVec // reason: cancelled | expired | refunded
	PaymentConfirmations prometheus.Counter
	CouponClaims         *prometheus.CounterVec // result: claimed | exhausted | limit_exceeded | not_active
	RefundsOpened        prometheus.Counter
	RefundsCompleted     prometheus.Counter

	httpDuration *prometheus.HistogramVec
}

// New builds the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OrdersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders successfully created.",
		}),
		OrdersClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_closed_total",
			Help:      "Orders leaving the active lifecycle, by reason.",
		}, []string{"reason"}),
		PaymentConfirmations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmations applied (duplicates excluded).",
		}),
		CouponClaims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_claims_total",
			Help:      "Coupon claim attempts, by result.",
		}, []string{"result"}),
		RefundsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_opened_total",
			Help:      "Refund requests opened.",
		}),
		RefundsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_completed_total",
			Help:      "Refunds completed, including order restock.",
		}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request durations.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.httpDuration.
			WithLabelValues(r.Method, strconv.Itoa(rw.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
