package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	tokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opd_tokens_issued_total",
			Help: "Total number of OPD tokens issued",
		},
		[]string{"tenant"},
	)

	ordersStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_status_changed_total",
			Help: "Total number of order status transitions",
		},
		[]string{"kind", "from_status", "to_status"},
	)

	paymentsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_recorded_total",
			Help: "Total number of payments recorded",
		},
		[]string{"tenant", "method"},
	)

	stockMovements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_movements_total",
			Help: "Total number of stock ledger movements",
		},
		[]string{"tenant", "type"},
	)

	txRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tx_serialization_retries_total",
			Help: "Total number of serializable transaction retries",
		},
	)
)

// Handler returns the Prometheus metrics endpoint handler.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// Middleware records request counts, durations, and in-flight gauge. The
// echo route template is used as the path label to keep cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				if httpErr, ok := err.(*echo.HTTPError); ok {
					status = httpErr.Code
				}
			}

			httpRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// --- Business metric helpers ---

// RecordTokenIssued records an OPD token creation.
func RecordTokenIssued(tenant string) {
	tokensIssued.WithLabelValues(tenant).Inc()
}

// RecordOrderStatusChange records an order state machine transition.
func RecordOrderStatusChange(kind, fromStatus, toStatus string) {
	ordersStatusChanged.WithLabelValues(kind, fromStatus, toStatus).Inc()
}

// RecordPayment records a recorded payment.
func RecordPayment(tenant, method string) {
	paymentsRecorded.WithLabelValues(tenant, method).Inc()
}

// RecordStockMovement records a stock ledger movement.
func RecordStockMovement(tenant, movementType string) {
	stockMovements.WithLabelValues(tenant, movementType).Inc()
}

// RecordTxRetry records a serializable transaction retry.
func RecordTxRetry() {
	txRetries.Inc()
}
