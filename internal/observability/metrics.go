package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and the ledger core.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	salesCreated     *prometheus.CounterVec
	salesCancelled   prometheus.Counter
	stockRejections  prometheus.Counter
	stockMovements   *prometheus.CounterVec
	paymentsTotal    *prometheus.CounterVec
	installmentsPaid prometheus.Counter
	overdueMarked    prometheus.Counter
}

// NewMetrics initialises the registry and all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crediario_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crediario_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	m := &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crediario_sales_created_total",
			Help: "Committed sales by payment type.",
		}, []string{"payment_type"}),
		salesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crediario_sales_cancelled_total",
			Help: "Committed sale cancellations.",
		}),
		stockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crediario_stock_rejections_total",
			Help: "Reservations refused for insufficient stock.",
		}),
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crediario_stock_movements_total",
			Help: "Stock movements written by type.",
		}, []string{"movement_type"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crediario_installment_payments_total",
			Help: "Installment payment attempts by outcome.",
		}, []string{"outcome"}),
		installmentsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crediario_installments_paid_total",
			Help: "Installments settled in full.",
		}),
		overdueMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crediario_installments_overdue_marked_total",
			Help: "Installments transitioned to overdue.",
		}),
	}
	registry.MustRegister(
		requests, duration,
		m.salesCreated, m.salesCancelled, m.stockRejections, m.stockMovements,
		m.paymentsTotal, m.installmentsPaid, m.overdueMarked,
	)
	return m
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SaleCreated counts a committed sale.
func (m *Metrics) SaleCreated(paymentType string) {
	if m == nil {
		return
	}
	m.salesCreated.WithLabelValues(paymentType).Inc()
}

// SaleCancelled counts a committed cancellation.
func (m *Metrics) SaleCancelled() {
	if m == nil {
		return
	}
	m.salesCancelled.Inc()
}

// StockRejected counts a reservation refused for lack of stock.
func (m *Metrics) StockRejected() {
	if m == nil {
		return
	}
	m.stockRejections.Inc()
}

// StockMoved counts a written stock movement.
func (m *Metrics) StockMoved(movementType string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(movementType).Inc()
}

// PaymentRegistered counts a payment attempt; outcome is "completed" or an error kind.
func (m *Metrics) PaymentRegistered(outcome string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(outcome).Inc()
}

// InstallmentPaid counts an installment settled in full.
func (m *Metrics) InstallmentPaid() {
	if m == nil {
		return
	}
	m.installmentsPaid.Inc()
}

// OverdueMarked counts installments moved to overdue.
func (m *Metrics) OverdueMarked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.overdueMarked.Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
