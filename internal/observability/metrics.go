package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/assettrack/internal/procurement"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	receipts        *prometheus.CounterVec
	unitsReceived   prometheus.Counter
	importRows      *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assettrack_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	receipts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_receipts_total",
		Help: "Receiving calls by outcome.",
	}, []string{"outcome"})
	units := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assettrack_units_received_total",
		Help: "Units turned into assets by committed receipts.",
	})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_import_rows_total",
		Help: "Imported purchase orders and asset rows by kind and outcome.",
	}, []string{"kind", "outcome"})
	registry.MustRegister(requests, duration, receipts, units, rows)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		receipts:        receipts,
		unitsReceived:   units,
		importRows:      rows,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
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

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveReceiptFailure counts a receiving call that did not commit.
// Outcome is invalid, busy, timeout, replayed or error.
func (m *Metrics) ObserveReceiptFailure(outcome string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(outcome).Inc()
}

// ObserveAssetImport counts the rows of an asset spreadsheet import.
func (m *Metrics) ObserveAssetImport(success, failed int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues("asset", "created").Add(float64(success))
	m.importRows.WithLabelValues("asset", "failed").Add(float64(failed))
}

// HandleItemsReceived counts a committed receipt.
func (m *Metrics) HandleItemsReceived(ctx context.Context, evt procurement.ItemsReceivedEvent) error {
	if m == nil {
		return nil
	}
	m.receipts.WithLabelValues("committed").Inc()
	m.unitsReceived.Add(float64(evt.UnitsReceived))
	return nil
}

// HandlePurchaseOrdersImported counts created and skipped purchase orders.
func (m *Metrics) HandlePurchaseOrdersImported(ctx context.Context, evt procurement.PurchaseOrdersImportedEvent) error {
	if m == nil {
		return nil
	}
	m.importRows.WithLabelValues("purchase_order", "created").Add(float64(evt.Created))
	m.importRows.WithLabelValues("purchase_order", "skipped").Add(float64(evt.Skipped))
	return nil
}

var _ procurement.EventHandler = (*Metrics)(nil)

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
