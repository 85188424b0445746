package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/assettrack/internal/procurement"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `assettrack_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `assettrack_http_request_duration_seconds_bucket{route="/test"`)
}

func TestMetricsCountReceiptsAndImports(t *testing.T) {
	metrics := NewMetrics()
	ctx := context.Background()

	require.NoError(t, metrics.HandleItemsReceived(ctx, procurement.ItemsReceivedEvent{UnitsReceived: 5}))
	require.NoError(t, metrics.HandleItemsReceived(ctx, procurement.ItemsReceivedEvent{UnitsReceived: 2}))
	metrics.ObserveReceiptFailure("busy")
	require.NoError(t, metrics.HandlePurchaseOrdersImported(ctx, procurement.PurchaseOrdersImportedEvent{Total: 3, Created: 2, Skipped: 1}))
	metrics.ObserveAssetImport(4, 1)

	body := scrape(t, metrics)
	for _, want := range []string{
		`assettrack_receipts_total{outcome="committed"} 2`,
		`assettrack_receipts_total{outcome="busy"} 1`,
		`assettrack_units_received_total 7`,
		`assettrack_import_rows_total{kind="purchase_order",outcome="created"} 2`,
		`assettrack_import_rows_total{kind="purchase_order",outcome="skipped"} 1`,
		`assettrack_import_rows_total{kind="asset",outcome="failed"} 1`,
	} {
		require.True(t, strings.Contains(body, want), "missing %s", want)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveReceiptFailure("error")
	require.NoError(t, metrics.HandleItemsReceived(context.Background(), procurement.ItemsReceivedEvent{}))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
