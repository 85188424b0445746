package procurement

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/assettrack/internal/platform/httpx"
	"github.com/odyssey-erp/assettrack/internal/shared"
	"github.com/odyssey-erp/assettrack/internal/sheet/sheettest"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveReceiptFailure(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type fakeEnqueuer struct {
	paths []string
}

func (e *fakeEnqueuer) EnqueuePurchaseOrderImport(ctx context.Context, path string) (string, error) {
	e.paths = append(e.paths, path)
	return "task-1", nil
}

type handlerFixture struct {
	router   http.Handler
	svc      *Service
	repo     *memoryProcRepo
	locker   *shared.Locker
	observer *recordingObserver
}

func newHandlerFixture(t *testing.T, enqueuer ImportEnqueuer) handlerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryProcRepo("sub-1")
	svc, _, _ := newTestService(repo)
	locker := shared.NewLocker(client, time.Minute)
	observer := &recordingObserver{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, locker, observer, enqueuer, Uploads{Dir: t.TempDir(), MaxBytes: 1 << 20})

	r := chi.NewRouter()
	r.Route("/purchase-orders", h.MountRoutes)
	return handlerFixture{router: r, svc: svc, repo: repo, locker: locker, observer: observer}
}

func (f handlerFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func receiveBody(t *testing.T, lineItemID string, qty int) io.Reader {
	t.Helper()
	raw, err := json.Marshal(receiveRequest{Items: []ReceiptInstruction{{LineItemID: lineItemID, Quantity: qty, TargetSubCategoryID: "sub-1"}}})
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func uploadRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandlerReceiveCreatesAssets(t *testing.T) {
	f := newHandlerFixture(t, nil)
	po := seedOrder(t, f.svc, laptopDraft("PO-300", 2))

	req := httptest.NewRequest(http.MethodPost, "/purchase-orders/"+po.ID+"/receive", receiveBody(t, po.LineItems[0].ID, 2))
	req.Header.Set(IdempotencyHeader, "key-1")
	rr := f.do(t, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result ReceiveResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, POStatusCompleted, result.Status)
	require.Len(t, result.Assets, 2)

	replay := httptest.NewRequest(http.MethodPost, "/purchase-orders/"+po.ID+"/receive", receiveBody(t, po.LineItems[0].ID, 2))
	replay.Header.Set(IdempotencyHeader, "key-1")
	rr = f.do(t, replay)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, 2, f.repo.assetCount())
	require.Equal(t, []string{"replayed"}, f.observer.outcomes)

	again, err := f.locker.Acquire(context.Background(), shared.ReceivingLockKey(po.ID))
	require.NoError(t, err, "lock must be released after the request")
	again(context.Background())
}

func TestHandlerReceiveBusyWhileLocked(t *testing.T) {
	f := newHandlerFixture(t, nil)
	po := seedOrder(t, f.svc, laptopDraft("PO-301", 2))

	release, err := f.locker.Acquire(context.Background(), shared.ReceivingLockKey(po.ID))
	require.NoError(t, err)
	defer release(context.Background())

	rr := f.do(t, httptest.NewRequest(http.MethodPost, "/purchase-orders/"+po.ID+"/receive", receiveBody(t, po.LineItems[0].ID, 1)))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "Busy")
	require.Equal(t, []string{"busy"}, f.observer.outcomes)
	require.Zero(t, f.repo.assetCount())
}

func TestHandlerReceiveRejectsInvalidPayload(t *testing.T) {
	f := newHandlerFixture(t, nil)
	po := seedOrder(t, f.svc, laptopDraft("PO-302", 2))

	cases := map[string]string{
		"malformed":     `{"items":[`,
		"unknown field": `{"items":[],"extra":true}`,
		"empty items":   `{"items":[]}`,
		"zero quantity": `{"items":[{"line_item_id":"li-1","quantity":0,"target_sub_category_id":"sub-1"}]}`,
		"no sub-cat":    `{"items":[{"line_item_id":"li-1","quantity":1}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := f.do(t, httptest.NewRequest(http.MethodPost, "/purchase-orders/"+po.ID+"/receive", strings.NewReader(body)))
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
	require.Zero(t, f.repo.assetCount())
}

func TestHandlerGetAndList(t *testing.T) {
	f := newHandlerFixture(t, nil)
	po := seedOrder(t, f.svc, laptopDraft("PO-400", 1))
	seedOrder(t, f.svc, laptopDraft("PO-401", 1))
	seedOrder(t, f.svc, laptopDraft("PO-402", 1))

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/purchase-orders/"+po.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var got PurchaseOrder
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "PO-400", got.Number)
	require.Len(t, got.LineItems, 1)

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/purchase-orders/po-missing", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/purchase-orders/?page=2&per_page=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var page listResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Equal(t, 3, page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)
	require.Len(t, page.Data, 1)
	require.Equal(t, "PO-402", page.Data[0].Number)
}

func TestHandlerCreateRejectsDuplicate(t *testing.T) {
	f := newHandlerFixture(t, nil)
	raw, err := json.Marshal(laptopDraft("PO-500", 1))
	require.NoError(t, err)

	rr := f.do(t, httptest.NewRequest(http.MethodPost, "/purchase-orders/", bytes.NewReader(raw)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = f.do(t, httptest.NewRequest(http.MethodPost, "/purchase-orders/", bytes.NewReader(raw)))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerImportSynchronous(t *testing.T) {
	f := newHandlerFixture(t, nil)
	data, err := os.ReadFile(sheettest.Write(t,
		[]any{"PO Number", "Vendor", "Product", "Qty", "Price"},
		[]any{"PO-9", "Acme", "Cable", 10, 5},
	))
	require.NoError(t, err)

	rr := f.do(t, uploadRequest(t, "/purchase-orders/import", "orders.xlsx", data))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var summary ImportSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Equal(t, 1, summary.Created)
	require.Equal(t, "59", summary.PurchaseOrders[0].GrandTotal().String())
}

func TestHandlerImportMissingColumns(t *testing.T) {
	f := newHandlerFixture(t, nil)
	data, err := os.ReadFile(sheettest.Write(t, []any{"Product"}, []any{"Cable"}))
	require.NoError(t, err)

	rr := f.do(t, uploadRequest(t, "/purchase-orders/import", "orders.xlsx", data))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Malformed Spreadsheet")
}

func TestHandlerImportQueuesWhenAsync(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	f := newHandlerFixture(t, enqueuer)

	rr := f.do(t, uploadRequest(t, "/purchase-orders/import", "orders.xlsx", []byte("queued")))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Contains(t, rr.Body.String(), "task-1")
	require.Len(t, enqueuer.paths, 1)
	data, err := os.ReadFile(enqueuer.paths[0])
	require.NoError(t, err)
	require.Equal(t, "queued", string(data))
}

func TestHandlerScanRejectsNonPDF(t *testing.T) {
	f := newHandlerFixture(t, nil)
	rr := f.do(t, uploadRequest(t, "/purchase-orders/scan", "orders.xlsx", []byte("x")))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerScanUnreadablePDF(t *testing.T) {
	f := newHandlerFixture(t, nil)
	rr := f.do(t, uploadRequest(t, "/purchase-orders/scan", "po.pdf", []byte("not a pdf")))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandlerExport(t *testing.T) {
	f := newHandlerFixture(t, nil)
	seedOrder(t, f.svc, laptopDraft("PO-600", 1))

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/purchase-orders/export", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, httpx.MimeXLSX, rr.Header().Get("Content-Type"))
	require.Equal(t, "1", rr.Header().Get("X-Export-Count"))

	summary, err := newTestServiceOnly().ImportPurchaseOrderReader(context.Background(), rr.Body, "export.xlsx")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Created)
}

func newTestServiceOnly() *Service {
	svc, _, _ := newTestService(newMemoryProcRepo())
	return svc
}
