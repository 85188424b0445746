package procurement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/assettrack/internal/platform/httpx"
	"github.com/odyssey-erp/assettrack/internal/shared"
)

// Observer receives outcomes of receiving calls that did not commit.
type Observer interface {
	ObserveReceiptFailure(outcome string)
}

// ImportEnqueuer hands a saved workbook to the background worker.
type ImportEnqueuer interface {
	EnqueuePurchaseOrderImport(ctx context.Context, path string) (string, error)
}

// Uploads bounds the files accepted by the upload endpoints.
type Uploads struct {
	Dir      string
	MaxBytes int64
}

// IdempotencyHeader carries a client key that makes a receipt retry-safe.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages procurement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	locker    *shared.Locker
	observer  Observer
	enqueuer  ImportEnqueuer
	uploads   Uploads
	validator *validator.Validate
}

// NewHandler builds Handler instance. observer and enqueuer may be nil; a nil
// enqueuer makes imports synchronous.
func NewHandler(logger *slog.Logger, service *Service, locker *shared.Locker, observer Observer, enqueuer ImportEnqueuer, uploads Uploads) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Handler{
		logger:    logger,
		service:   service,
		locker:    locker,
		observer:  observer,
		enqueuer:  enqueuer,
		uploads:   uploads,
		validator: validator.New(),
	}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Post("/scan", h.handleScan)
	r.Post("/import", h.handleImport)
	r.Get("/export", h.handleExport)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/receive", h.handleReceive)
}

type receiveRequest struct {
	Items []ReceiptInstruction `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	poID := chi.URLParam(r, "id")
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.observer.ObserveReceiptFailure("invalid")
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.observer.ObserveReceiptFailure("invalid")
		httpx.RespondError(w, validationError(err))
		return
	}

	ctx := r.Context()
	release, err := h.locker.Acquire(ctx, shared.ReceivingLockKey(poID))
	if err != nil {
		h.observer.ObserveReceiptFailure("busy")
		h.logger.Warn("receiving lock not acquired", slog.String("po_id", poID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	defer release(context.WithoutCancel(ctx))

	if key := r.Header.Get(IdempotencyHeader); key != "" {
		ctx = shared.ContextWithIdempotencyKey(ctx, key)
	}
	result, err := h.service.ReceiveItems(ctx, poID, req.Items)
	if err != nil {
		h.observer.ObserveReceiptFailure(failureOutcome(err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	path, cleanup, err := httpx.SaveUpload(r, "file", h.uploads.Dir, h.uploads.MaxBytes, httpx.MimePDF)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer cleanup()
	draft, err := h.service.ScanPDF(r.Context(), path)
	if err != nil {
		var scanErr *ScanError
		if errors.As(err, &scanErr) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Unreadable Document", "the uploaded pdf could not be read")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, draft)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	path, cleanup, err := httpx.SaveUpload(r, "file", h.uploads.Dir, h.uploads.MaxBytes, httpx.MimeXLSX)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueuePurchaseOrderImport(r.Context(), path)
		if err != nil {
			cleanup()
			h.logger.Error("enqueue purchase order import", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
		return
	}
	defer cleanup()
	summary, err := h.service.ImportPurchaseOrderFile(r.Context(), path)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var draft PurchaseOrderDraft
	if err := httpx.DecodeJSON(r, &draft); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if draft.Date.IsZero() {
		draft.Date = today(h.service.now())
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), draft)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type listResponse struct {
	Data       []PurchaseOrder   `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	p := shared.NewPagination(page, perPage, 0)
	filters := listFiltersFromQuery(r)
	filters.Limit = p.PerPage
	filters.Offset = p.Offset()

	orders, total, err := h.service.ListPurchaseOrders(r.Context(), filters)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if orders == nil {
		orders = []PurchaseOrder{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: orders, Pagination: shared.NewPagination(p.Page, p.PerPage, total)})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := h.service.ExportPurchaseOrders(r.Context(), listFiltersFromQuery(r), &buf)
	if err != nil {
		h.logger.Error("export purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", httpx.MimeXLSX)
	w.Header().Set("Content-Disposition", `attachment; filename="purchase-orders.xlsx"`)
	w.Header().Set("X-Export-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func listFiltersFromQuery(r *http.Request) ListFilters {
	q := r.URL.Query()
	return ListFilters{
		Status:  POStatus(q.Get("status")),
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed on %s", httpx.ErrValidation, fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
}

func failureOutcome(err error) string {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, shared.ErrDuplicate):
		return "replayed"
	default:
		return "error"
	}
}

type nopObserver struct{}

func (nopObserver) ObserveReceiptFailure(string) {}
