package assets

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/assettrack/internal/platform/httpx"
	"github.com/odyssey-erp/assettrack/internal/shared"
)

// Lister reads stored assets.
type Lister interface {
	ListAssets(ctx context.Context, filters ListFilters) ([]Asset, error)
}

// ImportObserver is told the outcome of every finished import.
type ImportObserver interface {
	ObserveAssetImport(success, failed int)
}

// ImportEnqueuer hands a saved workbook to the background worker.
type ImportEnqueuer interface {
	EnqueueAssetImport(ctx context.Context, path string) (string, error)
}

// Handler manages asset endpoints.
type Handler struct {
	logger   *slog.Logger
	importer *Importer
	lister   Lister
	observer ImportObserver
	enqueuer ImportEnqueuer
	dir      string
	maxBytes int64
}

// NewHandler builds Handler instance. observer and enqueuer may be nil.
func NewHandler(logger *slog.Logger, importer *Importer, lister Lister, observer ImportObserver, enqueuer ImportEnqueuer, uploadDir string, maxBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, importer: importer, lister: lister, observer: observer, enqueuer: enqueuer, dir: uploadDir, maxBytes: maxBytes}
}

// MountRoutes registers asset routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/import", h.handleImport)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	path, cleanup, err := httpx.SaveUpload(r, "file", h.dir, h.maxBytes, httpx.MimeXLSX)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueueAssetImport(r.Context(), path)
		if err != nil {
			cleanup()
			h.logger.Error("enqueue asset import", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
		return
	}
	defer cleanup()
	report, err := h.importer.ImportFile(r.Context(), path)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.observer != nil {
		h.observer.ObserveAssetImport(report.Success, len(report.Errors))
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	p := shared.NewPagination(page, perPage, 0)
	list, err := h.lister.ListAssets(r.Context(), ListFilters{
		PurchaseOrderID: q.Get("purchase_order_id"),
		SubCategoryID:   q.Get("sub_category_id"),
		Limit:           p.PerPage,
		Offset:          p.Offset(),
	})
	if err != nil {
		h.logger.Error("list assets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Asset{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list, "page": p.Page, "per_page": p.PerPage})
}
