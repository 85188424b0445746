package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/assettrack/internal/sheet/sheettest"
)

func (m *memoryCatalog) ListAssets(ctx context.Context, filters ListFilters) ([]Asset, error) {
	var out []Asset
	for _, a := range m.assets {
		if filters.SubCategoryID != "" && a.SubCategoryID != filters.SubCategoryID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type countingObserver struct {
	success, failed int
}

func (o *countingObserver) ObserveAssetImport(success, failed int) {
	o.success += success
	o.failed += failed
}

func upload(t *testing.T, path string) *http.Request {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "assets.xlsx")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/assets/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandlerImportReportsRows(t *testing.T) {
	store := newMemoryCatalog()
	observer := &countingObserver{}
	h := NewHandler(nil, NewImporter(store, store, nil), store, observer, nil, t.TempDir(), 1<<20)
	r := chi.NewRouter()
	r.Route("/assets", h.MountRoutes)

	path := sheettest.Write(t,
		[]any{"Category", "Name"},
		[]any{"Monitors", "Dell 24"},
		[]any{"", "Orphan"},
	)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, upload(t, path))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report ImportReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Equal(t, 2, report.Total)
	require.Equal(t, 1, report.Success)
	require.Len(t, report.Errors, 1)
	require.Equal(t, 1, observer.success)
	require.Equal(t, 1, observer.failed)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/assets/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Data []Asset `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	name, _ := page.Data[0].Properties.Get("Name")
	require.Equal(t, "Dell 24", name)
}

func TestHandlerImportMissingCategoryColumn(t *testing.T) {
	store := newMemoryCatalog()
	h := NewHandler(nil, NewImporter(store, store, nil), store, nil, nil, t.TempDir(), 1<<20)
	r := chi.NewRouter()
	r.Route("/assets", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, upload(t, sheettest.Write(t, []any{"Name"}, []any{"x"})))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Empty(t, store.assets)
}
