package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/assettrack/internal/assets"
	"github.com/odyssey-erp/assettrack/internal/procurement"
	"github.com/odyssey-erp/assettrack/internal/sheet/sheettest"
)

type stubOrders struct {
	summary  procurement.ImportSummary
	err      error
	exported int
	filters  procurement.ListFilters
}

func (s *stubOrders) ImportPurchaseOrderFile(ctx context.Context, path string) (procurement.ImportSummary, error) {
	return s.summary, s.err
}

func (s *stubOrders) ExportPurchaseOrders(ctx context.Context, filters procurement.ListFilters, w io.Writer) (int, error) {
	s.filters = filters
	if s.err != nil {
		return 0, s.err
	}
	_, _ = w.Write([]byte("workbook"))
	return s.exported, nil
}

type stubAssets struct {
	report assets.ImportReport
}

func (s stubAssets) ImportFile(ctx context.Context, path string) (assets.ImportReport, error) {
	return s.report, nil
}

func fixedCLI(orders PurchaseOrderStore, assetImporter AssetImporter) *DocumentsCLI {
	c := NewDocumentsCLI(orders, assetImporter)
	c.now = func() time.Time { return time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC) }
	return c
}

func buffers() (*bytes.Buffer, *bytes.Buffer, Output) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	return stdout, stderr, Output{Stdout: stdout, Stderr: stderr}
}

func TestCheckCommandJSON(t *testing.T) {
	path := sheettest.Write(t,
		[]any{"PO Number", "Vendor", "Product", "Qty", "Price"},
		[]any{"PO-9", "Acme", "Cable", 10, 5},
	)
	stdout, stderr, out := buffers()
	out.JSONOutput = true

	code := fixedCLI(nil, nil).CheckCommand(context.Background(), path, out)
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var summary CheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Len(t, summary.Drafts, 1)
	require.Equal(t, "PO-9", summary.Drafts[0].PONumber)
	require.Equal(t, "2024-03-15", summary.Drafts[0].Date.Format("2006-01-02"))
	require.Empty(t, summary.Warnings)
}

func TestCheckCommandReportsWarnings(t *testing.T) {
	path := sheettest.Write(t,
		[]any{"PO Number", "Vendor", "Product", "Qty", "Price"},
		[]any{"PO-9", "Acme", "Cable", 10, 5},
		[]any{"", "Acme", "Cable", 1, 5},
	)
	stdout, _, out := buffers()

	code := fixedCLI(nil, nil).CheckCommand(context.Background(), path, out)
	require.Equal(t, ExitWarnings, code)
	require.Contains(t, stdout.String(), "PO-9 Acme: 1 line item(s), total 59.00")
	require.Contains(t, stdout.String(), "row 3: missing PO number")
}

func TestCheckCommandMalformedSheet(t *testing.T) {
	path := sheettest.Write(t, []any{"Product", "Qty"}, []any{"Cable", 1})
	_, stderr, out := buffers()

	code := fixedCLI(nil, nil).CheckCommand(context.Background(), path, out)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "check-po:")
	require.Contains(t, stderr.String(), "PO Number")
}

func TestScanCommandRequiresPath(t *testing.T) {
	_, stderr, out := buffers()
	code := fixedCLI(nil, nil).ScanCommand(context.Background(), " ", out)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "a pdf path is required")
}

func TestScanCommandMissingFile(t *testing.T) {
	_, stderr, out := buffers()
	code := fixedCLI(nil, nil).ScanCommand(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), out)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "scan-pdf:")
}

func TestRenderDraftListsLinesAndWarnings(t *testing.T) {
	draft := procurement.PurchaseOrderDraft{
		PONumber:   "PO-1",
		Date:       time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		VendorName: "Acme",
		Warnings:   []string{"line 7: unparsed item row"},
	}
	draft.Properties.Set("Dept Name", "IT")
	stdout := new(bytes.Buffer)

	renderDraft(stdout, draft)
	require.Contains(t, stdout.String(), "PO PO-1 dated 2024-01-10")
	require.Contains(t, stdout.String(), "Dept Name: IT")
	require.Contains(t, stdout.String(), "0 line item(s)")
	require.Contains(t, stdout.String(), "1 warning(s):")
}

func TestImportOrdersCommandSummarisesSkips(t *testing.T) {
	orders := &stubOrders{summary: procurement.ImportSummary{Total: 3, Created: 1, Skipped: []string{"PO-1", "PO-2"}}}
	stdout, _, out := buffers()

	code := fixedCLI(orders, nil).ImportOrdersCommand(context.Background(), "book.xlsx", out)
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "3 purchase order(s) read, 1 created")
	require.Contains(t, stdout.String(), "skipped existing: PO-1, PO-2")
}

func TestImportOrdersCommandFailure(t *testing.T) {
	orders := &stubOrders{err: errors.New("connection refused")}
	_, stderr, out := buffers()

	code := fixedCLI(orders, nil).ImportOrdersCommand(context.Background(), "book.xlsx", out)
	require.Equal(t, 1, code)
	require.Equal(t, "import-po: connection refused\n", stderr.String())
}

func TestImportCommandsNeedStores(t *testing.T) {
	_, stderr, out := buffers()
	c := fixedCLI(nil, nil)
	require.Equal(t, 1, c.ImportOrdersCommand(context.Background(), "a.xlsx", out))
	require.Equal(t, 1, c.ImportAssetsCommand(context.Background(), "a.xlsx", out))
	require.Contains(t, stderr.String(), "not configured")
}

func TestImportAssetsCommandRowErrors(t *testing.T) {
	importer := stubAssets{report: assets.ImportReport{
		Total:   2,
		Success: 1,
		Errors:  []assets.RowError{{Row: 3, Reason: "missing category"}},
	}}
	stdout, _, out := buffers()
	out.JSONOutput = true

	code := fixedCLI(nil, importer).ImportAssetsCommand(context.Background(), "assets.xlsx", out)
	require.Equal(t, ExitWarnings, code)

	var report assets.ImportReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Equal(t, 1, report.Success)
	require.Equal(t, 3, report.Errors[0].Row)
}

func TestExportCommandWritesFile(t *testing.T) {
	orders := &stubOrders{exported: 4}
	dest := filepath.Join(t.TempDir(), "out.xlsx")
	stdout, _, out := buffers()
	filters := procurement.ListFilters{Status: procurement.POStatusPartial, Search: "acme"}

	code := fixedCLI(orders, nil).ExportCommand(context.Background(), dest, filters, out)
	require.Zero(t, code)
	require.Equal(t, filters, orders.filters)
	require.Contains(t, stdout.String(), "exported 4 purchase order(s)")

	body, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "workbook", string(body))
}

func TestExportCommandRemovesPartialFile(t *testing.T) {
	orders := &stubOrders{err: errors.New("query failed")}
	dest := filepath.Join(t.TempDir(), "out.xlsx")
	_, stderr, out := buffers()

	code := fixedCLI(orders, nil).ExportCommand(context.Background(), dest, procurement.ListFilters{}, out)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "query failed")
	_, err := os.Stat(dest)
	require.True(t, os.IsNotExist(err))
}
