package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/assettrack/internal/assets"
	"github.com/odyssey-erp/assettrack/internal/procurement"
	"github.com/odyssey-erp/assettrack/internal/sheet"
)

// ExitWarnings is returned when a command succeeded but reported warnings.
const ExitWarnings = 10

// PurchaseOrderStore is the slice of the procurement service used by the CLI.
type PurchaseOrderStore interface {
	ImportPurchaseOrderFile(ctx context.Context, path string) (procurement.ImportSummary, error)
	ExportPurchaseOrders(ctx context.Context, filters procurement.ListFilters, w io.Writer) (int, error)
}

// AssetImporter imports asset workbooks.
type AssetImporter interface {
	ImportFile(ctx context.Context, path string) (assets.ImportReport, error)
}

// DocumentsCLI runs document parsing and import commands. The stores are only
// needed by commands that persist; scan and check work offline.
type DocumentsCLI struct {
	orders PurchaseOrderStore
	assets AssetImporter
	now    func() time.Time
}

// NewDocumentsCLI builds the helpers. Either store may be nil.
func NewDocumentsCLI(orders PurchaseOrderStore, assetImporter AssetImporter) *DocumentsCLI {
	return &DocumentsCLI{orders: orders, assets: assetImporter, now: time.Now}
}

// Output selects where and how results are printed.
type Output struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *Output) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

func (o Output) fail(cmd string, err error) int {
	_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
	return 1
}

func (o Output) encode(cmd string, v any) int {
	enc := json.NewEncoder(o.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return o.fail(cmd, fmt.Errorf("encode json: %w", err))
	}
	return 0
}

// ScanCommand parses a purchase order PDF and prints the draft.
func (c *DocumentsCLI) ScanCommand(ctx context.Context, path string, out Output) int {
	out.defaults()
	if strings.TrimSpace(path) == "" {
		_, _ = fmt.Fprintln(out.Stderr, "scan-pdf: a pdf path is required")
		return 1
	}
	draft, err := procurement.ScanPDF(path, c.today())
	if err != nil {
		return out.fail("scan-pdf", err)
	}
	if out.JSONOutput {
		if code := out.encode("scan-pdf", draft); code != 0 {
			return code
		}
	} else {
		renderDraft(out.Stdout, draft)
	}
	if len(draft.Warnings) > 0 {
		return ExitWarnings
	}
	return 0
}

// CheckSummary is the JSON output of the check-po command.
type CheckSummary struct {
	OK       bool                             `json:"ok"`
	Drafts   []procurement.PurchaseOrderDraft `json:"drafts"`
	Warnings []string                         `json:"warnings"`
}

// CheckCommand parses a purchase order workbook without writing anything.
func (c *DocumentsCLI) CheckCommand(ctx context.Context, path string, out Output) int {
	out.defaults()
	r, err := sheet.Open(path)
	if err != nil {
		return out.fail("check-po", err)
	}
	defer r.Close()
	drafts, warnings, err := procurement.ParsePurchaseOrderSheet(r, c.today())
	if err != nil {
		return out.fail("check-po", err)
	}
	if drafts == nil {
		drafts = []procurement.PurchaseOrderDraft{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	if out.JSONOutput {
		if code := out.encode("check-po", CheckSummary{OK: len(warnings) == 0, Drafts: drafts, Warnings: warnings}); code != 0 {
			return code
		}
	} else {
		_, _ = fmt.Fprintf(out.Stdout, "%d purchase order(s) in %s\n", len(drafts), path)
		for _, d := range drafts {
			_, _ = fmt.Fprintf(out.Stdout, " - %s %s: %d line item(s), total %s\n", d.PONumber, d.VendorName, len(d.LineItems), d.GrandTotal().StringFixed(2))
		}
		renderWarnings(out.Stdout, warnings)
	}
	if len(warnings) > 0 {
		return ExitWarnings
	}
	return 0
}

// ImportOrdersCommand imports a purchase order workbook.
func (c *DocumentsCLI) ImportOrdersCommand(ctx context.Context, path string, out Output) int {
	out.defaults()
	if c.orders == nil {
		return out.fail("import-po", fmt.Errorf("purchase order store not configured"))
	}
	summary, err := c.orders.ImportPurchaseOrderFile(ctx, path)
	if err != nil {
		return out.fail("import-po", err)
	}
	if out.JSONOutput {
		if code := out.encode("import-po", summary); code != 0 {
			return code
		}
	} else {
		_, _ = fmt.Fprintf(out.Stdout, "%d purchase order(s) read, %d created\n", summary.Total, summary.Created)
		if len(summary.Skipped) > 0 {
			_, _ = fmt.Fprintf(out.Stdout, "skipped existing: %s\n", strings.Join(summary.Skipped, ", "))
		}
		renderWarnings(out.Stdout, summary.Warnings)
	}
	if len(summary.Warnings) > 0 {
		return ExitWarnings
	}
	return 0
}

// ImportAssetsCommand imports an asset workbook.
func (c *DocumentsCLI) ImportAssetsCommand(ctx context.Context, path string, out Output) int {
	out.defaults()
	if c.assets == nil {
		return out.fail("import-assets", fmt.Errorf("asset importer not configured"))
	}
	report, err := c.assets.ImportFile(ctx, path)
	if err != nil {
		return out.fail("import-assets", err)
	}
	if out.JSONOutput {
		if code := out.encode("import-assets", report); code != 0 {
			return code
		}
	} else {
		_, _ = fmt.Fprintf(out.Stdout, "%d row(s) read, %d imported, %d failed\n", report.Total, report.Success, len(report.Errors))
		for _, rowErr := range report.Errors {
			_, _ = fmt.Fprintf(out.Stdout, " - %s\n", rowErr.Error())
		}
	}
	if len(report.Errors) > 0 {
		return ExitWarnings
	}
	return 0
}

// ExportCommand writes purchase orders matching filters to an xlsx file.
func (c *DocumentsCLI) ExportCommand(ctx context.Context, dest string, filters procurement.ListFilters, out Output) int {
	out.defaults()
	if c.orders == nil {
		return out.fail("export-po", fmt.Errorf("purchase order store not configured"))
	}
	if strings.TrimSpace(dest) == "" {
		_, _ = fmt.Fprintln(out.Stderr, "export-po: an output path is required")
		return 1
	}
	f, err := os.Create(dest)
	if err != nil {
		return out.fail("export-po", err)
	}
	n, err := c.orders.ExportPurchaseOrders(ctx, filters, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return out.fail("export-po", err)
	}
	_, _ = fmt.Fprintf(out.Stdout, "exported %d purchase order(s) to %s\n", n, dest)
	return 0
}

func (c *DocumentsCLI) today() time.Time {
	y, m, d := c.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func renderDraft(w io.Writer, d procurement.PurchaseOrderDraft) {
	_, _ = fmt.Fprintf(w, "PO %s dated %s\n", valueOr(d.PONumber, "(none)"), d.Date.Format("2006-01-02"))
	_, _ = fmt.Fprintf(w, "Vendor: %s\n", valueOr(d.VendorName, "(none)"))
	if d.GSTIN != "" {
		_, _ = fmt.Fprintf(w, "GSTIN: %s\n", d.GSTIN)
	}
	d.Properties.Each(func(key, value string) {
		_, _ = fmt.Fprintf(w, "%s: %s\n", key, value)
	})
	_, _ = fmt.Fprintf(w, "%d line item(s):\n", len(d.LineItems))
	for _, li := range d.LineItems {
		_, _ = fmt.Fprintf(w, " %d. %s x%g @ %s (+%s%% GST) = %s\n", li.SrNo, li.ProductName, li.Quantity, li.UnitPrice.StringFixed(2), li.GSTPercent.String(), li.TotalAmount.StringFixed(2))
	}
	_, _ = fmt.Fprintf(w, "Grand total: %s\n", d.GrandTotal().StringFixed(2))
	renderWarnings(w, d.Warnings)
}

func renderWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "%d warning(s):\n", len(warnings))
	for _, warn := range warnings {
		_, _ = fmt.Fprintf(w, " - %s\n", warn)
	}
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
