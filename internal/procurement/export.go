package procurement

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

const exportSheet = "Purchase Orders"

// exportHeader mirrors the columns ParsePurchaseOrderSheet reads, plus the
// receiving columns it ignores.
var exportHeader = []string{"PO Number", "Date", "Vendor", "GSTIN", "Product", "Qty", "UOM", "Price", "GST %", "Total", "Received", "Status"}

// ExportPurchaseOrders writes every PO matching filters, one row per line
// item, as an xlsx workbook that ImportPurchaseOrderFile can read back.
// Filters' Limit and Offset are ignored.
func (s *Service) ExportPurchaseOrders(ctx context.Context, filters ListFilters, w io.Writer) (int, error) {
	orders, err := s.loadForExport(ctx, filters)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return 0, err
	}

	propKeys := propertyColumns(orders)
	header := make([]any, 0, len(exportHeader)+len(propKeys))
	for _, h := range exportHeader {
		header = append(header, h)
	}
	for _, k := range propKeys {
		header = append(header, k)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return 0, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(exportSheet, "A1", last, bold)
	}

	rowNum := 2
	for _, po := range orders {
		for _, li := range po.LineItems {
			row := []any{
				po.Number,
				po.Date.Format("2006-01-02"),
				po.VendorName,
				po.GSTIN,
				li.ProductName,
				li.Quantity,
				li.UOM,
				li.UnitPrice.InexactFloat64(),
				li.GSTPercent.InexactFloat64(),
				li.TotalAmount.InexactFloat64(),
				li.ReceivedQty,
				string(po.Status),
			}
			for _, k := range propKeys {
				v, _ := po.Properties.Get(k)
				row = append(row, v)
			}
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return 0, err
			}
			if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
				return 0, fmt.Errorf("procurement: export row %d: %w", rowNum, err)
			}
			rowNum++
		}
	}
	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("procurement: write workbook: %w", err)
	}
	return len(orders), nil
}

// loadForExport pages through headers and loads line items concurrently.
func (s *Service) loadForExport(ctx context.Context, filters ListFilters) ([]PurchaseOrder, error) {
	const page = 200
	filters.Limit = page
	filters.Offset = 0
	if filters.SortBy == "" {
		filters.SortBy, filters.SortDir = "number", "asc"
	}
	var headers []PurchaseOrder
	for {
		batch, total, err := s.repo.ListPurchaseOrders(ctx, filters)
		if err != nil {
			return nil, err
		}
		headers = append(headers, batch...)
		filters.Offset += len(batch)
		if len(batch) < page || filters.Offset >= total {
			break
		}
	}

	orders := make([]PurchaseOrder, len(headers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, h := range headers {
		g.Go(func() error {
			po, err := s.repo.GetPurchaseOrder(gctx, h.ID)
			if err != nil {
				return fmt.Errorf("load purchase order %s: %w", h.Number, err)
			}
			orders[i] = po
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return orders, nil
}

func propertyColumns(orders []PurchaseOrder) []string {
	seen := map[string]bool{}
	var keys []string
	for _, po := range orders {
		for _, k := range po.Properties.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
