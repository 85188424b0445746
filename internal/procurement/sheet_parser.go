package procurement

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/assettrack/internal/sheet"
)

// Column names and accepted aliases of a PO import sheet.
var (
	colPONumber = []string{"po number", "po no", "po no."}
	colVendor   = []string{"vendor", "vendor name"}
	colProduct  = []string{"product", "product name", "item"}
	colDate     = []string{"date", "po date"}
	colGSTIN    = []string{"gstin"}
	colQty      = []string{"qty", "quantity"}
	colPrice    = []string{"price", "unit price", "rate"}
	colGST      = []string{"gst", "gst %", "gst%", "gst percent"}
	colUOM      = []string{"uom", "unit"}

	// written by ExportPurchaseOrders, never imported
	colIgnored = []string{"total", "received", "status"}
)

var sheetDateLayouts = []string{
	"2006-01-02",
	"2-Jan-2006",
	"02-Jan-2006",
	"2-Jan-06",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"01-02-06",
	"Jan 2, 2006",
	time.RFC3339,
}

type sheetColumns struct {
	number, vendor, product int
	date, gstin, qty        int
	price, gst, uom         int

	hasDate, hasGSTIN, hasQty bool
	hasPrice, hasGST, hasUOM  bool

	extra []int
}

func resolveColumns(h sheet.Header) (sheetColumns, error) {
	var c sheetColumns
	var ok bool
	var missing []string
	if c.number, ok = h.First(colPONumber...); !ok {
		missing = append(missing, "PO Number")
	}
	if c.vendor, ok = h.First(colVendor...); !ok {
		missing = append(missing, "Vendor")
	}
	if c.product, ok = h.First(colProduct...); !ok {
		missing = append(missing, "Product")
	}
	if len(missing) > 0 {
		return c, &sheet.MissingColumnsError{Columns: missing}
	}
	c.date, c.hasDate = h.First(colDate...)
	c.gstin, c.hasGSTIN = h.First(colGSTIN...)
	c.qty, c.hasQty = h.First(colQty...)
	c.price, c.hasPrice = h.First(colPrice...)
	c.gst, c.hasGST = h.First(colGST...)
	c.uom, c.hasUOM = h.First(colUOM...)

	known := map[int]bool{c.number: true, c.vendor: true, c.product: true}
	for _, pair := range []struct {
		idx int
		ok  bool
	}{{c.date, c.hasDate}, {c.gstin, c.hasGSTIN}, {c.qty, c.hasQty}, {c.price, c.hasPrice}, {c.gst, c.hasGST}, {c.uom, c.hasUOM}} {
		if pair.ok {
			known[pair.idx] = true
		}
	}
	for _, name := range colIgnored {
		if i, ok := h.Index(name); ok {
			known[i] = true
		}
	}
	for i, name := range h.Names() {
		if name != "" && !known[i] {
			c.extra = append(c.extra, i)
		}
	}
	return c, nil
}

// ParsePurchaseOrderSheet groups the rows of r into one draft per PO number in
// first-seen order. The first row of a PO supplies its header fields and extra
// columns become draft properties. Rows without a PO number are skipped and
// reported in the returned warnings.
func ParsePurchaseOrderSheet(r *sheet.Reader, defaultDate time.Time) ([]PurchaseOrderDraft, []string, error) {
	h := r.Header()
	cols, err := resolveColumns(h)
	if err != nil {
		return nil, nil, err
	}
	names := h.Names()

	var drafts []PurchaseOrderDraft
	var warnings []string
	index := map[string]int{}
	for r.Next() {
		row := r.Row()
		number := row.Cell(cols.number)
		if number == "" {
			warnings = append(warnings, fmt.Sprintf("row %d: missing PO number", row.Number))
			continue
		}
		i, seen := index[number]
		if !seen {
			d := PurchaseOrderDraft{
				PONumber:   number,
				Date:       defaultDate,
				VendorName: row.Cell(cols.vendor),
				LineItems:  []LineItemDraft{},
			}
			if cols.hasDate {
				if t, ok := parseSheetDate(row.Cell(cols.date)); ok {
					d.Date = t
				}
			}
			if cols.hasGSTIN {
				d.GSTIN = strings.ToUpper(row.Cell(cols.gstin))
			}
			for _, col := range cols.extra {
				if v := row.Cell(col); v != "" {
					d.Properties.Set(names[col], v)
				}
			}
			drafts = append(drafts, d)
			i = len(drafts) - 1
			index[number] = i
		}

		qty := 1.0
		if cols.hasQty {
			if v, err := strconv.ParseFloat(cleanNumber(row.Cell(cols.qty)), 64); err == nil {
				qty = v
			}
		}
		price := decimal.Zero
		if cols.hasPrice {
			if v, err := decimal.NewFromString(cleanNumber(row.Cell(cols.price))); err == nil {
				price = v
			}
		}
		gst := DefaultGSTPercent
		if cols.hasGST {
			if v, err := decimal.NewFromString(strings.TrimSuffix(cleanNumber(row.Cell(cols.gst)), "%")); err == nil {
				gst = v
			}
		}
		uom := DefaultUOM
		if cols.hasUOM && row.Cell(cols.uom) != "" {
			uom = row.Cell(cols.uom)
		}

		d := &drafts[i]
		d.LineItems = append(d.LineItems, NewLineItemDraft(len(d.LineItems)+1, row.Cell(cols.product), qty, uom, price, gst))
	}
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	return drafts, warnings, nil
}

func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimPrefix(s, "Rs.")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}

// parseSheetDate accepts common display formats and raw Excel serials.
func parseSheetDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range sheetDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
