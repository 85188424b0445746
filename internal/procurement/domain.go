package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/assettrack/internal/assets"
	"github.com/odyssey-erp/assettrack/internal/shared"
)

// Purchase order fulfillment statuses.
type POStatus string

const (
	POStatusIssued    POStatus = "ISSUED"
	POStatusPartial   POStatus = "PARTIAL"
	POStatusCompleted POStatus = "COMPLETED"
)

// Defaults applied to parsed line items.
const (
	DefaultUOM         = "Nos"
	DefaultProductName = "Unnamed Item"
	UnknownSerial      = "Unknown"
)

// DefaultGSTPercent is the tax rate assumed when a source carries none.
var DefaultGSTPercent = decimal.NewFromInt(18)

var hundred = decimal.NewFromInt(100)

// LineTotal returns qty * price * (1 + gst/100) rounded to two places.
func LineTotal(qty float64, price, gstPercent decimal.Decimal) decimal.Decimal {
	rate := decimal.NewFromInt(1).Add(gstPercent.Div(hundred))
	return decimal.NewFromFloat(qty).Mul(price).Mul(rate).Round(2)
}

// LineItemDraft is one parsed, unpersisted order line.
type LineItemDraft struct {
	SrNo        int             `json:"sr_no"`
	ProductName string          `json:"product_name"`
	Quantity    float64         `json:"quantity"`
	UOM         string          `json:"uom"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	GSTPercent  decimal.Decimal `json:"gst_percent"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// NewLineItemDraft fills defaults and computes the line total.
func NewLineItemDraft(srNo int, product string, qty float64, uom string, price, gstPercent decimal.Decimal) LineItemDraft {
	if uom == "" {
		uom = DefaultUOM
	}
	return LineItemDraft{
		SrNo:        srNo,
		ProductName: product,
		Quantity:    qty,
		UOM:         uom,
		UnitPrice:   price,
		GSTPercent:  gstPercent,
		TotalAmount: LineTotal(qty, price, gstPercent),
	}
}

// PurchaseOrderDraft is the transient result of parsing a PDF or spreadsheet.
type PurchaseOrderDraft struct {
	PONumber   string            `json:"po_number"`
	Date       time.Time         `json:"date"`
	VendorName string            `json:"vendor_name"`
	GSTIN      string            `json:"gstin"`
	LineItems  []LineItemDraft   `json:"line_items"`
	Properties shared.Properties `json:"properties"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// GrandTotal sums the line totals.
func (d PurchaseOrderDraft) GrandTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range d.LineItems {
		total = total.Add(li.TotalAmount)
	}
	return total
}

// PurchaseOrder is a persisted order with its line items.
type PurchaseOrder struct {
	ID         string            `json:"id"`
	Number     string            `json:"number"`
	Date       time.Time         `json:"date"`
	VendorName string            `json:"vendor_name"`
	GSTIN      string            `json:"gstin,omitempty"`
	Status     POStatus          `json:"status"`
	Properties shared.Properties `json:"properties"`
	LineItems  []LineItem        `json:"line_items,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// GrandTotal sums the line totals.
func (po PurchaseOrder) GrandTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range po.LineItems {
		total = total.Add(li.TotalAmount)
	}
	return total
}

// LineItem is one persisted order line. ReceivedQty only grows.
type LineItem struct {
	ID              string          `json:"id"`
	PurchaseOrderID string          `json:"purchase_order_id"`
	SrNo            int             `json:"sr_no"`
	ProductName     string          `json:"product_name"`
	Quantity        float64         `json:"quantity"`
	UOM             string          `json:"uom"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ReceivedQty     float64         `json:"received_qty"`
}

// FullyReceived reports whether the ordered quantity has arrived.
func (li LineItem) FullyReceived() bool {
	return li.ReceivedQty >= li.Quantity
}

// ReceiptInstruction asks for Quantity units of one line item to be received
// into a sub-category. Missing serials are synthesized.
type ReceiptInstruction struct {
	LineItemID          string   `json:"line_item_id" validate:"required"`
	Quantity            int      `json:"quantity" validate:"gt=0"`
	TargetSubCategoryID string   `json:"target_sub_category_id"`
	Serials             []string `json:"serials"`
}

// ReceiveResult describes a committed receipt.
type ReceiveResult struct {
	PurchaseOrderID string         `json:"purchase_order_id"`
	Status          POStatus       `json:"status"`
	UnitsReceived   int            `json:"units_received"`
	Assets          []assets.Asset `json:"assets"`
}

// ImportSummary reports a spreadsheet PO import. Skipped holds PO numbers that
// already existed.
type ImportSummary struct {
	Total          int             `json:"total"`
	Created        int             `json:"created"`
	Skipped        []string        `json:"skipped"`
	Warnings       []string        `json:"warnings,omitempty"`
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

// ListFilters narrows ListPurchaseOrders.
type ListFilters struct {
	Status  POStatus
	Search  string
	SortBy  string
	SortDir string
	Limit   int
	Offset  int
}

// computeStatus returns COMPLETED when every line is fully received.
func computeStatus(items []LineItem) POStatus {
	for _, li := range items {
		if !li.FullyReceived() {
			return POStatusPartial
		}
	}
	return POStatusCompleted
}
