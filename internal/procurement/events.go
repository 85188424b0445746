package procurement

import (
	"context"
	"time"
)

// ItemsReceivedEvent describes a committed receipt.
type ItemsReceivedEvent struct {
	PurchaseOrderID string
	PONumber        string
	Status          POStatus
	UnitsReceived   int
	AssetIDs        []string
	ReceivedAt      time.Time
}

// PurchaseOrdersImportedEvent describes a finished spreadsheet or PDF import.
type PurchaseOrdersImportedEvent struct {
	Source  string
	Total   int
	Created int
	Skipped int
}

// EventHandler is notified after procurement changes commit. Errors are
// logged and never undo the change.
type EventHandler interface {
	HandleItemsReceived(ctx context.Context, evt ItemsReceivedEvent) error
	HandlePurchaseOrdersImported(ctx context.Context, evt PurchaseOrdersImportedEvent) error
}
