package assets

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/assettrack/internal/shared"
)

// StatusActive is the status of every newly created asset.
const StatusActive = "ACTIVE"

// DefaultSubCategory is used when an import row names no sub-category.
const DefaultSubCategory = "General"

// Category groups sub-categories.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// SubCategory is the placement target for assets.
type SubCategory struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
}

// Asset is one tracked inventory item.
type Asset struct {
	ID              string            `json:"id"`
	SubCategoryID   string            `json:"sub_category_id"`
	Status          string            `json:"status"`
	PurchaseOrderID string            `json:"purchase_order_id,omitempty"`
	Properties      shared.Properties `json:"properties"`
	CreatedAt       time.Time         `json:"created_at"`
}

// RowError records why one spreadsheet row was not imported.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// ImportReport summarises an asset spreadsheet import.
type ImportReport struct {
	Total   int        `json:"total"`
	Success int        `json:"success"`
	Errors  []RowError `json:"errors"`
}

// ErrNotFound indicates a missing category, sub-category or asset.
var ErrNotFound = fmt.Errorf("assets: %w", shared.ErrNotFound)

// ErrMissingCategory is reported for rows with a blank category cell.
var ErrMissingCategory = errors.New("category is required")
