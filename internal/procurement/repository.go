package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/assettrack/internal/assets"
	"github.com/odyssey-erp/assettrack/internal/platform/db"
	"github.com/odyssey-erp/assettrack/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations receiving performs inside one transaction.
type TxRepository interface {
	LockPurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error)
	IncrementReceived(ctx context.Context, poID, lineItemID string, delta float64) error
	FindLineItem(ctx context.Context, poID, lineItemID string) (LineItem, error)
	ListLineItems(ctx context.Context, poID string) ([]LineItem, error)
	UpdateStatus(ctx context.Context, poID string, status POStatus) error
	CreateAssets(ctx context.Context, list []assets.Asset) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
	ClaimIdempotencyKey(ctx context.Context, key string) error
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const poColumns = `id, number, po_date, vendor_name, COALESCE(gstin, ''), status, properties, created_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var props []byte
	if err := row.Scan(&po.ID, &po.Number, &po.Date, &po.VendorName, &po.GSTIN, &po.Status, &props, &po.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &po.Properties); err != nil {
			return PurchaseOrder{}, fmt.Errorf("procurement: decode properties of %s: %w", po.ID, err)
		}
	}
	return po, nil
}

// FindByNumber returns the PO with the given number or ErrNotFound.
func (r *Repository) FindByNumber(ctx context.Context, number string) (PurchaseOrder, error) {
	return scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE number=$1`, number))
}

// GetPurchaseOrder returns the PO with its line items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.LineItems, err = listLineItems(ctx, r.pool, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// CreateFromDraft persists a draft and its line items in a single transaction.
func (r *Repository) CreateFromDraft(ctx context.Context, draft PurchaseOrderDraft) (PurchaseOrder, error) {
	po := PurchaseOrder{
		ID:         uuid.NewString(),
		Number:     draft.PONumber,
		Date:       draft.Date,
		VendorName: draft.VendorName,
		GSTIN:      draft.GSTIN,
		Status:     POStatusIssued,
		Properties: draft.Properties,
	}
	props, err := json.Marshal(po.Properties)
	if err != nil {
		return PurchaseOrder{}, err
	}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO purchase_orders (id, number, po_date, vendor_name, gstin, status, properties)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7) RETURNING created_at`,
			po.ID, po.Number, po.Date, po.VendorName, po.GSTIN, po.Status, string(props)).Scan(&po.CreatedAt)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, d := range draft.LineItems {
			li := LineItem{
				ID:              uuid.NewString(),
				PurchaseOrderID: po.ID,
				SrNo:            d.SrNo,
				ProductName:     d.ProductName,
				Quantity:        d.Quantity,
				UOM:             d.UOM,
				UnitPrice:       d.UnitPrice,
				GSTPercent:      d.GSTPercent,
				TotalAmount:     d.TotalAmount,
			}
			batch.Queue(`INSERT INTO line_items (id, po_id, sr_no, product_name, quantity, uom, unit_price, gst_percent, total_amount, received_qty)
				VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, 0)`,
				li.ID, li.PurchaseOrderID, li.SrNo, li.ProductName, li.Quantity, li.UOM,
				li.UnitPrice.String(), li.GSTPercent.String(), li.TotalAmount.String())
			po.LineItems = append(po.LineItems, li)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return PurchaseOrder{}, fmt.Errorf("%w: %s", ErrDuplicate, draft.PONumber)
		}
		return PurchaseOrder{}, shared.Persistence("create purchase order", err)
	}
	return po, nil
}

// ListPurchaseOrders returns headers matching filters and the total count.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += ` AND status = $` + itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (number ILIKE $` + itoa(len(args)) + ` OR vendor_name ILIKE $` + itoa(len(args)) + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filters.Offset)
	sql := `SELECT ` + poColumns + ` FROM purchase_orders` + where +
		` ORDER BY ` + sortOrderPO(filters.SortBy, filters.SortDir) +
		` LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// LockPurchaseOrder reads the PO header and holds its row lock until commit.
func (t *txRepo) LockPurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return scanPO(t.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
}

// IncrementReceived adds delta to a line item of poID.
func (t *txRepo) IncrementReceived(ctx context.Context, poID, lineItemID string, delta float64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE line_items SET received_qty = received_qty + $3 WHERE id=$1 AND po_id=$2`, lineItemID, poID, delta)
	if err != nil {
		return shared.Persistence("increment received quantity", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line item %s: %w", lineItemID, ErrNotFound)
	}
	return nil
}

func (t *txRepo) FindLineItem(ctx context.Context, poID, lineItemID string) (LineItem, error) {
	li, err := scanLineItem(t.tx.QueryRow(ctx, `SELECT `+lineItemColumns+` FROM line_items WHERE id=$1 AND po_id=$2`, lineItemID, poID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, ErrNotFound
		}
		return LineItem{}, err
	}
	return li, nil
}

func (t *txRepo) ListLineItems(ctx context.Context, poID string) ([]LineItem, error) {
	return listLineItems(ctx, t.tx, poID)
}

func (t *txRepo) UpdateStatus(ctx context.Context, poID string, status POStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, updated_at=NOW() WHERE id=$1`, poID, status)
	return shared.Persistence("update purchase order status", err)
}

func (t *txRepo) CreateAssets(ctx context.Context, list []assets.Asset) error {
	return assets.InsertAssets(ctx, t.tx, list)
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.Persistence("record audit", shared.RecordWith(ctx, t.tx, log))
}

func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, key string) error {
	return shared.ClaimKey(ctx, t.tx, key, idempotencyModule)
}

const lineItemColumns = `id, po_id, sr_no, product_name, quantity, uom, unit_price::text, gst_percent::text, total_amount::text, received_qty`

func scanLineItem(row pgx.Row) (LineItem, error) {
	var li LineItem
	var price, gst, total string
	if err := row.Scan(&li.ID, &li.PurchaseOrderID, &li.SrNo, &li.ProductName, &li.Quantity, &li.UOM,
		&price, &gst, &total, &li.ReceivedQty); err != nil {
		return LineItem{}, err
	}
	var err error
	if li.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return LineItem{}, err
	}
	if li.GSTPercent, err = decimal.NewFromString(gst); err != nil {
		return LineItem{}, err
	}
	if li.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return LineItem{}, err
	}
	return li, nil
}

func listLineItems(ctx context.Context, q queryer, poID string) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT `+lineItemColumns+` FROM line_items WHERE po_id=$1 ORDER BY sr_no`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

// sortOrderPO returns a safe ORDER BY clause for PO queries.
func sortOrderPO(sortBy, sortDir string) string {
	dir := "DESC"
	if strings.EqualFold(sortDir, "asc") {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "number " + dir
	case "vendor":
		return "vendor_name " + dir
	case "date":
		return "po_date " + dir + ", number"
	case "status":
		return "status " + dir + ", number"
	default:
		return "created_at " + dir
	}
}
