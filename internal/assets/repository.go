package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/assettrack/internal/shared"
)

// CatalogStore resolves and creates categories and sub-categories.
type CatalogStore interface {
	FindCategoryByName(ctx context.Context, name string) (Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	FindSubCategory(ctx context.Context, categoryID, slug string) (SubCategory, error)
	CreateSubCategory(ctx context.Context, s SubCategory) (SubCategory, error)
}

// AssetStore persists a single asset.
type AssetStore interface {
	CreateAsset(ctx context.Context, a Asset) (Asset, error)
}

// ListFilters narrows ListAssets.
type ListFilters struct {
	PurchaseOrderID string
	SubCategoryID   string
	Limit           int
	Offset          int
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindCategoryByName looks a category up by its exact name.
func (r *Repository) FindCategoryByName(ctx context.Context, name string) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, slug FROM categories WHERE name=$1`, name).
		Scan(&c.ID, &c.Name, &c.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}

// CreateCategory inserts c, assigning an ID when empty.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)`, c.ID, c.Name, c.Slug)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Category{}, fmt.Errorf("category %q: %w", c.Name, shared.ErrDuplicate)
		}
		return Category{}, shared.Persistence("create category", err)
	}
	return c, nil
}

// FindSubCategory looks a sub-category up by slug within a category.
func (r *Repository) FindSubCategory(ctx context.Context, categoryID, slug string) (SubCategory, error) {
	var s SubCategory
	err := r.pool.QueryRow(ctx, `SELECT id, category_id, name, slug FROM sub_categories WHERE category_id=$1 AND slug=$2`, categoryID, slug).
		Scan(&s.ID, &s.CategoryID, &s.Name, &s.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubCategory{}, ErrNotFound
		}
		return SubCategory{}, err
	}
	return s, nil
}

// CreateSubCategory inserts s, assigning an ID when empty.
func (r *Repository) CreateSubCategory(ctx context.Context, s SubCategory) (SubCategory, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO sub_categories (id, category_id, name, slug) VALUES ($1, $2, $3, $4)`,
		s.ID, s.CategoryID, s.Name, s.Slug)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return SubCategory{}, fmt.Errorf("sub-category %q: %w", s.Slug, shared.ErrDuplicate)
		}
		return SubCategory{}, shared.Persistence("create sub-category", err)
	}
	return s, nil
}

// CreateAsset inserts a single asset.
func (r *Repository) CreateAsset(ctx context.Context, a Asset) (Asset, error) {
	list := []Asset{a}
	if err := InsertAssets(ctx, r.pool, list); err != nil {
		return Asset{}, err
	}
	return list[0], nil
}

// ListAssets returns assets newest first.
func (r *Repository) ListAssets(ctx context.Context, filters ListFilters) ([]Asset, error) {
	sql := `SELECT id, sub_category_id, status, COALESCE(purchase_order_id::text, ''), properties, created_at FROM assets WHERE 1=1`
	args := []any{}
	if filters.PurchaseOrderID != "" {
		args = append(args, filters.PurchaseOrderID)
		sql += ` AND purchase_order_id = $` + itoa(len(args))
	}
	if filters.SubCategoryID != "" {
		args = append(args, filters.SubCategoryID)
		sql += ` AND sub_category_id = $` + itoa(len(args))
	}
	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filters.Offset)
	sql += ` ORDER BY created_at DESC, id LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		var a Asset
		var props []byte
		if err := rows.Scan(&a.ID, &a.SubCategoryID, &a.Status, &a.PurchaseOrderID, &props, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(props, &a.Properties); err != nil {
			return nil, fmt.Errorf("assets: decode properties of %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// insertChunk keeps a multi-row insert under the PostgreSQL parameter limit.
const insertChunk = 1000

// InsertAssets writes list through q in as few statements as possible.
// Missing IDs and statuses are filled in place. Passing a pgx.Tx makes the
// write part of that transaction. The properties column is json, not jsonb,
// so key order survives the round trip.
func InsertAssets(ctx context.Context, q shared.Execer, list []Asset) error {
	for start := 0; start < len(list); start += insertChunk {
		end := min(start+insertChunk, len(list))
		if err := insertBatch(ctx, q, list[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertBatch(ctx context.Context, q shared.Execer, batch []Asset) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO assets (id, sub_category_id, status, purchase_order_id, properties) VALUES `)
	args := make([]any, 0, len(batch)*5)
	for i := range batch {
		a := &batch[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Status == "" {
			a.Status = StatusActive
		}
		props, err := json.Marshal(a.Properties)
		if err != nil {
			return fmt.Errorf("assets: encode properties: %w", err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		n := len(args)
		b.WriteString(`($` + itoa(n+1) + `, $` + itoa(n+2) + `, $` + itoa(n+3) + `, NULLIF($` + itoa(n+4) + `, '')::uuid, $` + itoa(n+5) + `)`)
		args = append(args, a.ID, a.SubCategoryID, a.Status, a.PurchaseOrderID, string(props))
	}
	if _, err := q.Exec(ctx, b.String(), args...); err != nil {
		return shared.Persistence("create assets", err)
	}
	return nil
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
