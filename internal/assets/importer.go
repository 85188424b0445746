package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/assettrack/internal/shared"
	"github.com/odyssey-erp/assettrack/internal/sheet"
)

// Importer materializes spreadsheet rows into assets, creating missing
// categories and sub-categories along the way.
type Importer struct {
	catalog CatalogStore
	assets  AssetStore
	logger  *slog.Logger
}

// NewImporter constructs an Importer.
func NewImporter(catalog CatalogStore, assets AssetStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{catalog: catalog, assets: assets, logger: logger}
}

// ImportFile opens the workbook at path and imports its first sheet.
func (im *Importer) ImportFile(ctx context.Context, path string) (ImportReport, error) {
	r, err := sheet.Open(path)
	if err != nil {
		return ImportReport{}, err
	}
	defer r.Close()
	return im.Import(ctx, r)
}

// Import reads every data row of r. Only a missing "category" header or a
// read failure aborts; problems with a single row land in the report.
func (im *Importer) Import(ctx context.Context, r *sheet.Reader) (ImportReport, error) {
	header := r.Header()
	if err := header.Require("category"); err != nil {
		return ImportReport{}, err
	}
	catCol, _ := header.Index("category")
	subCol, hasSub := header.First("subcategory", "sub category", "sub-category")
	names := header.Names()

	res := &resolver{catalog: im.catalog, categories: map[string]Category{}, subs: map[string]SubCategory{}}
	report := ImportReport{Errors: []RowError{}}
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		row := r.Row()
		report.Total++

		catName := row.Cell(catCol)
		if catName == "" {
			report.Errors = append(report.Errors, RowError{Row: row.Number, Reason: ErrMissingCategory.Error()})
			continue
		}
		subName := DefaultSubCategory
		if hasSub && row.Cell(subCol) != "" {
			subName = row.Cell(subCol)
		}

		sub, err := res.subCategory(ctx, catName, subName)
		if err != nil {
			report.Errors = append(report.Errors, RowError{Row: row.Number, Reason: err.Error()})
			continue
		}

		var props shared.Properties
		for i, name := range names {
			if i == catCol || (hasSub && i == subCol) || name == "" {
				continue
			}
			if v := row.Cell(i); v != "" {
				props.Set(name, v)
			}
		}

		if _, err := im.assets.CreateAsset(ctx, Asset{SubCategoryID: sub.ID, Status: StatusActive, Properties: props}); err != nil {
			report.Errors = append(report.Errors, RowError{Row: row.Number, Reason: err.Error()})
			continue
		}
		report.Success++
	}
	if err := r.Err(); err != nil {
		return report, err
	}
	im.logger.Info("asset import finished",
		slog.Int("total", report.Total),
		slog.Int("success", report.Success),
		slog.Int("errors", len(report.Errors)))
	return report, nil
}

// resolver caches find-or-create lookups for one import run.
type resolver struct {
	catalog    CatalogStore
	categories map[string]Category
	subs       map[string]SubCategory
}

func (r *resolver) category(ctx context.Context, name string) (Category, error) {
	if c, ok := r.categories[name]; ok {
		return c, nil
	}
	c, err := r.catalog.FindCategoryByName(ctx, name)
	if errors.Is(err, shared.ErrNotFound) {
		c, err = r.catalog.CreateCategory(ctx, Category{Name: name, Slug: Slugify(name)})
	}
	if err != nil {
		return Category{}, fmt.Errorf("resolve category %q: %w", name, err)
	}
	r.categories[name] = c
	return c, nil
}

func (r *resolver) subCategory(ctx context.Context, catName, subName string) (SubCategory, error) {
	cat, err := r.category(ctx, catName)
	if err != nil {
		return SubCategory{}, err
	}
	slug := SubCategorySlug(cat.Slug, subName)
	key := cat.ID + "/" + slug
	if s, ok := r.subs[key]; ok {
		return s, nil
	}
	s, err := r.catalog.FindSubCategory(ctx, cat.ID, slug)
	if errors.Is(err, shared.ErrNotFound) {
		s, err = r.catalog.CreateSubCategory(ctx, SubCategory{CategoryID: cat.ID, Name: subName, Slug: slug})
	}
	if err != nil {
		return SubCategory{}, fmt.Errorf("resolve sub-category %q: %w", subName, err)
	}
	r.subs[key] = s
	return s, nil
}
