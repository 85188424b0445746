package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/assettrack/internal/assets"
	jobmetrics "github.com/odyssey-erp/assettrack/internal/jobs"
	"github.com/odyssey-erp/assettrack/internal/procurement"
	"github.com/odyssey-erp/assettrack/internal/sheet"
)

// PurchaseOrderImporter imports a purchase order workbook from disk.
type PurchaseOrderImporter interface {
	ImportPurchaseOrderFile(ctx context.Context, path string) (procurement.ImportSummary, error)
}

// AssetImporter imports an asset workbook from disk.
type AssetImporter interface {
	ImportFile(ctx context.Context, path string) (assets.ImportReport, error)
}

// ImportJob runs workbook imports queued by the HTTP handlers. The uploaded
// file is removed once the import finishes or can never succeed.
type ImportJob struct {
	orders  PurchaseOrderImporter
	assets  AssetImporter
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewImportJob initialises the import handlers. Either importer may be nil.
func NewImportJob(orders PurchaseOrderImporter, assetImporter AssetImporter, logger *slog.Logger, metrics *jobmetrics.Metrics) *ImportJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportJob{orders: orders, assets: assetImporter, logger: logger, metrics: metrics}
}

// HandlePurchaseOrders processes TaskImportPurchaseOrders tasks.
func (j *ImportJob) HandlePurchaseOrders(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.orders == nil {
		return errors.New("purchase order import: handler not configured")
	}
	path, err := importPath(t)
	if err != nil {
		return err
	}
	tracker := j.metrics.Track(TaskImportPurchaseOrders)
	defer func() { err = tracker.End(err) }()

	logger := j.logger.With(slog.String("path", path))
	summary, err := j.orders.ImportPurchaseOrderFile(ctx, path)
	if err != nil {
		logger.Error("purchase order import failed", slog.Any("error", err))
		return j.finish(path, err)
	}
	j.metrics.AddItems(TaskImportPurchaseOrders, "created", summary.Created)
	j.metrics.AddItems(TaskImportPurchaseOrders, "skipped", len(summary.Skipped))
	logger.Info("purchase order import finished",
		slog.Int("total", summary.Total),
		slog.Int("created", summary.Created),
		slog.Int("skipped", len(summary.Skipped)),
		slog.Int("warnings", len(summary.Warnings)))
	return j.finish(path, nil)
}

// HandleAssets processes TaskImportAssets tasks.
func (j *ImportJob) HandleAssets(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.assets == nil {
		return errors.New("asset import: handler not configured")
	}
	path, err := importPath(t)
	if err != nil {
		return err
	}
	tracker := j.metrics.Track(TaskImportAssets)
	defer func() { err = tracker.End(err) }()

	logger := j.logger.With(slog.String("path", path))
	report, err := j.assets.ImportFile(ctx, path)
	if err != nil {
		logger.Error("asset import failed", slog.Any("error", err))
		return j.finish(path, err)
	}
	j.metrics.AddItems(TaskImportAssets, "created", report.Success)
	j.metrics.AddItems(TaskImportAssets, "failed", len(report.Errors))
	logger.Info("asset import finished",
		slog.Int("total", report.Total),
		slog.Int("success", report.Success),
		slog.Int("errors", len(report.Errors)))
	return j.finish(path, nil)
}

// finish removes the workbook unless err may clear up on retry.
func (j *ImportJob) finish(path string, err error) error {
	if err != nil && !permanent(err) {
		return err
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		j.logger.Warn("remove import file", slog.String("path", path), slog.Any("error", rmErr))
	}
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

func permanent(err error) bool {
	var missingCols *sheet.MissingColumnsError
	var missingSheet *sheet.MissingSheetError
	return errors.As(err, &missingCols) ||
		errors.As(err, &missingSheet) ||
		errors.Is(err, fs.ErrNotExist) ||
		isValidation(err)
}

func isValidation(err error) bool {
	var vErr *procurement.ValidationError
	return errors.As(err, &vErr)
}

func importPath(t *asynq.Task) (string, error) {
	var payload ImportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Path == "" {
		return "", asynq.SkipRetry
	}
	return payload.Path, nil
}
