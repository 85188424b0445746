package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskImportPurchaseOrders imports a saved purchase order workbook.
	TaskImportPurchaseOrders = "procurement:import_purchase_orders"
	// TaskImportAssets imports a saved asset workbook.
	TaskImportAssets = "assets:import"
	// TaskIdempotencyCleanup purges expired receiving idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// ImportPayload points at an uploaded workbook on shared storage.
type ImportPayload struct {
	Path string `json:"path"`
}

// CleanupPayload configures the idempotency purge.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewImportPurchaseOrdersTask constructs a purchase order import task.
func NewImportPurchaseOrdersTask(path string) (*asynq.Task, error) {
	return newImportTask(TaskImportPurchaseOrders, path)
}

// NewImportAssetsTask constructs an asset import task.
func NewImportAssetsTask(path string) (*asynq.Task, error) {
	return newImportTask(TaskImportAssets, path)
}

func newImportTask(typ, path string) (*asynq.Task, error) {
	body, err := json.Marshal(ImportPayload{Path: path})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewIdempotencyCleanupTask builds the periodic purge task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
