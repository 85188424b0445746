package ops

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/assettrack/jobs"
)

func TestBuildTaskCleanupUsesRetention(t *testing.T) {
	task, err := buildTask(jobs.TaskIdempotencyCleanup, "", 48*time.Hour)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	var payload jobs.CleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, 48, payload.RetentionHours)
}

func TestBuildTaskImportsNeedPath(t *testing.T) {
	_, err := buildTask(jobs.TaskImportAssets, "", time.Hour)
	require.ErrorContains(t, err, "needs a workbook path")

	task, err := buildTask(jobs.TaskImportAssets, "/uploads/a.xlsx", time.Hour)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskImportAssets, task.Type())

	task, err = buildTask(jobs.TaskImportPurchaseOrders, "/uploads/po.xlsx", time.Hour)
	require.NoError(t, err)
	var payload jobs.ImportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "/uploads/po.xlsx", payload.Path)
}

func TestBuildTaskRejectsUnknownJob(t *testing.T) {
	_, err := buildTask("reports:rebuild", "", time.Hour)
	require.ErrorContains(t, err, "unsupported job")
}

func TestNilJobsCLIReportsMisconfiguration(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup, "")
	require.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)
	_, err = NewJobsCLI("", time.Hour)
	require.Error(t, err)
}
