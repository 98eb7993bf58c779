package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskVoucherIntegrityScan rechecks the balance of persisted vouchers.
	TaskVoucherIntegrityScan = "vouchers:integrity_scan"
	// TaskRulesWarmup loads the current rule snapshot into Redis.
	TaskRulesWarmup = "rules:warmup"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// IntegrityScanPayload bounds the scan to vouchers dated within the lookback.
// Zero scans everything.
type IntegrityScanPayload struct {
	LookbackDays int `json:"lookback_days"`
}

// NewIntegrityScanTask constructs the integrity scan task.
func NewIntegrityScanTask(lookbackDays int) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityScanPayload{LookbackDays: lookbackDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVoucherIntegrityScan, data), nil
}

// NewRulesWarmupTask constructs the rule cache warmup task.
func NewRulesWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskRulesWarmup, nil)
}

// IdempotencyCleanupPayload carries the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
