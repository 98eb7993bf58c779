package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/abraq/abraq-accounts/internal/accounting/rules"
	jobmetrics "github.com/abraq/abraq-accounts/internal/jobs"
)

// RuleSnapshotter loads the current rule snapshot, populating the cache on a miss.
type RuleSnapshotter interface {
	Snapshot(ctx context.Context) (*rules.Snapshot, error)
}

// RulesWarmupJob keeps the Redis rule snapshot hot so account pickers never
// pay for a cold load.
type RulesWarmupJob struct {
	Rules   RuleSnapshotter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle loads the snapshot once.
func (j *RulesWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Rules == nil {
		return errors.New("rules warmup: handler not configured")
	}
	tracker := j.jobMetrics().Track(TaskRulesWarmup)
	defer func() {
		err = tracker.End(err)
	}()
	snap, err := j.Rules.Snapshot(ctx)
	if err != nil {
		return err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("rules snapshot warmed", slog.String("job", TaskRulesWarmup), slog.String("fingerprint", snap.Fingerprint), slog.Int("rules", snap.Len()))
	return nil
}

func (j *RulesWarmupJob) jobMetrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// KeyCleaner purges idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob removes expired idempotency keys.
type IdempotencyCleanupJob struct {
	Keys      KeyCleaner
	Retention time.Duration
	Metrics   *jobmetrics.Metrics
}

// Handle purges keys older than the payload retention, or the job default.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := j.Retention
	if len(t.Payload()) > 0 {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.RetentionHours > 0 {
			retention = time.Duration(payload.RetentionHours) * time.Hour
		}
	}
	if retention <= 0 {
		return fmt.Errorf("idempotency cleanup: retention required: %w", asynq.SkipRetry)
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()
	return j.Keys.Cleanup(ctx, retention)
}
