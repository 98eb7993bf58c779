package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/abraq/abraq-accounts/internal/app"
	"github.com/abraq/abraq-accounts/jobs"
)

// JobsCLI wraps manual management helpers for background jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
	retention time.Duration
	lookback  int
}

// NewJobsCLI initialises the helpers against the configured Redis.
func NewJobsCLI(cfg *app.Config) (*JobsCLI, error) {
	client, err := jobs.NewClient(cfg.AsynqRedis())
	if err != nil {
		return nil, err
	}
	return &JobsCLI{
		client:    client,
		inspector: asynq.NewInspector(cfg.AsynqRedis()),
		retention: cfg.IdempotencyRetention,
		lookback:  cfg.IntegrityLookbackDays,
	}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// Trigger enqueues a supported job by task name with the configured payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskVoucherIntegrityScan:
		return c.client.EnqueueIntegrityScan(ctx, c.lookback)
	case jobs.TaskRulesWarmup:
		return c.client.EnqueueRulesWarmup(ctx)
	case jobs.TaskIdempotencyCleanup:
		return c.client.EnqueueIdempotencyCleanup(ctx, c.retention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "trigger NAME",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskVoucherIntegrityScan, jobs.TaskRulesWarmup, jobs.TaskIdempotencyCleanup},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show the default queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(func(c *JobsCLI) error {
				stats, err := c.InspectQueue()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
				return nil
			})
		},
	})

	return cmd
}

func withJobsCLI(fn func(*JobsCLI) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c, err := NewJobsCLI(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(c)
}
