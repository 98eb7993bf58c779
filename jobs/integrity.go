package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/vouchers"
	jobmetrics "github.com/abraq/abraq-accounts/internal/jobs"
	"github.com/abraq/abraq-accounts/internal/platform/db"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// scannedKinds are the single-sided vouchers whose rows must balance per number.
var scannedKinds = []vouchers.Kind{vouchers.KindReceipt, vouchers.KindSettlement}

// UnbalancedVoucher is a persisted voucher whose active rows no longer balance.
type UnbalancedVoucher struct {
	Kind   vouchers.Kind
	Number string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// IntegrityStore lists unbalanced vouchers of kind dated on or after since.
type IntegrityStore interface {
	UnbalancedVouchers(ctx context.Context, kind vouchers.Kind, since *time.Time) ([]UnbalancedVoucher, error)
}

// VoucherIntegrityJob recomputes per-voucher debit and credit totals.
type VoucherIntegrityJob struct {
	Store   IntegrityStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewVoucherIntegrityJob wires the integrity scan handler.
func NewVoucherIntegrityJob(store IntegrityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *VoucherIntegrityJob {
	return &VoucherIntegrityJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan. Findings are logged and counted; they do not fail the task.
func (j *VoucherIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("voucher integrity: handler not configured")
	}
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("voucher integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskVoucherIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	var since *time.Time
	if payload.LookbackDays > 0 {
		from := start.AddDate(0, 0, -payload.LookbackDays)
		since = &from
	}
	logger := j.logger().With(slog.Int("lookback_days", payload.LookbackDays))
	logger.Info("starting voucher integrity scan")

	found := 0
	for _, kind := range scannedKinds {
		list, err := j.Store.UnbalancedVouchers(ctx, kind, since)
		if err != nil {
			resultErr = err
			logger.Error("scan vouchers", slog.String("kind", string(kind)), slog.Any("error", err))
			return resultErr
		}
		for _, v := range list {
			logger.Warn("unbalanced voucher",
				slog.String("kind", string(v.Kind)),
				slog.String("voucher_no", v.Number),
				slog.String("debit", v.Debit.StringFixed(2)),
				slog.String("credit", v.Credit.StringFixed(2)),
			)
		}
		j.metrics().AddUnbalanced(string(kind), len(list))
		found += len(list)
	}

	logger.Info("completed voucher integrity scan", slog.Int("unbalanced", found), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *VoucherIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskVoucherIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskVoucherIntegrityScan))
}

func (j *VoucherIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *VoucherIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

var integrityTables = map[vouchers.Kind]struct{ table, number string }{
	vouchers.KindReceipt:    {table: "receipt_entries", number: "voucher_no"},
	vouchers.KindSettlement: {table: "settlement_entries", number: "batch_no"},
}

// IntegrityRepository runs the scan inside a read-only snapshot.
type IntegrityRepository struct {
	pool *pgxpool.Pool
}

// NewIntegrityRepository constructs IntegrityRepository.
func NewIntegrityRepository(pool *pgxpool.Pool) *IntegrityRepository {
	return &IntegrityRepository{pool: pool}
}

// UnbalancedVouchers implements IntegrityStore.
func (r *IntegrityRepository) UnbalancedVouchers(ctx context.Context, kind vouchers.Kind, since *time.Time) ([]UnbalancedVoucher, error) {
	t, ok := integrityTables[kind]
	if !ok {
		return nil, fmt.Errorf("voucher integrity: %s is not scanned", kind)
	}
	query := fmt.Sprintf(`SELECT %[2]s, debit, credit FROM (
	SELECT %[2]s,
		COALESCE(SUM(amount) FILTER (WHERE lower(side) IN ('debit', 'payment', 'dr')), 0) AS debit,
		COALESCE(SUM(amount) FILTER (WHERE lower(side) IN ('credit', 'receipt', 'cr')), 0) AS credit
	FROM %[1]s
	WHERE is_active AND ($1::date IS NULL OR entry_date >= $1)
	GROUP BY %[2]s
) totals
WHERE debit <> credit
ORDER BY %[2]s`, t.table, t.number)

	var out []UnbalancedVoucher
	err := db.WithTx(ctx, r.pool, db.Snapshot, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, since)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (UnbalancedVoucher, error) {
			v := UnbalancedVoucher{Kind: kind}
			err := row.Scan(&v.Number, &v.Debit, &v.Credit)
			return v, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("voucher integrity: scan %s: %w", kind, err)
	}
	return out, nil
}
