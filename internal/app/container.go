package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/ledger"
	"github.com/abraq/abraq-accounts/internal/accounting/rules"
	"github.com/abraq/abraq-accounts/internal/accounting/vouchers"
	"github.com/abraq/abraq-accounts/internal/observability"
	"github.com/abraq/abraq-accounts/internal/platform/cache"
	"github.com/abraq/abraq-accounts/internal/platform/db"
	"github.com/abraq/abraq-accounts/internal/shared"
)

// Services is the wired ledger core shared by the server, worker and CLI.
type Services struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *observability.Metrics
	Accounts    *accounts.Repository
	RuleCache   *rules.Cache
	Rules       *rules.Service
	Ledger      *ledger.Service
	Vouchers    *vouchers.Service
	Audit       *shared.AuditLogger
	Idempotency *shared.IdempotencyStore
}

// NewServices connects to Postgres and Redis and builds every service. A Redis
// outage only disables the rule cache.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, rule cache disabled", slog.Any("error", err))
		redisClient = nil
	}

	mediator, err := cfg.Mediator()
	if err != nil {
		pool.Close()
		return nil, err
	}
	debitNormal, err := cfg.DebitNormalTypes()
	if err != nil {
		pool.Close()
		return nil, err
	}
	noteTargets, err := accounts.LoadNoteTargets(cfg.DebitNoteMappingPath)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)
	accountRepo := accounts.NewRepository(pool)

	ruleCache := rules.NewCache(redisClient, cfg.RulesCacheTTL)
	ruleService := rules.NewService(rules.NewRepository(pool), accountRepo, ruleCache, audit, logger)
	ruleService.WithMetrics(metrics)

	store := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(accountRepo, ledger.NewSignConvention(debitNormal...), logger,
		ledger.NewJournalSource(store),
		ledger.NewReceiptSource(store),
		ledger.NewSettlementSource(store),
		ledger.NewDebitNoteSource(store, noteTargets),
		ledger.NewCreditNoteSource(store),
	)
	ledgerService.WithMetrics(metrics)

	voucherService := vouchers.NewService(vouchers.NewRepository(pool), audit, logger)
	voucherService.WithMetrics(metrics)
	if mediator != nil {
		voucherService.WithMediator(*mediator)
	}

	return &Services{
		Pool:        pool,
		Redis:       redisClient,
		Metrics:     metrics,
		Accounts:    accountRepo,
		RuleCache:   ruleCache,
		Rules:       ruleService,
		Ledger:      ledgerService,
		Vouchers:    voucherService,
		Audit:       audit,
		Idempotency: shared.NewIdempotencyStore(pool),
	}, nil
}

// Close releases the pool and the Redis client.
func (s *Services) Close(logger *slog.Logger) {
	if s == nil {
		return
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	s.Pool.Close()
}
