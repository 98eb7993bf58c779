package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed keys together with the result they produced.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// ErrIdempotencyConflict indicates the key is claimed by a request still in flight.
var ErrIdempotencyConflict = errors.New("idempotent request already in progress")

// Claim reserves key for module. When the key already completed, the stored
// result is returned with replay=true and the caller must not redo the work.
func (s *IdempotencyStore) Claim(ctx context.Context, key, module string) (result string, replay bool, err error) {
	if s == nil {
		return "", false, errors.New("idempotency store not initialised")
	}
	if _, err := uuid.Parse(key); err != nil {
		return "", false, ErrIdempotencyKeyInvalid
	}
	if module == "" {
		return "", false, errors.New("idempotency module required")
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, s.now())
	if err == nil {
		return "", false, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false, err
	}
	var stored *string
	err = s.pool.QueryRow(ctx, `SELECT result FROM idempotency_keys WHERE key=$1 AND module=$2`, key, module).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, ErrIdempotencyConflict
		}
		return "", false, err
	}
	if stored == nil {
		return "", false, ErrIdempotencyConflict
	}
	return *stored, true, nil
}

// Complete stores the result produced for a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, module, result string) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET result=$3 WHERE key=$1 AND module=$2`, key, module, result)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := s.now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// Release removes a claimed key, used to roll back failed processing.
func (s *IdempotencyStore) Release(ctx context.Context, key, module string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1 AND module=$2 AND result IS NULL`, key, module)
	return err
}
