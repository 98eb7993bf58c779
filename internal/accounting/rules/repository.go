package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// Repository persists account rules.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List loads every AllowedNature rule.
func (r *Repository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT account_type, account_id, profile_id, COALESCE(value, ''), updated_at
FROM account_rules WHERE rule_type=$1 ORDER BY id`, RuleTypeAllowedNature)
	if err != nil {
		return nil, fmt.Errorf("rules: list: %w", err)
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		var (
			rule     Rule
			rawType  string
			rawValue string
		)
		if err := rows.Scan(&rawType, &rule.Account.ID, &rule.ProfileID, &rawValue, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		t, ok := accounts.ParseType(rawType)
		if !ok {
			continue
		}
		rule.Account.Type = t
		rule.Value, _ = ParseNature(rawValue)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Fingerprint summarises the rule table so cached snapshots can be checked for freshness.
func (r *Repository) Fingerprint(ctx context.Context) (string, error) {
	var (
		count   int64
		updated time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(MAX(updated_at), 'epoch'::timestamptz)
FROM account_rules WHERE rule_type=$1`, RuleTypeAllowedNature).Scan(&count, &updated)
	if err != nil {
		return "", fmt.Errorf("rules: fingerprint: %w", err)
	}
	return fmt.Sprintf("%d-%d", count, updated.UnixMicro()), nil
}

// Upsert stores rule, replacing the value at the same (account, profile) key.
func (r *Repository) Upsert(ctx context.Context, rule Rule) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO account_rules (rule_type, account_type, account_id, profile_id, value, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (rule_type, account_type, account_id, profile_id)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		RuleTypeAllowedNature, string(rule.Account.Type), rule.Account.ID, rule.ProfileID, string(rule.Value), rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("rules: upsert: %w", err)
	}
	return nil
}

// Delete removes the rule at (account, profile) and reports whether one existed.
func (r *Repository) Delete(ctx context.Context, account accounts.Ref, profileID *int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM account_rules
WHERE rule_type=$1 AND account_type = ANY($2) AND account_id=$3 AND profile_id IS NOT DISTINCT FROM $4`,
		RuleTypeAllowedNature, account.Type.Tags(), account.ID, profileID)
	if err != nil {
		return false, fmt.Errorf("rules: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
