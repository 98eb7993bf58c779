package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/abraq/abraq-accounts/internal/accounting/shared"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type accountTable struct {
	name      string
	parentCol string
}

var accountTables = map[Type]accountTable{
	TypeBankAccount:   {name: "bank_accounts", parentCol: "ledger_id"},
	TypeFarmer:        {name: "farmers", parentCol: "grower_group_id"},
	TypeGrowerGroup:   {name: "grower_groups"},
	TypeChartGroup:    {name: "chart_groups"},
	TypeChartSubGroup: {name: "chart_sub_groups"},
	TypeLedger:        {name: "ledgers"},
}

// Repository reads the account tables.
type Repository struct {
	db DBTX
}

// NewRepository constructs Repository over a pool or a transaction.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Names returns display names keyed by id. Unknown types yield an empty map.
func (r *Repository) Names(ctx context.Context, t Type, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	table, ok := accountTables[t]
	if !ok || len(ids) == 0 {
		return names, nil
	}
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT id, name FROM %s WHERE id = ANY($1)`, table.name), ids)
	if err != nil {
		return nil, fmt.Errorf("accounts: names %s: %w", t, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// Exists reports whether ref points at a stored account.
func (r *Repository) Exists(ctx context.Context, ref Ref) (bool, error) {
	table, ok := accountTables[ref.Type]
	if !ok {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id=$1)`, table.name), ref.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("accounts: exists %s: %w", ref, err)
	}
	return exists, nil
}

// Parent returns the natural group of ref, or nil when it has none.
func (r *Repository) Parent(ctx context.Context, ref Ref) (*Ref, error) {
	parentType, ok := ref.Type.ParentType()
	if !ok {
		return nil, nil
	}
	table := accountTables[ref.Type]
	var parentID *int64
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, table.parentCol, table.name), ref.ID).Scan(&parentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("accounts: parent %s: %w", ref, err)
	}
	if parentID == nil || *parentID == 0 {
		return nil, nil
	}
	return &Ref{Type: parentType, ID: *parentID}, nil
}

// Search lists active postable accounts whose name contains term.
func (r *Repository) Search(ctx context.Context, term string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT kind, id, name, parent_kind, parent_id FROM (
	SELECT 'BankAccount' AS kind, id, name, 'Ledger' AS parent_kind, ledger_id AS parent_id FROM bank_accounts WHERE is_active AND name ILIKE $1
	UNION ALL
	SELECT 'Ledger', id, name, NULL, NULL FROM ledgers WHERE is_active AND name ILIKE $1
	UNION ALL
	SELECT 'Farmer', id, name, 'GrowerGroup', grower_group_id FROM farmers WHERE is_active AND name ILIKE $1
) candidates ORDER BY name, kind, id LIMIT $2`, "%"+term+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("accounts: search: %w", err)
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var (
			kind       string
			c          Candidate
			parentKind *string
			parentID   *int64
		)
		if err := rows.Scan(&kind, &c.Ref.ID, &c.Name, &parentKind, &parentID); err != nil {
			return nil, err
		}
		c.Ref.Type, _ = ParseType(kind)
		if parentKind != nil && parentID != nil && *parentID > 0 {
			pt, _ := ParseType(*parentKind)
			c.Parent = &Ref{Type: pt, ID: *parentID}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FirstChartGroup returns the lowest-id chart group, the default mediator account.
func (r *Repository) FirstChartGroup(ctx context.Context) (Ref, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM chart_groups ORDER BY id LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ref{}, &shared.NotFoundError{Entity: "chart group", Key: "first"}
		}
		return Ref{}, fmt.Errorf("accounts: first chart group: %w", err)
	}
	return Ref{Type: TypeChartGroup, ID: id}, nil
}
