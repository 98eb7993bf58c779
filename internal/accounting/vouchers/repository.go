package vouchers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/shared"
	"github.com/abraq/abraq-accounts/internal/platform/db"
)

const uniqueViolation = "23505"

type voucherTable struct {
	name      string
	numberCol string
}

var voucherTables = map[Kind]voucherTable{
	KindJournal:    {name: "journal_entries", numberCol: "voucher_no"},
	KindReceipt:    {name: "receipt_entries", numberCol: "voucher_no"},
	KindSettlement: {name: "settlement_entries", numberCol: "batch_no"},
	KindDebitNote:  {name: "debit_notes", numberCol: "voucher_no"},
	KindCreditNote: {name: "credit_notes", numberCol: "voucher_no"},
}

// Repository persists vouchers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx       pgx.Tx
	accounts *accounts.Repository
}

// WithTx executes fn within a read-committed transaction so concurrent postings
// queue on the sequence row lock instead of failing serialization.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("vouchers repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, newTxRepository(tx))
	})
}

func newTxRepository(tx pgx.Tx) *txRepository {
	return &txRepository{tx: tx, accounts: accounts.NewRepository(tx)}
}

func (r *txRepository) AccountExists(ctx context.Context, ref accounts.Ref) (bool, error) {
	return r.accounts.Exists(ctx, ref)
}

func (r *txRepository) FirstChartGroup(ctx context.Context) (accounts.Ref, error) {
	return r.accounts.FirstChartGroup(ctx)
}

func (r *txRepository) NextSequence(ctx context.Context, kind Kind) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO voucher_sequences (kind, last_value) VALUES ($1, 1)
ON CONFLICT (kind) DO UPDATE SET last_value = voucher_sequences.last_value + 1
RETURNING last_value`, string(kind)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("vouchers: next sequence %s: %w", kind, err)
	}
	return seq, nil
}

func (r *txRepository) Savepoint(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, newTxRepository(sp)); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (r *txRepository) ClaimNumber(ctx context.Context, kind Kind, number string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO voucher_numbers (kind, number, created_at) VALUES ($1, $2, NOW())`, string(kind), number)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertJournalRows(ctx context.Context, h Header, rows []JournalRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO journal_entries (voucher_no, entry_date, debit_type, debit_id, credit_type, credit_id, amount,
	narration, payment_type, reference, status, is_active, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,TRUE,$12,$13)`,
			h.Number, h.Date, string(row.Debit.Type), row.Debit.ID, string(row.Credit.Type), row.Credit.ID, row.Amount,
			row.Narration, row.Payment.Method, row.Payment.Reference, string(StatusUnapproved), h.ActorID, h.At)
	}
	return r.sendBatch(ctx, batch)
}

func (r *txRepository) InsertEntryRows(ctx context.Context, h Header, rows []EntryRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		switch h.Kind {
		case KindReceipt:
			batch.Queue(`INSERT INTO receipt_entries (voucher_no, entry_date, account_type, account_id, side, amount,
	narration, payment_type, reference, status, is_active, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,TRUE,$11,$12)`,
				h.Number, h.Date, string(row.Account.Type), row.Account.ID, string(row.Side), row.Amount,
				row.Narration, row.Payment.Method, row.Payment.Reference, string(StatusUnapproved), h.ActorID, h.At)
		case KindSettlement:
			var forType *string
			var forID *int64
			if row.EntryFor != nil {
				t := string(row.EntryFor.Type)
				forType, forID = &t, &row.EntryFor.ID
			}
			batch.Queue(`INSERT INTO settlement_entries (batch_no, entry_date, account_type, account_id, account_name, side, amount,
	narration, payment_type, reference, entry_for_type, entry_for_id, status, is_active, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,TRUE,$14,$15)`,
				h.Number, h.Date, string(row.Account.Type), row.Account.ID, row.AccountName, string(row.Side), row.Amount,
				row.Narration, row.Payment.Method, row.Payment.Reference, forType, forID, string(StatusUnapproved), h.ActorID, h.At)
		default:
			return fmt.Errorf("vouchers: %s is not an entry voucher", h.Kind)
		}
	}
	return r.sendBatch(ctx, batch)
}

func (r *txRepository) InsertNote(ctx context.Context, h Header, note Note) error {
	table := voucherTables[h.Kind].name
	targetCol := "farmer_id"
	detailTable := "credit_note_details"
	if h.Kind == KindDebitNote {
		targetCol = "bank_account_id"
		detailTable = "debit_note_details"
	}
	var noteID int64
	err := r.tx.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %s (voucher_no, note_date, %s, amount, narration, status, is_active, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,$7,$8) RETURNING id`, table, targetCol),
		h.Number, h.Date, note.TargetID, note.Amount, note.Narration, string(StatusUnapproved), h.ActorID, h.At).Scan(&noteID)
	if err != nil {
		return fmt.Errorf("vouchers: insert %s: %w", h.Kind, err)
	}
	if len(note.Details) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range note.Details {
		batch.Queue(fmt.Sprintf(`INSERT INTO %s (note_id, account_type, amount, narration) VALUES ($1,$2,$3,$4)`, detailTable),
			noteID, d.AccountType, d.Amount, d.Narration)
	}
	return r.sendBatch(ctx, batch)
}

func (r *txRepository) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := r.tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("vouchers: insert row %d: %w", i+1, err)
		}
	}
	return results.Close()
}

func (r *txRepository) LockVoucher(ctx context.Context, kind Kind, number string) (State, error) {
	table, ok := voucherTables[kind]
	if !ok {
		return State{}, shared.Invalid(shared.ErrInvalidInput, fmt.Sprintf("unknown voucher kind %q", kind))
	}
	rows, err := r.tx.Query(ctx, fmt.Sprintf(`SELECT status, is_active FROM %s WHERE %s=$1 ORDER BY id FOR UPDATE`, table.name, table.numberCol), number)
	if err != nil {
		return State{}, err
	}
	defer rows.Close()
	var (
		count    int
		approved = true
		active   bool
	)
	for rows.Next() {
		var status string
		var isActive bool
		if err := rows.Scan(&status, &isActive); err != nil {
			return State{}, err
		}
		count++
		approved = approved && ApprovalStatus(status) == StatusApproved
		active = active || isActive
	}
	if err := rows.Err(); err != nil {
		return State{}, err
	}
	if count == 0 {
		return State{}, &shared.NotFoundError{Entity: "voucher", Key: number}
	}
	state := State{Status: StatusUnapproved, Active: active}
	if approved {
		state.Status = StatusApproved
	}
	return state, nil
}

func (r *txRepository) SetVoucherState(ctx context.Context, kind Kind, number string, state State) error {
	table := voucherTables[kind]
	_, err := r.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET status=$2, is_active=$3 WHERE %s=$1`, table.name, table.numberCol),
		number, string(state.Status), state.Active)
	return err
}
