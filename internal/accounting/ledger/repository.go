package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// postedFilter restricts every query to rows that count towards balances.
const postedFilter = `status = 'Approved' AND is_active`

const (
	journalRowsSQL = `SELECT id, voucher_no, entry_date, debit_type, debit_id, credit_type, credit_id, amount,
	COALESCE(narration, ''), COALESCE(payment_type, ''), COALESCE(reference, '')
FROM journal_entries
WHERE ` + postedFilter + `
	AND ((debit_type = ANY($1) AND debit_id = $2) OR (credit_type = ANY($1) AND credit_id = $2))
	AND ($3::date IS NULL OR entry_date >= $3) AND entry_date < $4
ORDER BY entry_date, id`

	receiptRowsSQL = `SELECT id, voucher_no, entry_date, account_type, account_id, '' AS account_name, side, amount,
	COALESCE(narration, ''), COALESCE(payment_type, ''), COALESCE(reference, ''), NULL::text, NULL::bigint
FROM receipt_entries
WHERE ` + postedFilter + ` AND voucher_no IN (
	SELECT voucher_no FROM receipt_entries
	WHERE ` + postedFilter + ` AND account_type = ANY($1) AND account_id = $2
		AND ($3::date IS NULL OR entry_date >= $3) AND entry_date < $4)
ORDER BY voucher_no, id`

	settlementRowsSQL = `SELECT id, batch_no, entry_date, account_type, account_id, COALESCE(account_name, ''), side, amount,
	COALESCE(narration, ''), COALESCE(payment_type, ''), COALESCE(reference, ''), entry_for_type, entry_for_id
FROM settlement_entries
WHERE ` + postedFilter + ` AND batch_no IN (
	SELECT batch_no FROM settlement_entries
	WHERE ` + postedFilter + `
		AND ((account_type = ANY($1) AND account_id = $2) OR ($5 AND entry_for_type = ANY($1) AND entry_for_id = $2))
		AND ($3::date IS NULL OR entry_date >= $3) AND entry_date < $4)
ORDER BY batch_no, id`

	debitNotesSQL = `SELECT id, voucher_no, note_date, amount, COALESCE(narration, '')
FROM debit_notes
WHERE ` + postedFilter + `
	AND ((bank_account_id = $1 AND NOT (id = ANY($2))) OR id = ANY($3))
	AND ($4::date IS NULL OR note_date >= $4) AND note_date < $5
ORDER BY note_date, id`

	creditNotesSQL = `SELECT id, voucher_no, note_date, amount, COALESCE(narration, '')
FROM credit_notes
WHERE ` + postedFilter + `
	AND ((farmer_id = $1 AND NOT (id = ANY($2))) OR id = ANY($3))
	AND ($4::date IS NULL OR note_date >= $4) AND note_date < $5
ORDER BY note_date, id`

	// Details inherit the filter through note_id, which only carries posted headers.
	debitNoteDetailsSQL = `SELECT id, note_id, COALESCE(account_type, ''), amount, COALESCE(narration, '')
FROM debit_note_details WHERE note_id = ANY($1) ORDER BY note_id, id`

	creditNoteDetailsSQL = `SELECT id, note_id, COALESCE(account_type, ''), amount, COALESCE(narration, '')
FROM credit_note_details WHERE note_id = ANY($1) ORDER BY note_id, id`
)

// Repository reads the five transaction tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// JournalRows implements JournalStore.
func (r *Repository) JournalRows(ctx context.Context, account accounts.Ref, w Window) ([]JournalRow, error) {
	rows, err := r.pool.Query(ctx, journalRowsSQL, account.Type.Tags(), account.ID, w.FromArg(), w.To)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (JournalRow, error) {
		var (
			j                     JournalRow
			debitType, creditType string
		)
		err := row.Scan(&j.ID, &j.VoucherNo, &j.Date, &debitType, &j.Debit.ID, &creditType, &j.Credit.ID, &j.Amount,
			&j.Narration, &j.PaymentType, &j.Reference)
		j.Debit.Type, _ = accounts.ParseType(debitType)
		j.Credit.Type, _ = accounts.ParseType(creditType)
		return j, err
	})
}

// ReceiptRows implements ReceiptStore.
func (r *Repository) ReceiptRows(ctx context.Context, account accounts.Ref, w Window) ([]EntryRow, error) {
	rows, err := r.pool.Query(ctx, receiptRowsSQL, account.Type.Tags(), account.ID, w.FromArg(), w.To)
	if err != nil {
		return nil, err
	}
	return collectEntryRows(rows)
}

// SettlementRows implements SettlementStore.
func (r *Repository) SettlementRows(ctx context.Context, account accounts.Ref, w Window) ([]EntryRow, error) {
	rows, err := r.pool.Query(ctx, settlementRowsSQL, account.Type.Tags(), account.ID, w.FromArg(), w.To, account.Type == accounts.TypeLedger)
	if err != nil {
		return nil, err
	}
	return collectEntryRows(rows)
}

func collectEntryRows(rows pgx.Rows) ([]EntryRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (EntryRow, error) {
		var (
			e           EntryRow
			accountType string
			side        string
			forType     *string
			forID       *int64
		)
		err := row.Scan(&e.ID, &e.VoucherNo, &e.Date, &accountType, &e.Account.ID, &e.AccountName, &side, &e.Amount,
			&e.Narration, &e.PaymentType, &e.Reference, &forType, &forID)
		if err != nil {
			return e, err
		}
		e.Account.Type, _ = accounts.ParseType(accountType)
		parsed, ok := accounts.ParseSide(side)
		if !ok {
			return e, fmt.Errorf("ledger: row %d has unknown side %q", e.ID, side)
		}
		e.Side = parsed
		if forType != nil && forID != nil && *forID > 0 {
			ref := accounts.NewRef(*forType, *forID)
			e.EntryFor = &ref
		}
		return e, nil
	})
}

// DebitNotes implements NoteStore.
func (r *Repository) DebitNotes(ctx context.Context, q NoteQuery, w Window) ([]NoteRow, error) {
	return r.notes(ctx, debitNotesSQL, debitNoteDetailsSQL, q.TargetID, nonNil(q.Exclude), nonNil(q.Include), w.FromArg(), w.To)
}

// CreditNotes implements NoteStore.
func (r *Repository) CreditNotes(ctx context.Context, q NoteQuery, w Window) ([]NoteRow, error) {
	return r.notes(ctx, creditNotesSQL, creditNoteDetailsSQL, q.TargetID, nonNil(q.Exclude), nonNil(q.Include), w.FromArg(), w.To)
}

func (r *Repository) notes(ctx context.Context, headerSQL, detailSQL string, args ...any) ([]NoteRow, error) {
	rows, err := r.pool.Query(ctx, headerSQL, args...)
	if err != nil {
		return nil, err
	}
	notes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (NoteRow, error) {
		var n NoteRow
		err := row.Scan(&n.ID, &n.VoucherNo, &n.Date, &n.Amount, &n.Narration)
		return n, err
	})
	if err != nil || len(notes) == 0 {
		return notes, err
	}
	ids := make([]int64, len(notes))
	index := make(map[int64]int, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
		index[n.ID] = i
	}
	detailRows, err := r.pool.Query(ctx, detailSQL, ids)
	if err != nil {
		return nil, err
	}
	defer detailRows.Close()
	for detailRows.Next() {
		var (
			d      NoteDetail
			noteID int64
		)
		if err := detailRows.Scan(&d.ID, &noteID, &d.AccountType, &d.Amount, &d.Narration); err != nil {
			return nil, err
		}
		if i, ok := index[noteID]; ok {
			notes[i].Details = append(notes[i].Details, d)
		}
	}
	return notes, detailRows.Err()
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
