package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// fallbackNoteLabel labels a note that has no detail lines.
const fallbackNoteLabel = "Items"

// NoteDetail is one item line of a debit or credit note.
type NoteDetail struct {
	ID          int64
	AccountType string
	Amount      decimal.Decimal
	Narration   string
}

// NoteRow is a debit or credit note header with its details.
type NoteRow struct {
	ID        int64
	VoucherNo string
	Date      time.Time
	Amount    decimal.Decimal
	Narration string
	Details   []NoteDetail
}

// NoteQuery selects the notes booked against one target account. Include and
// Exclude carry note ids whose target was overridden.
type NoteQuery struct {
	TargetID int64
	Include  []int64
	Exclude  []int64
}

// NoteStore loads approved, active notes with their details.
type NoteStore interface {
	DebitNotes(ctx context.Context, q NoteQuery, w Window) ([]NoteRow, error)
	CreditNotes(ctx context.Context, q NoteQuery, w Window) ([]NoteRow, error)
}

// TargetOverrides redirects debit notes to another bank account.
type TargetOverrides interface {
	Redirected(bankID int64) (into, away []int64)
}

// DebitNoteSource adapts debit notes, booked on the debit side of a bank account.
type DebitNoteSource struct {
	store     NoteStore
	overrides TargetOverrides
}

// NewDebitNoteSource constructs DebitNoteSource. overrides may be nil.
func NewDebitNoteSource(store NoteStore, overrides TargetOverrides) *DebitNoteSource {
	return &DebitNoteSource{store: store, overrides: overrides}
}

// Kind implements Source.
func (s *DebitNoteSource) Kind() SourceKind { return KindDebitNote }

// Fetch implements Source.
func (s *DebitNoteSource) Fetch(ctx context.Context, account accounts.Ref, w Window) ([]Line, error) {
	if account.Type != accounts.TypeBankAccount {
		return nil, nil
	}
	q := NoteQuery{TargetID: account.ID}
	if s.overrides != nil {
		q.Include, q.Exclude = s.overrides.Redirected(account.ID)
	}
	notes, err := s.store.DebitNotes(ctx, q, w)
	if err != nil {
		return nil, fmt.Errorf("ledger: debit notes: %w", err)
	}
	return noteLines(KindDebitNote, accounts.SideDebit, notes), nil
}

// CreditNoteSource adapts credit notes, booked on the credit side of a farmer.
type CreditNoteSource struct {
	store NoteStore
}

// NewCreditNoteSource constructs CreditNoteSource.
func NewCreditNoteSource(store NoteStore) *CreditNoteSource {
	return &CreditNoteSource{store: store}
}

// Kind implements Source.
func (s *CreditNoteSource) Kind() SourceKind { return KindCreditNote }

// Fetch implements Source.
func (s *CreditNoteSource) Fetch(ctx context.Context, account accounts.Ref, w Window) ([]Line, error) {
	if account.Type != accounts.TypeFarmer {
		return nil, nil
	}
	notes, err := s.store.CreditNotes(ctx, NoteQuery{TargetID: account.ID}, w)
	if err != nil {
		return nil, fmt.Errorf("ledger: credit notes: %w", err)
	}
	return noteLines(KindCreditNote, accounts.SideCredit, notes), nil
}

func noteLines(kind SourceKind, side accounts.Side, notes []NoteRow) []Line {
	var lines []Line
	for _, note := range notes {
		base := Line{
			VoucherNo: note.VoucherNo,
			Date:      note.Date,
			Kind:      kind,
			OurSide:   side,
		}
		if len(note.Details) == 0 {
			line := base
			line.ID = LineID{Kind: kind, RowID: note.ID}
			line.Amount = note.Amount
			line.OppositeLabel = fallbackNoteLabel
			line.Narration = note.Narration
			lines = append(lines, line)
			continue
		}
		for _, detail := range note.Details {
			line := base
			line.ID = LineID{Kind: kind, RowID: note.ID, DetailID: detail.ID}
			line.Amount = detail.Amount
			line.OppositeLabel = detail.AccountType
			line.Narration = detail.Narration
			if line.Narration == "" {
				line.Narration = note.Narration
			}
			if line.OppositeLabel == "" {
				line.OppositeLabel = fallbackNoteLabel
			}
			lines = append(lines, line)
		}
	}
	return lines
}
