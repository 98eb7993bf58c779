package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// JournalRow is one double-sided journal posting.
type JournalRow struct {
	ID          int64
	VoucherNo   string
	Date        time.Time
	Debit       accounts.Ref
	Credit      accounts.Ref
	Amount      decimal.Decimal
	Narration   string
	PaymentType string
	Reference   string
}

// JournalStore loads approved, active journal rows touching an account on either side.
type JournalStore interface {
	JournalRows(ctx context.Context, account accounts.Ref, w Window) ([]JournalRow, error)
}

// JournalSource emits one line per side of a journal row that names the account.
type JournalSource struct {
	store JournalStore
}

// NewJournalSource constructs JournalSource.
func NewJournalSource(store JournalStore) *JournalSource {
	return &JournalSource{store: store}
}

// Kind implements Source.
func (s *JournalSource) Kind() SourceKind { return KindJournal }

// Fetch implements Source.
func (s *JournalSource) Fetch(ctx context.Context, account accounts.Ref, w Window) ([]Line, error) {
	rows, err := s.store.JournalRows(ctx, account, w)
	if err != nil {
		return nil, fmt.Errorf("ledger: journal rows: %w", err)
	}
	var lines []Line
	for _, row := range rows {
		base := Line{
			VoucherNo:   row.VoucherNo,
			Date:        row.Date,
			Kind:        KindJournal,
			Amount:      row.Amount,
			Narration:   row.Narration,
			PaymentType: row.PaymentType,
			Reference:   row.Reference,
		}
		if row.Debit == account {
			line := base
			line.ID = LineID{Kind: KindJournal, RowID: row.ID}
			line.OurSide = accounts.SideDebit
			line.Counterparts = []accounts.Ref{row.Credit}
			lines = append(lines, line)
		}
		if row.Credit == account {
			line := base
			line.ID = LineID{Kind: KindJournal, RowID: row.ID, Seq: 1}
			line.OurSide = accounts.SideCredit
			line.Counterparts = []accounts.Ref{row.Debit}
			lines = append(lines, line)
		}
	}
	return lines, nil
}
