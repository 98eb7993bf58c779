package ledger

import (
	"context"
	"fmt"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// ReceiptStore loads every row of the approved, active receipt vouchers in which
// the account appears, ordered by voucher then row id.
type ReceiptStore interface {
	ReceiptRows(ctx context.Context, account accounts.Ref, w Window) ([]EntryRow, error)
}

// ReceiptSource adapts cash receipt vouchers.
type ReceiptSource struct {
	store ReceiptStore
}

// NewReceiptSource constructs ReceiptSource.
func NewReceiptSource(store ReceiptStore) *ReceiptSource {
	return &ReceiptSource{store: store}
}

// Kind implements Source.
func (s *ReceiptSource) Kind() SourceKind { return KindReceipt }

// Fetch implements Source.
func (s *ReceiptSource) Fetch(ctx context.Context, account accounts.Ref, w Window) ([]Line, error) {
	rows, err := s.store.ReceiptRows(ctx, account, w)
	if err != nil {
		return nil, fmt.Errorf("ledger: receipt rows: %w", err)
	}
	ours := func(row EntryRow) bool { return row.Account == account }
	var lines []Line
	for _, voucher := range groupByVoucher(rows) {
		lines = append(lines, expandVoucher(KindReceipt, voucher, ours, false)...)
	}
	return lines, nil
}
