package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// SourceKind identifies the transaction table a line came from.
type SourceKind string

const (
	KindJournal    SourceKind = "journal"
	KindReceipt    SourceKind = "receipt"
	KindSettlement SourceKind = "settlement"
	KindDebitNote  SourceKind = "debit_note"
	KindCreditNote SourceKind = "credit_note"
)

var kindOrder = map[SourceKind]int{
	KindJournal:    0,
	KindReceipt:    1,
	KindSettlement: 2,
	KindDebitNote:  3,
	KindCreditNote: 4,
}

var kindPrefix = map[SourceKind]string{
	KindJournal:    "J",
	KindReceipt:    "R",
	KindSettlement: "PA",
	KindDebitNote:  "DN",
	KindCreditNote: "CN",
}

// LineID is unique across every source: the stored row id is qualified by the
// source kind, the note detail id and the split index.
type LineID struct {
	Kind     SourceKind
	RowID    int64
	DetailID int64
	Seq      int
}

func (id LineID) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d", kindPrefix[id.Kind], id.RowID)
	if id.DetailID > 0 {
		fmt.Fprintf(&b, ":%d", id.DetailID)
	}
	if id.Seq > 0 {
		fmt.Fprintf(&b, "/%d", id.Seq)
	}
	return b.String()
}

// MarshalText renders the id in its compact string form.
func (id LineID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// Less orders ids by kind, row, detail then split index.
func (id LineID) Less(other LineID) bool {
	if id.Kind != other.Kind {
		return kindOrder[id.Kind] < kindOrder[other.Kind]
	}
	if id.RowID != other.RowID {
		return id.RowID < other.RowID
	}
	if id.DetailID != other.DetailID {
		return id.DetailID < other.DetailID
	}
	return id.Seq < other.Seq
}

// Line is one posting against the reported account.
type Line struct {
	ID            LineID          `json:"id"`
	VoucherNo     string          `json:"voucher_no"`
	Date          time.Time       `json:"date"`
	Kind          SourceKind      `json:"kind"`
	OurSide       accounts.Side   `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
	OppositeLabel string          `json:"opposite"`
	Narration     string          `json:"narration,omitempty"`
	PaymentType   string          `json:"payment_type,omitempty"`
	Reference     string          `json:"reference,omitempty"`

	// Counterparts are resolved into OppositeLabel when no stored label exists.
	Counterparts []accounts.Ref `json:"-"`
}

// Debit returns the amount when the line debits the account.
func (l Line) Debit() decimal.Decimal {
	if l.OurSide == accounts.SideDebit {
		return l.Amount
	}
	return decimal.Zero
}

// Credit returns the amount when the line credits the account.
func (l Line) Credit() decimal.Decimal {
	if l.OurSide == accounts.SideCredit {
		return l.Amount
	}
	return decimal.Zero
}

// Window is the half-open date range [From, To). A zero From is unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	return t.Before(w.To)
}

// FromArg returns From as a nullable query argument.
func (w Window) FromArg() *time.Time {
	if w.From.IsZero() {
		return nil
	}
	from := w.From
	return &from
}

// Report is an account ledger over a date range.
type Report struct {
	Account        accounts.Ref    `json:"account"`
	AccountName    string          `json:"account_name"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Lines          []Line          `json:"lines"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

// Source adapts one transaction table into ledger lines. Only approved, active
// rows contribute.
type Source interface {
	Kind() SourceKind
	Fetch(ctx context.Context, account accounts.Ref, w Window) ([]Line, error)
}
