package vouchers

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/shared"
)

// Kind enumerates voucher families, each with its own number sequence.
type Kind string

const (
	KindJournal    Kind = "journal"
	KindReceipt    Kind = "receipt"
	KindSettlement Kind = "settlement"
	KindDebitNote  Kind = "debit_note"
	KindCreditNote Kind = "credit_note"
)

var kindPrefixes = map[Kind]string{
	KindJournal:    "JBK",
	KindReceipt:    "RCPT",
	KindSettlement: "PA",
	KindDebitNote:  "DN",
	KindCreditNote: "CN",
}

// ParseKind validates a kind tag.
func ParseKind(raw string) (Kind, bool) {
	k := Kind(raw)
	_, ok := kindPrefixes[k]
	return k, ok
}

// Prefix returns the voucher number prefix of k.
func (k Kind) Prefix() string {
	return kindPrefixes[k]
}

// IsNote reports whether k is stored as a note header with details.
func (k Kind) IsNote() bool {
	return k == KindDebitNote || k == KindCreditNote
}

// FormatNumber renders a sequence value as a voucher number.
func FormatNumber(k Kind, seq int64) string {
	return fmt.Sprintf("%s/%05d", k.Prefix(), seq)
}

// ApprovalStatus is the review state shared by every row of a voucher.
type ApprovalStatus string

const (
	StatusUnapproved ApprovalStatus = "Unapproved"
	StatusApproved   ApprovalStatus = "Approved"
)

// Action is a lifecycle transition requested on a posted voucher.
type Action string

const (
	ActionApprove   Action = "approve"
	ActionUnapprove Action = "unapprove"
	ActionDelete    Action = "delete"
)

// State is the lifecycle position of a voucher.
type State struct {
	Status ApprovalStatus
	Active bool
}

type transition struct {
	from   State
	to     State
	action Action
}

var transitions = []transition{
	{action: ActionApprove, from: State{StatusUnapproved, true}, to: State{StatusApproved, true}},
	{action: ActionUnapprove, from: State{StatusApproved, true}, to: State{StatusUnapproved, true}},
	{action: ActionDelete, from: State{StatusUnapproved, true}, to: State{StatusUnapproved, false}},
}

// Next returns the state reached by applying action to current.
func Next(current State, action Action) (State, error) {
	for _, t := range transitions {
		if t.action == action && t.from == current {
			return t.to, nil
		}
	}
	active := "active"
	if !current.Active {
		active = "deleted"
	}
	return current, shared.Invalid(shared.ErrInvalidStatus, fmt.Sprintf("cannot %s a %s %s voucher", action, active, current.Status))
}

// PaymentMeta is the payment method and reference carried by a line.
type PaymentMeta struct {
	Method    string `json:"method" validate:"max=50"`
	Reference string `json:"reference" validate:"max=100"`
}

// BatchLine is one debit or credit line of a batch.
type BatchLine struct {
	Account     accounts.Ref    `json:"account"`
	AccountName string          `json:"account_name,omitempty" validate:"max=200"`
	Side        accounts.Side   `json:"side" validate:"required,oneof=Debit Credit"`
	Amount      decimal.Decimal `json:"amount"`
	Payment     PaymentMeta     `json:"payment"`
	Narration   string          `json:"narration,omitempty" validate:"max=500"`
	// EntryFor names the ledger a settlement line is booked for.
	EntryFor *accounts.Ref `json:"entry_for,omitempty"`
}

// Batch is a balanced set of lines posted under one voucher number.
type Batch struct {
	Kind      Kind        `json:"kind" validate:"required,oneof=journal receipt settlement"`
	EntryDate time.Time   `json:"entry_date" validate:"required"`
	Lines     []BatchLine `json:"lines" validate:"required,dive"`
	Narration string      `json:"narration,omitempty" validate:"max=500"`
	ActorID   int64       `json:"-" validate:"gt=0"`
}

// NoteDetail is one item of a debit or credit note.
type NoteDetail struct {
	AccountType string          `json:"account_type" validate:"required,max=50"`
	Amount      decimal.Decimal `json:"amount"`
	Narration   string          `json:"narration,omitempty" validate:"max=500"`
}

// Note is a debit note against a bank account or a credit note against a farmer.
type Note struct {
	Kind      Kind            `json:"kind" validate:"required,oneof=debit_note credit_note"`
	Date      time.Time       `json:"date" validate:"required"`
	TargetID  int64           `json:"target_id" validate:"gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Narration string          `json:"narration,omitempty" validate:"max=500"`
	Details   []NoteDetail    `json:"details" validate:"dive"`
	ActorID   int64           `json:"-" validate:"gt=0"`
}

// Target returns the account the note is booked against.
func (n Note) Target() accounts.Ref {
	if n.Kind == KindDebitNote {
		return accounts.Ref{Type: accounts.TypeBankAccount, ID: n.TargetID}
	}
	return accounts.Ref{Type: accounts.TypeFarmer, ID: n.TargetID}
}

// JournalRow is a persisted double-sided journal posting.
type JournalRow struct {
	Debit     accounts.Ref
	Credit    accounts.Ref
	Amount    decimal.Decimal
	Narration string
	Payment   PaymentMeta
}

// EntryRow is a persisted single-sided receipt or settlement row.
type EntryRow struct {
	Account     accounts.Ref
	AccountName string
	Side        accounts.Side
	Amount      decimal.Decimal
	Narration   string
	Payment     PaymentMeta
	EntryFor    *accounts.Ref
}

// Header carries the fields every persisted row of a voucher shares.
type Header struct {
	Kind    Kind
	Number  string
	Date    time.Time
	ActorID int64
	At      time.Time
}
