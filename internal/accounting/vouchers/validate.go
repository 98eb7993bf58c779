package vouchers

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/shared"
)

var validate = validator.New()

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return shared.Invalid(shared.ErrInvalidInput, err.Error())
	}
	return nil
}

// Totals sums the debit and credit lines of a batch.
func Totals(lines []BatchLine) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		switch l.Side {
		case accounts.SideDebit:
			debit = debit.Add(l.Amount)
		case accounts.SideCredit:
			credit = credit.Add(l.Amount)
		}
	}
	return debit, credit
}

// Validate checks shape, amounts and the exact debit/credit balance.
func (b Batch) Validate() error {
	if err := validateStruct(b); err != nil {
		return err
	}
	if len(b.Lines) < 2 {
		return shared.Invalid(shared.ErrTooFewLines, "")
	}
	for i, l := range b.Lines {
		if !l.Account.Type.Valid() {
			return shared.Invalid(shared.ErrInvalidInput, fmt.Sprintf("line %d: unknown account type %q", i+1, l.Account.Type))
		}
		if !l.Amount.IsPositive() {
			return shared.Invalid(shared.ErrInvalidAmount, fmt.Sprintf("line %d", i+1))
		}
		if l.EntryFor != nil && (b.Kind != KindSettlement || l.EntryFor.Type != accounts.TypeLedger) {
			return shared.Invalid(shared.ErrInvalidInput, fmt.Sprintf("line %d: entry for must be a ledger on a settlement", i+1))
		}
	}
	debit, credit := Totals(b.Lines)
	if !debit.Equal(credit) {
		return shared.Unbalanced(debit, credit)
	}
	if b.Kind == KindReceipt {
		first := b.Lines[0].Payment
		for _, l := range b.Lines[1:] {
			if l.Payment != first {
				return shared.Invalid(shared.ErrPaymentMismatch, "all receipt lines must share payment method and reference")
			}
		}
	}
	return nil
}

// normalized validates the note and fills the header amount from its details.
func (n Note) normalized() (Note, error) {
	if err := validateStruct(n); err != nil {
		return Note{}, err
	}
	if len(n.Details) == 0 {
		if !n.Amount.IsPositive() {
			return Note{}, shared.Invalid(shared.ErrInvalidAmount, "note amount")
		}
		return n, nil
	}
	sum := decimal.Zero
	for i, d := range n.Details {
		if !d.Amount.IsPositive() {
			return Note{}, shared.Invalid(shared.ErrInvalidAmount, fmt.Sprintf("detail %d", i+1))
		}
		sum = sum.Add(d.Amount)
	}
	if !n.Amount.IsZero() && !n.Amount.Equal(sum) {
		return Note{}, shared.Unbalanced(n.Amount, sum)
	}
	n.Amount = sum
	return n, nil
}
