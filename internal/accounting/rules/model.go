package rules

import (
	"strings"
	"time"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// RuleTypeAllowedNature is the only rule type the resolver evaluates.
const RuleTypeAllowedNature = "AllowedNature"

// Nature is the permitted posting side stored on a rule.
type Nature string

const (
	NatureBoth   Nature = "Both"
	NatureDebit  Nature = "Debit"
	NatureCredit Nature = "Credit"
	NatureCancel Nature = "Cancel"
	// NatureBlank is a rule row with no value; it denies.
	NatureBlank Nature = ""
)

// ParseNature accepts the stored tags case-insensitively.
func ParseNature(raw string) (Nature, bool) {
	for _, n := range []Nature{NatureBoth, NatureDebit, NatureCredit, NatureCancel} {
		if strings.EqualFold(strings.TrimSpace(raw), string(n)) {
			return n, true
		}
	}
	if strings.TrimSpace(raw) == "" {
		return NatureBlank, true
	}
	return Nature(raw), false
}

// Permits decides whether the nature allows posting on side.
func (n Nature) Permits(side accounts.Side) bool {
	switch n {
	case NatureBoth:
		return true
	case NatureDebit:
		return side == accounts.SideDebit
	case NatureCredit:
		return side == accounts.SideCredit
	default:
		return false
	}
}

// Rule is one stored permission. A nil ProfileID is the fallback layer.
type Rule struct {
	Account   accounts.Ref `json:"account"`
	ProfileID *int64       `json:"profile_id,omitempty"`
	Value     Nature       `json:"value"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Source names the layer that produced a decision.
type Source string

const (
	SourceProfile      Source = "profile"
	SourceDefault      Source = "default"
	SourceGroupProfile Source = "group_profile"
	SourceGroupDefault Source = "group_default"
	SourceUnruled      Source = "unruled"
	SourceUnfiltered   Source = "unfiltered"
)

// Decision is the outcome of a resolution together with the rule that produced it.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Source  Source `json:"source"`
	Rule    *Rule  `json:"rule,omitempty"`
}

// Query is one resolution request.
type Query struct {
	Account   accounts.Ref
	Parent    *accounts.Ref
	ProfileID *int64
	Side      accounts.Side
	Strict    bool
}
