package accounts

import (
	"fmt"
	"strings"
)

// Type enumerates the kinds of account a posting can reference.
type Type string

const (
	TypeBankAccount   Type = "BankAccount"
	TypeFarmer        Type = "Farmer"
	TypeGrowerGroup   Type = "GrowerGroup"
	TypeChartGroup    Type = "ChartGroup"
	TypeChartSubGroup Type = "ChartSubGroup"
	TypeLedger        Type = "Ledger"
)

// Types lists every known account type in display order.
var Types = []Type{TypeBankAccount, TypeFarmer, TypeGrowerGroup, TypeChartGroup, TypeChartSubGroup, TypeLedger}

// legacy tags still present in stored rows.
var legacyTags = map[Type][]string{
	TypeBankAccount:   {"BankMaster"},
	TypeLedger:        {"SubGroupLedger"},
	TypeChartGroup:    {"MasterGroup"},
	TypeChartSubGroup: {"MasterSubGroup"},
}

// ParseType accepts canonical and legacy tags, case-insensitively.
func ParseType(raw string) (Type, bool) {
	raw = strings.TrimSpace(raw)
	for _, t := range Types {
		if strings.EqualFold(raw, string(t)) {
			return t, true
		}
		for _, tag := range legacyTags[t] {
			if strings.EqualFold(raw, tag) {
				return t, true
			}
		}
	}
	return Type(raw), false
}

// Valid reports whether t is a known account type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Tags returns the canonical tag followed by legacy aliases, for storage lookups.
func (t Type) Tags() []string {
	return append([]string{string(t)}, legacyTags[t]...)
}

// UnmarshalText accepts canonical and legacy tags.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, ok := ParseType(string(b))
	if !ok {
		return fmt.Errorf("unknown account type %q", string(b))
	}
	*t = parsed
	return nil
}

// ParentType names the natural group of t used for rule fallback.
func (t Type) ParentType() (Type, bool) {
	switch t {
	case TypeBankAccount:
		return TypeLedger, true
	case TypeFarmer:
		return TypeGrowerGroup, true
	}
	return "", false
}

// Ref identifies an account across all account tables.
type Ref struct {
	Type Type  `json:"type" validate:"required"`
	ID   int64 `json:"id" validate:"gt=0"`
}

// NewRef normalises a raw type tag into a Ref.
func NewRef(rawType string, id int64) Ref {
	t, _ := ParseType(rawType)
	return Ref{Type: t, ID: id}
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == 0
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// FallbackLabel is the display name used when no name can be resolved.
func FallbackLabel(r Ref) string {
	return fmt.Sprintf("%s (id: %d)", r.Type, r.ID)
}

// Side is the debit/credit side of a posting.
type Side string

const (
	SideDebit  Side = "Debit"
	SideCredit Side = "Credit"
)

// ParseSide accepts Debit/Credit and the cash-book tags Payment/Receipt.
func ParseSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debit", "payment", "dr":
		return SideDebit, true
	case "credit", "receipt", "cr":
		return SideCredit, true
	}
	return "", false
}

// UnmarshalText accepts every tag ParseSide does.
func (s *Side) UnmarshalText(b []byte) error {
	parsed, ok := ParseSide(string(b))
	if !ok {
		return fmt.Errorf("unknown side %q", string(b))
	}
	*s = parsed
	return nil
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// Candidate is a selectable account together with its natural group.
type Candidate struct {
	Ref    Ref    `json:"ref"`
	Name   string `json:"name"`
	Parent *Ref   `json:"parent,omitempty"`
}
