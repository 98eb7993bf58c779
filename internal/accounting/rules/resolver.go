package rules

import (
	"sync"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

type ruleKey struct {
	account    accounts.Ref
	profile    int64
	hasProfile bool
}

// Snapshot is an immutable, indexed view of every rule. It is loaded once per
// request and shared read-only by every resolution in that request.
type Snapshot struct {
	Fingerprint string `json:"fingerprint"`
	Rules       []Rule `json:"rules"`

	once  sync.Once
	index map[ruleKey]*Rule
}

// NewSnapshot indexes rules. A later duplicate for the same key wins.
func NewSnapshot(fingerprint string, rules []Rule) *Snapshot {
	s := &Snapshot{Fingerprint: fingerprint, Rules: rules}
	s.once.Do(s.buildIndex)
	return s
}

func (s *Snapshot) buildIndex() {
	s.index = make(map[ruleKey]*Rule, len(s.Rules))
	for i := range s.Rules {
		r := &s.Rules[i]
		key := ruleKey{account: r.Account}
		if r.ProfileID != nil {
			key.profile = *r.ProfileID
			key.hasProfile = true
		}
		s.index[key] = r
	}
}

// Len returns the number of rules.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// Resolve evaluates q against the snapshot: the exact profile rule, then the
// fallback rule, then the same two on the natural group, then the strict default.
func (s *Snapshot) Resolve(q Query) Decision {
	if q.Side == "" {
		return Decision{Allowed: true, Source: SourceUnfiltered}
	}
	if d, ok := s.layer(q.Account, q.ProfileID, q.Side, SourceProfile, SourceDefault); ok {
		return d
	}
	if q.Parent != nil {
		if d, ok := s.layer(*q.Parent, q.ProfileID, q.Side, SourceGroupProfile, SourceGroupDefault); ok {
			return d
		}
	}
	return Decision{Allowed: !q.Strict, Source: SourceUnruled}
}

func (s *Snapshot) layer(account accounts.Ref, profile *int64, side accounts.Side, specific, fallback Source) (Decision, bool) {
	if s == nil {
		return Decision{}, false
	}
	s.once.Do(s.buildIndex)
	if profile != nil {
		if r, ok := s.index[ruleKey{account: account, profile: *profile, hasProfile: true}]; ok {
			return Decision{Allowed: r.Value.Permits(side), Source: specific, Rule: r}, true
		}
	}
	if r, ok := s.index[ruleKey{account: account}]; ok {
		return Decision{Allowed: r.Value.Permits(side), Source: fallback, Rule: r}, true
	}
	return Decision{}, false
}

// FilterCandidates keeps the candidates allowed on side, preserving order.
func (s *Snapshot) FilterCandidates(list []accounts.Candidate, profile *int64, side accounts.Side, strict bool) []accounts.Candidate {
	out := make([]accounts.Candidate, 0, len(list))
	for _, c := range list {
		d := s.Resolve(Query{Account: c.Ref, Parent: c.Parent, ProfileID: profile, Side: side, Strict: strict})
		if d.Allowed {
			out = append(out, c)
		}
	}
	return out
}
