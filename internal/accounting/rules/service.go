package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	acctshared "github.com/abraq/abraq-accounts/internal/accounting/shared"
	"github.com/abraq/abraq-accounts/internal/shared"
)

// maxCandidates caps account searches.
const maxCandidates = 100

// Store abstracts rule persistence.
type Store interface {
	List(ctx context.Context) ([]Rule, error)
	Fingerprint(ctx context.Context) (string, error)
	Upsert(ctx context.Context, rule Rule) error
	Delete(ctx context.Context, account accounts.Ref, profileID *int64) (bool, error)
}

// AccountLookup answers the account questions rule resolution needs.
type AccountLookup interface {
	Exists(ctx context.Context, ref accounts.Ref) (bool, error)
	Parent(ctx context.Context, ref accounts.Ref) (*accounts.Ref, error)
	Search(ctx context.Context, term string, limit int) ([]accounts.Candidate, error)
}

// AuditPort records rule edits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheObserver receives snapshot cache outcomes.
type CacheObserver interface {
	ObserveRuleCache(hit bool)
}

// Service resolves and administers account rules.
type Service struct {
	store    Store
	accounts AccountLookup
	cache    *Cache
	audit    AuditPort
	metrics  CacheObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the rule service. cache and audit may be nil.
func NewService(store Store, lookup AccountLookup, cache *Cache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, accounts: lookup, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a cache observer.
func (s *Service) WithMetrics(m CacheObserver) {
	s.metrics = m
}

// Snapshot returns the current rule set, served from Redis when the table
// fingerprint and version still match.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	fingerprint, err := s.store.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, fingerprint)
	if err != nil {
		s.logger.Warn("rules cache version", slog.Any("error", err))
		return s.loadDirect(ctx, fingerprint)
	}
	rules, hit, err := s.cache.Fetch(ctx, key, s.store.List)
	if err != nil {
		s.logger.Warn("rules cache fetch", slog.String("key", key), slog.Any("error", err))
		return s.loadDirect(ctx, fingerprint)
	}
	if s.metrics != nil {
		s.metrics.ObserveRuleCache(hit)
	}
	return NewSnapshot(fingerprint, rules), nil
}

func (s *Service) loadDirect(ctx context.Context, fingerprint string) (*Snapshot, error) {
	rules, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(fingerprint, rules), nil
}

// Resolve decides whether account may be posted on side under profileID.
func (s *Service) Resolve(ctx context.Context, account accounts.Ref, profileID *int64, side accounts.Side, strict bool) (Decision, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Decision{}, err
	}
	parent, err := s.accounts.Parent(ctx, account)
	if err != nil {
		return Decision{}, err
	}
	return snap.Resolve(Query{Account: account, Parent: parent, ProfileID: profileID, Side: side, Strict: strict}), nil
}

// FilterCandidates keeps the allowed candidates using a single snapshot.
func (s *Service) FilterCandidates(ctx context.Context, list []accounts.Candidate, profileID *int64, side accounts.Side, strict bool) ([]accounts.Candidate, error) {
	if len(list) == 0 {
		return []accounts.Candidate{}, nil
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.FilterCandidates(list, profileID, side, strict), nil
}

// SearchInput filters an account search.
type SearchInput struct {
	Term      string
	ProfileID *int64
	Side      accounts.Side
	Strict    bool
}

// Search lists postable accounts matching the term that the rules allow.
func (s *Service) Search(ctx context.Context, in SearchInput) ([]accounts.Candidate, error) {
	list, err := s.accounts.Search(ctx, in.Term, maxCandidates)
	if err != nil {
		return nil, err
	}
	return s.FilterCandidates(ctx, list, in.ProfileID, in.Side, in.Strict)
}

// SetRule creates or replaces the rule at (account, profile).
func (s *Service) SetRule(ctx context.Context, rule Rule, actorID int64) (Rule, error) {
	if !rule.Account.Type.Valid() || rule.Account.ID <= 0 {
		return Rule{}, acctshared.Invalid(acctshared.ErrInvalidInput, fmt.Sprintf("unknown account %s", rule.Account))
	}
	switch rule.Value {
	case NatureBoth, NatureDebit, NatureCredit, NatureCancel:
	default:
		return Rule{}, acctshared.Invalid(acctshared.ErrInvalidInput, fmt.Sprintf("unknown nature %q", rule.Value))
	}
	exists, err := s.accounts.Exists(ctx, rule.Account)
	if err != nil {
		return Rule{}, err
	}
	if !exists {
		return Rule{}, &acctshared.NotFoundError{Entity: "account", Key: rule.Account.String()}
	}
	rule.UpdatedAt = s.now()
	if err := s.store.Upsert(ctx, rule); err != nil {
		return Rule{}, err
	}
	s.afterEdit(ctx, "rule.set", rule.Account, rule.ProfileID, actorID, map[string]any{"value": string(rule.Value)})
	return rule, nil
}

// DeleteRule removes the rule at (account, profile).
func (s *Service) DeleteRule(ctx context.Context, account accounts.Ref, profileID *int64, actorID int64) error {
	removed, err := s.store.Delete(ctx, account, profileID)
	if err != nil {
		return err
	}
	if !removed {
		return &acctshared.NotFoundError{Entity: "rule", Key: ruleKeyString(account, profileID)}
	}
	s.afterEdit(ctx, "rule.delete", account, profileID, actorID, nil)
	return nil
}

func (s *Service) afterEdit(ctx context.Context, action string, account accounts.Ref, profileID *int64, actorID int64, meta map[string]any) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("rules cache bump", slog.Any("error", err))
	}
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	if profileID != nil {
		meta["profile_id"] = *profileID
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account_rule",
		EntityID: account.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit rule edit", slog.String("action", action), slog.Any("error", err))
	}
}

func ruleKeyString(account accounts.Ref, profileID *int64) string {
	if profileID == nil {
		return account.String() + "/default"
	}
	return fmt.Sprintf("%s/profile:%d", account, *profileID)
}
