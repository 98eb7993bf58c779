package vouchers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/shared"
	appshared "github.com/abraq/abraq-accounts/internal/shared"
)

// ErrDuplicateNumber is returned by ClaimNumber when the number is already taken.
var ErrDuplicateNumber = errors.New("vouchers: duplicate voucher number")

// numberAttempts bounds how many sequence values a posting may try.
const numberAttempts = 2

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside a posting transaction.
type TxRepository interface {
	AccountExists(ctx context.Context, ref accounts.Ref) (bool, error)
	FirstChartGroup(ctx context.Context) (accounts.Ref, error)
	NextSequence(ctx context.Context, kind Kind) (int64, error)
	Savepoint(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ClaimNumber(ctx context.Context, kind Kind, number string) error
	InsertJournalRows(ctx context.Context, h Header, rows []JournalRow) error
	InsertEntryRows(ctx context.Context, h Header, rows []EntryRow) error
	InsertNote(ctx context.Context, h Header, note Note) error
	LockVoucher(ctx context.Context, kind Kind, number string) (State, error)
	SetVoucherState(ctx context.Context, kind Kind, number string, state State) error
}

// AuditPort records voucher events in the transaction history.
type AuditPort interface {
	Record(ctx context.Context, log appshared.AuditLog) error
}

// Observer receives posting outcomes.
type Observer interface {
	ObservePost(kind string, rows int, err error)
}

// Service posts vouchers and moves them through their lifecycle.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	mediator *accounts.Ref
	metrics  Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the voucher service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMediator fixes the balancing account used for multi-line journals.
// Without it the first chart group is used.
func (s *Service) WithMediator(ref accounts.Ref) {
	if ref.Type.Valid() && ref.ID > 0 {
		s.mediator = &ref
	}
}

// WithMetrics attaches a posting observer.
func (s *Service) WithMetrics(o Observer) {
	s.metrics = o
}

// PostBatch validates and persists a balanced batch, returning its voucher number.
func (s *Service) PostBatch(ctx context.Context, batch Batch) (string, error) {
	if batch.ActorID == 0 {
		if actor, ok := appshared.ActorFromContext(ctx); ok {
			batch.ActorID = actor.ID
		}
	}
	var (
		number string
		rows   int
	)
	err := batch.Validate()
	if err == nil {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := ensureAccounts(ctx, tx, batchRefs(batch)); err != nil {
				return err
			}
			insert, count, err := s.planBatch(ctx, tx, batch)
			if err != nil {
				return err
			}
			rows = count
			number, err = s.claim(ctx, tx, s.header(batch.Kind, batch.EntryDate, batch.ActorID), insert)
			return err
		})
	}
	s.observe(batch.Kind, rows, err)
	if err != nil {
		return "", err
	}
	debit, _ := Totals(batch.Lines)
	s.record(ctx, batch.ActorID, "voucher.post", batch.Kind, number, map[string]any{
		"rows":  rows,
		"total": debit.StringFixed(2),
	})
	s.logger.Info("voucher posted", slog.String("kind", string(batch.Kind)), slog.String("voucher_no", number), slog.Int("rows", rows))
	return number, nil
}

type inserter func(ctx context.Context, tx TxRepository, h Header) error

func (s *Service) planBatch(ctx context.Context, tx TxRepository, batch Batch) (inserter, int, error) {
	switch batch.Kind {
	case KindJournal:
		var mediator accounts.Ref
		if !mergeable(batch) {
			m, err := s.resolveMediator(ctx, tx)
			if err != nil {
				return nil, 0, err
			}
			mediator = m
		}
		rows, err := journalRows(batch, mediator)
		if err != nil {
			return nil, 0, err
		}
		return func(ctx context.Context, tx TxRepository, h Header) error {
			return tx.InsertJournalRows(ctx, h, rows)
		}, len(rows), nil
	case KindReceipt, KindSettlement:
		rows := entryRows(batch)
		return func(ctx context.Context, tx TxRepository, h Header) error {
			return tx.InsertEntryRows(ctx, h, rows)
		}, len(rows), nil
	}
	return nil, 0, shared.Invalid(shared.ErrInvalidInput, fmt.Sprintf("unsupported batch kind %q", batch.Kind))
}

func (s *Service) resolveMediator(ctx context.Context, tx TxRepository) (accounts.Ref, error) {
	if s.mediator != nil {
		return *s.mediator, nil
	}
	ref, err := tx.FirstChartGroup(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return accounts.Ref{}, shared.Invalid(shared.ErrMediatorMissing, "")
		}
		return accounts.Ref{}, err
	}
	return ref, nil
}

// mergeable reports whether a journal batch is a single debit/credit pair.
func mergeable(b Batch) bool {
	return len(b.Lines) == 2 && b.Lines[0].Side != b.Lines[1].Side
}

// journalRows merges a debit/credit pair into one row, or books every line
// against the mediator account.
func journalRows(b Batch, mediator accounts.Ref) ([]JournalRow, error) {
	if mergeable(b) {
		debit, credit := b.Lines[0], b.Lines[1]
		if debit.Side != accounts.SideDebit {
			debit, credit = credit, debit
		}
		if debit.Payment != credit.Payment {
			return nil, shared.Invalid(shared.ErrPaymentMismatch, "")
		}
		narration := firstNonEmpty(b.Narration, debit.Narration, credit.Narration)
		if ref := debit.Payment.Reference; ref != "" {
			narration = fmt.Sprintf("Ref: %s. %s", ref, narration)
		}
		return []JournalRow{{
			Debit:     debit.Account,
			Credit:    credit.Account,
			Amount:    debit.Amount,
			Narration: narration,
			Payment:   debit.Payment,
		}}, nil
	}
	rows := make([]JournalRow, 0, len(b.Lines))
	for _, l := range b.Lines {
		row := JournalRow{
			Amount:    l.Amount,
			Narration: firstNonEmpty(l.Narration, b.Narration),
			Payment:   l.Payment,
		}
		if l.Side == accounts.SideDebit {
			row.Debit, row.Credit = l.Account, mediator
		} else {
			row.Debit, row.Credit = mediator, l.Account
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func entryRows(b Batch) []EntryRow {
	rows := make([]EntryRow, 0, len(b.Lines))
	for _, l := range b.Lines {
		rows = append(rows, EntryRow{
			Account:     l.Account,
			AccountName: l.AccountName,
			Side:        l.Side,
			Amount:      l.Amount,
			Narration:   firstNonEmpty(l.Narration, b.Narration),
			Payment:     l.Payment,
			EntryFor:    l.EntryFor,
		})
	}
	return rows
}

func batchRefs(b Batch) []accounts.Ref {
	refs := make([]accounts.Ref, 0, 2*len(b.Lines))
	for _, l := range b.Lines {
		refs = append(refs, l.Account)
		if l.EntryFor != nil {
			refs = append(refs, *l.EntryFor)
		}
	}
	return refs
}

func ensureAccounts(ctx context.Context, tx TxRepository, refs []accounts.Ref) error {
	seen := make(map[accounts.Ref]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		ok, err := tx.AccountExists(ctx, ref)
		if err != nil {
			return err
		}
		if !ok {
			return shared.Invalid(shared.ErrUnknownAccount, ref.String())
		}
	}
	return nil
}

// claim draws a sequence value and inserts the voucher under it inside a
// savepoint. A collision with an existing number rolls back the savepoint and
// draws the next value once before giving up.
func (s *Service) claim(ctx context.Context, tx TxRepository, h Header, insert inserter) (string, error) {
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		seq, err := tx.NextSequence(ctx, h.Kind)
		if err != nil {
			return "", err
		}
		h.Number = FormatNumber(h.Kind, seq)
		err = tx.Savepoint(ctx, func(ctx context.Context, sp TxRepository) error {
			if err := sp.ClaimNumber(ctx, h.Kind, h.Number); err != nil {
				return err
			}
			return insert(ctx, sp, h)
		})
		if err == nil {
			return h.Number, nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return "", err
		}
		s.logger.Warn("voucher number collision", slog.String("voucher_no", h.Number), slog.Int("attempt", attempt))
	}
	return "", &shared.ConcurrencyError{Kind: string(h.Kind), Number: h.Number}
}

func (s *Service) header(kind Kind, date time.Time, actorID int64) Header {
	return Header{Kind: kind, Date: date, ActorID: actorID, At: s.now()}
}

// PostNote validates and persists a debit or credit note, returning its number.
func (s *Service) PostNote(ctx context.Context, note Note) (string, error) {
	if note.ActorID == 0 {
		if actor, ok := appshared.ActorFromContext(ctx); ok {
			note.ActorID = actor.ID
		}
	}
	var number string
	normalized, err := note.normalized()
	if err == nil {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := ensureAccounts(ctx, tx, []accounts.Ref{normalized.Target()}); err != nil {
				return err
			}
			var err error
			number, err = s.claim(ctx, tx, s.header(normalized.Kind, normalized.Date, normalized.ActorID), func(ctx context.Context, tx TxRepository, h Header) error {
				return tx.InsertNote(ctx, h, normalized)
			})
			return err
		})
	}
	s.observe(note.Kind, len(normalized.Details)+1, err)
	if err != nil {
		return "", err
	}
	s.record(ctx, normalized.ActorID, "voucher.post", normalized.Kind, number, map[string]any{
		"target":  normalized.Target().String(),
		"details": len(normalized.Details),
		"total":   normalized.Amount.StringFixed(2),
	})
	return number, nil
}

// Approve marks every row of the voucher approved.
func (s *Service) Approve(ctx context.Context, kind Kind, number string, actorID int64) (State, error) {
	return s.Transition(ctx, kind, number, ActionApprove, actorID)
}

// Unapprove returns an approved voucher to review.
func (s *Service) Unapprove(ctx context.Context, kind Kind, number string, actorID int64) (State, error) {
	return s.Transition(ctx, kind, number, ActionUnapprove, actorID)
}

// Delete soft-deletes an unapproved voucher.
func (s *Service) Delete(ctx context.Context, kind Kind, number string, actorID int64) (State, error) {
	return s.Transition(ctx, kind, number, ActionDelete, actorID)
}

// Transition applies action to every row of the voucher under a row lock.
func (s *Service) Transition(ctx context.Context, kind Kind, number string, action Action, actorID int64) (State, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return State{}, shared.Invalid(shared.ErrInvalidInput, fmt.Sprintf("unknown voucher kind %q", kind))
	}
	if number == "" {
		return State{}, shared.Invalid(shared.ErrInvalidInput, "voucher number required")
	}
	if actorID == 0 {
		if actor, ok := appshared.ActorFromContext(ctx); ok {
			actorID = actor.ID
		}
	}
	var next State
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockVoucher(ctx, kind, number)
		if err != nil {
			return err
		}
		next, err = Next(current, action)
		if err != nil {
			return err
		}
		return tx.SetVoucherState(ctx, kind, number, next)
	})
	if err != nil {
		return State{}, err
	}
	s.record(ctx, actorID, "voucher."+string(action), kind, number, map[string]any{
		"status": string(next.Status),
		"active": next.Active,
	})
	return next, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, kind Kind, number string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, appshared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   string(kind),
		EntityID: number,
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit voucher event", slog.String("action", action), slog.String("voucher_no", number), slog.Any("error", err))
	}
}

func (s *Service) observe(kind Kind, rows int, err error) {
	if s.metrics != nil {
		s.metrics.ObservePost(string(kind), rows, err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
