package ledger

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/shared"
)

const noCounterpartLabel = "N/A"

// Observer receives report build outcomes.
type Observer interface {
	ObserveReport(duration time.Duration, lines int, err error)
}

// Service aggregates every source into an account ledger.
type Service struct {
	sources []Source
	names   accounts.NameStore
	sign    SignConvention
	metrics Observer
	logger  *slog.Logger
}

// NewService constructs the aggregator over the given sources.
func NewService(names accounts.NameStore, sign SignConvention, logger *slog.Logger, sources ...Source) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sources: sources, names: names, sign: sign, logger: logger}
}

// WithMetrics attaches a report observer.
func (s *Service) WithMetrics(o Observer) {
	s.metrics = o
}

// BuildReport returns the ledger of account over [from, to). The opening
// balance folds every line dated before from, so the closing balance of one
// range always equals the opening balance of the next.
func (s *Service) BuildReport(ctx context.Context, account accounts.Ref, from, to time.Time) (Report, error) {
	start := time.Now()
	report, err := s.build(ctx, account, from, to)
	if s.metrics != nil {
		s.metrics.ObserveReport(time.Since(start), len(report.Lines), err)
	}
	if err != nil {
		s.logger.Debug("ledger report failed", slog.String("account", account.String()), slog.Any("error", err))
	}
	return report, err
}

func (s *Service) build(ctx context.Context, account accounts.Ref, from, to time.Time) (Report, error) {
	if to.IsZero() || to.Before(from) {
		return Report{}, shared.Invalid(shared.ErrInvalidRange, "to must not precede from")
	}
	resolver := accounts.NewResolver(s.names)
	exists, err := resolver.Exists(ctx, account)
	if err != nil {
		return Report{}, err
	}
	if !exists {
		return Report{}, &shared.NotFoundError{Entity: "account", Key: account.String()}
	}

	before := make([][]Line, len(s.sources))
	within := make([][]Line, len(s.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		if !from.IsZero() {
			g.Go(func() error {
				lines, err := src.Fetch(gctx, account, Window{To: from})
				before[i] = lines
				return err
			})
		}
		g.Go(func() error {
			lines, err := src.Fetch(gctx, account, Window{From: from, To: to})
			within[i] = lines
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	lines := flatten(within)
	if err := labelLines(ctx, resolver, lines); err != nil {
		return Report{}, err
	}
	SortLines(lines)

	report := Report{
		Account:        account,
		From:           from,
		To:             to,
		OpeningBalance: s.sign.Fold(account.Type, flatten(before)),
		Lines:          lines,
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
	}
	for _, l := range lines {
		report.TotalDebit = report.TotalDebit.Add(l.Debit())
		report.TotalCredit = report.TotalCredit.Add(l.Credit())
	}
	report.ClosingBalance = report.OpeningBalance.Add(s.sign.Fold(account.Type, lines))
	if report.AccountName, err = resolver.Label(ctx, account); err != nil {
		return Report{}, err
	}
	return report, nil
}

func flatten(parts [][]Line) []Line {
	out := make([]Line, 0)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func labelLines(ctx context.Context, resolver *accounts.Resolver, lines []Line) error {
	var refs []accounts.Ref
	for _, l := range lines {
		if l.OppositeLabel == "" {
			refs = append(refs, l.Counterparts...)
		}
	}
	if err := resolver.Prime(ctx, refs); err != nil {
		return err
	}
	for i := range lines {
		if lines[i].OppositeLabel != "" {
			continue
		}
		if len(lines[i].Counterparts) == 0 {
			lines[i].OppositeLabel = noCounterpartLabel
			continue
		}
		labels := make([]string, 0, len(lines[i].Counterparts))
		for _, ref := range lines[i].Counterparts {
			label, err := resolver.Label(ctx, ref)
			if err != nil {
				return err
			}
			labels = append(labels, label)
		}
		lines[i].OppositeLabel = joinDistinct(labels)
	}
	return nil
}

// SortLines orders lines by date, then by line id.
func SortLines(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].Date.Equal(lines[j].Date) {
			return lines[i].Date.Before(lines[j].Date)
		}
		return lines[i].ID.Less(lines[j].ID)
	})
}
