package accountinghttp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/ledger"
	"github.com/abraq/abraq-accounts/internal/accounting/rules"
	"github.com/abraq/abraq-accounts/internal/accounting/shared"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

// ReportQuery is the parsed query of GET /ledger/report. To is inclusive on
// the wire and converted to the exclusive bound the aggregator expects.
type ReportQuery struct {
	Account accounts.Ref
	From    time.Time
	To      time.Time
}

func (q ReportQuery) key() string {
	return fmt.Sprintf("%s|%s|%s", q.Account, q.From.Format(dateLayout), q.To.Format(dateLayout))
}

func parseReportQuery(values url.Values) (ReportQuery, error) {
	ref, err := parseRef(values)
	if err != nil {
		return ReportQuery{}, err
	}
	var q ReportQuery
	q.Account = ref
	if raw := values.Get("from"); raw != "" {
		if q.From, err = time.Parse(dateLayout, raw); err != nil {
			return ReportQuery{}, shared.Invalid(shared.ErrInvalidRange, "from must be YYYY-MM-DD")
		}
	}
	raw := values.Get("to")
	if raw == "" {
		return ReportQuery{}, shared.Invalid(shared.ErrInvalidRange, "to is required")
	}
	to, err := time.Parse(dateLayout, raw)
	if err != nil {
		return ReportQuery{}, shared.Invalid(shared.ErrInvalidRange, "to must be YYYY-MM-DD")
	}
	q.To = to.AddDate(0, 0, 1)
	return q, nil
}

func parseRef(values url.Values) (accounts.Ref, error) {
	t, ok := accounts.ParseType(values.Get("type"))
	if !ok {
		return accounts.Ref{}, shared.Invalid(shared.ErrInvalidInput, fmt.Sprintf("unknown account type %q", values.Get("type")))
	}
	id, err := strconv.ParseInt(values.Get("id"), 10, 64)
	if err != nil || id <= 0 {
		return accounts.Ref{}, shared.Invalid(shared.ErrInvalidInput, "id must be a positive integer")
	}
	return accounts.Ref{Type: t, ID: id}, nil
}

func parseProfile(values url.Values) (*int64, error) {
	raw := strings.TrimSpace(values.Get("profile"))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, shared.Invalid(shared.ErrInvalidInput, "profile must be an integer")
	}
	return &id, nil
}

func parseSide(values url.Values) (accounts.Side, error) {
	raw := values.Get("side")
	if raw == "" {
		return "", nil
	}
	side, ok := accounts.ParseSide(raw)
	if !ok {
		return "", shared.Invalid(shared.ErrInvalidInput, fmt.Sprintf("unknown side %q", raw))
	}
	return side, nil
}

func parseStrict(values url.Values) bool {
	strict, _ := strconv.ParseBool(values.Get("strict"))
	return strict
}

// ReportLine is the wire form of a ledger line.
type ReportLine struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	VoucherNo   string `json:"voucher_no"`
	Kind        string `json:"kind"`
	Opposite    string `json:"opposite"`
	Narration   string `json:"narration,omitempty"`
	PaymentType string `json:"payment_type,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

// ReportResponse is the wire form of ledger.Report with amounts fixed to two places.
type ReportResponse struct {
	Account        accounts.Ref `json:"account"`
	AccountName    string       `json:"account_name"`
	From           string       `json:"from,omitempty"`
	To             string       `json:"to"`
	OpeningBalance string       `json:"opening_balance"`
	Lines          []ReportLine `json:"lines"`
	TotalDebit     string       `json:"total_debit"`
	TotalCredit    string       `json:"total_credit"`
	ClosingBalance string       `json:"closing_balance"`
}

func reportResponse(r ledger.Report) ReportResponse {
	resp := ReportResponse{
		Account:        r.Account,
		AccountName:    r.AccountName,
		To:             r.To.AddDate(0, 0, -1).Format(dateLayout),
		OpeningBalance: r.OpeningBalance.StringFixed(2),
		Lines:          make([]ReportLine, 0, len(r.Lines)),
		TotalDebit:     r.TotalDebit.StringFixed(2),
		TotalCredit:    r.TotalCredit.StringFixed(2),
		ClosingBalance: r.ClosingBalance.StringFixed(2),
	}
	if !r.From.IsZero() {
		resp.From = r.From.Format(dateLayout)
	}
	for _, l := range r.Lines {
		resp.Lines = append(resp.Lines, ReportLine{
			ID:          l.ID.String(),
			Date:        l.Date.Format(dateLayout),
			VoucherNo:   l.VoucherNo,
			Kind:        string(l.Kind),
			Opposite:    l.OppositeLabel,
			Narration:   l.Narration,
			PaymentType: l.PaymentType,
			Reference:   l.Reference,
			Debit:       l.Debit().StringFixed(2),
			Credit:      l.Credit().StringFixed(2),
		})
	}
	return resp
}

// RuleRequest is the body of PUT /ledger/rules.
type RuleRequest struct {
	Account   accounts.Ref `json:"account"`
	ProfileID *int64       `json:"profile_id"`
	Value     string       `json:"value" validate:"required"`
}

func (r RuleRequest) rule() (rules.Rule, error) {
	if err := validate.Struct(r); err != nil {
		return rules.Rule{}, shared.Invalid(shared.ErrInvalidInput, err.Error())
	}
	nature, ok := rules.ParseNature(r.Value)
	if !ok || nature == rules.NatureBlank {
		return rules.Rule{}, shared.Invalid(shared.ErrInvalidInput, fmt.Sprintf("unknown nature %q", r.Value))
	}
	return rules.Rule{Account: r.Account, ProfileID: r.ProfileID, Value: nature}, nil
}

// TransitionRequest is the body of POST /ledger/vouchers/{kind}/{action}.
type TransitionRequest struct {
	Number string `json:"number" validate:"required,max=32"`
}

// PostResponse reports the number a posting was stored under.
type PostResponse struct {
	VoucherNo string `json:"voucher_no"`
	Replayed  bool   `json:"replayed,omitempty"`
}

// TransitionResponse reports the state a voucher moved to.
type TransitionResponse struct {
	VoucherNo string `json:"voucher_no"`
	Status    string `json:"status"`
	Active    bool   `json:"active"`
}
