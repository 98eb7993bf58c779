// Package accountinghttp exposes the ledger core over JSON HTTP.
package accountinghttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/ledger"
	"github.com/abraq/abraq-accounts/internal/accounting/rules"
	"github.com/abraq/abraq-accounts/internal/accounting/shared"
	"github.com/abraq/abraq-accounts/internal/accounting/vouchers"
	"github.com/abraq/abraq-accounts/internal/platform/httpx"
	appshared "github.com/abraq/abraq-accounts/internal/shared"
)

const idempotencyHeader = "Idempotency-Key"

// ReportService builds account ledgers.
type ReportService interface {
	BuildReport(ctx context.Context, account accounts.Ref, from, to time.Time) (ledger.Report, error)
}

// RuleService resolves and edits account rules.
type RuleService interface {
	Resolve(ctx context.Context, account accounts.Ref, profileID *int64, side accounts.Side, strict bool) (rules.Decision, error)
	Search(ctx context.Context, in rules.SearchInput) ([]accounts.Candidate, error)
	SetRule(ctx context.Context, rule rules.Rule, actorID int64) (rules.Rule, error)
	DeleteRule(ctx context.Context, account accounts.Ref, profileID *int64, actorID int64) error
}

// VoucherService posts vouchers and applies lifecycle actions.
type VoucherService interface {
	PostBatch(ctx context.Context, batch vouchers.Batch) (string, error)
	PostNote(ctx context.Context, note vouchers.Note) (string, error)
	Transition(ctx context.Context, kind vouchers.Kind, number string, action vouchers.Action, actorID int64) (vouchers.State, error)
}

// IdempotencyStore guards postings against client retries.
type IdempotencyStore interface {
	Claim(ctx context.Context, key, module string) (string, bool, error)
	Complete(ctx context.Context, key, module, result string) error
	Release(ctx context.Context, key, module string) error
}

// Handler serves the /ledger routes.
type Handler struct {
	logger      *slog.Logger
	reports     ReportService
	rules       RuleService
	vouchers    VoucherService
	idempotency IdempotencyStore
	builds      singleflight.Group
}

// NewHandler constructs the handler. idempotency may be nil to disable replay protection.
func NewHandler(logger *slog.Logger, reports ReportService, ruleSvc RuleService, voucherSvc VoucherService, idempotency IdempotencyStore) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, reports: reports, rules: ruleSvc, vouchers: voucherSvc, idempotency: idempotency}
}

// MountRoutes registers the ledger routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/report", h.handleReport)
	r.Get("/accounts", h.handleAccounts)
	r.Get("/rules/resolve", h.handleResolve)
	r.Group(func(r chi.Router) {
		r.Use(requireActor)
		r.Put("/rules", h.handleSetRule)
		r.Delete("/rules", h.handleDeleteRule)
		r.Post("/vouchers", h.handlePostBatch)
		r.Post("/notes", h.handlePostNote)
		r.Post("/vouchers/{kind}/{action}", h.handleTransition)
	})
}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := appshared.ActorFromContext(r.Context()); !ok {
			httpx.RespondError(w, appshared.ErrActorMissing)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorID(r *http.Request) int64 {
	actor, _ := appshared.ActorFromContext(r.Context())
	return actor.ID
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	val, err, coalesced := h.singleflightBuild(r.Context(), q.key(), func(ctx context.Context) (any, error) {
		return h.reports.BuildReport(ctx, q.Account, q.From, q.To)
	})
	if err != nil {
		h.fail(w, r, "build ledger report", err)
		return
	}
	report := val.(ledger.Report)
	if coalesced {
		h.logger.Debug("ledger report shared", slog.String("account", q.Account.String()))
	}
	httpx.JSON(w, http.StatusOK, reportResponse(report))
}

func (h *Handler) handleAccounts(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	profile, err := parseProfile(values)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	side, err := parseSide(values)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.rules.Search(r.Context(), rules.SearchInput{
		Term:      values.Get("q"),
		ProfileID: profile,
		Side:      side,
		Strict:    parseStrict(values),
	})
	if err != nil {
		h.fail(w, r, "search accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": list})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	ref, err := parseRef(values)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	profile, err := parseProfile(values)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	side, err := parseSide(values)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	decision, err := h.rules.Resolve(r.Context(), ref, profile, side, parseStrict(values))
	if err != nil {
		h.fail(w, r, "resolve rule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) handleSetRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rule, err := req.rule()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stored, err := h.rules.SetRule(r.Context(), rule, actorID(r))
	if err != nil {
		h.fail(w, r, "set rule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stored)
}

func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	ref, err := parseRef(values)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	profile, err := parseProfile(values)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.rules.DeleteRule(r.Context(), ref, profile, actorID(r)); err != nil {
		h.fail(w, r, "delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePostBatch(w http.ResponseWriter, r *http.Request) {
	var batch vouchers.Batch
	if err := httpx.DecodeJSON(w, r, &batch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch.ActorID = actorID(r)
	h.idempotent(w, r, "vouchers."+string(batch.Kind), func(ctx context.Context) (string, error) {
		return h.vouchers.PostBatch(ctx, batch)
	})
}

func (h *Handler) handlePostNote(w http.ResponseWriter, r *http.Request) {
	var note vouchers.Note
	if err := httpx.DecodeJSON(w, r, &note); err != nil {
		httpx.RespondError(w, err)
		return
	}
	note.ActorID = actorID(r)
	h.idempotent(w, r, "vouchers."+string(note.Kind), func(ctx context.Context) (string, error) {
		return h.vouchers.PostNote(ctx, note)
	})
}

// idempotent runs post at most once per Idempotency-Key and module. A replayed
// key returns the voucher number stored by the first run.
func (h *Handler) idempotent(w http.ResponseWriter, r *http.Request, module string, post func(context.Context) (string, error)) {
	ctx := r.Context()
	key := r.Header.Get(idempotencyHeader)
	if key == "" || h.idempotency == nil {
		number, err := post(ctx)
		if err != nil {
			h.fail(w, r, "post voucher", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, PostResponse{VoucherNo: number})
		return
	}
	stored, replay, err := h.idempotency.Claim(ctx, key, module)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if replay {
		httpx.JSON(w, http.StatusOK, PostResponse{VoucherNo: stored, Replayed: true})
		return
	}
	number, err := post(ctx)
	if err != nil {
		if relErr := h.idempotency.Release(ctx, key, module); relErr != nil {
			h.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", relErr))
		}
		h.fail(w, r, "post voucher", err)
		return
	}
	if err := h.idempotency.Complete(ctx, key, module, number); err != nil {
		h.logger.Error("complete idempotency key", slog.String("voucher_no", number), slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, PostResponse{VoucherNo: number})
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	kind, ok := vouchers.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httpx.RespondError(w, shared.Invalid(shared.ErrInvalidInput, "unknown voucher kind"))
		return
	}
	var action vouchers.Action
	switch a := vouchers.Action(chi.URLParam(r, "action")); a {
	case vouchers.ActionApprove, vouchers.ActionUnapprove, vouchers.ActionDelete:
		action = a
	default:
		httpx.RespondError(w, shared.Invalid(shared.ErrInvalidInput, "unknown action"))
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Invalid(shared.ErrInvalidInput, err.Error()))
		return
	}
	state, err := h.vouchers.Transition(r.Context(), kind, req.Number, action, actorID(r))
	if err != nil {
		h.fail(w, r, "voucher transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, TransitionResponse{VoucherNo: req.Number, Status: string(state.Status), Active: state.Active})
}

// fail logs unexpected errors before mapping every error to a problem response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConcurrency) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
