// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/abraq/abraq-accounts/internal/accounting/shared"
	appshared "github.com/abraq/abraq-accounts/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		problem := ProblemDetail{
			Type:   "validation",
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: verr.Error(),
		}
		if errors.Is(verr, shared.ErrUnbalanced) {
			problem.Type = "unbalanced"
			problem.TotalDebit = verr.TotalDebit.StringFixed(2)
			problem.TotalCredit = verr.TotalCredit.StringFixed(2)
			problem.Discrepancy = verr.Discrepancy.StringFixed(2)
		}
		JSON(w, problem.Status, problem)
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, appshared.ErrIdempotencyKeyInvalid):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, appshared.ErrActorMissing):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConcurrency),
		errors.Is(err, appshared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
