package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/handlers/render"
	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/service/settlement"
)

type errorKind struct {
	kind   string
	status int
}

// Sentinel errors the API knows how to explain. Order matters only for wrapped chains
var knownErrors = []struct {
	err error
	errorKind
}{
	{apperrors.ErrWithdrawalNotFound, errorKind{"not_found", http.StatusNotFound}},
	{apperrors.ErrWasherNotFound, errorKind{"not_found", http.StatusNotFound}},
	{apperrors.ErrDestinationNotFound, errorKind{"not_found", http.StatusNotFound}},
	{apperrors.ErrWithdrawalNotOwner, errorKind{"forbidden", http.StatusForbidden}},
	{apperrors.ErrWithdrawalInvalidState, errorKind{"invalid_state", http.StatusConflict}},
	{apperrors.ErrWithdrawalOpenExists, errorKind{"open_withdrawal_exists", http.StatusConflict}},
	{apperrors.ErrBalanceInsufficient, errorKind{"insufficient_balance", http.StatusPaymentRequired}},
	{apperrors.ErrBelowMinimumPayout, errorKind{"below_minimum_payout", http.StatusUnprocessableEntity}},
	{apperrors.ErrWasherNotActive, errorKind{"washer_not_eligible", http.StatusUnprocessableEntity}},
	{apperrors.ErrDestinationNotVerified, errorKind{"destination_not_verified", http.StatusUnprocessableEntity}},
	{apperrors.ErrAmountInvalid, errorKind{"invalid_amount", http.StatusUnprocessableEntity}},
	{apperrors.ErrRejectReasonMissing, errorKind{render.ValidationErrorType, http.StatusBadRequest}},
	{apperrors.ErrSettlementRejected, errorKind{"settlement_rejected", http.StatusBadGateway}},
	{apperrors.ErrSettlementPending, errorKind{"settlement_pending", http.StatusAccepted}},
	{apperrors.ErrReconciliationRequired, errorKind{"reconciliation_required", http.StatusInternalServerError}},
	{apperrors.ErrSignatureInvalid, errorKind{"invalid_signature", http.StatusBadRequest}},
	{settlement.ErrMalformedEvent, errorKind{render.DecodingErrorType, http.StatusBadRequest}},
}

func classify(err error) (errorKind, bool) {
	for _, known := range knownErrors {
		if errors.Is(err, known.err) {
			return known.errorKind, true
		}
	}
	return errorKind{}, false
}

// Render service error as machine readable kind
// Unknown errors are logged and hidden behind 500
func renderError(w http.ResponseWriter, l logger.Logger, err error, msg string) {
	ek, ok := classify(err)
	if !ok {
		l.Error(msg, "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if ek.status >= http.StatusInternalServerError {
		l.Error(msg, "error", err)
	}

	render.Error(w, ek.kind, err.Error(), ek.status)
}
