package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/handlers/render"
	"github.com/nkiryanov/washpay/internal/handlers/userctx"
	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/models"
)

func handleListWithdrawals(ws withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts, fields := listOpts(r)
		if len(fields) > 0 {
			render.FieldErrors(w, fields)
			return
		}

		withdrawals, err := ws.List(r.Context(), opts)
		if err != nil {
			renderError(w, l, err, "Failed to list withdrawals")
			return
		}

		render.JSON(w, newWithdrawalsResponse(withdrawals))
	})
}

func handleGetWithdrawal(ws withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			render.Error(w, "not_found", "Withdrawal not found", http.StatusNotFound)
			return
		}

		withdrawal, err := ws.Get(r.Context(), id)
		if err != nil {
			renderError(w, l, err, "Failed to get withdrawal")
			return
		}

		render.JSON(w, newWithdrawalResponse(withdrawal))
	})
}

func handleApproveWithdrawal(ws withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Note string `json:"note" validate:"max=1000"`
	}

	return withAdmin(func(w http.ResponseWriter, r *http.Request, admin models.Identity) {
		id, ok := pathID(r)
		if !ok {
			render.Error(w, "not_found", "Withdrawal not found", http.StatusNotFound)
			return
		}

		// Body is optional for approval
		var req request
		if r.ContentLength != 0 {
			var err error
			req, err = render.BindAndValidate[request](w, r)
			if err != nil {
				return
			}
		}

		withdrawal, err := ws.Approve(r.Context(), admin.UserID, id, req.Note)
		if err != nil {
			renderError(w, l, err, "Failed to approve withdrawal")
			return
		}

		render.JSON(w, newWithdrawalResponse(withdrawal))
	})
}

func handleRejectWithdrawal(ws withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Reason string `json:"reason" validate:"required,max=1000"`
	}

	return withAdmin(func(w http.ResponseWriter, r *http.Request, admin models.Identity) {
		id, ok := pathID(r)
		if !ok {
			render.Error(w, "not_found", "Withdrawal not found", http.StatusNotFound)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		withdrawal, err := ws.Reject(r.Context(), admin.UserID, id, req.Reason)
		if err != nil {
			renderError(w, l, err, "Failed to reject withdrawal")
			return
		}

		render.JSON(w, newWithdrawalResponse(withdrawal))
	})
}

func handleProcessWithdrawal(ws withdrawalService, l logger.Logger) http.Handler {
	return withAdmin(func(w http.ResponseWriter, r *http.Request, admin models.Identity) {
		id, ok := pathID(r)
		if !ok {
			render.Error(w, "not_found", "Withdrawal not found", http.StatusNotFound)
			return
		}

		withdrawal, err := ws.Process(r.Context(), admin.UserID, id)
		switch {
		case err == nil:
			render.JSON(w, newWithdrawalResponse(withdrawal))
		case errors.Is(err, apperrors.ErrSettlementPending):
			// Request stays processing, reconciliation settles it later
			render.JSONWithStatus(w, newWithdrawalResponse(withdrawal), http.StatusAccepted)
		default:
			renderError(w, l, err, "Failed to process withdrawal")
		}
	})
}

func handleGetMinimumPayout(ws withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		settings, err := ws.MinimumPayout(r.Context())
		if err != nil {
			renderError(w, l, err, "Failed to get minimum payout")
			return
		}

		render.JSON(w, newSettingsResponse(settings))
	})
}

func handleSetMinimumPayout(ws withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"gte=0"`
	}

	return withAdmin(func(w http.ResponseWriter, r *http.Request, admin models.Identity) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		settings, err := ws.SetMinimumPayout(r.Context(), admin.UserID, req.Amount)
		if err != nil {
			renderError(w, l, err, "Failed to set minimum payout")
			return
		}

		render.JSON(w, newSettingsResponse(settings))
	})
}

func handleSyncDestination(receiver webhookReceiver, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		washerID, ok := pathID(r)
		if !ok {
			render.Error(w, "not_found", "Washer not found", http.StatusNotFound)
			return
		}

		destination, err := receiver.SyncDestination(r.Context(), washerID)
		if err != nil {
			renderError(w, l, err, "Failed to sync payout destination")
			return
		}

		render.JSON(w, newDestinationResponse(destination))
	})
}

// Pass the authenticated admin to the handler
func withAdmin(fn func(w http.ResponseWriter, r *http.Request, admin models.Identity)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		fn(w, r, identity)
	})
}
