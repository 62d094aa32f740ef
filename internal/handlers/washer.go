package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/washpay/internal/handlers/render"
	"github.com/nkiryanov/washpay/internal/handlers/userctx"
	"github.com/nkiryanov/washpay/internal/logger"
)

func handleCreateWithdrawal(ws withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Amount   decimal.Decimal `json:"amount" validate:"required,gt=0"`
		Currency string          `json:"currency" validate:"omitempty,iso4217"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		withdrawal, err := ws.Create(r.Context(), identity.UserID, req.Amount, req.Currency)
		if err != nil {
			renderError(w, l, err, "Failed to create withdrawal")
			return
		}

		render.JSONWithStatus(w, newWithdrawalResponse(withdrawal), http.StatusCreated)
	})
}

func handleListOwnWithdrawals(ws withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		opts, fields := listOpts(r)
		if len(fields) > 0 {
			render.FieldErrors(w, fields)
			return
		}

		withdrawals, err := ws.ListOwn(r.Context(), identity.UserID, opts)
		if err != nil {
			renderError(w, l, err, "Failed to list withdrawals")
			return
		}

		render.JSON(w, newWithdrawalsResponse(withdrawals))
	})
}

func handleCancelWithdrawal(ws withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, ok := pathID(r)
		if !ok {
			render.Error(w, "not_found", "Withdrawal not found", http.StatusNotFound)
			return
		}

		withdrawal, err := ws.Cancel(r.Context(), identity.UserID, id)
		if err != nil {
			renderError(w, l, err, "Failed to cancel withdrawal")
			return
		}

		render.JSON(w, newWithdrawalResponse(withdrawal))
	})
}
