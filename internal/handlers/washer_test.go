package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
)

func TestHandlers_CreateWithdrawal(t *testing.T) {
	userID := uuid.New()
	token := washerToken(userID)

	t.Run("created", func(t *testing.T) {
		var (
			gotAmount   decimal.Decimal
			gotCurrency string
		)
		api := newAPI(t, &fakeWithdrawals{
			create: func(uid uuid.UUID, amount decimal.Decimal, currency string) (models.Withdrawal, error) {
				require.Equal(t, userID, uid)
				gotAmount, gotCurrency = amount, currency
				return sampleWithdrawal(models.WithdrawalPending), nil
			},
		}, nil)

		status, body := api.do(http.MethodPost, "/api/washer/withdrawals", token, `{"amount": "120.50", "currency": "USD"}`)

		require.Equalf(t, http.StatusCreated, status, "Resp: %s", body)
		require.True(t, gotAmount.Equal(decimal.RequireFromString("120.5")))
		require.Equal(t, "USD", gotCurrency)
		require.JSONEq(t, `{
			"id": "6f3c54a2-3f7c-4a53-9a8e-0c5b7a0d2b11",
			"washer_id": "1d1e8f10-8a7e-4b8a-a5a4-2a3c9b6e4d21",
			"amount": "120.50",
			"currency": "USD",
			"status": "pending",
			"requested_at": "2026-03-01T10:00:00Z"
		}`, body)
	})

	t.Run("validation", func(t *testing.T) {
		api := newAPI(t, &fakeWithdrawals{}, nil)

		tests := []struct {
			name string
			body string
			want int
		}{
			{"invalid json", `{"amount":`, http.StatusBadRequest},
			{"no amount", `{}`, http.StatusBadRequest},
			{"zero amount", `{"amount": 0}`, http.StatusBadRequest},
			{"negative amount", `{"amount": "-1"}`, http.StatusBadRequest},
			{"unknown currency", `{"amount": 1, "currency": "ZZZ"}`, http.StatusBadRequest},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				status, body := api.do(http.MethodPost, "/api/washer/withdrawals", token, tt.body)
				require.Equalf(t, tt.want, status, "Resp: %s", body)
			})
		}
	})

	t.Run("service errors", func(t *testing.T) {
		tests := []struct {
			err    error
			status int
			kind   string
		}{
			{apperrors.ErrWithdrawalOpenExists, http.StatusConflict, "open_withdrawal_exists"},
			{apperrors.ErrBalanceInsufficient, http.StatusPaymentRequired, "insufficient_balance"},
			{apperrors.ErrBelowMinimumPayout, http.StatusUnprocessableEntity, "below_minimum_payout"},
			{apperrors.ErrWasherNotActive, http.StatusUnprocessableEntity, "washer_not_eligible"},
			{apperrors.ErrDestinationNotVerified, http.StatusUnprocessableEntity, "destination_not_verified"},
			{apperrors.ErrAmountInvalid, http.StatusUnprocessableEntity, "invalid_amount"},
			{apperrors.ErrWasherNotFound, http.StatusNotFound, "not_found"},
			{fmt.Errorf("db error: %w", errBoom), http.StatusInternalServerError, "service_error"},
		}

		for _, tt := range tests {
			t.Run(tt.kind, func(t *testing.T) {
				api := newAPI(t, &fakeWithdrawals{
					create: func(uuid.UUID, decimal.Decimal, string) (models.Withdrawal, error) {
						return models.Withdrawal{}, tt.err
					},
				}, nil)

				status, body := api.do(http.MethodPost, "/api/washer/withdrawals", token, `{"amount": 10}`)

				require.Equalf(t, tt.status, status, "Resp: %s", body)
				require.Contains(t, body, `"error":"`+tt.kind+`"`)
			})
		}
	})
}

func TestHandlers_ListOwnWithdrawals(t *testing.T) {
	userID := uuid.New()
	token := washerToken(userID)

	t.Run("ok with filters", func(t *testing.T) {
		var got repository.ListWithdrawalsOpts
		api := newAPI(t, &fakeWithdrawals{
			listOwn: func(uid uuid.UUID, opts repository.ListWithdrawalsOpts) ([]models.Withdrawal, error) {
				require.Equal(t, userID, uid)
				got = opts
				return []models.Withdrawal{sampleWithdrawal(models.WithdrawalCompleted)}, nil
			},
		}, nil)

		status, body := api.do(http.MethodGet, "/api/washer/withdrawals?status=completed,rejected&limit=500", token, "")

		require.Equalf(t, http.StatusOK, status, "Resp: %s", body)
		require.Equal(t, []string{models.WithdrawalCompleted, models.WithdrawalRejected}, got.Statuses)
		require.Equal(t, maxListLimit, got.Limit, "limit must be capped")
		require.Contains(t, body, `"status":"completed"`)
	})

	t.Run("empty list is array", func(t *testing.T) {
		api := newAPI(t, &fakeWithdrawals{
			listOwn: func(uuid.UUID, repository.ListWithdrawalsOpts) ([]models.Withdrawal, error) {
				return nil, nil
			},
		}, nil)

		status, body := api.do(http.MethodGet, "/api/washer/withdrawals", token, "")

		require.Equal(t, http.StatusOK, status)
		require.JSONEq(t, `[]`, body)
	})

	t.Run("unknown status", func(t *testing.T) {
		api := newAPI(t, &fakeWithdrawals{}, nil)

		status, body := api.do(http.MethodGet, "/api/washer/withdrawals?status=lost", token, "")

		require.Equal(t, http.StatusBadRequest, status)
		require.Contains(t, body, `"status":"Unknown status \"lost\""`)
	})
}

func TestHandlers_CancelWithdrawal(t *testing.T) {
	userID := uuid.New()
	token := washerToken(userID)
	id := sampleWithdrawal("").ID

	t.Run("cancelled", func(t *testing.T) {
		api := newAPI(t, &fakeWithdrawals{
			cancel: func(uid uuid.UUID, wid uuid.UUID) (models.Withdrawal, error) {
				require.Equal(t, userID, uid)
				require.Equal(t, id, wid)
				w := sampleWithdrawal(models.WithdrawalCancelled)
				at := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
				w.CancelledAt = &at
				return w, nil
			},
		}, nil)

		status, body := api.do(http.MethodPost, "/api/washer/withdrawals/"+id.String()+"/cancel", token, "")

		require.Equalf(t, http.StatusOK, status, "Resp: %s", body)
		require.Contains(t, body, `"status":"cancelled"`)
		require.Contains(t, body, `"cancelled_at":"2026-03-01T11:00:00Z"`)
	})

	t.Run("not owner", func(t *testing.T) {
		api := newAPI(t, &fakeWithdrawals{
			cancel: func(uuid.UUID, uuid.UUID) (models.Withdrawal, error) {
				return models.Withdrawal{}, apperrors.ErrWithdrawalNotOwner
			},
		}, nil)

		status, _ := api.do(http.MethodPost, "/api/washer/withdrawals/"+id.String()+"/cancel", token, "")
		require.Equal(t, http.StatusForbidden, status)
	})

	t.Run("not pending", func(t *testing.T) {
		api := newAPI(t, &fakeWithdrawals{
			cancel: func(uuid.UUID, uuid.UUID) (models.Withdrawal, error) {
				return models.Withdrawal{}, apperrors.ErrWithdrawalInvalidState
			},
		}, nil)

		status, body := api.do(http.MethodPost, "/api/washer/withdrawals/"+id.String()+"/cancel", token, "")
		require.Equal(t, http.StatusConflict, status)
		require.Contains(t, body, "invalid_state")
	})

	t.Run("malformed id", func(t *testing.T) {
		api := newAPI(t, &fakeWithdrawals{}, nil)

		status, _ := api.do(http.MethodPost, "/api/washer/withdrawals/not-a-uuid/cancel", token, "")
		require.Equal(t, http.StatusNotFound, status)
	})
}
