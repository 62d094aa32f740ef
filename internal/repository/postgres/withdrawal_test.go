package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
	"github.com/nkiryanov/washpay/internal/testutil"
)

func TestWithdrawal(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	newWithdrawal := func(washer models.Washer, requestedAt time.Time) models.Withdrawal {
		return models.Withdrawal{
			WasherID:    washer.ID,
			UserID:      washer.UserID,
			Amount:      decimal.RequireFromString("50.25"),
			Currency:    "USD",
			Status:      models.WithdrawalPending,
			RequestedAt: requestedAt,
		}
	}

	t.Run("Create", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			washer, err := storage.Washer().CreateWasher(t.Context(), uuid.New(), models.WasherStatusActive)
			require.NoError(t, err)

			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					w, err := storage.Withdrawal().Create(t.Context(), newWithdrawal(washer, time.Now()))

					require.NoError(t, err)
					require.NotEqual(t, uuid.Nil, w.ID)
					require.Equal(t, models.WithdrawalPending, w.Status)
					require.True(t, w.Amount.Equal(decimal.RequireFromString("50.25")))
					require.Nil(t, w.ExternalTransferID)
					require.Nil(t, w.ApprovedAt)
				})
			})

			t.Run("second open fails", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Withdrawal().Create(t.Context(), newWithdrawal(washer, time.Now()))
					require.NoError(t, err)

					_, err = storage.Withdrawal().Create(t.Context(), newWithdrawal(washer, time.Now()))
					require.ErrorIs(t, err, apperrors.ErrWithdrawalOpenExists)
				})
			})

			t.Run("new allowed after terminal", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					w, err := storage.Withdrawal().Create(t.Context(), newWithdrawal(washer, time.Now()))
					require.NoError(t, err)

					now := time.Now()
					w.Status = models.WithdrawalCancelled
					w.CancelledAt = &now
					w.UpdatedAt = now
					_, err = storage.Withdrawal().Update(t.Context(), w)
					require.NoError(t, err)

					_, err = storage.Withdrawal().Create(t.Context(), newWithdrawal(washer, time.Now()))
					require.NoError(t, err)
				})
			})
		})
	})

	t.Run("Update and Get", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			washer, err := storage.Washer().CreateWasher(t.Context(), uuid.New(), models.WasherStatusActive)
			require.NoError(t, err)
			w, err := storage.Withdrawal().Create(t.Context(), newWithdrawal(washer, time.Now()))
			require.NoError(t, err)

			adminID := uuid.New()
			now := time.Now().UTC().Truncate(time.Microsecond)
			transferID := "tr_1"
			key := "key_1"
			w.Status = models.WithdrawalProcessing
			w.ApprovedAt = &now
			w.ApprovedBy = &adminID
			w.ProcessedAt = &now
			w.ProcessedBy = &adminID
			w.UpdatedAt = now
			w.ExternalTransferID = &transferID
			w.IdempotencyKey = &key
			w.Note = "looks fine"

			updated, err := storage.Withdrawal().Update(t.Context(), w)
			require.NoError(t, err)
			require.Equal(t, models.WithdrawalProcessing, updated.Status)
			require.True(t, updated.UpdatedAt.Equal(now))

			got, err := storage.Withdrawal().Get(t.Context(), w.ID, true)
			require.NoError(t, err)
			require.Equal(t, adminID, *got.ProcessedBy)
			require.Equal(t, "looks fine", got.Note)
			require.Equal(t, key, *got.IdempotencyKey)

			byTransfer, err := storage.Withdrawal().GetByTransferID(t.Context(), transferID, false)
			require.NoError(t, err)
			require.Equal(t, w.ID, byTransfer.ID)

			_, err = storage.Withdrawal().Get(t.Context(), uuid.New(), false)
			require.ErrorIs(t, err, apperrors.ErrWithdrawalNotFound)

			_, err = storage.Withdrawal().GetByTransferID(t.Context(), "tr_unknown", false)
			require.ErrorIs(t, err, apperrors.ErrWithdrawalNotFound)

			w.ID = uuid.New()
			_, err = storage.Withdrawal().Update(t.Context(), w)
			require.ErrorIs(t, err, apperrors.ErrWithdrawalNotFound)
		})
	})

	t.Run("List", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			first, err := storage.Washer().CreateWasher(t.Context(), uuid.New(), models.WasherStatusActive)
			require.NoError(t, err)
			second, err := storage.Washer().CreateWasher(t.Context(), uuid.New(), models.WasherStatusActive)
			require.NoError(t, err)

			old := testutil.MustParseTime(t, "2025-01-01T10:00:00Z")
			recent := testutil.MustParseTime(t, "2025-01-02T10:00:00Z")

			w1, err := storage.Withdrawal().Create(t.Context(), newWithdrawal(first, old))
			require.NoError(t, err)
			w1.Status = models.WithdrawalRejected
			w1.RejectionReason = "no"
			_, err = storage.Withdrawal().Update(t.Context(), w1)
			require.NoError(t, err)

			w2, err := storage.Withdrawal().Create(t.Context(), newWithdrawal(first, recent))
			require.NoError(t, err)
			w3, err := storage.Withdrawal().Create(t.Context(), newWithdrawal(second, old))
			require.NoError(t, err)

			t.Run("all newest first", func(t *testing.T) {
				list, err := storage.Withdrawal().List(t.Context(), repository.ListWithdrawalsOpts{})

				require.NoError(t, err)
				require.Len(t, list, 3)
				require.Equal(t, w2.ID, list[0].ID)
			})

			t.Run("by status", func(t *testing.T) {
				list, err := storage.Withdrawal().List(t.Context(), repository.ListWithdrawalsOpts{Statuses: []string{models.WithdrawalRejected}})

				require.NoError(t, err)
				require.Len(t, list, 1)
				require.Equal(t, w1.ID, list[0].ID)
			})

			t.Run("by washer and user", func(t *testing.T) {
				list, err := storage.Withdrawal().List(t.Context(), repository.ListWithdrawalsOpts{WasherID: &second.ID})
				require.NoError(t, err)
				require.Len(t, list, 1)
				require.Equal(t, w3.ID, list[0].ID)

				list, err = storage.Withdrawal().List(t.Context(), repository.ListWithdrawalsOpts{UserID: &first.UserID})
				require.NoError(t, err)
				require.Len(t, list, 2)
			})

			t.Run("updated before", func(t *testing.T) {
				before := testutil.MustParseTime(t, "2025-01-01T12:00:00Z")
				list, err := storage.Withdrawal().List(t.Context(), repository.ListWithdrawalsOpts{
					Statuses:      models.OpenWithdrawalStatuses,
					UpdatedBefore: &before,
				})

				require.NoError(t, err)
				require.Len(t, list, 1)
				require.Equal(t, w3.ID, list[0].ID)
			})

			t.Run("limit offset", func(t *testing.T) {
				list, err := storage.Withdrawal().List(t.Context(), repository.ListWithdrawalsOpts{Limit: 1, Offset: 1})

				require.NoError(t, err)
				require.Len(t, list, 1)
			})
		})
	})
}
