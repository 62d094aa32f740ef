package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/models"
)

type WasherRepo struct {
	DB DBTX
}

const washerColumns = `id, user_id, status, wallet_balance, external_account_id, created_at, updated_at`

func (r *WasherRepo) CreateWasher(ctx context.Context, userID uuid.UUID, status string) (models.Washer, error) {
	const createWasher = `-- name: CreateWasher
	INSERT INTO washers (id, user_id, status)
	VALUES ($1, $2, $3)
	RETURNING ` + washerColumns

	rows, _ := r.DB.Query(ctx, createWasher, uuid.New(), userID, status)
	washer, err := pgx.CollectOneRow(rows, rowToWasher)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return washer, apperrors.ErrWasherAlreadyExists
		}

		return washer, fmt.Errorf("db error: %w", err)
	}

	return washer, nil
}

func (r *WasherRepo) GetWasher(ctx context.Context, washerID uuid.UUID, lock bool) (models.Washer, error) {
	getWasher := `-- name: GetWasher
	SELECT ` + washerColumns + ` FROM washers
	WHERE id = $1
	`
	if lock {
		getWasher += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, getWasher, washerID)
	return collectWasher(rows)
}

func (r *WasherRepo) GetWasherByUserID(ctx context.Context, userID uuid.UUID, lock bool) (models.Washer, error) {
	getWasher := `-- name: GetWasherByUserID
	SELECT ` + washerColumns + ` FROM washers
	WHERE user_id = $1
	`
	if lock {
		getWasher += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, getWasher, userID)
	return collectWasher(rows)
}

func (r *WasherRepo) GetWasherByAccountID(ctx context.Context, accountID string) (models.Washer, error) {
	const getWasher = `-- name: GetWasherByAccountID
	SELECT ` + washerColumns + ` FROM washers
	WHERE external_account_id = $1
	`

	rows, _ := r.DB.Query(ctx, getWasher, accountID)
	return collectWasher(rows)
}

func (r *WasherRepo) SetExternalAccount(ctx context.Context, washerID uuid.UUID, accountID string) (models.Washer, error) {
	const setAccount = `-- name: SetExternalAccount
	UPDATE washers
	SET external_account_id = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + washerColumns

	rows, _ := r.DB.Query(ctx, setAccount, washerID, accountID)
	return collectWasher(rows)
}

// Apply the transaction delta and append it to the ledger in one (nested) transaction
func (r *WasherRepo) UpdateBalance(ctx context.Context, t models.Transaction) (models.Washer, error) {
	const updateBalance = `-- name: UpdateBalance
	UPDATE washers
	SET wallet_balance = wallet_balance + $2, updated_at = now()
	WHERE id = $1 AND wallet_balance + $2 >= 0
	RETURNING ` + washerColumns

	const createTransaction = `-- name: CreateTransaction
	INSERT INTO wallet_transactions (id, washer_id, withdrawal_id, type, amount, processed_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`

	var washer models.Washer

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.ProcessedAt.IsZero() {
		t.ProcessedAt = time.Now()
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return washer, fmt.Errorf("db tx error: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rows, _ := tx.Query(ctx, updateBalance, t.WasherID, t.Delta())
	washer, err = pgx.CollectOneRow(rows, rowToWasher)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		// Either washer not exists or balance is not enough
		if _, err := (&WasherRepo{DB: tx}).GetWasher(ctx, t.WasherID, false); err != nil {
			return washer, err
		}
		return washer, apperrors.ErrBalanceInsufficient
	default:
		return washer, fmt.Errorf("db error: %w", err)
	}

	_, err = tx.Exec(ctx, createTransaction, t.ID, t.WasherID, t.WithdrawalID, t.Type, t.Amount, t.ProcessedAt)
	if err != nil {
		return washer, fmt.Errorf("db error: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return washer, fmt.Errorf("db tx error: %w", err)
	}

	return washer, nil
}

func (r *WasherRepo) ListTransactions(ctx context.Context, washerID uuid.UUID, types []string) ([]models.Transaction, error) {
	const listTransactions = `-- name: ListTransactions
	SELECT id, processed_at, washer_id, withdrawal_id, type, amount
	FROM wallet_transactions
	WHERE washer_id = $1 AND (cardinality($2::text[]) = 0 OR type = ANY($2))
	ORDER BY processed_at DESC
	`

	if types == nil {
		types = []string{}
	}

	rows, _ := r.DB.Query(ctx, listTransactions, washerID, types)
	transactions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Transaction, error) {
		var t models.Transaction
		err := row.Scan(&t.ID, &t.ProcessedAt, &t.WasherID, &t.WithdrawalID, &t.Type, &t.Amount)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func collectWasher(rows pgx.Rows) (models.Washer, error) {
	washer, err := pgx.CollectOneRow(rows, rowToWasher)

	switch {
	case err == nil:
		return washer, nil
	case errors.Is(err, pgx.ErrNoRows):
		return washer, apperrors.ErrWasherNotFound
	default:
		return washer, fmt.Errorf("db error: %w", err)
	}
}

func rowToWasher(row pgx.CollectableRow) (models.Washer, error) {
	var w models.Washer
	err := row.Scan(&w.ID, &w.UserID, &w.Status, &w.WalletBalance, &w.ExternalAccountID, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}
