package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/models"
)

type DestinationRepo struct {
	DB DBTX
}

const destinationColumns = `id, washer_id, status, bank_name, account_holder, account_last4, verified_at, updated_at`

func (r *DestinationRepo) Save(ctx context.Context, d models.PayoutDestination) (models.PayoutDestination, error) {
	const saveDestination = `-- name: SaveDestination
	INSERT INTO payout_destinations (id, washer_id, status, bank_name, account_holder, account_last4, verified_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	ON CONFLICT (washer_id) DO UPDATE
	SET status = EXCLUDED.status,
		bank_name = EXCLUDED.bank_name,
		account_holder = EXCLUDED.account_holder,
		account_last4 = EXCLUDED.account_last4,
		verified_at = EXCLUDED.verified_at,
		updated_at = now()
	RETURNING ` + destinationColumns

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, saveDestination, d.ID, d.WasherID, d.Status, d.BankName, d.AccountHolder, d.AccountLast4, d.VerifiedAt)
	saved, err := pgx.CollectOneRow(rows, rowToDestination)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

func (r *DestinationRepo) GetByWasherID(ctx context.Context, washerID uuid.UUID) (models.PayoutDestination, error) {
	const getDestination = `-- name: GetDestinationByWasherID
	SELECT ` + destinationColumns + ` FROM payout_destinations
	WHERE washer_id = $1
	`

	rows, _ := r.DB.Query(ctx, getDestination, washerID)
	d, err := pgx.CollectOneRow(rows, rowToDestination)

	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, pgx.ErrNoRows):
		return d, apperrors.ErrDestinationNotFound
	default:
		return d, fmt.Errorf("db error: %w", err)
	}
}

func rowToDestination(row pgx.CollectableRow) (models.PayoutDestination, error) {
	var d models.PayoutDestination
	err := row.Scan(&d.ID, &d.WasherID, &d.Status, &d.BankName, &d.AccountHolder, &d.AccountLast4, &d.VerifiedAt, &d.UpdatedAt)
	return d, err
}
