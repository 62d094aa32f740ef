package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/models"
)

type SettingsRepo struct {
	DB DBTX
}

func (r *SettingsRepo) GetLatest(ctx context.Context) (models.PayoutSettings, error) {
	const getLatest = `-- name: GetLatestSettings
	SELECT version, minimum_payout, updated_by, created_at
	FROM payout_settings
	ORDER BY version DESC
	LIMIT 1
	`

	rows, _ := r.DB.Query(ctx, getLatest)
	s, err := pgx.CollectOneRow(rows, rowToSettings)

	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, pgx.ErrNoRows):
		return s, apperrors.ErrSettingsNotFound
	default:
		return s, fmt.Errorf("db error: %w", err)
	}
}

func (r *SettingsRepo) Create(ctx context.Context, s models.PayoutSettings) (models.PayoutSettings, error) {
	const createSettings = `-- name: CreateSettings
	INSERT INTO payout_settings (minimum_payout, updated_by)
	VALUES ($1, $2)
	RETURNING version, minimum_payout, updated_by, created_at
	`

	rows, _ := r.DB.Query(ctx, createSettings, s.MinimumPayout, s.UpdatedBy)
	created, err := pgx.CollectOneRow(rows, rowToSettings)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func rowToSettings(row pgx.CollectableRow) (models.PayoutSettings, error) {
	var s models.PayoutSettings
	err := row.Scan(&s.Version, &s.MinimumPayout, &s.UpdatedBy, &s.CreatedAt)
	return s, err
}
