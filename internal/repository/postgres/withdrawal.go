package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
)

type WithdrawalRepo struct {
	DB DBTX
}

const (
	withdrawalColumns = `id, washer_id, user_id, amount, currency, status, external_transfer_id, idempotency_key,
	requested_at, approved_at, processed_at, completed_at, rejected_at, cancelled_at, updated_at,
	approved_by, rejected_by, processed_by, note, rejection_reason`

	openWithdrawalIndex = "withdrawals_one_open_per_washer"
)

func (r *WithdrawalRepo) Create(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	const createWithdrawal = `-- name: CreateWithdrawal
	INSERT INTO withdrawals (id, washer_id, user_id, amount, currency, status, requested_at, updated_at, note)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
	RETURNING ` + withdrawalColumns

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createWithdrawal, w.ID, w.WasherID, w.UserID, w.Amount, w.Currency, w.Status, w.RequestedAt, w.Note)
	created, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == openWithdrawalIndex {
			return created, apperrors.ErrWithdrawalOpenExists
		}
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrWasherNotFound
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func (r *WithdrawalRepo) Get(ctx context.Context, id uuid.UUID, lock bool) (models.Withdrawal, error) {
	getWithdrawal := `-- name: GetWithdrawal
	SELECT ` + withdrawalColumns + ` FROM withdrawals
	WHERE id = $1
	`
	if lock {
		getWithdrawal += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, getWithdrawal, id)
	return collectWithdrawal(rows)
}

func (r *WithdrawalRepo) GetByTransferID(ctx context.Context, transferID string, lock bool) (models.Withdrawal, error) {
	getWithdrawal := `-- name: GetWithdrawalByTransferID
	SELECT ` + withdrawalColumns + ` FROM withdrawals
	WHERE external_transfer_id = $1
	`
	if lock {
		getWithdrawal += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, getWithdrawal, transferID)
	return collectWithdrawal(rows)
}

func (r *WithdrawalRepo) List(ctx context.Context, opts repository.ListWithdrawalsOpts) ([]models.Withdrawal, error) {
	var (
		where []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(opts.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(opts.Statuses)+")")
	}
	if opts.WasherID != nil {
		where = append(where, "washer_id = "+arg(*opts.WasherID))
	}
	if opts.UserID != nil {
		where = append(where, "user_id = "+arg(*opts.UserID))
	}
	if opts.UpdatedBefore != nil {
		where = append(where, "updated_at < "+arg(*opts.UpdatedBefore))
	}

	listWithdrawals := `-- name: ListWithdrawals
	SELECT ` + withdrawalColumns + ` FROM withdrawals`
	if len(where) > 0 {
		listWithdrawals += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	listWithdrawals += "\n\tORDER BY requested_at DESC, id"

	if opts.Limit > 0 {
		listWithdrawals += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		listWithdrawals += " OFFSET " + arg(opts.Offset)
	}

	rows, _ := r.DB.Query(ctx, listWithdrawals, args...)
	withdrawals, err := pgx.CollectRows(rows, rowToWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return withdrawals, nil
}

func (r *WithdrawalRepo) Update(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	const updateWithdrawal = `-- name: UpdateWithdrawal
	UPDATE withdrawals
	SET status = $2,
		external_transfer_id = $3,
		idempotency_key = $4,
		approved_at = $5,
		processed_at = $6,
		completed_at = $7,
		rejected_at = $8,
		cancelled_at = $9,
		updated_at = $10,
		approved_by = $11,
		rejected_by = $12,
		processed_by = $13,
		note = $14,
		rejection_reason = $15
	WHERE id = $1
	RETURNING ` + withdrawalColumns

	rows, _ := r.DB.Query(ctx, updateWithdrawal,
		w.ID, w.Status, w.ExternalTransferID, w.IdempotencyKey,
		w.ApprovedAt, w.ProcessedAt, w.CompletedAt, w.RejectedAt, w.CancelledAt, w.UpdatedAt,
		w.ApprovedBy, w.RejectedBy, w.ProcessedBy, w.Note, w.RejectionReason,
	)

	updated, err := collectWithdrawal(rows)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == openWithdrawalIndex {
			return updated, apperrors.ErrWithdrawalOpenExists
		}
		return updated, err
	}

	return updated, nil
}

func collectWithdrawal(rows pgx.Rows) (models.Withdrawal, error) {
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWithdrawalNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

func rowToWithdrawal(row pgx.CollectableRow) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := row.Scan(
		&w.ID, &w.WasherID, &w.UserID, &w.Amount, &w.Currency, &w.Status, &w.ExternalTransferID, &w.IdempotencyKey,
		&w.RequestedAt, &w.ApprovedAt, &w.ProcessedAt, &w.CompletedAt, &w.RejectedAt, &w.CancelledAt, &w.UpdatedAt,
		&w.ApprovedBy, &w.RejectedBy, &w.ProcessedBy, &w.Note, &w.RejectionReason,
	)
	return w, err
}
