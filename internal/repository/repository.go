package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/washpay/internal/models"
)

type Storage interface {
	Washer() WasherRepo
	Destination() DestinationRepo
	Withdrawal() WithdrawalRepo
	Settings() SettingsRepo
	Event() EventRepo

	// Run fn in a database transaction
	// Commit if fn returns nil, rollback otherwise. Nested calls use savepoints
	InTx(ctx context.Context, fn func(Storage) error) error
}

type WasherRepo interface {
	// Create washer with zero balance
	// Must return apperrors.ErrWasherAlreadyExists if the user already has a washer
	CreateWasher(ctx context.Context, userID uuid.UUID, status string) (models.Washer, error)

	// Get washer. If lock is true the row is locked until the transaction ends
	// Must return apperrors.ErrWasherNotFound if not found
	GetWasher(ctx context.Context, washerID uuid.UUID, lock bool) (models.Washer, error)
	GetWasherByUserID(ctx context.Context, userID uuid.UUID, lock bool) (models.Washer, error)
	GetWasherByAccountID(ctx context.Context, accountID string) (models.Washer, error)

	// Attach processor account once onboarding completes
	SetExternalAccount(ctx context.Context, washerID uuid.UUID, accountID string) (models.Washer, error)

	// Apply transaction to the wallet balance and store it in the ledger
	// Must return apperrors.ErrBalanceInsufficient if the balance would become negative
	UpdateBalance(ctx context.Context, t models.Transaction) (models.Washer, error)

	// List ledger transactions, newest first. Empty types means all
	ListTransactions(ctx context.Context, washerID uuid.UUID, types []string) ([]models.Transaction, error)
}

type DestinationRepo interface {
	// Create or replace the washer payout destination
	Save(ctx context.Context, d models.PayoutDestination) (models.PayoutDestination, error)

	// Must return apperrors.ErrDestinationNotFound if washer has no destination
	GetByWasherID(ctx context.Context, washerID uuid.UUID) (models.PayoutDestination, error)
}

type ListWithdrawalsOpts struct {
	Statuses      []string
	WasherID      *uuid.UUID
	UserID        *uuid.UUID
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}

type WithdrawalRepo interface {
	// Insert new withdrawal
	// Must return apperrors.ErrWithdrawalOpenExists if the washer already has an open one
	Create(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error)

	// Must return apperrors.ErrWithdrawalNotFound if not found
	Get(ctx context.Context, id uuid.UUID, lock bool) (models.Withdrawal, error)
	GetByTransferID(ctx context.Context, transferID string, lock bool) (models.Withdrawal, error)

	// List ordered by requested_at, newest first
	List(ctx context.Context, opts ListWithdrawalsOpts) ([]models.Withdrawal, error)

	// Persist every mutable field of the withdrawal
	Update(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error)
}

type SettingsRepo interface {
	// Latest settings version
	// Must return apperrors.ErrSettingsNotFound if nothing stored yet
	GetLatest(ctx context.Context) (models.PayoutSettings, error)

	// Store new version. Version and CreatedAt are assigned by the storage
	Create(ctx context.Context, s models.PayoutSettings) (models.PayoutSettings, error)
}

type EventRepo interface {
	// Record the event as handled
	// Must return apperrors.ErrEventAlreadyHandled if the event id is known already
	Record(ctx context.Context, e models.SettlementEvent) error
}
