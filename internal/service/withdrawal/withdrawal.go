package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/metrics"
	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
	"github.com/nkiryanov/washpay/internal/service/settlement"
)

type settlementClient interface {
	CreateTransfer(ctx context.Context, r settlement.TransferRequest) (settlement.Transfer, error)
}

type notifier interface {
	WithdrawalChanged(w models.Withdrawal)
}

type Config struct {
	// Floor used until an admin stores the first settings version
	DefaultMinimumPayout decimal.Decimal

	// Currency used when the washer does not pass one
	DefaultCurrency string
}

type Service struct {
	storage  repository.Storage
	client   settlementClient
	notifier notifier
	logger   logger.Logger
	cfg      Config

	now func() time.Time
}

func NewService(cfg Config, storage repository.Storage, client settlementClient, notifier notifier, logger logger.Logger) *Service {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}

	return &Service{
		storage:  storage,
		client:   client,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create pending withdrawal for the washer owned by the user
func (s *Service) Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string) (models.Withdrawal, error) {
	var w models.Withdrawal

	if !amount.IsPositive() || !amount.Round(2).Equal(amount) {
		return w, apperrors.ErrAmountInvalid
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		// Locking the washer serializes every payout mutation of this washer
		washer, err := st.Washer().GetWasherByUserID(ctx, userID, true)
		if err != nil {
			return err
		}

		if !washer.IsActive() {
			return apperrors.ErrWasherNotActive
		}

		if err := requireVerifiedDestination(ctx, st, washer); err != nil {
			return err
		}

		settings, err := s.currentSettings(ctx, st)
		if err != nil {
			return err
		}
		if washer.WalletBalance.LessThan(settings.MinimumPayout) {
			return apperrors.ErrBelowMinimumPayout
		}

		open, err := st.Withdrawal().List(ctx, repository.ListWithdrawalsOpts{
			Statuses: models.OpenWithdrawalStatuses,
			WasherID: &washer.ID,
			Limit:    1,
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return apperrors.ErrWithdrawalOpenExists
		}

		if amount.GreaterThan(washer.WalletBalance) {
			return apperrors.ErrBalanceInsufficient
		}

		now := s.timestamp()
		w, err = st.Withdrawal().Create(ctx, models.Withdrawal{
			WasherID:    washer.ID,
			UserID:      washer.UserID,
			Amount:      amount,
			Currency:    currency,
			Status:      models.WithdrawalPending,
			RequestedAt: now,
			UpdatedAt:   now,
		})
		return err
	})
	if err != nil {
		return w, err
	}

	s.logger.Info("Withdrawal requested", "withdrawal_id", w.ID, "washer_id", w.WasherID, "amount", w.Amount)
	s.committed(w)

	return w, nil
}

func (s *Service) Approve(ctx context.Context, adminID uuid.UUID, id uuid.UUID, note string) (models.Withdrawal, error) {
	return s.transition(ctx, id, func(_ repository.Storage, washer models.Washer, w *models.Withdrawal) error {
		if w.Status != models.WithdrawalPending {
			return apperrors.ErrWithdrawalInvalidState
		}

		// Approving a payout the wallet cannot cover only moves the failure to process
		if washer.WalletBalance.LessThan(w.Amount) {
			return apperrors.ErrBalanceInsufficient
		}

		now := s.timestamp()
		w.Status = models.WithdrawalApproved
		w.ApprovedAt = &now
		w.ApprovedBy = &adminID
		w.Note = strings.TrimSpace(note)
		w.UpdatedAt = now
		return nil
	})
}

func (s *Service) Reject(ctx context.Context, adminID uuid.UUID, id uuid.UUID, reason string) (models.Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Withdrawal{}, apperrors.ErrRejectReasonMissing
	}

	return s.transition(ctx, id, func(_ repository.Storage, _ models.Washer, w *models.Withdrawal) error {
		if w.Status != models.WithdrawalPending {
			return apperrors.ErrWithdrawalInvalidState
		}

		now := s.timestamp()
		w.Status = models.WithdrawalRejected
		w.RejectedAt = &now
		w.RejectedBy = &adminID
		w.RejectionReason = reason
		w.UpdatedAt = now
		return nil
	})
}

// Cancel pending withdrawal on behalf of the washer who requested it
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.Withdrawal, error) {
	return s.transition(ctx, id, func(_ repository.Storage, washer models.Washer, w *models.Withdrawal) error {
		if washer.UserID != userID {
			return apperrors.ErrWithdrawalNotOwner
		}
		if w.Status != models.WithdrawalPending {
			return apperrors.ErrWithdrawalInvalidState
		}

		now := s.timestamp()
		w.Status = models.WithdrawalCancelled
		w.CancelledAt = &now
		w.UpdatedAt = now
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	return s.storage.Withdrawal().Get(ctx, id, false)
}

func (s *Service) List(ctx context.Context, opts repository.ListWithdrawalsOpts) ([]models.Withdrawal, error) {
	return s.storage.Withdrawal().List(ctx, opts)
}

// List withdrawals of the washer owned by the user
func (s *Service) ListOwn(ctx context.Context, userID uuid.UUID, opts repository.ListWithdrawalsOpts) ([]models.Withdrawal, error) {
	opts.UserID = &userID
	opts.WasherID = nil
	return s.storage.Withdrawal().List(ctx, opts)
}

// Current floor. Falls back to the configured default with version 0
func (s *Service) MinimumPayout(ctx context.Context) (models.PayoutSettings, error) {
	return s.currentSettings(ctx, s.storage)
}

func (s *Service) SetMinimumPayout(ctx context.Context, adminID uuid.UUID, amount decimal.Decimal) (models.PayoutSettings, error) {
	if amount.IsNegative() || !amount.Round(2).Equal(amount) {
		return models.PayoutSettings{}, apperrors.ErrAmountInvalid
	}

	settings, err := s.storage.Settings().Create(ctx, models.PayoutSettings{
		MinimumPayout: amount,
		UpdatedBy:     &adminID,
	})
	if err != nil {
		return settings, err
	}

	s.logger.Info("Minimum payout changed", "version", settings.Version, "amount", settings.MinimumPayout, "admin_id", adminID)
	return settings, nil
}

func (s *Service) currentSettings(ctx context.Context, st repository.Storage) (models.PayoutSettings, error) {
	settings, err := st.Settings().GetLatest(ctx)
	switch {
	case err == nil:
		return settings, nil
	case errors.Is(err, apperrors.ErrSettingsNotFound):
		return models.PayoutSettings{Version: 0, MinimumPayout: s.cfg.DefaultMinimumPayout}, nil
	default:
		return settings, err
	}
}

// Lock washer and withdrawal, let fn mutate the withdrawal and persist it
// fn returning error leaves everything untouched
func (s *Service) transition(ctx context.Context, id uuid.UUID, fn func(st repository.Storage, washer models.Washer, w *models.Withdrawal) error) (models.Withdrawal, error) {
	var w models.Withdrawal

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		washer, locked, err := lockWithdrawal(ctx, st, id)
		if err != nil {
			return err
		}

		from := locked.Status
		if err := fn(st, washer, &locked); err != nil {
			return err
		}

		w, err = update(ctx, st, from, locked)
		return err
	})
	if err != nil {
		return w, err
	}

	s.logger.Info("Withdrawal status changed", "withdrawal_id", w.ID, "status", w.Status)
	s.committed(w)

	return w, nil
}

// Called once a transition is durable
func (s *Service) committed(w models.Withdrawal) {
	metrics.WithdrawalTransitions.WithLabelValues(w.Status).Inc()
	if s.notifier != nil {
		s.notifier.WithdrawalChanged(w)
	}
}

func (s *Service) timestamp() time.Time {
	// Postgres keeps microseconds, keep the same precision to derive stable idempotency keys
	return s.now().UTC().Truncate(time.Microsecond)
}

// Persist the withdrawal, refusing status moves outside the lifecycle
func update(ctx context.Context, st repository.Storage, from string, w models.Withdrawal) (models.Withdrawal, error) {
	if w.Status != from && !models.CanTransition(from, w.Status) {
		return w, fmt.Errorf("%w: %s to %s", apperrors.ErrWithdrawalInvalidState, from, w.Status)
	}
	return st.Withdrawal().Update(ctx, w)
}

// Lock the washer row first and the withdrawal second. Every writer follows this order
func lockWithdrawal(ctx context.Context, st repository.Storage, id uuid.UUID) (models.Washer, models.Withdrawal, error) {
	w, err := st.Withdrawal().Get(ctx, id, false)
	if err != nil {
		return models.Washer{}, w, err
	}

	washer, err := st.Washer().GetWasher(ctx, w.WasherID, true)
	if err != nil {
		return washer, w, err
	}

	w, err = st.Withdrawal().Get(ctx, id, true)
	return washer, w, err
}

func requireVerifiedDestination(ctx context.Context, st repository.Storage, washer models.Washer) error {
	dest, err := st.Destination().GetByWasherID(ctx, washer.ID)
	switch {
	case errors.Is(err, apperrors.ErrDestinationNotFound):
		return apperrors.ErrDestinationNotVerified
	case err != nil:
		return err
	case !dest.IsVerified():
		return apperrors.ErrDestinationNotVerified
	}
	return nil
}

// Key for the transfer call. Concurrent process calls on the same request see the same
// last transition time, so they derive the same key and the processor dedupes them
func IdempotencyKey(w models.Withdrawal) string {
	return fmt.Sprintf("wd_%s_%d", w.ID, w.UpdatedAt.UnixMicro())
}
