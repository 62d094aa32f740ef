package withdrawal

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
	"github.com/nkiryanov/washpay/internal/service/settlement"
)

const (
	OutcomeApplied = "applied"
	OutcomeIgnored = "ignored"
)

// Move an approved withdrawal to the processor
//
// The request is durably marked processing before the transfer call. The wallet is debited
// only once the processor accepted the transfer. A rejected call reverts the request to approved,
// an ambiguous one leaves it processing for reconciliation.
func (s *Service) Process(ctx context.Context, adminID uuid.UUID, id uuid.UUID) (models.Withdrawal, error) {
	var (
		w           models.Withdrawal
		destination string
	)

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		washer, locked, err := lockWithdrawal(ctx, st, id)
		if err != nil {
			return err
		}

		if locked.Status != models.WithdrawalApproved {
			return apperrors.ErrWithdrawalInvalidState
		}

		if err := requireVerifiedDestination(ctx, st, washer); err != nil {
			return err
		}
		if washer.ExternalAccountID == nil {
			return apperrors.ErrDestinationNotVerified
		}
		destination = *washer.ExternalAccountID

		if washer.WalletBalance.LessThan(locked.Amount) {
			return apperrors.ErrBalanceInsufficient
		}

		key := IdempotencyKey(locked)
		now := s.timestamp()
		from := locked.Status
		locked.Status = models.WithdrawalProcessing
		locked.ProcessedAt = &now
		locked.ProcessedBy = &adminID
		locked.IdempotencyKey = &key
		locked.UpdatedAt = now

		w, err = update(ctx, st, from, locked)
		return err
	})
	if err != nil {
		return w, err
	}

	s.logger.Info("Withdrawal processing", "withdrawal_id", w.ID, "admin_id", adminID, "idempotency_key", *w.IdempotencyKey)
	s.committed(w)

	// The caller going away must not interrupt the call and its bookkeeping halfway
	ctx = context.WithoutCancel(ctx)

	transfer, err := s.client.CreateTransfer(ctx, transferRequest(w, destination))
	return s.applyCallResult(ctx, w, transfer, err)
}

// Repeat the transfer call of a processing withdrawal with its stored idempotency key
// The processor returns the original transfer if the first call reached it.
// w may be a stale snapshot: the call is made only if the stored attempt still carries the same key.
func (s *Service) ReplayTransfer(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	if w.IdempotencyKey == nil {
		return w, apperrors.ErrWithdrawalInvalidState
	}

	var (
		current     models.Withdrawal
		destination string
	)

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		washer, locked, err := lockWithdrawal(ctx, st, w.ID)
		if err != nil {
			return err
		}

		if locked.Status != models.WithdrawalProcessing || locked.ExternalTransferID != nil || !sameKey(locked.IdempotencyKey, w.IdempotencyKey) {
			return apperrors.ErrWithdrawalInvalidState
		}
		if washer.ExternalAccountID == nil {
			return apperrors.ErrDestinationNotVerified
		}

		current = locked
		destination = *washer.ExternalAccountID
		return nil
	})
	if err != nil {
		return w, err
	}

	transfer, err := s.client.CreateTransfer(ctx, transferRequest(current, destination))
	return s.applyCallResult(ctx, current, transfer, err)
}

func (s *Service) applyCallResult(ctx context.Context, w models.Withdrawal, transfer settlement.Transfer, callErr error) (models.Withdrawal, error) {
	switch {
	case callErr == nil:
		// The answer to this call belongs to this attempt whatever metadata the processor echoes
		transfer = withAttemptKey(transfer, *w.IdempotencyKey)

		settled, outcome, err := s.SettleTransfer(ctx, w.ID, transfer, nil)
		if err != nil {
			// Money left with the processor but the debit is not stored. Events or the sweeper repair it
			s.logger.Error("Accepted transfer not persisted",
				"error", err, "withdrawal_id", w.ID, "transfer_id", transfer.ID)
			return w, fmt.Errorf("%w: %v", apperrors.ErrReconciliationRequired, err)
		}

		switch {
		case settled.Status == models.WithdrawalApproved:
			return settled, fmt.Errorf("%w: %s", apperrors.ErrSettlementRejected, transfer.FailureMessage)
		case outcome != OutcomeIgnored:
			return settled, nil
		case !sameKey(settled.IdempotencyKey, w.IdempotencyKey):
			// Attempt resolved and superseded while the call was in flight
			return settled, apperrors.ErrWithdrawalInvalidState
		case settled.Status == models.WithdrawalProcessing && settled.ExternalTransferID == nil:
			s.logger.Error("Accepted transfer does not match withdrawal",
				"withdrawal_id", w.ID, "transfer_id", transfer.ID, "amount", transfer.Amount, "currency", transfer.Currency)
			return settled, fmt.Errorf("%w: transfer %s does not match withdrawal", apperrors.ErrReconciliationRequired, transfer.ID)
		}
		return settled, nil

	case settlement.IsCode(callErr, settlement.CodeRejected):
		reverted, err := s.revertRejected(ctx, w)
		if err != nil {
			s.logger.Error("Failed to revert rejected withdrawal", "error", err, "withdrawal_id", w.ID)
			return w, err
		}
		return reverted, fmt.Errorf("%w: %v", apperrors.ErrSettlementRejected, callErr)

	default:
		s.logger.Warn("Transfer outcome unknown, left for reconciliation", "error", callErr, "withdrawal_id", w.ID)
		return w, fmt.Errorf("%w: %v", apperrors.ErrSettlementPending, callErr)
	}
}

// Revert processing to approved after the processor refused the transfer. Nothing was debited
func (s *Service) revertRejected(ctx context.Context, attempt models.Withdrawal) (models.Withdrawal, error) {
	return s.transition(ctx, attempt.ID, func(_ repository.Storage, _ models.Washer, w *models.Withdrawal) error {
		// Somebody resolved this attempt meanwhile (event, sweeper)
		if w.Status != models.WithdrawalProcessing || w.ExternalTransferID != nil || !sameKey(w.IdempotencyKey, attempt.IdempotencyKey) {
			return apperrors.ErrWithdrawalInvalidState
		}

		revert(w, s.timestamp())
		return nil
	})
}

// Apply processor's view of the transfer to the withdrawal
//
// pending or paid attaches the transfer and debits the wallet once, paid also completes the request.
// failed reverts to approved, refunding the debit if one was made. Withdrawals not in processing are ignored.
// So are transfers other than the attached one, transfers created by another attempt (idempotency key
// in metadata) and transfers whose amount or currency differ. If event is given it is recorded in the
// same transaction, apperrors.ErrEventAlreadyHandled reports a replay.
func (s *Service) SettleTransfer(ctx context.Context, id uuid.UUID, transfer settlement.Transfer, event *models.SettlementEvent) (models.Withdrawal, string, error) {
	var (
		w        models.Withdrawal
		outcome  string
		mismatch string
	)

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		if event != nil {
			if err := st.Event().Record(ctx, *event); err != nil {
				return err
			}
		}

		_, locked, err := lockWithdrawal(ctx, st, id)
		if err != nil {
			return err
		}
		w = locked

		if w.Status != models.WithdrawalProcessing {
			outcome = OutcomeIgnored
			return nil
		}
		if w.ExternalTransferID != nil && *w.ExternalTransferID != transfer.ID {
			outcome = OutcomeIgnored
			return nil
		}
		if mismatch = attemptMismatch(w, transfer); mismatch != "" {
			outcome = OutcomeIgnored
			return nil
		}

		now := s.timestamp()
		from := w.Status

		switch transfer.Status {
		case settlement.TransferPending, settlement.TransferPaid:
			if w.ExternalTransferID == nil {
				if err := debit(ctx, st, w); err != nil {
					return err
				}
				transferID := transfer.ID
				w.ExternalTransferID = &transferID
			} else if transfer.Status == settlement.TransferPending {
				outcome = OutcomeIgnored
				return nil
			}

			if transfer.Status == settlement.TransferPaid {
				w.Status = models.WithdrawalCompleted
				w.CompletedAt = &now
			}

		case settlement.TransferFailed:
			if w.IsDebited() {
				if err := refund(ctx, st, w); err != nil {
					return err
				}
			}
			revert(&w, now)

		default:
			outcome = OutcomeIgnored
			return nil
		}

		w.UpdatedAt = now
		w, err = update(ctx, st, from, w)
		if err != nil {
			return err
		}

		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		return w, outcome, err
	}

	if mismatch != "" {
		s.logger.Warn("Transfer ignored", "reason", mismatch,
			"withdrawal_id", w.ID, "transfer_id", transfer.ID, "amount", transfer.Amount, "currency", transfer.Currency)
	}

	if outcome == OutcomeApplied {
		s.logger.Info("Transfer settled",
			"withdrawal_id", w.ID, "transfer_id", transfer.ID, "transfer_status", transfer.Status, "status", w.Status)
		s.committed(w)
	}

	return w, outcome, nil
}

func debit(ctx context.Context, st repository.Storage, w models.Withdrawal) error {
	_, err := st.Washer().UpdateBalance(ctx, models.Transaction{
		WasherID:     w.WasherID,
		WithdrawalID: &w.ID,
		Type:         models.TransactionTypeWithdrawal,
		Amount:       w.Amount,
	})
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	return nil
}

func refund(ctx context.Context, st repository.Storage, w models.Withdrawal) error {
	_, err := st.Washer().UpdateBalance(ctx, models.Transaction{
		WasherID:     w.WasherID,
		WithdrawalID: &w.ID,
		Type:         models.TransactionTypeRefund,
		Amount:       w.Amount,
	})
	if err != nil {
		return fmt.Errorf("refund wallet: %w", err)
	}
	return nil
}

// processing -> approved, the attempt is forgotten so an admin may process again
func revert(w *models.Withdrawal, now time.Time) {
	w.Status = models.WithdrawalApproved
	w.ProcessedAt = nil
	w.ProcessedBy = nil
	w.ExternalTransferID = nil
	w.IdempotencyKey = nil
	w.UpdatedAt = now
}

// Reason the transfer can not be applied to the current attempt, empty if it can
func attemptMismatch(w models.Withdrawal, transfer settlement.Transfer) string {
	key := transfer.IdempotencyKey()
	switch {
	case key == "" && w.ExternalTransferID == nil:
		return "transfer not attributable to attempt"
	case key != "" && !sameKey(w.IdempotencyKey, &key):
		return "transfer of another attempt"
	case !transfer.Amount.Equal(w.Amount) || !strings.EqualFold(transfer.Currency, w.Currency):
		return "amount or currency mismatch"
	}
	return ""
}

func withAttemptKey(t settlement.Transfer, key string) settlement.Transfer {
	metadata := make(map[string]string, len(t.Metadata)+1)
	maps.Copy(metadata, t.Metadata)
	metadata[settlement.MetadataIdempotencyKey] = key
	t.Metadata = metadata
	return t
}

func sameKey(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func transferRequest(w models.Withdrawal, destination string) settlement.TransferRequest {
	return settlement.TransferRequest{
		Amount:         w.Amount,
		Currency:       w.Currency,
		Destination:    destination,
		WithdrawalID:   w.ID,
		WasherID:       w.WasherID,
		IdempotencyKey: *w.IdempotencyKey,
	}
}
