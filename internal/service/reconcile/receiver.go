package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/metrics"
	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
	"github.com/nkiryanov/washpay/internal/service/settlement"
)

const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeUnknown   = "unknown_type"
)

type withdrawalService interface {
	SettleTransfer(ctx context.Context, id uuid.UUID, transfer settlement.Transfer, event *models.SettlementEvent) (models.Withdrawal, string, error)
	ReplayTransfer(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error)
	List(ctx context.Context, opts repository.ListWithdrawalsOpts) ([]models.Withdrawal, error)
}

type accountClient interface {
	GetAccount(ctx context.Context, id string) (settlement.Account, error)
}

// Receiver consumes signed events of the settlement processor
type Receiver struct {
	secret    []byte
	tolerance time.Duration

	storage     repository.Storage
	withdrawals withdrawalService
	client      accountClient
	logger      logger.Logger

	now func() time.Time
}

func NewReceiver(secret string, storage repository.Storage, withdrawals withdrawalService, client accountClient, logger logger.Logger) *Receiver {
	return &Receiver{
		secret:      []byte(secret),
		tolerance:   settlement.DefaultTolerance,
		storage:     storage,
		withdrawals: withdrawals,
		client:      client,
		logger:      logger,
		now:         time.Now,
	}
}

// Verify, decode and apply raw webhook body
// Signature is checked on the exact received bytes before anything is decoded
func (r *Receiver) HandleWebhook(ctx context.Context, signature string, body []byte) (string, error) {
	if err := settlement.VerifySignature(r.secret, signature, body, r.now(), r.tolerance); err != nil {
		return "", err
	}

	e, err := settlement.ParseEvent(body)
	if err != nil {
		return "", err
	}

	return r.HandleEvent(ctx, e, body)
}

// Apply verified event. Replays of the same event id are no-ops
func (r *Receiver) HandleEvent(ctx context.Context, e settlement.Event, raw []byte) (outcome string, err error) {
	defer func() {
		label := outcome
		if err != nil {
			label = "error"
		}
		metrics.SettlementEvents.WithLabelValues(e.Type, label).Inc()
	}()

	record := models.SettlementEvent{
		ID:         e.ID,
		Type:       e.Type,
		Created:    e.CreatedAt(),
		ReceivedAt: r.now(),
		Payload:    raw,
	}

	switch e.Type {
	case settlement.EventTransferCreated, settlement.EventTransferPaid, settlement.EventTransferFailed:
		outcome, err = r.handleTransfer(ctx, e, record)
	case settlement.EventAccountUpdated:
		outcome, err = r.handleAccount(ctx, e, record)
	default:
		r.logger.Info("Unknown settlement event ignored", "event_id", e.ID, "type", e.Type)
		return OutcomeUnknown, nil
	}

	if errors.Is(err, apperrors.ErrEventAlreadyHandled) {
		r.logger.Debug("Settlement event already handled", "event_id", e.ID, "type", e.Type)
		return OutcomeDuplicate, nil
	}
	if err != nil {
		r.logger.Error("Failed to handle settlement event", "error", err, "event_id", e.ID, "type", e.Type)
		return outcome, err
	}

	return outcome, nil
}

func (r *Receiver) handleTransfer(ctx context.Context, e settlement.Event, record models.SettlementEvent) (string, error) {
	transfer, err := e.Transfer()
	if err != nil {
		return "", err
	}

	// Event type is authoritative, the embedded object may lag behind
	switch e.Type {
	case settlement.EventTransferCreated:
		transfer.Status = settlement.TransferPending
	case settlement.EventTransferPaid:
		transfer.Status = settlement.TransferPaid
	case settlement.EventTransferFailed:
		transfer.Status = settlement.TransferFailed
	}

	id, ok, err := r.matchWithdrawal(ctx, transfer)
	if err != nil {
		return "", err
	}
	if !ok {
		r.logger.Warn("Transfer does not match any withdrawal", "event_id", e.ID, "transfer_id", transfer.ID)
		return OutcomeIgnored, r.storage.Event().Record(ctx, record)
	}

	w, outcome, err := r.withdrawals.SettleTransfer(ctx, id, transfer, &record)
	if err != nil {
		return "", err
	}

	if outcome == OutcomeIgnored {
		r.logger.Info("Stale transfer event ignored",
			"event_id", e.ID, "transfer_id", transfer.ID, "withdrawal_id", w.ID, "status", w.Status)
	}

	return outcome, nil
}

// Withdrawal is matched by attached transfer id first, then by metadata of the original call
func (r *Receiver) matchWithdrawal(ctx context.Context, transfer settlement.Transfer) (uuid.UUID, bool, error) {
	w, err := r.storage.Withdrawal().GetByTransferID(ctx, transfer.ID, false)
	switch {
	case err == nil:
		return w.ID, true, nil
	case !errors.Is(err, apperrors.ErrWithdrawalNotFound):
		return uuid.Nil, false, err
	}

	id, ok := transfer.WithdrawalID()
	if !ok {
		return uuid.Nil, false, nil
	}

	if _, err := r.storage.Withdrawal().Get(ctx, id, false); err != nil {
		if errors.Is(err, apperrors.ErrWithdrawalNotFound) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}

	return id, true, nil
}

func (r *Receiver) handleAccount(ctx context.Context, e settlement.Event, record models.SettlementEvent) (string, error) {
	account, err := e.Account()
	if err != nil {
		return "", err
	}

	outcome := OutcomeApplied
	err = r.storage.InTx(ctx, func(st repository.Storage) error {
		if err := st.Event().Record(ctx, record); err != nil {
			return err
		}

		washer, err := st.Washer().GetWasherByAccountID(ctx, account.ID)
		if errors.Is(err, apperrors.ErrWasherNotFound) {
			outcome = OutcomeIgnored
			return nil
		}
		if err != nil {
			return err
		}

		_, err = applyAccount(ctx, st, washer, account, r.now())
		return err
	})

	return outcome, err
}

// Query the processor for the washer's account and refresh the destination from it
func (r *Receiver) SyncDestination(ctx context.Context, washerID uuid.UUID) (models.PayoutDestination, error) {
	washer, err := r.storage.Washer().GetWasher(ctx, washerID, false)
	if err != nil {
		return models.PayoutDestination{}, err
	}
	if washer.ExternalAccountID == nil {
		return models.PayoutDestination{}, apperrors.ErrDestinationNotFound
	}

	account, err := r.client.GetAccount(ctx, *washer.ExternalAccountID)
	if err != nil {
		if settlement.IsCode(err, settlement.CodeNotFound) {
			return models.PayoutDestination{}, apperrors.ErrDestinationNotFound
		}
		return models.PayoutDestination{}, fmt.Errorf("get account: %w", err)
	}

	return applyAccount(ctx, r.storage, washer, account, r.now())
}

// Update destination eligibility only. Withdrawals are never touched here
func applyAccount(ctx context.Context, st repository.Storage, washer models.Washer, account settlement.Account, now time.Time) (models.PayoutDestination, error) {
	dest, err := st.Destination().GetByWasherID(ctx, washer.ID)
	switch {
	case errors.Is(err, apperrors.ErrDestinationNotFound):
		dest = models.PayoutDestination{WasherID: washer.ID}
	case err != nil:
		return dest, err
	}

	dest.Status = DestinationStatus(account)
	switch {
	case dest.Status != models.DestinationVerified:
		dest.VerifiedAt = nil
	case dest.VerifiedAt == nil:
		dest.VerifiedAt = &now
	}

	return st.Destination().Save(ctx, dest)
}

// Map processor account to destination status
func DestinationStatus(a settlement.Account) string {
	switch {
	case strings.HasPrefix(a.DisabledReason, "rejected"):
		return models.DestinationFailed
	case a.DisabledReason != "":
		return models.DestinationDisabled
	case a.PayoutsEnabled && a.DetailsSubmitted:
		return models.DestinationVerified
	default:
		return models.DestinationPending
	}
}
