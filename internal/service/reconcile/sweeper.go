package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/metrics"
	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
	"github.com/nkiryanov/washpay/internal/service/settlement"
)

const (
	defaultCountWorkers = 4
	defaultBatchSize    = 100
)

type transferClient interface {
	GetTransfer(ctx context.Context, id string) (settlement.Transfer, error)
}

// Sweeper resolves withdrawals stuck in processing against the processor
// It is the fallback when settlement events get lost
type Sweeper struct {
	// How often stuck withdrawals are listed
	Interval time.Duration

	// Withdrawal is stuck when untouched for this long
	After time.Duration

	countWorkers int
	batchSize    int

	withdrawals withdrawalService
	client      transferClient
	logger      logger.Logger

	now func() time.Time
}

func NewSweeper(interval time.Duration, after time.Duration, withdrawals withdrawalService, client transferClient, logger logger.Logger) *Sweeper {
	return &Sweeper{
		Interval:     interval,
		After:        after,
		countWorkers: defaultCountWorkers,
		batchSize:    defaultBatchSize,
		withdrawals:  withdrawals,
		client:       client,
		logger:       logger,
		now:          time.Now,
	}
}

// Run producer and workers until ctx is done
// Returned channel is closed once everything stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	stuck := make(chan models.Withdrawal)

	producerStopped := s.produce(ctx, stuck)
	consumerStopped := s.consume(ctx, stuck)

	go func() {
		defer close(idleStopped)
		<-producerStopped
		close(stuck)
		<-consumerStopped
		s.logger.Debug("Sweeper stopped")
	}()

	return idleStopped
}

func (s *Sweeper) produce(ctx context.Context, out chan<- models.Withdrawal) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting sweeper producer", "interval", s.Interval, "after", s.After)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				stuck, err := s.ListStuck(ctx)
				if err != nil {
					s.logger.Error("Failed to list stuck withdrawals", "error", err)
					continue
				}

				for _, w := range stuck {
					select {
					case <-ctx.Done():
						return
					case out <- w:
					}
				}
			}
		}
	}()

	return idleStopped
}

func (s *Sweeper) consume(ctx context.Context, in <-chan models.Withdrawal) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range s.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range in {
				s.Resolve(ctx, w)
			}
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
	}()

	return idleStopped
}

func (s *Sweeper) ListStuck(ctx context.Context) ([]models.Withdrawal, error) {
	before := s.now().Add(-s.After)
	return s.withdrawals.List(ctx, repository.ListWithdrawalsOpts{
		Statuses:      []string{models.WithdrawalProcessing},
		UpdatedBefore: &before,
		Limit:         s.batchSize,
	})
}

// Resolve one stuck withdrawal. Returns outcome label
func (s *Sweeper) Resolve(ctx context.Context, w models.Withdrawal) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sweeper panicked", "panic", r, "withdrawal_id", w.ID)
			outcome = "error"
		}
		metrics.SweeperResolved.WithLabelValues(outcome).Inc()
	}()

	if w.ExternalTransferID == nil {
		return s.replay(ctx, w)
	}
	return s.poll(ctx, w)
}

// No transfer attached: repeat the original call with the stored key
func (s *Sweeper) replay(ctx context.Context, w models.Withdrawal) string {
	if w.IdempotencyKey == nil {
		s.logger.Error("Processing withdrawal without idempotency key", "withdrawal_id", w.ID)
		return "error"
	}

	settled, err := s.withdrawals.ReplayTransfer(ctx, w)
	switch {
	case err == nil:
		s.logger.Info("Stuck withdrawal resolved by replay", "withdrawal_id", w.ID, "status", settled.Status)
		return "resolved"
	case errors.Is(err, apperrors.ErrSettlementRejected):
		s.logger.Info("Stuck withdrawal reverted by replay", "withdrawal_id", w.ID)
		return "reverted"
	case errors.Is(err, apperrors.ErrSettlementPending):
		return "skipped"
	case errors.Is(err, apperrors.ErrWithdrawalInvalidState):
		// Resolved concurrently by an event
		return "skipped"
	default:
		s.logger.Error("Failed to replay stuck withdrawal", "error", err, "withdrawal_id", w.ID)
		return "error"
	}
}

// Transfer attached: ask the processor where it is
func (s *Sweeper) poll(ctx context.Context, w models.Withdrawal) string {
	transfer, err := s.client.GetTransfer(ctx, *w.ExternalTransferID)
	switch {
	case settlement.IsCode(err, settlement.CodeNotFound):
		s.logger.Error("Attached transfer unknown to processor", "withdrawal_id", w.ID, "transfer_id", *w.ExternalTransferID)
		return "error"
	case err != nil:
		s.logger.Warn("Failed to get transfer", "error", err, "withdrawal_id", w.ID)
		return "skipped"
	}

	if transfer.Status == settlement.TransferPending {
		return "skipped"
	}

	settled, outcome, err := s.withdrawals.SettleTransfer(ctx, w.ID, transfer, nil)
	if err != nil {
		s.logger.Error("Failed to settle stuck withdrawal", "error", err, "withdrawal_id", w.ID)
		return "error"
	}
	if outcome == OutcomeIgnored {
		return "skipped"
	}

	s.logger.Info("Stuck withdrawal resolved by poll", "withdrawal_id", w.ID, "status", settled.Status)
	return "resolved"
}
