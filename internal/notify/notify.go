package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/metrics"
	"github.com/nkiryanov/washpay/internal/models"
)

const defaultTimeout = 5 * time.Second

type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Wire format of lifecycle events
type Message struct {
	Type               string          `json:"type"`
	OccurredAt         time.Time       `json:"occurred_at"`
	WithdrawalID       uuid.UUID       `json:"withdrawal_id"`
	WasherID           uuid.UUID       `json:"washer_id"`
	Status             string          `json:"status"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	ExternalTransferID *string         `json:"external_transfer_id,omitempty"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
}

func NewMessage(e models.WithdrawalEvent) Message {
	w := e.Withdrawal
	return Message{
		Type:               e.Type,
		OccurredAt:         e.OccurredAt,
		WithdrawalID:       w.ID,
		WasherID:           w.WasherID,
		Status:             w.Status,
		Amount:             w.Amount,
		Currency:           w.Currency,
		ExternalTransferID: w.ExternalTransferID,
		RejectionReason:    w.RejectionReason,
	}
}

// Notifier publishes committed transitions without blocking the caller
// Delivery failures are logged and counted, never returned
type Notifier struct {
	publishers []Publisher
	timeout    time.Duration
	logger     logger.Logger

	wg sync.WaitGroup
}

func New(logger logger.Logger, publishers ...Publisher) *Notifier {
	return &Notifier{
		publishers: publishers,
		timeout:    defaultTimeout,
		logger:     logger,
	}
}

// Publish withdrawal.<status> event for the withdrawal
func (n *Notifier) WithdrawalChanged(w models.Withdrawal) {
	if n == nil || len(n.publishers) == 0 {
		return
	}

	e := models.WithdrawalEvent{
		Type:       "withdrawal." + w.Status,
		OccurredAt: w.UpdatedAt,
		Withdrawal: w,
	}

	payload, err := json.Marshal(NewMessage(e))
	if err != nil {
		n.logger.Error("Failed to encode notification", "error", err, "withdrawal_id", w.ID)
		return
	}

	for _, p := range n.publishers {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.publish(p, w.WasherID.String(), payload)
		}()
	}
}

// Wait until in-flight notifications finish
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) publish(p Publisher, key string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			metrics.NotificationFailures.Inc()
			n.logger.Error("Notification publisher panicked", "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	if err := p.Publish(ctx, key, payload); err != nil {
		metrics.NotificationFailures.Inc()
		n.logger.Warn("Failed to publish notification", "error", err, "publisher", fmt.Sprintf("%T", p))
	}
}
