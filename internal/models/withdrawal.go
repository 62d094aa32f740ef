package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WithdrawalPending    = "pending"
	WithdrawalApproved   = "approved"
	WithdrawalProcessing = "processing"
	WithdrawalCompleted  = "completed"
	WithdrawalRejected   = "rejected"
	WithdrawalCancelled  = "cancelled"
)

// Statuses that block a washer from opening another withdrawal
var OpenWithdrawalStatuses = []string{WithdrawalPending, WithdrawalApproved, WithdrawalProcessing}

// Legal status transitions
// processing -> approved is the only backward move and happens on settlement failure
var withdrawalTransitions = map[string][]string{
	WithdrawalPending:    {WithdrawalApproved, WithdrawalRejected, WithdrawalCancelled},
	WithdrawalApproved:   {WithdrawalProcessing},
	WithdrawalProcessing: {WithdrawalCompleted, WithdrawalApproved},
}

func CanTransition(from string, to string) bool {
	for _, s := range withdrawalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Withdrawal struct {
	ID       uuid.UUID
	WasherID uuid.UUID
	UserID   uuid.UUID
	Amount   decimal.Decimal
	Currency string
	Status   string

	// Set once the settlement processor accepted the transfer.
	// While processing, a non-nil value also means the wallet has been debited.
	ExternalTransferID *string

	// Key sent with the transfer call. Replayed as is by reconciliation
	IdempotencyKey *string

	RequestedAt time.Time
	ApprovedAt  *time.Time
	ProcessedAt *time.Time
	CompletedAt *time.Time
	RejectedAt  *time.Time
	CancelledAt *time.Time
	UpdatedAt   time.Time

	ApprovedBy  *uuid.UUID
	RejectedBy  *uuid.UUID
	ProcessedBy *uuid.UUID

	Note            string
	RejectionReason string
}

// Whether the wallet currently carries the debit for this withdrawal
func (w Withdrawal) IsDebited() bool {
	return w.ExternalTransferID != nil && (w.Status == WithdrawalProcessing || w.Status == WithdrawalCompleted)
}

// Lifecycle event published after a transition is committed
type WithdrawalEvent struct {
	Type       string     `json:"type"`
	OccurredAt time.Time  `json:"occurred_at"`
	Withdrawal Withdrawal `json:"-"`
}
