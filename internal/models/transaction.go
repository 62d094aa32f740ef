package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeAccrual    = "accrual"    // completed job settled into wallet
	TransactionTypeWithdrawal = "withdrawal" // debit for an accepted transfer
	TransactionTypeRefund     = "refund"     // compensating credit for a failed transfer
)

// Wallet ledger entry. Amount is always positive, direction follows Type
type Transaction struct {
	ID           uuid.UUID
	ProcessedAt  time.Time
	WasherID     uuid.UUID
	WithdrawalID *uuid.UUID
	Type         string
	Amount       decimal.Decimal
}

func (t Transaction) Delta() decimal.Decimal {
	if t.Type == TransactionTypeWithdrawal {
		return t.Amount.Neg()
	}
	return t.Amount
}
