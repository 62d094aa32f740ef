package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WasherStatusActive    = "active"
	WasherStatusInactive  = "inactive"
	WasherStatusSuspended = "suspended"
)

type Washer struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Status            string
	WalletBalance     decimal.Decimal
	ExternalAccountID *string // nil until onboarding with the processor completes
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (w Washer) IsActive() bool {
	return w.Status == WasherStatusActive
}
