package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DestinationPending  = "pending"
	DestinationVerified = "verified"
	DestinationFailed   = "failed"
	DestinationDisabled = "disabled"
)

type PayoutDestination struct {
	ID            uuid.UUID
	WasherID      uuid.UUID
	Status        string
	BankName      string
	AccountHolder string
	AccountLast4  string
	VerifiedAt    *time.Time
	UpdatedAt     time.Time
}

func (d PayoutDestination) IsVerified() bool {
	return d.Status == DestinationVerified
}
