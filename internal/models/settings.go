package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Versioned payout policy. The latest version applies
type PayoutSettings struct {
	Version       int64
	MinimumPayout decimal.Decimal
	UpdatedBy     *uuid.UUID
	CreatedAt     time.Time
}
