package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/washpay/internal/models"
)

type withdrawalResponse struct {
	ID                 uuid.UUID  `json:"id"`
	WasherID           uuid.UUID  `json:"washer_id"`
	Amount             string     `json:"amount"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	ExternalTransferID *string    `json:"external_transfer_id,omitempty"`
	RequestedAt        time.Time  `json:"requested_at"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	RejectedAt         *time.Time `json:"rejected_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ApprovedBy         *uuid.UUID `json:"approved_by,omitempty"`
	RejectedBy         *uuid.UUID `json:"rejected_by,omitempty"`
	ProcessedBy        *uuid.UUID `json:"processed_by,omitempty"`
	Note               string     `json:"note,omitempty"`
	RejectionReason    string     `json:"rejection_reason,omitempty"`
}

func newWithdrawalResponse(w models.Withdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:                 w.ID,
		WasherID:           w.WasherID,
		Amount:             w.Amount.StringFixed(2),
		Currency:           w.Currency,
		Status:             w.Status,
		ExternalTransferID: w.ExternalTransferID,
		RequestedAt:        w.RequestedAt,
		ApprovedAt:         w.ApprovedAt,
		ProcessedAt:        w.ProcessedAt,
		CompletedAt:        w.CompletedAt,
		RejectedAt:         w.RejectedAt,
		CancelledAt:        w.CancelledAt,
		ApprovedBy:         w.ApprovedBy,
		RejectedBy:         w.RejectedBy,
		ProcessedBy:        w.ProcessedBy,
		Note:               w.Note,
		RejectionReason:    w.RejectionReason,
	}
}

func newWithdrawalsResponse(ws []models.Withdrawal) []withdrawalResponse {
	resp := make([]withdrawalResponse, 0, len(ws))
	for _, w := range ws {
		resp = append(resp, newWithdrawalResponse(w))
	}
	return resp
}

type settingsResponse struct {
	Version       int64      `json:"version"`
	MinimumPayout string     `json:"minimum_payout"`
	UpdatedBy     *uuid.UUID `json:"updated_by,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

func newSettingsResponse(s models.PayoutSettings) settingsResponse {
	resp := settingsResponse{
		Version:       s.Version,
		MinimumPayout: s.MinimumPayout.StringFixed(2),
		UpdatedBy:     s.UpdatedBy,
	}
	// Default floor has no stored version
	if !s.CreatedAt.IsZero() {
		resp.CreatedAt = &s.CreatedAt
	}
	return resp
}

type destinationResponse struct {
	WasherID   uuid.UUID  `json:"washer_id"`
	Status     string     `json:"status"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func newDestinationResponse(d models.PayoutDestination) destinationResponse {
	return destinationResponse{
		WasherID:   d.WasherID,
		Status:     d.Status,
		VerifiedAt: d.VerifiedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}
