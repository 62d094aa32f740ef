package apperrors

import (
	"errors"
)

var (
	ErrWasherNotFound      = errors.New("washer not found")
	ErrWasherAlreadyExists = errors.New("washer already exists")
	ErrWasherNotActive     = errors.New("washer is not active")

	ErrDestinationNotFound    = errors.New("payout destination not found")
	ErrDestinationNotVerified = errors.New("payout destination is not verified")

	ErrWithdrawalNotFound     = errors.New("withdrawal not found")
	ErrWithdrawalOpenExists   = errors.New("washer already has an open withdrawal")
	ErrWithdrawalInvalidState = errors.New("withdrawal is not in expected state")
	ErrWithdrawalNotOwner     = errors.New("withdrawal belongs to another washer")

	ErrAmountInvalid       = errors.New("amount must be greater than zero")
	ErrBelowMinimumPayout  = errors.New("balance is below minimum payout")
	ErrRejectReasonMissing = errors.New("rejection reason is required")

	ErrBalanceInsufficient = errors.New("insufficient balance")

	ErrSettingsNotFound = errors.New("payout settings not found")

	ErrSettlementRejected     = errors.New("settlement transfer rejected")
	ErrSettlementPending      = errors.New("settlement outcome unknown, awaiting reconciliation")
	ErrReconciliationRequired = errors.New("transfer accepted but not persisted, reconciliation required")

	ErrSignatureInvalid    = errors.New("settlement event signature is invalid")
	ErrEventAlreadyHandled = errors.New("settlement event already handled")
)
