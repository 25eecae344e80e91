package domain

import (
	"errors"
	"fmt"
)

// Sentinels for the common failure classes. Handlers map these onto HTTP
// status codes; the orchestrator maps them onto withdrawal states.
var (
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidPhone       = errors.New("destination phone is not a valid Kenyan mobile number")
	ErrRateUnavailable    = errors.New("exchange rates unavailable and no cached snapshot exists")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrStateConflict      = errors.New("withdrawal state changed concurrently")
	ErrNotEnrolled        = errors.New("two-factor authentication is not set up")
)

// WalletTransferError is a definitive rejection from the wallet runtime.
// No funds moved; the user may retry with a fresh request.
type WalletTransferError struct {
	Reason string
}

func (e *WalletTransferError) Error() string {
	return fmt.Sprintf("wallet transfer rejected: %s", e.Reason)
}

// WalletAmbiguousError means the transfer outcome is unknown (e.g. the
// connection dropped after submission). Retrying risks a double-spend, so
// the orchestrator parks the withdrawal for reconciliation instead.
type WalletAmbiguousError struct {
	Reason string
}

func (e *WalletAmbiguousError) Error() string {
	return fmt.Sprintf("wallet transfer outcome unknown: %s", e.Reason)
}

// GatewayInitiationError is a rejection from the mobile-money operator
// at push-initiation time.
type GatewayInitiationError struct {
	Code    string
	Message string
}

func (e *GatewayInitiationError) Error() string {
	return fmt.Sprintf("gateway rejected push initiation (code %s): %s", e.Code, e.Message)
}

// InvariantViolationError marks a state-machine guard trip. It is logged
// with full detail and surfaced to users as a generic failure.
type InvariantViolationError struct {
	WithdrawalID string
	From         WithdrawalState
	To           WithdrawalState
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("illegal withdrawal transition %s -> %s (id %s)", e.From, e.To, e.WithdrawalID)
}
