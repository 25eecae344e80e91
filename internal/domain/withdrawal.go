package domain

import (
	"time"
)

type WithdrawalState string

const (
	WithdrawalStateDraft               WithdrawalState = "DRAFT"
	WithdrawalStateWalletPending       WithdrawalState = "WALLET_PENDING"
	WithdrawalStateWalletConfirmed     WithdrawalState = "WALLET_CONFIRMED"
	WithdrawalStateWalletFailed        WithdrawalState = "WALLET_FAILED"
	WithdrawalStateGatewayInitiated    WithdrawalState = "GATEWAY_INITIATED"
	WithdrawalStateGatewayPending      WithdrawalState = "GATEWAY_PENDING"
	WithdrawalStateGatewayRejected     WithdrawalState = "GATEWAY_REJECTED"
	WithdrawalStateSettled             WithdrawalState = "SETTLED"
	WithdrawalStateTimeoutUnreconciled WithdrawalState = "GATEWAY_TIMEOUT_UNRECONCILED"
)

func (s WithdrawalState) Terminal() bool {
	switch s {
	case WithdrawalStateSettled,
		WithdrawalStateWalletFailed,
		WithdrawalStateGatewayRejected,
		WithdrawalStateTimeoutUnreconciled:
		return true
	}
	return false
}

// allowedTransitions encodes the forward-only state machine. Failure exits
// are reachable from every non-terminal state.
var allowedTransitions = map[WithdrawalState][]WithdrawalState{
	WithdrawalStateDraft:            {WithdrawalStateWalletPending, WithdrawalStateWalletConfirmed, WithdrawalStateWalletFailed},
	WithdrawalStateWalletPending:    {WithdrawalStateWalletConfirmed, WithdrawalStateWalletFailed},
	WithdrawalStateWalletConfirmed:  {WithdrawalStateGatewayInitiated, WithdrawalStateGatewayRejected},
	WithdrawalStateGatewayInitiated: {WithdrawalStateGatewayPending, WithdrawalStateSettled, WithdrawalStateGatewayRejected, WithdrawalStateTimeoutUnreconciled},
	WithdrawalStateGatewayPending:   {WithdrawalStateSettled, WithdrawalStateGatewayRejected, WithdrawalStateTimeoutUnreconciled},
}

func (s WithdrawalState) CanTransitionTo(next WithdrawalState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WithdrawalRequest is mutated only by the orchestrator. Terminal requests
// live forever in the ledger via status-update entries.
type WithdrawalRequest struct {
	ID                     string          `json:"id" db:"id"`
	UserID                 string          `json:"user_id" db:"user_id"`
	SourceAmount           string          `json:"source_amount" db:"source_amount"`
	DestinationPhone       string          `json:"destination_phone" db:"destination_phone"`
	Quote                  Quote           `json:"quote" db:"quote"`
	WalletTxRef            string          `json:"wallet_tx_ref,omitempty" db:"wallet_tx_ref"`
	GatewayCheckoutRef     string          `json:"gateway_checkout_ref,omitempty" db:"gateway_checkout_ref"`
	State                  WithdrawalState `json:"state" db:"state"`
	ResultDesc             string          `json:"result_desc,omitempty" db:"result_desc"`
	RequiresReconciliation bool            `json:"requires_reconciliation" db:"requires_reconciliation"`
	CreatedAt              time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at" db:"updated_at"`
}
