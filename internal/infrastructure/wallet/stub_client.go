package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

// StubClient stands in for the World App runtime outside of it (desktop
// and browser testing). It fails deterministically unless succeed is set,
// and always says so in the logs; it never silently fakes success.
type StubClient struct {
	succeed bool
	logger  zerolog.Logger
}

func NewStubClient(succeed bool, logger zerolog.Logger) *StubClient {
	return &StubClient{
		succeed: succeed,
		logger:  logger.With().Str("component", "wallet_stub_client").Logger(),
	}
}

func (c *StubClient) IsAvailable(ctx context.Context) bool {
	return false
}

func (c *StubClient) InitiateTransfer(ctx context.Context, amount decimal.Decimal, recipient string) (string, error) {
	if !c.succeed {
		c.logger.Warn().Msg("Stub wallet client rejecting transfer; set wallet.stub_succeed for canned success")
		return "", &domain.WalletTransferError{Reason: "wallet runtime not installed"}
	}

	txRef := "stub_tx_" + uuid.NewString()
	c.logger.Warn().
		Str("tx_ref", txRef).
		Str("amount", amount.String()).
		Str("recipient", recipient).
		Msg("Stub wallet client returning canned success; no funds moved")
	return txRef, nil
}
