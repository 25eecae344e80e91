// Package wallet talks to the World App runtime. It is the only code
// permitted to move funds out of the user's wallet.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client is the capability interface over the wallet runtime. The live
// implementation bridges to the World App relay; the stub is a labeled
// dev fallback. Selected once at construction, never per call site.
type Client interface {
	IsAvailable(ctx context.Context) bool
	// InitiateTransfer submits an on-chain WLD transfer to the recipient
	// address and returns the runtime's transaction reference. Ambiguous
	// outcomes surface *domain.WalletAmbiguousError, definitive rejections
	// *domain.WalletTransferError.
	InitiateTransfer(ctx context.Context, amount decimal.Decimal, recipient string) (string, error)
}
