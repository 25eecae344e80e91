package ledgerrepo

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type ILedgerRepository interface {
	// AppendEntry records a ledger entry and applies balanceDelta to the
	// user's running balance in one atomic step. Entries are never updated
	// or deleted.
	AppendEntry(ctx context.Context, entry domain.LedgerEntry, balanceDelta decimal.Decimal) error
	GetBalance(ctx context.Context, userID string) (domain.Balance, error)
	ListEntries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error)
}
