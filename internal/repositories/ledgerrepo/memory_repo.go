package ledgerrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type MemoryRepository struct {
	mu       sync.Mutex
	entries  []domain.LedgerEntry
	balances map[string]domain.Balance
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		balances: make(map[string]domain.Balance),
		now:      time.Now,
	}
}

// SeedBalance sets an opening balance. Dev convenience only; production
// balances come from settled ledger history.
func (r *MemoryRepository) SeedBalance(userID string, amount decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] = domain.Balance{
		UserID:    userID,
		Amount:    amount,
		UpdatedAt: r.now(),
	}
}

func (r *MemoryRepository) AppendEntry(ctx context.Context, entry domain.LedgerEntry, balanceDelta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)

	balance := r.balances[entry.UserID]
	balance.UserID = entry.UserID
	balance.Amount = balance.Amount.Add(balanceDelta)
	balance.UpdatedAt = r.now()
	r.balances[entry.UserID] = balance

	return nil
}

func (r *MemoryRepository) GetBalance(ctx context.Context, userID string) (domain.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	balance, ok := r.balances[userID]
	if !ok {
		return domain.Balance{UserID: userID, Amount: decimal.Zero}, nil
	}
	return balance, nil
}

func (r *MemoryRepository) ListEntries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.LedgerEntry
	for _, entry := range r.entries {
		if entry.UserID == userID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
