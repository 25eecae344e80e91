package withdrawalrepo

import (
	"context"
	"sync"
	"time"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

// MemoryRepository keeps withdrawals in-process. Used for dev runs and
// tests; the mutex gives the same transition guarantee the Postgres
// implementation gets from its guarded UPDATE.
type MemoryRepository struct {
	mu          sync.Mutex
	withdrawals map[string]domain.WithdrawalRequest
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		withdrawals: make(map[string]domain.WithdrawalRequest),
		now:         time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, withdrawal *domain.WithdrawalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawals[withdrawal.ID] = *withdrawal
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	withdrawal, ok := r.withdrawals[id]
	if !ok {
		return nil, domain.ErrWithdrawalNotFound
	}
	return &withdrawal, nil
}

func (r *MemoryRepository) GetByCheckoutRef(ctx context.Context, checkoutRef string) (*domain.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.withdrawals {
		if w.GatewayCheckoutRef == checkoutRef {
			withdrawal := w
			return &withdrawal, nil
		}
	}
	return nil, domain.ErrWithdrawalNotFound
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]domain.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.WithdrawalRequest
	for _, w := range r.withdrawals {
		if w.UserID == userID {
			result = append(result, w)
		}
	}
	return result, nil
}

func (r *MemoryRepository) ListStuck(ctx context.Context, state domain.WithdrawalState, cutoff time.Time) ([]domain.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.WithdrawalRequest
	for _, w := range r.withdrawals {
		if w.State == state && w.UpdatedAt.Before(cutoff) {
			result = append(result, w)
		}
	}
	return result, nil
}

func (r *MemoryRepository) Transition(ctx context.Context, id string, from, to domain.WithdrawalState, mutate Mutator) (*domain.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	withdrawal, ok := r.withdrawals[id]
	if !ok {
		return nil, domain.ErrWithdrawalNotFound
	}
	if withdrawal.State != from {
		return &withdrawal, domain.ErrStateConflict
	}
	if !from.CanTransitionTo(to) {
		return &withdrawal, &domain.InvariantViolationError{WithdrawalID: id, From: from, To: to}
	}

	withdrawal.State = to
	if mutate != nil {
		mutate(&withdrawal)
	}
	withdrawal.UpdatedAt = r.now()
	r.withdrawals[id] = withdrawal

	return &withdrawal, nil
}
