package withdrawalrepo

import (
	"context"
	"time"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

// Mutator adjusts a withdrawal's fields inside a guarded transition. The
// state itself is set by the store.
type Mutator func(*domain.WithdrawalRequest)

type IWithdrawalRepository interface {
	Create(ctx context.Context, withdrawal *domain.WithdrawalRequest) error
	GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	// GetByCheckoutRef correlates an inbound gateway callback with its
	// withdrawal.
	GetByCheckoutRef(ctx context.Context, checkoutRef string) (*domain.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID string) ([]domain.WithdrawalRequest, error)
	// ListStuck returns withdrawals sitting in the given state since before
	// the cutoff, for the timeout sweep.
	ListStuck(ctx context.Context, state domain.WithdrawalState, cutoff time.Time) ([]domain.WithdrawalRequest, error)
	// Transition moves a withdrawal from one state to another only if it is
	// currently in the expected prior state, applying mutate atomically with
	// the state change. Returns domain.ErrStateConflict when another writer
	// got there first; this is the sole per-id concurrency mechanism.
	Transition(ctx context.Context, id string, from, to domain.WithdrawalState, mutate Mutator) (*domain.WithdrawalRequest, error)
}
