package twofactorrepo

import (
	"context"
	"sync"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type MemoryRepository struct {
	mu          sync.Mutex
	enrollments map[string]domain.TwoFactorEnrollment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		enrollments: make(map[string]domain.TwoFactorEnrollment),
	}
}

func (r *MemoryRepository) Save(ctx context.Context, enrollment *domain.TwoFactorEnrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrollments[enrollment.UserID] = *enrollment
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, userID string) (*domain.TwoFactorEnrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	enrollment, ok := r.enrollments[userID]
	if !ok {
		return nil, domain.ErrNotEnrolled
	}
	codes := make([]string, len(enrollment.HashedBackupCodes))
	copy(codes, enrollment.HashedBackupCodes)
	enrollment.HashedBackupCodes = codes
	return &enrollment, nil
}

func (r *MemoryRepository) Enable(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enrollment, ok := r.enrollments[userID]
	if !ok {
		return domain.ErrNotEnrolled
	}
	enrollment.Enabled = true
	r.enrollments[userID] = enrollment
	return nil
}

func (r *MemoryRepository) ConsumeBackupCode(ctx context.Context, userID, hashedCode string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	enrollment, ok := r.enrollments[userID]
	if !ok {
		return false, domain.ErrNotEnrolled
	}

	for i, code := range enrollment.HashedBackupCodes {
		if code == hashedCode {
			enrollment.HashedBackupCodes = append(enrollment.HashedBackupCodes[:i], enrollment.HashedBackupCodes[i+1:]...)
			r.enrollments[userID] = enrollment
			return true, nil
		}
	}
	return false, nil
}
