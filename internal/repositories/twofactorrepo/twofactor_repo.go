package twofactorrepo

import (
	"context"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type ITwoFactorRepository interface {
	Save(ctx context.Context, enrollment *domain.TwoFactorEnrollment) error
	Get(ctx context.Context, userID string) (*domain.TwoFactorEnrollment, error)
	Enable(ctx context.Context, userID string) error
	// ConsumeBackupCode removes the hashed code if present, so each backup
	// code verifies at most once. Returns false when the code is unknown
	// or already used.
	ConsumeBackupCode(ctx context.Context, userID, hashedCode string) (bool, error)
}
