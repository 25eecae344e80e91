package twofactorrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type PostgresRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) ITwoFactorRepository {
	return &PostgresRepository{
		db:     db,
		logger: logger.With().Str("component", "twofactor_repo").Logger(),
	}
}

func (r *PostgresRepository) Save(ctx context.Context, enrollment *domain.TwoFactorEnrollment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO two_factor_enrollments (user_id, secret, hashed_backup_codes, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET secret = EXCLUDED.secret, hashed_backup_codes = EXCLUDED.hashed_backup_codes,
		              enabled = EXCLUDED.enabled`,
		enrollment.UserID,
		enrollment.Secret,
		pq.Array(enrollment.HashedBackupCodes),
		enrollment.Enabled,
		enrollment.CreatedAt,
	)
	if err != nil {
		r.logger.Err(err).Str("user_id", enrollment.UserID).Msg("Failed to save 2FA enrollment")
		return fmt.Errorf("failed to save 2FA enrollment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*domain.TwoFactorEnrollment, error) {
	var enrollment domain.TwoFactorEnrollment
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, secret, hashed_backup_codes, enabled, created_at
		FROM two_factor_enrollments WHERE user_id = $1`, userID).
		Scan(&enrollment.UserID, &enrollment.Secret, pq.Array(&enrollment.HashedBackupCodes),
			&enrollment.Enabled, &enrollment.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get 2FA enrollment: %w", err)
	}
	return &enrollment, nil
}

func (r *PostgresRepository) Enable(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE two_factor_enrollments SET enabled = TRUE WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to enable 2FA: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.ErrNotEnrolled
	}
	return nil
}

func (r *PostgresRepository) ConsumeBackupCode(ctx context.Context, userID, hashedCode string) (bool, error) {
	// array_remove inside a guarded UPDATE keeps consumption atomic; the
	// row only changes when the code is still present.
	result, err := r.db.ExecContext(ctx, `
		UPDATE two_factor_enrollments
		SET hashed_backup_codes = array_remove(hashed_backup_codes, $2)
		WHERE user_id = $1 AND $2 = ANY(hashed_backup_codes)`, userID, hashedCode)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}
