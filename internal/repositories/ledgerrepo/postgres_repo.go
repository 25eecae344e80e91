package ledgerrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type PostgresRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) ILedgerRepository {
	return &PostgresRepository{
		db:     db,
		logger: logger.With().Str("component", "ledger_repo").Logger(),
	}
}

func (r *PostgresRepository) AppendEntry(ctx context.Context, entry domain.LedgerEntry, balanceDelta decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, withdrawal_id, type, source_amount, destination_amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		entry.UserID,
		entry.WithdrawalID,
		string(entry.Type),
		entry.SourceAmount.String(),
		entry.DestinationAmount.String(),
		entry.Description,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Err(err).Str("withdrawal_id", entry.WithdrawalID).Msg("Failed to append ledger entry")
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	// Balance delta is applied in the same transaction so concurrent
	// settlements for different withdrawals cannot lose updates.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()`,
		entry.UserID,
		balanceDelta.String(),
	)
	if err != nil {
		r.logger.Err(err).Str("user_id", entry.UserID).Msg("Failed to apply balance delta")
		return fmt.Errorf("failed to apply balance delta: %w", err)
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetBalance(ctx context.Context, userID string) (domain.Balance, error) {
	var (
		balance domain.Balance
		amount  string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, amount, updated_at FROM balances WHERE user_id = $1`, userID).
		Scan(&balance.UserID, &amount, &balance.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Balance{UserID: userID, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return domain.Balance{}, fmt.Errorf("failed to get balance: %w", err)
	}

	balance.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("corrupt balance amount %q: %w", amount, err)
	}
	return balance, nil
}

func (r *PostgresRepository) ListEntries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, withdrawal_id, type, source_amount, destination_amount, description, created_at
		FROM ledger_entries WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			entry       domain.LedgerEntry
			entryType   string
			source      string
			destination string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.WithdrawalID, &entryType,
			&source, &destination, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.Type = domain.LedgerEntryType(entryType)
		if entry.SourceAmount, err = decimal.NewFromString(source); err != nil {
			return nil, fmt.Errorf("corrupt source amount %q: %w", source, err)
		}
		if entry.DestinationAmount, err = decimal.NewFromString(destination); err != nil {
			return nil, fmt.Errorf("corrupt destination amount %q: %w", destination, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
