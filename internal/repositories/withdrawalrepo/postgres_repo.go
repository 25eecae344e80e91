package withdrawalrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type PostgresRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) IWithdrawalRepository {
	return &PostgresRepository{
		db:     db,
		logger: logger.With().Str("component", "withdrawal_repo").Logger(),
	}
}

const withdrawalColumns = `id, user_id, source_amount, destination_phone, quote, wallet_tx_ref,
	gateway_checkout_ref, state, result_desc, requires_reconciliation, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, withdrawal *domain.WithdrawalRequest) error {
	quoteJSON, err := json.Marshal(withdrawal.Quote)
	if err != nil {
		return fmt.Errorf("failed to encode quote: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO withdrawals (`+withdrawalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		withdrawal.ID,
		withdrawal.UserID,
		withdrawal.SourceAmount,
		withdrawal.DestinationPhone,
		quoteJSON,
		nullString(withdrawal.WalletTxRef),
		nullString(withdrawal.GatewayCheckoutRef),
		string(withdrawal.State),
		nullString(withdrawal.ResultDesc),
		withdrawal.RequiresReconciliation,
		withdrawal.CreatedAt,
		withdrawal.UpdatedAt,
	)
	if err != nil {
		r.logger.Err(err).Str("withdrawal_id", withdrawal.ID).Msg("Failed to insert withdrawal")
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	return scanWithdrawal(row)
}

func (r *PostgresRepository) GetByCheckoutRef(ctx context.Context, checkoutRef string) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals WHERE gateway_checkout_ref = $1`, checkoutRef)
	return scanWithdrawal(row)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()
	return collectWithdrawals(rows)
}

func (r *PostgresRepository) ListStuck(ctx context.Context, state domain.WithdrawalState, cutoff time.Time) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE state = $1 AND updated_at < $2`, string(state), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck withdrawals: %w", err)
	}
	defer rows.Close()
	return collectWithdrawals(rows)
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to domain.WithdrawalState, mutate Mutator) (*domain.WithdrawalRequest, error) {
	if !from.CanTransitionTo(to) {
		return nil, &domain.InvariantViolationError{WithdrawalID: id, From: from, To: to}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
	withdrawal, err := scanWithdrawal(row)
	if err != nil {
		return nil, err
	}

	if withdrawal.State != from {
		return withdrawal, domain.ErrStateConflict
	}

	withdrawal.State = to
	if mutate != nil {
		mutate(withdrawal)
	}
	withdrawal.UpdatedAt = time.Now()

	_, err = tx.ExecContext(ctx, `
		UPDATE withdrawals
		SET state = $2, wallet_tx_ref = $3, gateway_checkout_ref = $4,
		    result_desc = $5, requires_reconciliation = $6, updated_at = $7
		WHERE id = $1`,
		withdrawal.ID,
		string(withdrawal.State),
		nullString(withdrawal.WalletTxRef),
		nullString(withdrawal.GatewayCheckoutRef),
		nullString(withdrawal.ResultDesc),
		withdrawal.RequiresReconciliation,
		withdrawal.UpdatedAt,
	)
	if err != nil {
		r.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to update withdrawal")
		return nil, fmt.Errorf("failed to update withdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return withdrawal, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row rowScanner) (*domain.WithdrawalRequest, error) {
	var (
		withdrawal  domain.WithdrawalRequest
		quoteJSON   []byte
		walletTxRef sql.NullString
		checkoutRef sql.NullString
		resultDesc  sql.NullString
		state       string
	)

	err := row.Scan(
		&withdrawal.ID,
		&withdrawal.UserID,
		&withdrawal.SourceAmount,
		&withdrawal.DestinationPhone,
		&quoteJSON,
		&walletTxRef,
		&checkoutRef,
		&state,
		&resultDesc,
		&withdrawal.RequiresReconciliation,
		&withdrawal.CreatedAt,
		&withdrawal.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
	}

	if err := json.Unmarshal(quoteJSON, &withdrawal.Quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	withdrawal.State = domain.WithdrawalState(state)
	withdrawal.WalletTxRef = walletTxRef.String
	withdrawal.GatewayCheckoutRef = checkoutRef.String
	withdrawal.ResultDesc = resultDesc.String

	return &withdrawal, nil
}

func collectWithdrawals(rows *sql.Rows) ([]domain.WithdrawalRequest, error) {
	var withdrawals []domain.WithdrawalRequest
	for rows.Next() {
		withdrawal, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *withdrawal)
	}
	return withdrawals, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
