package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryType string

const (
	LedgerEntryWithdrawal   LedgerEntryType = "withdrawal"
	LedgerEntryStatusUpdate LedgerEntryType = "status_update"
)

// LedgerEntry is append-only; corrections are new entries, never edits.
type LedgerEntry struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	WithdrawalID      string          `json:"withdrawal_id" db:"withdrawal_id"`
	Type              LedgerEntryType `json:"type" db:"type"`
	SourceAmount      decimal.Decimal `json:"source_amount" db:"source_amount"`
	DestinationAmount decimal.Decimal `json:"destination_amount" db:"destination_amount"`
	Description       string          `json:"description" db:"description"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

type Balance struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
