package domain

import "time"

// TwoFactorEnrollment associates a user with a TOTP secret and hashed
// backup codes. Each code is consumable exactly once.
type TwoFactorEnrollment struct {
	UserID            string    `json:"user_id" db:"user_id"`
	Secret            string    `json:"-" db:"secret"`
	HashedBackupCodes []string  `json:"-" db:"hashed_backup_codes"`
	Enabled           bool      `json:"enabled" db:"enabled"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
