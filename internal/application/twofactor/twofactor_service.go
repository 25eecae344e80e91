package twofactorservice

import "context"

// CodeVerifier checks a one-time code against a shared secret. The TOTP
// scheme itself is a standard primitive; this interface keeps the
// implementation swappable.
type CodeVerifier interface {
	Verify(code, secret string) bool
}

// SetupResult is returned exactly once at enrollment; the plaintext
// backup codes are never recoverable afterwards.
type SetupResult struct {
	Secret      string   `json:"secret"`
	OtpauthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

type ITwoFactorService interface {
	Setup(ctx context.Context, userID, username string) (*SetupResult, error)
	// VerifyCode checks a TOTP code. The first successful verification
	// enables the enrollment.
	VerifyCode(ctx context.Context, userID, code string) (bool, error)
	// VerifyBackupCode consumes a backup code; each code works at most
	// once.
	VerifyBackupCode(ctx context.Context, userID, code string) (bool, error)
	Enabled(ctx context.Context, userID string) (bool, error)
}
