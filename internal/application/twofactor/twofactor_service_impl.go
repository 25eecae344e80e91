package twofactorservice

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/twofactorrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

type TwoFactorService struct {
	repo     twofactorrepo.ITwoFactorRepository
	verifier CodeVerifier
	issuer   string
	codes    int
	logger   zerolog.Logger
}

func NewTwoFactorService(repo twofactorrepo.ITwoFactorRepository, verifier CodeVerifier, cfg config.TwoFactorConfig, logger zerolog.Logger) *TwoFactorService {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "WLD2MPESA"
	}
	codes := cfg.BackupCodeCount
	if codes <= 0 {
		codes = 10
	}
	return &TwoFactorService{
		repo:     repo,
		verifier: verifier,
		issuer:   issuer,
		codes:    codes,
		logger:   logger.With().Str("component", "twofactor_service").Logger(),
	}
}

func (s *TwoFactorService) Setup(ctx context.Context, userID, username string) (*SetupResult, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	backupCodes, err := generateBackupCodes(s.codes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	hashed := make([]string, len(backupCodes))
	for i, code := range backupCodes {
		hashed[i] = HashBackupCode(code)
	}

	enrollment := &domain.TwoFactorEnrollment{
		UserID:            userID,
		Secret:            secret,
		HashedBackupCodes: hashed,
		Enabled:           false,
		CreatedAt:         time.Now(),
	}
	if err := s.repo.Save(ctx, enrollment); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", userID).Msg("2FA enrollment created")

	return &SetupResult{
		Secret:      secret,
		OtpauthURL:  s.otpauthURL(username, secret),
		BackupCodes: backupCodes,
	}, nil
}

func (s *TwoFactorService) VerifyCode(ctx context.Context, userID, code string) (bool, error) {
	enrollment, err := s.repo.Get(ctx, userID)
	if err != nil {
		return false, err
	}

	if !s.verifier.Verify(code, enrollment.Secret) {
		return false, nil
	}

	if !enrollment.Enabled {
		if err := s.repo.Enable(ctx, userID); err != nil {
			return false, err
		}
		s.logger.Info().Str("user_id", userID).Msg("2FA enabled")
	}
	return true, nil
}

func (s *TwoFactorService) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	consumed, err := s.repo.ConsumeBackupCode(ctx, userID, HashBackupCode(code))
	if err != nil {
		return false, err
	}
	if consumed {
		s.logger.Info().Str("user_id", userID).Msg("Backup code consumed")
	}
	return consumed, nil
}

func (s *TwoFactorService) Enabled(ctx context.Context, userID string) (bool, error) {
	enrollment, err := s.repo.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotEnrolled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enrollment.Enabled, nil
}

func (s *TwoFactorService) otpauthURL(username, secret string) string {
	label := url.PathEscape(s.issuer + ":" + username)
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", s.issuer)
	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode())
}

func generateSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

func generateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		raw := make([]byte, 4)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		codes[i] = strings.ToUpper(hex.EncodeToString(raw))
	}
	return codes, nil
}

// HashBackupCode is the storage form of a backup code; plaintext codes
// are only ever shown once at setup.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}
