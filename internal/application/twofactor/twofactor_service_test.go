package twofactorservice

import (
	"context"
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/twofactorrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

// RFC 6238 appendix B vector: ASCII key "12345678901234567890", T=59s.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTPVerifierKnownVector(t *testing.T) {
	verifier := NewTOTPVerifier()
	verifier.now = func() time.Time { return time.Unix(59, 0) }

	if !verifier.Verify("287082", rfcSecret) {
		t.Error("expected RFC vector code to verify")
	}
	if verifier.Verify("000000", rfcSecret) {
		t.Error("wrong code must not verify")
	}
}

func TestTOTPVerifierAcceptsAdjacentStep(t *testing.T) {
	verifier := NewTOTPVerifier()
	// One step past the vector window; skew of one step covers it.
	verifier.now = func() time.Time { return time.Unix(59+30, 0) }

	if !verifier.Verify("287082", rfcSecret) {
		t.Error("expected code from the previous step to verify within skew")
	}
}

func TestTOTPVerifierRejectsBadSecret(t *testing.T) {
	verifier := NewTOTPVerifier()
	if verifier.Verify("123456", "not!base32!") {
		t.Error("invalid secret must not verify")
	}
}

func newTestService() (*TwoFactorService, *twofactorrepo.MemoryRepository) {
	repo := twofactorrepo.NewMemoryRepository()
	svc := NewTwoFactorService(repo, NewTOTPVerifier(), config.TwoFactorConfig{
		Issuer:          "wld2mpesa",
		BackupCodeCount: 4,
	}, zerolog.Nop())
	return svc, repo
}

func TestSetupProducesEnrollment(t *testing.T) {
	svc, _ := newTestService()

	result, err := svc.Setup(context.Background(), "user1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Secret == "" {
		t.Error("empty secret")
	}
	if len(result.BackupCodes) != 4 {
		t.Errorf("backup codes = %d, want 4", len(result.BackupCodes))
	}
	if !strings.HasPrefix(result.OtpauthURL, "otpauth://totp/") {
		t.Errorf("otpauth url = %q", result.OtpauthURL)
	}
	if !strings.Contains(result.OtpauthURL, "issuer=wld2mpesa") {
		t.Errorf("otpauth url missing issuer: %q", result.OtpauthURL)
	}

	enabled, err := svc.Enabled(context.Background(), "user1")
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Error("enrollment must not be enabled before first verification")
	}
}

func TestVerifyCodeEnablesEnrollment(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if _, err := svc.Setup(ctx, "user1", "alice"); err != nil {
		t.Fatal(err)
	}

	// Compute the current valid code directly from the stored secret.
	enrollment, err := repo.Get(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	verifier := NewTOTPVerifier()
	code := currentCode(t, enrollment.Secret, verifier)

	valid, err := svc.VerifyCode(ctx, "user1", code)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("expected current code to verify")
	}

	enabled, err := svc.Enabled(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if !enabled {
		t.Error("first successful verification must enable the enrollment")
	}
}

func TestVerifyBackupCodeConsumesOnce(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	result, err := svc.Setup(ctx, "user1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	code := result.BackupCodes[0]

	valid, err := svc.VerifyBackupCode(ctx, "user1", code)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("expected backup code to verify")
	}

	valid, err = svc.VerifyBackupCode(ctx, "user1", code)
	if err != nil {
		t.Fatal(err)
	}
	if valid {
		t.Error("a backup code must only be usable once")
	}
}

func TestEnabledForUnknownUser(t *testing.T) {
	svc, _ := newTestService()

	enabled, err := svc.Enabled(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enabled {
		t.Error("unknown user must not report as enrolled")
	}
}

func currentCode(t *testing.T, secret string, verifier *TOTPVerifier) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatal(err)
	}
	counter := uint64(verifier.now().Unix() / int64(verifier.step.Seconds()))
	return hotp(key, counter)
}
