package authservice

import (
	"context"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

const issuer = "wld2mpesa"

type AuthService struct {
	config   *config.JWTConfig
	verifier ProofVerifier
	logger   zerolog.Logger
}

func NewAuthService(config *config.JWTConfig, verifier ProofVerifier, logger zerolog.Logger) *AuthService {
	return &AuthService{
		config:   config,
		verifier: verifier,
		logger:   logger.With().Str("component", "auth_service").Logger(),
	}
}

func (s *AuthService) VerifyProof(ctx context.Context, proof domain.WorldIDProof) (string, error) {
	if err := s.verifier.Verify(ctx, proof); err != nil {
		s.logger.Warn().Err(err).Str("nullifier_hash", proof.NullifierHash).Msg("World ID proof rejected")
		return "", err
	}

	token, err := s.generateToken(proof)
	if err != nil {
		return "", err
	}

	s.logger.Info().Str("nullifier_hash", proof.NullifierHash).Msg("World ID proof verified")
	return token, nil
}

func (s *AuthService) generateToken(proof domain.WorldIDProof) (string, error) {
	jwtSecret := s.config.Secret
	if jwtSecret == "" {
		s.logger.Error().Msg("JWT secret not configured")
		return "", fmt.Errorf("JWT secret not configured")
	}

	ttl := s.config.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	expirationTime := time.Now().Add(ttl)
	claim := &domain.Claim{
		NullifierHash:  proof.NullifierHash,
		CredentialType: proof.CredentialType,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expirationTime.Unix(),
			IssuedAt:  time.Now().Unix(),
			Issuer:    issuer,
			Subject:   proof.NullifierHash,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claim)
	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sign token")
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return tokenString, nil
}

func (s *AuthService) VerifyToken(ctx context.Context, tokenString string) (*domain.Claim, error) {
	jwtSecret := s.config.Secret
	if jwtSecret == "" {
		s.logger.Error().Msg("JWT secret not configured")
		return nil, fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &domain.Claim{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %v", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*domain.Claim)
	if !ok {
		return nil, fmt.Errorf("invalid claims format")
	}

	if claims.ExpiresAt < time.Now().Unix() {
		return nil, fmt.Errorf("token expired")
	}

	if claims.Issuer != issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	return claims, nil
}
