package authservice

import (
	"context"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

// ProofVerifier abstracts the Worldcoin developer-portal verify endpoint.
type ProofVerifier interface {
	Verify(ctx context.Context, proof domain.WorldIDProof) error
}

type IAuthService interface {
	// VerifyProof validates a World ID proof and, on success, issues a
	// session token whose subject is the proof's nullifier hash.
	VerifyProof(ctx context.Context, proof domain.WorldIDProof) (string, error)
	VerifyToken(ctx context.Context, tokenString string) (*domain.Claim, error)
}
