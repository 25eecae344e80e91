package domain

import (
	"time"

	"github.com/dgrijalva/jwt-go"
)

// WorldIDProof is the identity proof forwarded from the World App. The
// nullifier hash and credential type are opaque identifiers here.
type WorldIDProof struct {
	NullifierHash  string `json:"nullifier_hash" binding:"required"`
	MerkleRoot     string `json:"merkle_root" binding:"required"`
	Proof          string `json:"proof" binding:"required"`
	CredentialType string `json:"credential_type"`
	SignalHash     string `json:"signal_hash"`
}

type Claim struct {
	NullifierHash  string `json:"nullifier_hash"`
	CredentialType string `json:"credential_type"`
	jwt.StandardClaims
}

type UserSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
