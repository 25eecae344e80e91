package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	authservice "github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/auth"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type AuthHandler struct {
	authSvc authservice.IAuthService
	logger  zerolog.Logger
}

func NewAuthHandler(authSvc authservice.IAuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authSvc: authSvc,
		logger:  logger,
	}
}

func (h *AuthHandler) VerifyWorldID(c *gin.Context) {
	var proof domain.WorldIDProof
	if err := c.ShouldBindJSON(&proof); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nullifier_hash, merkle_root and proof are required"})
		return
	}

	token, err := h.authSvc.VerifyProof(c.Request.Context(), proof)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verified":        true,
		"nullifier_hash":  proof.NullifierHash,
		"credential_type": proof.CredentialType,
		"token":           token,
	})
}
