package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	twofactorservice "github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/twofactor"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type TwoFactorHandler struct {
	twoFactorSvc twofactorservice.ITwoFactorService
	logger       zerolog.Logger
}

func NewTwoFactorHandler(twoFactorSvc twofactorservice.ITwoFactorService, logger zerolog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		twoFactorSvc: twoFactorSvc,
		logger:       logger,
	}
}

type twoFactorSetupRequest struct {
	Username string `json:"username" binding:"required"`
}

func (h *TwoFactorHandler) Setup(c *gin.Context) {
	var req twoFactorSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	userID := c.GetString("user_id")
	result, err := h.twoFactorSvc.Setup(c.Request.Context(), userID, req.Username)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("2FA setup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set up two-factor authentication"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":       result.Secret,
		"otpauth_url":  result.OtpauthURL,
		"backup_codes": result.BackupCodes,
	})
}

type twoFactorVerifyRequest struct {
	Code       string `json:"code"`
	BackupCode string `json:"backup_code"`
}

func (h *TwoFactorHandler) Verify(c *gin.Context) {
	var req twoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Code == "" && req.BackupCode == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code or backup_code is required"})
		return
	}

	userID := c.GetString("user_id")

	var (
		valid bool
		err   error
	)
	if req.Code != "" {
		valid, err = h.twoFactorSvc.VerifyCode(c.Request.Context(), userID, req.Code)
	} else {
		valid, err = h.twoFactorSvc.VerifyBackupCode(c.Request.Context(), userID, req.BackupCode)
	}

	if errors.Is(err, domain.ErrNotEnrolled) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "two-factor authentication is not set up"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("2FA verification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}
