package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/withdrawal"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/ledgerrepo"
)

const defaultTransactionLimit = 50

type WithdrawalHandler struct {
	orchestrator withdrawal.IOrchestrator
	ledger       ledgerrepo.ILedgerRepository
	logger       zerolog.Logger
}

func NewWithdrawalHandler(orchestrator withdrawal.IOrchestrator, ledger ledgerrepo.ILedgerRepository, logger zerolog.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{
		orchestrator: orchestrator,
		ledger:       ledger,
		logger:       logger,
	}
}

type createWithdrawalRequest struct {
	Amount string `json:"amount" binding:"required"`
	Phone  string `json:"phone" binding:"required"`
}

func (h *WithdrawalHandler) CreateWithdrawal(c *gin.Context) {
	var req createWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount and phone are required"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal number"})
		return
	}

	userID := c.GetString("user_id")
	created, err := h.orchestrator.Create(c.Request.Context(), userID, amount, req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPhone):
			c.JSON(http.StatusBadRequest, gin.H{"error": "phone must be a Kenyan mobile number"})
		case errors.Is(err, domain.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrRateUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exchange rates are currently unavailable"})
		default:
			h.logger.Error().Err(err).Str("user_id", userID).Msg("Withdrawal creation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create withdrawal"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"withdrawal": created})
}

func (h *WithdrawalHandler) GetWithdrawal(c *gin.Context) {
	result, err := h.orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrWithdrawalNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load withdrawal"})
		return
	}

	if result.UserID != c.GetString("user_id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawal": result})
}

func (h *WithdrawalHandler) AdvanceWithdrawal(c *gin.Context) {
	id := c.Param("id")

	current, err := h.orchestrator.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrWithdrawalNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load withdrawal"})
		return
	}
	if current.UserID != c.GetString("user_id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
		return
	}

	advanced, err := h.orchestrator.Advance(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("withdrawal_id", id).Msg("Advance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to advance withdrawal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawal": advanced})
}

func (h *WithdrawalHandler) GetBalance(c *gin.Context) {
	userID := c.GetString("user_id")
	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Balance lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *WithdrawalHandler) ListTransactions(c *gin.Context) {
	userID := c.GetString("user_id")

	limit := defaultTransactionLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.ListEntries(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Transaction list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}
