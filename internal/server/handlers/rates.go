package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/quote"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/rates"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type RatesHandler struct {
	rates      *rates.Provider
	calculator *quote.Calculator
	logger     zerolog.Logger
}

func NewRatesHandler(rateProvider *rates.Provider, calculator *quote.Calculator, logger zerolog.Logger) *RatesHandler {
	return &RatesHandler{
		rates:      rateProvider,
		calculator: calculator,
		logger:     logger,
	}
}

func (h *RatesHandler) GetRates(c *gin.Context) {
	snapshot, err := h.rates.GetRates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exchange rates are currently unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rates":    snapshot,
		"degraded": snapshot.Expired(time.Now()),
	})
}

type quoteRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *RatesHandler) GetQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal number"})
		return
	}

	snapshot, err := h.rates.GetRates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exchange rates are currently unavailable"})
		return
	}

	result, err := h.calculator.Quote(amount, snapshot)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute quote"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": result})
}
