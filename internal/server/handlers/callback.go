package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/withdrawal"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/infrastructure/clients"
)

type CallbackHandler struct {
	mpesa        *clients.MpesaClient
	orchestrator withdrawal.IOrchestrator
	logger       zerolog.Logger
}

func NewCallbackHandler(mpesa *clients.MpesaClient, orchestrator withdrawal.IOrchestrator, logger zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		mpesa:        mpesa,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// HandleMpesaCallback always acknowledges with 200 so Daraja does not
// redeliver; failures are resolved internally via the state machine and
// the timeout sweeper.
func (h *CallbackHandler) HandleMpesaCallback(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Unreadable M-Pesa callback body")
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	result := h.mpesa.ParseCallback(payload)
	h.logger.Info().
		Str("checkout_ref", result.CheckoutRequestID).
		Bool("success", result.Success).
		Int("result_code", result.ResultCode).
		Msg("M-Pesa callback received")

	h.orchestrator.HandleCallback(c.Request.Context(), result)

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}
