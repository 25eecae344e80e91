package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	authservice "github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/auth"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/quote"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/rates"
	twofactorservice "github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/twofactor"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/withdrawal"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/infrastructure/clients"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/ledgerrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/server/middleware"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/server/websocket"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

type Handlers struct {
	Orchestrator withdrawal.IOrchestrator
	Rates        *rates.Provider
	Calculator   *quote.Calculator
	Mpesa        *clients.MpesaClient
	AuthSvc      authservice.IAuthService
	TwoFactorSvc twofactorservice.ITwoFactorService
	Ledger       ledgerrepo.ILedgerRepository
	Logger       zerolog.Logger
	Config       *config.Config
	WsHub        *websocket.WsHub
}

func New(
	orchestrator withdrawal.IOrchestrator,
	rateProvider *rates.Provider,
	calculator *quote.Calculator,
	mpesa *clients.MpesaClient,
	authSvc authservice.IAuthService,
	twoFactorSvc twofactorservice.ITwoFactorService,
	ledger ledgerrepo.ILedgerRepository,
	logger zerolog.Logger,
	config *config.Config,
	wsHub *websocket.WsHub,
) *Handlers {
	return &Handlers{
		Orchestrator: orchestrator,
		Rates:        rateProvider,
		Calculator:   calculator,
		Mpesa:        mpesa,
		AuthSvc:      authSvc,
		TwoFactorSvc: twoFactorSvc,
		Ledger:       ledger,
		Logger:       logger,
		Config:       config,
		WsHub:        wsHub,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine, mw *middleware.Middleware) {
	ratesHandler := NewRatesHandler(h.Rates, h.Calculator, h.Logger)
	authHandler := NewAuthHandler(h.AuthSvc, h.Logger)
	twoFactorHandler := NewTwoFactorHandler(h.TwoFactorSvc, h.Logger)
	withdrawalHandler := NewWithdrawalHandler(h.Orchestrator, h.Ledger, h.Logger)
	callbackHandler := NewCallbackHandler(h.Mpesa, h.Orchestrator, h.Logger)
	wsHandler := NewWebSocketHandler(h.WsHub, h.Config.WebSocket, h.Logger)
	healthHandler := NewHealthHandler()

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/v1")
	{
		v1.GET("/rates", ratesHandler.GetRates)
		v1.POST("/quote", ratesHandler.GetQuote)

		v1.POST("/auth/worldid/verify", authHandler.VerifyWorldID)

		// Daraja posts here; it must always be acknowledged.
		v1.POST("/mpesa/callback", callbackHandler.HandleMpesaCallback)

		authed := v1.Group("")
		authed.Use(mw.AuthMiddleware())
		{
			authed.POST("/2fa/setup", twoFactorHandler.Setup)
			authed.POST("/2fa/verify", twoFactorHandler.Verify)

			authed.GET("/balance", withdrawalHandler.GetBalance)
			authed.GET("/transactions", withdrawalHandler.ListTransactions)

			authed.POST("/withdrawals", withdrawalHandler.CreateWithdrawal)
			authed.GET("/withdrawals/:id", withdrawalHandler.GetWithdrawal)
			authed.POST("/withdrawals/:id/advance", withdrawalHandler.AdvanceWithdrawal)
			authed.GET("/withdrawals/:id/status/ws", wsHandler.HandleConnection)
		}
	}
}
