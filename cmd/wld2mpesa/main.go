package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	authservice "github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/auth"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/quote"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/rates"
	twofactorservice "github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/twofactor"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/withdrawal"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/infrastructure/clients"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/infrastructure/database"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/infrastructure/wallet"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/ledgerrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/twofactorrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/withdrawalrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/server"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/server/handlers"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/server/websocket"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log = logger.NewWithConfig(logger.Config{
		Level:      cfg.Logger.Level,
		TimeFormat: cfg.Logger.TimeFormat,
		Pretty:     cfg.Logger.Pretty,
	})

	var (
		withdrawalRepo withdrawalrepo.IWithdrawalRepository
		ledgerRepo     ledgerrepo.ILedgerRepository
		twoFactorRepo  twofactorrepo.ITwoFactorRepository
	)

	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, all state is lost on restart")
		withdrawalRepo = withdrawalrepo.NewMemoryRepository()
		ledgerRepo = ledgerrepo.NewMemoryRepository()
		twoFactorRepo = twofactorrepo.NewMemoryRepository()
	} else {
		db, err := database.New(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.ShutDown()

		withdrawalRepo = withdrawalrepo.New(db.Db, log)
		ledgerRepo = ledgerrepo.New(db.Db, log)
		twoFactorRepo = twofactorrepo.New(db.Db, log)
	}

	coinGeckoClient := clients.NewCoinGeckoClient(&cfg.Rates, log)
	forexClient := clients.NewForexClient(&cfg.Rates, log)
	mpesaClient := clients.NewMpesaClient(cfg.Mpesa, log)
	worldIDClient := clients.NewWorldIDClient(cfg.WorldID, log)

	var walletClient wallet.Client
	if cfg.Wallet.Mode == "live" {
		walletClient = wallet.NewLiveClient(cfg.Wallet, log)
	} else {
		walletClient = wallet.NewStubClient(cfg.Wallet.StubSucceed, log)
	}

	rateProvider := rates.NewProvider(coinGeckoClient, forexClient, rates.NewMemoryCache(), cfg.Rates.CacheTTL, log)

	feeRate, err := decimal.NewFromString(cfg.Withdrawal.FeeRate)
	if err != nil {
		log.Fatal().Err(err).Str("fee_rate", cfg.Withdrawal.FeeRate).Msg("Invalid fee rate")
	}
	calculator := quote.NewCalculator(feeRate)

	wsHub := websocket.NewWsHub(log)
	go wsHub.Run()

	orchestrator := withdrawal.NewOrchestrator(
		withdrawalRepo,
		ledgerRepo,
		walletClient,
		mpesaClient,
		rateProvider,
		calculator,
		wsHub,
		cfg.Wallet.CustodialAddress,
		cfg.Withdrawal.PendingTimeout,
		log,
	)

	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	go orchestrator.RunTimeoutSweeper(sweeperCtx, 30*time.Second)

	authSvc := authservice.NewAuthService(&cfg.JWT, worldIDClient, log)
	twoFactorSvc := twofactorservice.NewTwoFactorService(twoFactorRepo, twofactorservice.NewTOTPVerifier(), cfg.TwoFactor, log)

	h := handlers.New(
		orchestrator,
		rateProvider,
		calculator,
		mpesaClient,
		authSvc,
		twoFactorSvc,
		ledgerRepo,
		log,
		cfg,
		wsHub,
	)

	srv := server.New(cfg, h, authSvc, log)
	srv.Start()
}
