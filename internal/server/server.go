package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	authservice "github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/auth"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/server/handlers"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/server/middleware"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

type Server struct {
	Handlers   *handlers.Handlers
	AuthSvc    authservice.IAuthService
	Cfg        *config.Config
	Logger     zerolog.Logger
	Router     *gin.Engine
	httpServer *http.Server
}

func New(cfg *config.Config, h *handlers.Handlers, authSvc authservice.IAuthService, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	return &Server{
		Cfg:      cfg,
		Handlers: h,
		AuthSvc:  authSvc,
		Logger:   logger,
		Router:   router,
	}
}

func (s *Server) SetupRouter() {
	mw := middleware.NewMiddleware(s.AuthSvc, s.Logger)
	mw.SetupMiddleware(s.Router)
	s.Handlers.SetupHandlers(s.Router, mw)
}

func (s *Server) Start() {
	s.SetupRouter()

	s.httpServer = &http.Server{
		Addr:         s.Cfg.Server.Host + ":" + s.Cfg.Server.Port,
		Handler:      s.Router,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	s.Logger.Info().Msgf("Starting server on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-stopChan
	s.Logger.Info().Msg("Shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	s.Logger.Info().Msg("Server exited gracefully")
}
