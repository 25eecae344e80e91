package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/server/websocket"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

type WebSocketHandler struct {
	hub      *websocket.WsHub
	upgrader gorillaws.Upgrader
	logger   zerolog.Logger
}

func NewWebSocketHandler(hub *websocket.WsHub, cfg config.WebSocketConfig, logger zerolog.Logger) *WebSocketHandler {
	readBuffer := cfg.ReadBufferSize
	if readBuffer == 0 {
		readBuffer = 1024
	}
	writeBuffer := cfg.WriteBufferSize
	if writeBuffer == 0 {
		writeBuffer = 1024
	}

	upgrader := gorillaws.Upgrader{
		ReadBufferSize:  readBuffer,
		WriteBufferSize: writeBuffer,
	}
	if !cfg.CheckOrigin {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	return &WebSocketHandler{
		hub:      hub,
		upgrader: upgrader,
		logger:   logger,
	}
}

// HandleConnection upgrades the request and streams state transitions
// for one withdrawal until the client disconnects.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	withdrawalID := c.Param("id")
	if withdrawalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "withdrawal id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &websocket.WsClient{
		WithdrawalID: withdrawalID,
		Conn:         conn,
	}
	h.hub.Register <- client

	go func() {
		defer func() {
			h.hub.Unregister <- client
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
