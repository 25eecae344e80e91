package websocket

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

// WsHub fans withdrawal state transitions out to connected clients,
// keyed by withdrawal id so a client only sees its own flow.
type WsHub struct {
	Clients    map[string]map[*websocket.Conn]bool
	Broadcast  chan WsMessage
	Register   chan *WsClient
	Unregister chan *WsClient
	Logger     zerolog.Logger
}

type WsClient struct {
	WithdrawalID string
	Conn         *websocket.Conn
}

type WsMessage struct {
	Type       string                    `json:"type"`
	Withdrawal *domain.WithdrawalRequest `json:"withdrawal,omitempty"`
}

func NewWsHub(logger zerolog.Logger) *WsHub {
	return &WsHub{
		Clients:    make(map[string]map[*websocket.Conn]bool),
		Broadcast:  make(chan WsMessage, 100),
		Register:   make(chan *WsClient, 100),
		Unregister: make(chan *WsClient, 100),
		Logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

func (h *WsHub) Run() {
	for {
		select {
		case client := <-h.Register:
			if h.Clients[client.WithdrawalID] == nil {
				h.Clients[client.WithdrawalID] = make(map[*websocket.Conn]bool)
			}
			h.Clients[client.WithdrawalID][client.Conn] = true
			h.Logger.Info().
				Str("withdrawal_id", client.WithdrawalID).
				Int("connection_count", len(h.Clients[client.WithdrawalID])).
				Msg("WebSocket client registered")

		case client := <-h.Unregister:
			if clients, ok := h.Clients[client.WithdrawalID]; ok {
				delete(clients, client.Conn)
				if len(clients) == 0 {
					delete(h.Clients, client.WithdrawalID)
				}
				client.Conn.Close()
			}

		case message := <-h.Broadcast:
			if message.Withdrawal == nil {
				continue
			}
			withdrawalID := message.Withdrawal.ID

			clients, ok := h.Clients[withdrawalID]
			if !ok {
				continue
			}
			for conn := range clients {
				if err := conn.WriteJSON(message); err != nil {
					h.Logger.Err(err).
						Str("withdrawal_id", withdrawalID).
						Msg("Failed to send WebSocket message")
					conn.Close()
					delete(clients, conn)
				}
			}
			if len(clients) == 0 {
				delete(h.Clients, withdrawalID)
			}
		}
	}
}

// NotifyStateChange implements the orchestrator's Notifier. Buffered
// channel; drops on overflow rather than blocking a state transition.
func (h *WsHub) NotifyStateChange(withdrawal domain.WithdrawalRequest) {
	message := WsMessage{
		Type:       "withdrawal_state",
		Withdrawal: &withdrawal,
	}
	select {
	case h.Broadcast <- message:
	default:
		h.Logger.Warn().
			Str("withdrawal_id", withdrawal.ID).
			Msg("WebSocket broadcast buffer full, dropping update")
	}
}
