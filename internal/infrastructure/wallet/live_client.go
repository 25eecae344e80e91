package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

// wldDecimals converts WLD to its smallest on-chain unit (18 decimals).
var wldDecimals = decimal.New(1, 18)

// LiveClient submits pay commands through the World App relay.
type LiveClient struct {
	baseURL    string
	appID      string
	httpClient *http.Client
	logger     zerolog.Logger
	newRef     func() string
}

func NewLiveClient(cfg config.WalletConfig, logger zerolog.Logger) *LiveClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LiveClient{
		baseURL: cfg.RelayBaseURL,
		appID:   cfg.AppID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "wallet_live_client").Logger(),
		newRef: func() string { return uuid.NewString() },
	}
}

func (c *LiveClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/minikit/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type payCommand struct {
	AppID       string     `json:"app_id"`
	Reference   string     `json:"reference"`
	To          string     `json:"to"`
	Tokens      []payToken `json:"tokens"`
	Description string     `json:"description"`
}

type payToken struct {
	Symbol      string `json:"symbol"`
	TokenAmount string `json:"token_amount"`
}

type payResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	ErrorCode     string `json:"error_code"`
}

func (c *LiveClient) InitiateTransfer(ctx context.Context, amount decimal.Decimal, recipient string) (string, error) {
	command := payCommand{
		AppID:     c.appID,
		Reference: c.newRef(),
		To:        recipient,
		Tokens: []payToken{{
			Symbol:      "WLD",
			TokenAmount: amount.Mul(wldDecimals).Truncate(0).String(),
		}},
		Description: "Withdrawal to M-Pesa",
	}

	body, err := json.Marshal(command)
	if err != nil {
		return "", &domain.WalletTransferError{Reason: fmt.Sprintf("encoding pay command: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/minikit/v1/pay", bytes.NewReader(body))
	if err != nil {
		return "", &domain.WalletTransferError{Reason: fmt.Sprintf("building pay request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The command may have reached the runtime before the connection
		// dropped. Retrying here could double-spend, so report the outcome
		// as unknown and let the orchestrator park the withdrawal.
		c.logger.Error().Err(err).Str("reference", command.Reference).Msg("Pay command outcome unknown")
		return "", &domain.WalletAmbiguousError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.WalletAmbiguousError{Reason: fmt.Sprintf("reading pay response: %v", err)}
	}

	if resp.StatusCode >= 500 {
		return "", &domain.WalletAmbiguousError{Reason: fmt.Sprintf("relay returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &domain.WalletTransferError{Reason: fmt.Sprintf("relay returned %d: %s", resp.StatusCode, string(respBody))}
	}

	var result payResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &domain.WalletAmbiguousError{Reason: fmt.Sprintf("unparseable pay response: %v", err)}
	}

	if result.Status == "error" {
		reason := result.ErrorCode
		if reason == "" {
			reason = "transaction failed"
		}
		return "", &domain.WalletTransferError{Reason: reason}
	}
	if result.TransactionID == "" {
		return "", &domain.WalletAmbiguousError{Reason: "pay response missing transaction id"}
	}

	c.logger.Info().
		Str("reference", command.Reference).
		Str("transaction_id", result.TransactionID).
		Str("amount", amount.String()).
		Msg("Wallet transfer submitted")

	return result.TransactionID, nil
}
