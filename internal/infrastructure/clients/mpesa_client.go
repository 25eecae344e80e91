package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

// MpesaClient drives the Daraja STK push protocol: OAuth token management,
// push initiation, status query and callback normalization.
type MpesaClient struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string
	httpClient     *http.Client
	maxRetries     int
	retryDelay     time.Duration
	logger         zerolog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	now func() time.Time
}

func NewMpesaClient(cfg config.MpesaConfig, logger zerolog.Logger) *MpesaClient {
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &MpesaClient{
		baseURL:        cfg.BaseURL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		logger:     logger.With().Str("component", "mpesa_client").Logger(),
		now:        time.Now,
	}
}

// requestToken returns a cached access token, refreshing it when within a
// minute of expiry. Callers never see the token lifecycle.
func (c *MpesaClient) requestToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.consumerKey + ":" + c.consumerSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("creating token request failed: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("parsing token response failed: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}

	expiresIn, err := strconv.Atoi(tokenResp.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3599
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(expiresIn) * time.Second)

	return c.accessToken, nil
}

// timestamp returns the YYYYMMDDHHMMSS form Daraja requires.
func (c *MpesaClient) timestamp() string {
	return c.now().Format("20060102150405")
}

func (c *MpesaClient) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.shortCode + c.passkey + timestamp))
}

// InitiateSTKPush asks the provider to prompt the destination phone for a
// payout authorization. The amount must already be a whole number of KES;
// Daraja rejects fractional units.
func (c *MpesaClient) InitiateSTKPush(ctx context.Context, phone string, amount decimal.Decimal, reference, description string) (*domain.STKPushResult, error) {
	if !amount.Equal(amount.Truncate(0)) {
		return nil, &domain.GatewayInitiationError{Code: "fractional_amount", Message: fmt.Sprintf("amount %s is not a whole unit", amount)}
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return nil, &domain.GatewayInitiationError{Code: "auth_failed", Message: err.Error()}
	}

	timestamp := c.timestamp()
	payload := map[string]any{
		"BusinessShortCode": c.shortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount.IntPart(),
		"PartyA":            phone,
		"PartyB":            c.shortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.callbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   description,
	}

	var response struct {
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
	if err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, payload, &response); err != nil {
		return nil, &domain.GatewayInitiationError{Code: "request_failed", Message: err.Error()}
	}

	if response.ResponseCode != "0" {
		return nil, &domain.GatewayInitiationError{Code: response.ResponseCode, Message: response.ResponseDescription}
	}

	c.logger.Info().
		Str("checkout_request_id", response.CheckoutRequestID).
		Str("phone", phone).
		Str("amount", amount.String()).
		Msg("STK push initiated")

	return &domain.STKPushResult{
		CheckoutRequestID: response.CheckoutRequestID,
		ResponseCode:      response.ResponseCode,
		CustomerMessage:   response.CustomerMessage,
	}, nil
}

// QueryStatus polls the provider for the outcome of a push attempt.
func (c *MpesaClient) QueryStatus(ctx context.Context, checkoutRequestID string) (*domain.STKStatusResult, error) {
	token, err := c.requestToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("status query auth failed: %w", err)
	}

	timestamp := c.timestamp()
	payload := map[string]any{
		"BusinessShortCode": c.shortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var response struct {
		ResultCode json.Number `json:"ResultCode"`
		ResultDesc string      `json:"ResultDesc"`
	}
	if err := c.postJSON(ctx, "/mpesa/stkpushquery/v1/query", token, payload, &response); err != nil {
		return nil, fmt.Errorf("status query failed: %w", err)
	}

	code, err := strconv.Atoi(response.ResultCode.String())
	if err != nil {
		return nil, fmt.Errorf("unparseable result code %q: %w", response.ResultCode.String(), err)
	}

	return &domain.STKStatusResult{
		ResultCode: code,
		ResultDesc: response.ResultDesc,
	}, nil
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback normalizes a Daraja webhook payload. It never fails:
// malformed input yields a failed CallbackResult so the HTTP layer can
// still acknowledge receipt (the provider retries webhooks until it gets
// a 200).
func (c *MpesaClient) ParseCallback(payload []byte) domain.CallbackResult {
	var envelope stkCallbackEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		c.logger.Warn().Err(err).Msg("Malformed M-Pesa callback payload")
		return domain.CallbackResult{
			Success:    false,
			ResultCode: -1,
			ResultDesc: "malformed callback payload",
		}
	}

	callback := envelope.Body.StkCallback
	if callback.CheckoutRequestID == "" {
		c.logger.Warn().Msg("M-Pesa callback missing checkout request id")
		return domain.CallbackResult{
			Success:    false,
			ResultCode: -1,
			ResultDesc: "callback missing checkout request id",
		}
	}

	code, err := strconv.Atoi(callback.ResultCode.String())
	if err != nil {
		code = -1
	}

	result := domain.CallbackResult{
		CheckoutRequestID: callback.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        callback.ResultDesc,
	}

	if code != 0 {
		return result
	}

	result.Success = true
	for _, item := range callback.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if amount, err := decimal.NewFromString(fmt.Sprintf("%v", item.Value)); err == nil {
				result.Amount = amount
			}
		case "MpesaReceiptNumber":
			result.MpesaReceiptID = fmt.Sprintf("%v", item.Value)
		case "PhoneNumber":
			result.Phone = fmt.Sprintf("%v", item.Value)
		}
	}

	return result
}

// postJSON sends an authenticated request with retries on transport and
// 5xx failures. 4xx responses are returned immediately.
func (c *MpesaClient) postJSON(ctx context.Context, endpoint, token string, body, response any) error {
	fullURL := c.baseURL + endpoint

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(reqBody))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", fullURL).Msg("Daraja request failed, retrying")
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
				continue
			}
			if response != nil {
				if err := json.Unmarshal(respBody, response); err != nil {
					lastErr = fmt.Errorf("failed to unmarshal response: %w", err)
					continue
				}
			}
			return nil
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(respBody))
			c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Str("url", fullURL).Msg("Daraja server error, retrying")
			continue
		}

		return fmt.Errorf("client error (status %d): %s", resp.StatusCode, string(respBody))
	}

	c.logger.Error().Err(lastErr).Str("url", fullURL).Int("max_retries", c.maxRetries).Msg("Daraja request failed after all retries")
	return fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr)
}
