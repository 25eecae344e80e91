package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

// CoinGeckoClient fetches the WLD/USD leg from the CoinGecko simple-price
// endpoint.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	config     *config.RatesConfig
	logger     zerolog.Logger
}

func NewCoinGeckoClient(cfg *config.RatesConfig, logger zerolog.Logger) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: cfg.CoinGeckoBaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		config: cfg,
		logger: logger.With().Str("component", "coingecko_client").Logger(),
	}
}

func (c *CoinGeckoClient) WLDToUSD(ctx context.Context) (decimal.Decimal, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = "/api/v3/simple/price"
	q := u.Query()
	q.Set("ids", "worldcoin")
	q.Set("vs_currencies", "usd")
	u.RawQuery = q.Encode()

	body, err := fetchWithRetry(ctx, c.httpClient, u.String(), c.config.MaxRetries, c.config.RetryBackoffBase, c.logger)
	if err != nil {
		return decimal.Zero, err
	}

	var response map[string]struct {
		USD json.Number `json:"usd"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return decimal.Zero, fmt.Errorf("parsing JSON response failed: %w", err)
	}

	asset, ok := response["worldcoin"]
	if !ok {
		return decimal.Zero, fmt.Errorf("worldcoin price missing from response")
	}

	price, err := decimal.NewFromString(asset.USD.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price format: %w", err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive WLD price %s", price)
	}

	return price, nil
}

// ForexClient fetches the USD/KES leg from the open.er-api latest-rates
// endpoint.
type ForexClient struct {
	baseURL    string
	httpClient *http.Client
	config     *config.RatesConfig
	logger     zerolog.Logger
}

func NewForexClient(cfg *config.RatesConfig, logger zerolog.Logger) *ForexClient {
	return &ForexClient{
		baseURL: cfg.ForexBaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		config: cfg,
		logger: logger.With().Str("component", "forex_client").Logger(),
	}
}

func (c *ForexClient) USDToKES(ctx context.Context) (decimal.Decimal, error) {
	body, err := fetchWithRetry(ctx, c.httpClient, c.baseURL+"/USD", c.config.MaxRetries, c.config.RetryBackoffBase, c.logger)
	if err != nil {
		return decimal.Zero, err
	}

	var response struct {
		Rates map[string]json.Number `json:"rates"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return decimal.Zero, fmt.Errorf("parsing JSON response failed: %w", err)
	}

	raw, ok := response.Rates["KES"]
	if !ok {
		return decimal.Zero, fmt.Errorf("KES rate missing from response")
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate format: %w", err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive KES rate %s", rate)
	}

	return rate, nil
}

func fetchWithRetry(ctx context.Context, client *http.Client, rawURL string, maxRetries, backoffBase int, logger zerolog.Logger) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt, backoffBase)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request failed: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", rawURL).Msg("Rate fetch failed, retrying")
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				lastErr = fmt.Errorf("reading response body failed: %w", readErr)
				continue
			}
			return body, nil
		}

		lastErr = fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
		if !shouldRetryStatusCode(resp.StatusCode) {
			return nil, lastErr
		}
		logger.Warn().Int("status_code", resp.StatusCode).Int("attempt", attempt+1).Msg("Received retryable status, retrying")
	}

	return nil, lastErr
}

func shouldRetryStatusCode(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

func calculateBackoff(attempt, base int) time.Duration {
	if base <= 0 {
		base = 2
	}
	backoff := time.Duration(base*(1<<(attempt-1))) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
