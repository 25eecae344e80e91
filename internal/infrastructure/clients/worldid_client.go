package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

// WorldIDClient verifies identity proofs against the Worldcoin developer
// portal.
type WorldIDClient struct {
	baseURL    string
	appID      string
	action     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewWorldIDClient(cfg config.WorldIDConfig, logger zerolog.Logger) *WorldIDClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WorldIDClient{
		baseURL: cfg.VerifyBaseURL,
		appID:   cfg.AppID,
		action:  cfg.Action,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "worldid_client").Logger(),
	}
}

// Verify submits the proof to the verification endpoint. A 200 means the
// proof is valid; any 4xx is a definitive rejection.
func (c *WorldIDClient) Verify(ctx context.Context, proof domain.WorldIDProof) error {
	payload := map[string]string{
		"nullifier_hash":  proof.NullifierHash,
		"merkle_root":     proof.MerkleRoot,
		"proof":           proof.Proof,
		"credential_type": proof.CredentialType,
		"action":          c.action,
		"signal_hash":     proof.SignalHash,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding proof failed: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/verify/%s", c.baseURL, c.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building verify request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	var errorResp struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Detail != "" {
		return fmt.Errorf("proof rejected (%s): %s", errorResp.Code, errorResp.Detail)
	}
	return fmt.Errorf("proof rejected with status %d", resp.StatusCode)
}
