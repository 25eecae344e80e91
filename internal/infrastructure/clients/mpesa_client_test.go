package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

func newTestMpesaClient(baseURL string) *MpesaClient {
	return NewMpesaClient(config.MpesaConfig{
		BaseURL:        baseURL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/v1/mpesa/callback",
		Timeout:        5,
		MaxRetries:     0,
	}, zerolog.Nop())
}

func TestInitiateSTKPushRejectsFractionalAmount(t *testing.T) {
	client := newTestMpesaClient("http://unused")

	_, err := client.InitiateSTKPush(context.Background(), "254712345678", decimal.NewFromFloat(100.5), "ref", "desc")

	var initErr *domain.GatewayInitiationError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, want GatewayInitiationError", err)
	}
	if initErr.Code != "fractional_amount" {
		t.Errorf("code = %q, want fractional_amount", initErr.Code)
	}
}

func TestInitiateSTKPushCachesToken(t *testing.T) {
	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			tokenCalls++
			json.NewEncoder(w).Encode(map[string]string{
				"access_token": "token-1",
				"expires_in":   "3599",
			})
		case "/mpesa/stkpush/v1/processrequest":
			if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
				t.Errorf("Authorization = %q, want Bearer token-1", got)
			}
			json.NewEncoder(w).Encode(map[string]string{
				"CheckoutRequestID": "ws_CO_1",
				"ResponseCode":      "0",
				"CustomerMessage":   "Success. Request accepted for processing",
			})
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestMpesaClient(srv.URL)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := client.InitiateSTKPush(ctx, "254712345678", decimal.NewFromInt(29700), "ref", "desc")
		if err != nil {
			t.Fatalf("push %d: %v", i+1, err)
		}
		if result.CheckoutRequestID != "ws_CO_1" {
			t.Errorf("checkout ref = %q", result.CheckoutRequestID)
		}
	}

	if tokenCalls != 1 {
		t.Errorf("token endpoint hit %d times, want 1", tokenCalls)
	}
}

func TestInitiateSTKPushNonZeroResponseCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			json.NewEncoder(w).Encode(map[string]string{"access_token": "token-1", "expires_in": "3599"})
		default:
			json.NewEncoder(w).Encode(map[string]string{
				"ResponseCode":        "1",
				"ResponseDescription": "Invalid initiator information",
			})
		}
	}))
	defer srv.Close()

	client := newTestMpesaClient(srv.URL)

	_, err := client.InitiateSTKPush(context.Background(), "254712345678", decimal.NewFromInt(100), "ref", "desc")

	var initErr *domain.GatewayInitiationError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, want GatewayInitiationError", err)
	}
	if initErr.Code != "1" {
		t.Errorf("code = %q, want 1", initErr.Code)
	}
}

func TestQueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			json.NewEncoder(w).Encode(map[string]string{"access_token": "token-1", "expires_in": "3599"})
		case "/mpesa/stkpushquery/v1/query":
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			if req["CheckoutRequestID"] != "ws_CO_1" {
				t.Errorf("CheckoutRequestID = %v", req["CheckoutRequestID"])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"ResultCode": "0",
				"ResultDesc": "The service request is processed successfully.",
			})
		}
	}))
	defer srv.Close()

	client := newTestMpesaClient(srv.URL)

	status, err := client.QueryStatus(context.Background(), "ws_CO_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Settled() {
		t.Errorf("status %+v should report settled", status)
	}
}

func TestParseCallbackSuccess(t *testing.T) {
	payload := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 29700},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`)

	client := newTestMpesaClient("http://unused")
	result := client.ParseCallback(payload)

	if !result.Success {
		t.Fatal("expected success")
	}
	if result.CheckoutRequestID != "ws_CO_1" {
		t.Errorf("checkout ref = %q", result.CheckoutRequestID)
	}
	if !result.Amount.Equal(decimal.NewFromInt(29700)) {
		t.Errorf("amount = %s, want 29700", result.Amount)
	}
	if result.MpesaReceiptID != "NLJ7RT61SV" {
		t.Errorf("receipt = %q", result.MpesaReceiptID)
	}
}

func TestParseCallbackFailure(t *testing.T) {
	payload := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user."
			}
		}
	}`)

	client := newTestMpesaClient("http://unused")
	result := client.ParseCallback(payload)

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ResultCode != 1032 {
		t.Errorf("result code = %d, want 1032", result.ResultCode)
	}
	if result.CheckoutRequestID != "ws_CO_1" {
		t.Errorf("checkout ref = %q", result.CheckoutRequestID)
	}
}

func TestParseCallbackMalformed(t *testing.T) {
	client := newTestMpesaClient("http://unused")

	for _, payload := range [][]byte{
		[]byte(`not json at all`),
		[]byte(`{}`),
		[]byte(`{"Body":{}}`),
		[]byte(``),
		[]byte(`{"Body":{"stkCallback":{"ResultCode":"garbage"}}}`),
	} {
		result := client.ParseCallback(payload)
		if result.Success {
			t.Errorf("payload %q parsed as success", payload)
		}
	}
}
