package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/infrastructure/clients"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/config"
)

type recordingOrchestrator struct {
	callbacks []domain.CallbackResult
}

func (r *recordingOrchestrator) Create(ctx context.Context, userID string, amount decimal.Decimal, destinationPhone string) (*domain.WithdrawalRequest, error) {
	return nil, nil
}

func (r *recordingOrchestrator) Get(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return nil, domain.ErrWithdrawalNotFound
}

func (r *recordingOrchestrator) Advance(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return nil, domain.ErrWithdrawalNotFound
}

func (r *recordingOrchestrator) HandleCallback(ctx context.Context, result domain.CallbackResult) {
	r.callbacks = append(r.callbacks, result)
}

func (r *recordingOrchestrator) SweepTimeouts(ctx context.Context) int { return 0 }

func newCallbackRouter(orchestrator *recordingOrchestrator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	mpesa := clients.NewMpesaClient(config.MpesaConfig{BaseURL: "http://unused"}, zerolog.Nop())
	handler := NewCallbackHandler(mpesa, orchestrator, zerolog.Nop())

	router := gin.New()
	router.POST("/v1/mpesa/callback", handler.HandleMpesaCallback)
	return router
}

func TestCallbackAcknowledgedAndDispatched(t *testing.T) {
	orchestrator := &recordingOrchestrator{}
	router := newCallbackRouter(orchestrator)

	payload := []byte(`{
		"Body": {
			"stkCallback": {
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"}]
				}
			}
		}
	}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mpesa/callback", bytes.NewReader(payload))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(orchestrator.callbacks) != 1 {
		t.Fatalf("callbacks dispatched = %d, want 1", len(orchestrator.callbacks))
	}
	if !orchestrator.callbacks[0].Success || orchestrator.callbacks[0].CheckoutRequestID != "ws_CO_1" {
		t.Errorf("dispatched callback = %+v", orchestrator.callbacks[0])
	}
}

func TestMalformedCallbackStillAcknowledged(t *testing.T) {
	orchestrator := &recordingOrchestrator{}
	router := newCallbackRouter(orchestrator)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mpesa/callback", bytes.NewReader([]byte("not json")))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, malformed callbacks must still be acknowledged", w.Code)
	}
}
