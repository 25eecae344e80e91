package withdrawal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/quote"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/rates"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/ledgerrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/withdrawalrepo"
)

type stubWallet struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (w *stubWallet) IsAvailable(ctx context.Context) bool { return true }

func (w *stubWallet) InitiateTransfer(ctx context.Context, amount decimal.Decimal, recipient string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return "", w.err
	}
	return "wallet_tx_1", nil
}

type stubGateway struct {
	mu        sync.Mutex
	pushCalls int
	pushErr   error
	status    *domain.STKStatusResult
	statusErr error
}

func (g *stubGateway) InitiateSTKPush(ctx context.Context, phone string, amount decimal.Decimal, reference, description string) (*domain.STKPushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushCalls++
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	return &domain.STKPushResult{
		CheckoutRequestID: "ws_CO_1",
		ResponseCode:      "0",
		CustomerMessage:   "push sent",
	}, nil
}

func (g *stubGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*domain.STKStatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.status, nil
}

type fixedCrypto struct{}

func (fixedCrypto) WLDToUSD(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(5), nil
}

type fixedFiat struct{}

func (fixedFiat) USDToKES(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(600), nil
}

func newTestOrchestrator(walletClient *stubWallet, gateway *stubGateway) (*Orchestrator, *ledgerrepo.MemoryRepository) {
	provider := rates.NewProvider(fixedCrypto{}, fixedFiat{}, rates.NewMemoryCache(), 5*time.Minute, zerolog.Nop())
	calculator := quote.NewCalculator(decimal.NewFromFloat(0.01))
	ledger := ledgerrepo.NewMemoryRepository()

	orchestrator := NewOrchestrator(
		withdrawalrepo.NewMemoryRepository(),
		ledger,
		walletClient,
		gateway,
		provider,
		calculator,
		nil,
		"0xcustody",
		2*time.Minute,
		zerolog.Nop(),
	)
	return orchestrator, ledger
}

func withdrawalEntries(t *testing.T, ledger *ledgerrepo.MemoryRepository, userID string) (withdrawals, statuses int) {
	t.Helper()
	entries, err := ledger.ListEntries(context.Background(), userID, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		switch entry.Type {
		case domain.LedgerEntryWithdrawal:
			withdrawals++
		case domain.LedgerEntryStatusUpdate:
			statuses++
		}
	}
	return withdrawals, statuses
}

func TestCreateLocksQuoteAndNormalizesPhone(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(&stubWallet{}, &stubGateway{})

	created, err := orchestrator.Create(context.Background(), "user1", decimal.NewFromInt(10), "0712345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.State != domain.WithdrawalStateDraft {
		t.Errorf("state = %s, want DRAFT", created.State)
	}
	if created.DestinationPhone != "254712345678" {
		t.Errorf("phone = %s, want 254712345678", created.DestinationPhone)
	}
	if !created.Quote.DestinationAmount.Equal(decimal.NewFromInt(29700)) {
		t.Errorf("destination = %s, want 29700", created.Quote.DestinationAmount)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(&stubWallet{}, &stubGateway{})
	ctx := context.Background()

	if _, err := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "12345"); !errors.Is(err, domain.ErrInvalidPhone) {
		t.Errorf("invalid phone error = %v, want ErrInvalidPhone", err)
	}
	if _, err := orchestrator.Create(ctx, "user1", decimal.Zero, "0712345678"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount error = %v, want ErrInvalidAmount", err)
	}
}

func TestHappyPathSettlesViaCallback(t *testing.T) {
	walletClient := &stubWallet{}
	gateway := &stubGateway{}
	orchestrator, ledger := newTestOrchestrator(walletClient, gateway)
	ctx := context.Background()

	created, err := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	if err != nil {
		t.Fatal(err)
	}

	afterWallet, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if afterWallet.State != domain.WithdrawalStateWalletConfirmed {
		t.Fatalf("state after wallet = %s, want WALLET_CONFIRMED", afterWallet.State)
	}
	if afterWallet.WalletTxRef != "wallet_tx_1" {
		t.Errorf("wallet tx ref = %q", afterWallet.WalletTxRef)
	}

	afterPush, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if afterPush.State != domain.WithdrawalStateGatewayPending {
		t.Fatalf("state after push = %s, want GATEWAY_PENDING", afterPush.State)
	}
	if afterPush.GatewayCheckoutRef != "ws_CO_1" {
		t.Errorf("checkout ref = %q", afterPush.GatewayCheckoutRef)
	}

	orchestrator.HandleCallback(ctx, domain.CallbackResult{
		Success:           true,
		CheckoutRequestID: "ws_CO_1",
		MpesaReceiptID:    "QK12345",
	})

	settled, err := orchestrator.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if settled.State != domain.WithdrawalStateSettled {
		t.Fatalf("state after callback = %s, want SETTLED", settled.State)
	}

	balance, err := ledger.GetBalance(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Amount.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("balance = %s, want -10", balance.Amount)
	}

	// A redelivered callback must observe the terminal state and no-op.
	orchestrator.HandleCallback(ctx, domain.CallbackResult{
		Success:           true,
		CheckoutRequestID: "ws_CO_1",
	})

	withdrawals, _ := withdrawalEntries(t, ledger, "user1")
	if withdrawals != 1 {
		t.Errorf("withdrawal ledger entries = %d, want exactly 1", withdrawals)
	}
	balance, _ = ledger.GetBalance(ctx, "user1")
	if !balance.Amount.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("balance after duplicate callback = %s, want -10", balance.Amount)
	}
}

func TestAmbiguousWalletOutcomeStaysPendingWithoutRetry(t *testing.T) {
	walletClient := &stubWallet{err: &domain.WalletAmbiguousError{Reason: "relay timeout"}}
	orchestrator, _ := newTestOrchestrator(walletClient, &stubGateway{})
	ctx := context.Background()

	created, err := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	if err != nil {
		t.Fatal(err)
	}

	first, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.State != domain.WithdrawalStateWalletPending {
		t.Fatalf("state = %s, want WALLET_PENDING", first.State)
	}

	second, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.State != domain.WithdrawalStateWalletPending {
		t.Errorf("state = %s, want WALLET_PENDING", second.State)
	}
	if walletClient.calls != 1 {
		t.Errorf("wallet calls = %d, the transfer must never be re-attempted", walletClient.calls)
	}
}

func TestWalletRejectionFailsCleanly(t *testing.T) {
	walletClient := &stubWallet{err: &domain.WalletTransferError{Reason: "insufficient balance"}}
	orchestrator, ledger := newTestOrchestrator(walletClient, &stubGateway{})
	ctx := context.Background()

	created, err := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	if err != nil {
		t.Fatal(err)
	}

	failed, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if failed.State != domain.WithdrawalStateWalletFailed {
		t.Fatalf("state = %s, want WALLET_FAILED", failed.State)
	}
	if failed.RequiresReconciliation {
		t.Error("clean wallet rejection must not require reconciliation")
	}

	balance, _ := ledger.GetBalance(ctx, "user1")
	if !balance.Amount.IsZero() {
		t.Errorf("balance = %s, want 0 after clean rejection", balance.Amount)
	}
	withdrawals, statuses := withdrawalEntries(t, ledger, "user1")
	if withdrawals != 0 || statuses != 1 {
		t.Errorf("ledger entries = %d withdrawals, %d statuses; want 0 and 1", withdrawals, statuses)
	}
}

func TestGatewayRejectionAfterWalletDebitFlagsReconciliation(t *testing.T) {
	gateway := &stubGateway{pushErr: &domain.GatewayInitiationError{Code: "1", Message: "invalid initiator"}}
	orchestrator, ledger := newTestOrchestrator(&stubWallet{}, gateway)
	ctx := context.Background()

	created, err := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := orchestrator.Advance(ctx, created.ID); err != nil {
		t.Fatal(err)
	}

	rejected, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rejected.State != domain.WithdrawalStateGatewayRejected {
		t.Fatalf("state = %s, want GATEWAY_REJECTED", rejected.State)
	}
	if !rejected.RequiresReconciliation {
		t.Error("rejection after wallet debit must require reconciliation")
	}

	// The wallet debit happened externally; the internal balance is only
	// touched on settlement.
	balance, _ := ledger.GetBalance(ctx, "user1")
	if !balance.Amount.IsZero() {
		t.Errorf("balance = %s, want 0 without settlement", balance.Amount)
	}
}

func TestStatusPollSettles(t *testing.T) {
	gateway := &stubGateway{status: &domain.STKStatusResult{ResultCode: 0, ResultDesc: "processed successfully"}}
	orchestrator, ledger := newTestOrchestrator(&stubWallet{}, gateway)
	ctx := context.Background()

	created, _ := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	orchestrator.Advance(ctx, created.ID)
	orchestrator.Advance(ctx, created.ID)

	settled, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if settled.State != domain.WithdrawalStateSettled {
		t.Fatalf("state = %s, want SETTLED", settled.State)
	}

	balance, _ := ledger.GetBalance(ctx, "user1")
	if !balance.Amount.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("balance = %s, want -10", balance.Amount)
	}
}

func TestStatusPollFailureFinalizesRejected(t *testing.T) {
	gateway := &stubGateway{status: &domain.STKStatusResult{ResultCode: 1032, ResultDesc: "cancelled by user"}}
	orchestrator, _ := newTestOrchestrator(&stubWallet{}, gateway)
	ctx := context.Background()

	created, _ := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	orchestrator.Advance(ctx, created.ID)
	orchestrator.Advance(ctx, created.ID)

	rejected, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rejected.State != domain.WithdrawalStateGatewayRejected {
		t.Fatalf("state = %s, want GATEWAY_REJECTED", rejected.State)
	}
	if !rejected.RequiresReconciliation {
		t.Error("poll rejection must require reconciliation")
	}
}

func TestInconclusivePollStaysPending(t *testing.T) {
	gateway := &stubGateway{statusErr: errors.New("transaction is being processed")}
	orchestrator, _ := newTestOrchestrator(&stubWallet{}, gateway)
	ctx := context.Background()

	created, _ := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	orchestrator.Advance(ctx, created.ID)
	orchestrator.Advance(ctx, created.ID)

	pending, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pending.State != domain.WithdrawalStateGatewayPending {
		t.Errorf("state = %s, want GATEWAY_PENDING after inconclusive poll", pending.State)
	}
}

func TestPendingTimeoutMarksUnreconciled(t *testing.T) {
	gateway := &stubGateway{statusErr: errors.New("still processing")}
	orchestrator, _ := newTestOrchestrator(&stubWallet{}, gateway)
	ctx := context.Background()

	created, _ := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	orchestrator.Advance(ctx, created.ID)
	orchestrator.Advance(ctx, created.ID)

	orchestrator.now = func() time.Time { return time.Now().Add(3 * time.Minute) }

	timedOut, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if timedOut.State != domain.WithdrawalStateTimeoutUnreconciled {
		t.Fatalf("state = %s, want GATEWAY_TIMEOUT_UNRECONCILED", timedOut.State)
	}
	if !timedOut.RequiresReconciliation {
		t.Error("timeout must require reconciliation")
	}
}

func TestSweepTimeouts(t *testing.T) {
	gateway := &stubGateway{statusErr: errors.New("still processing")}
	orchestrator, _ := newTestOrchestrator(&stubWallet{}, gateway)
	ctx := context.Background()

	created, _ := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	orchestrator.Advance(ctx, created.ID)
	orchestrator.Advance(ctx, created.ID)

	orchestrator.now = func() time.Time { return time.Now().Add(3 * time.Minute) }

	if swept := orchestrator.SweepTimeouts(ctx); swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	current, _ := orchestrator.Get(ctx, created.ID)
	if current.State != domain.WithdrawalStateTimeoutUnreconciled {
		t.Errorf("state = %s, want GATEWAY_TIMEOUT_UNRECONCILED", current.State)
	}

	if swept := orchestrator.SweepTimeouts(ctx); swept != 0 {
		t.Errorf("second sweep = %d, want 0", swept)
	}
}

func TestConcurrentFinalizeAppendsOneLedgerEntry(t *testing.T) {
	gateway := &stubGateway{status: &domain.STKStatusResult{ResultCode: 0, ResultDesc: "processed successfully"}}
	orchestrator, ledger := newTestOrchestrator(&stubWallet{}, gateway)
	ctx := context.Background()

	created, _ := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	orchestrator.Advance(ctx, created.ID)
	orchestrator.Advance(ctx, created.ID)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orchestrator.HandleCallback(ctx, domain.CallbackResult{
				Success:           true,
				CheckoutRequestID: "ws_CO_1",
			})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			orchestrator.Advance(ctx, created.ID)
		}()
	}
	wg.Wait()

	current, _ := orchestrator.Get(ctx, created.ID)
	if current.State != domain.WithdrawalStateSettled {
		t.Fatalf("state = %s, want SETTLED", current.State)
	}

	withdrawals, _ := withdrawalEntries(t, ledger, "user1")
	if withdrawals != 1 {
		t.Errorf("withdrawal ledger entries = %d, want exactly 1", withdrawals)
	}
	balance, _ := ledger.GetBalance(ctx, "user1")
	if !balance.Amount.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("balance = %s, want -10", balance.Amount)
	}
}

func TestCallbackForUnknownCheckoutRefIgnored(t *testing.T) {
	orchestrator, ledger := newTestOrchestrator(&stubWallet{}, &stubGateway{})
	ctx := context.Background()

	orchestrator.HandleCallback(ctx, domain.CallbackResult{
		Success:           true,
		CheckoutRequestID: "ws_CO_unknown",
	})

	withdrawals, statuses := withdrawalEntries(t, ledger, "user1")
	if withdrawals != 0 || statuses != 0 {
		t.Errorf("unexpected ledger entries: %d withdrawals, %d statuses", withdrawals, statuses)
	}
}

func TestAdvanceOnTerminalStateIsNoop(t *testing.T) {
	walletClient := &stubWallet{}
	gateway := &stubGateway{status: &domain.STKStatusResult{ResultCode: 0, ResultDesc: "processed successfully"}}
	orchestrator, _ := newTestOrchestrator(walletClient, gateway)
	ctx := context.Background()

	created, _ := orchestrator.Create(ctx, "user1", decimal.NewFromInt(10), "0712345678")
	orchestrator.Advance(ctx, created.ID)
	orchestrator.Advance(ctx, created.ID)
	orchestrator.Advance(ctx, created.ID)

	again, err := orchestrator.Advance(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.State != domain.WithdrawalStateSettled {
		t.Errorf("state = %s, want SETTLED", again.State)
	}
	if walletClient.calls != 1 || gateway.pushCalls != 1 {
		t.Errorf("terminal advance caused side effects: wallet=%d push=%d", walletClient.calls, gateway.pushCalls)
	}
}
