// Package withdrawal sequences the WLD -> M-Pesa money movement: wallet
// debit, STK push credit, asynchronous settlement and ledger emission.
// All state lives in the withdrawal store; the compare-and-transition
// guard there is the only concurrency control, so Advance, polls and
// callbacks can race safely.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/quote"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/application/rates"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/infrastructure/wallet"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/ledgerrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/repositories/withdrawalrepo"
	"github.com/J0E-2/Worldcoin-to-Mpesa/pkg/phone"
)

// Gateway is the slice of the M-Pesa client the orchestrator drives.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, phone string, amount decimal.Decimal, reference, description string) (*domain.STKPushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*domain.STKStatusResult, error)
}

// Notifier receives state transitions for out-of-band delivery (the
// websocket status hub). Must not block.
type Notifier interface {
	NotifyStateChange(withdrawal domain.WithdrawalRequest)
}

type IOrchestrator interface {
	Create(ctx context.Context, userID string, amount decimal.Decimal, destinationPhone string) (*domain.WithdrawalRequest, error)
	Get(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	// Advance drives one step of the flow and is safe to call repeatedly;
	// terminal withdrawals are returned unchanged.
	Advance(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	// HandleCallback finalizes from an inbound gateway webhook. Unknown or
	// already-final checkout refs are ignored.
	HandleCallback(ctx context.Context, result domain.CallbackResult)
	// SweepTimeouts moves withdrawals stuck awaiting the gateway past the
	// pending window into GATEWAY_TIMEOUT_UNRECONCILED.
	SweepTimeouts(ctx context.Context) int
}

type Orchestrator struct {
	withdrawals      withdrawalrepo.IWithdrawalRepository
	ledger           ledgerrepo.ILedgerRepository
	wallet           wallet.Client
	gateway          Gateway
	rates            *rates.Provider
	calculator       *quote.Calculator
	notifier         Notifier
	custodialAddress string
	pendingTimeout   time.Duration
	logger           zerolog.Logger

	newID func() string
	now   func() time.Time
}

func NewOrchestrator(
	withdrawals withdrawalrepo.IWithdrawalRepository,
	ledger ledgerrepo.ILedgerRepository,
	walletClient wallet.Client,
	gateway Gateway,
	rateProvider *rates.Provider,
	calculator *quote.Calculator,
	notifier Notifier,
	custodialAddress string,
	pendingTimeout time.Duration,
	logger zerolog.Logger,
) *Orchestrator {
	if pendingTimeout <= 0 {
		pendingTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		withdrawals:      withdrawals,
		ledger:           ledger,
		wallet:           walletClient,
		gateway:          gateway,
		rates:            rateProvider,
		calculator:       calculator,
		notifier:         notifier,
		custodialAddress: custodialAddress,
		pendingTimeout:   pendingTimeout,
		logger:           logger.With().Str("component", "withdrawal_orchestrator").Logger(),
		newID:            func() string { return uuid.NewString() },
		now:              time.Now,
	}
}

func (o *Orchestrator) Create(ctx context.Context, userID string, amount decimal.Decimal, destinationPhone string) (*domain.WithdrawalRequest, error) {
	msisdn, ok := phone.Normalize(destinationPhone)
	if !ok {
		return nil, domain.ErrInvalidPhone
	}

	snapshot, err := o.rates.GetRates(ctx)
	if err != nil {
		return nil, err
	}

	lockedQuote, err := o.calculator.Quote(amount, snapshot)
	if err != nil {
		return nil, err
	}

	now := o.now()
	withdrawal := &domain.WithdrawalRequest{
		ID:               o.newID(),
		UserID:           userID,
		SourceAmount:     amount.String(),
		DestinationPhone: msisdn,
		Quote:            lockedQuote,
		State:            domain.WithdrawalStateDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := o.withdrawals.Create(ctx, withdrawal); err != nil {
		return nil, fmt.Errorf("failed to store withdrawal: %w", err)
	}

	o.logger.Info().
		Str("withdrawal_id", withdrawal.ID).
		Str("amount", amount.String()).
		Str("destination_amount", lockedQuote.DestinationAmount.String()).
		Msg("Withdrawal created")

	return withdrawal, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return o.withdrawals.GetByID(ctx, id)
}

func (o *Orchestrator) Advance(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	withdrawal, err := o.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch withdrawal.State {
	case domain.WithdrawalStateDraft:
		return o.advanceDraft(ctx, withdrawal)
	case domain.WithdrawalStateWalletPending:
		// The wallet transfer outcome is unknown; only reconciliation may
		// resolve it. Never re-attempt the transfer.
		return withdrawal, nil
	case domain.WithdrawalStateWalletConfirmed:
		return o.advanceWalletConfirmed(ctx, withdrawal)
	case domain.WithdrawalStateGatewayInitiated, domain.WithdrawalStateGatewayPending:
		return o.advanceGatewayPending(ctx, withdrawal)
	default:
		// Terminal; repeated calls return the same state with no side
		// effects.
		return withdrawal, nil
	}
}

// advanceDraft performs the wallet debit. The DRAFT -> WALLET_PENDING
// claim happens before the wallet call so the transfer fires at most once
// per withdrawal, no matter how many callers race on Advance.
func (o *Orchestrator) advanceDraft(ctx context.Context, withdrawal *domain.WithdrawalRequest) (*domain.WithdrawalRequest, error) {
	claimed, err := o.transition(ctx, withdrawal.ID, domain.WithdrawalStateDraft, domain.WithdrawalStateWalletPending, func(w *domain.WithdrawalRequest) {
		w.ResultDesc = "wallet transfer in flight"
	})
	if errors.Is(err, domain.ErrStateConflict) {
		return o.withdrawals.GetByID(ctx, withdrawal.ID)
	}
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(claimed.SourceAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt source amount %q: %w", claimed.SourceAmount, err)
	}

	txRef, transferErr := o.wallet.InitiateTransfer(ctx, amount, o.custodialAddress)

	var ambiguous *domain.WalletAmbiguousError
	var rejected *domain.WalletTransferError
	switch {
	case transferErr == nil:
		return o.transition(ctx, claimed.ID, domain.WithdrawalStateWalletPending, domain.WithdrawalStateWalletConfirmed, func(w *domain.WithdrawalRequest) {
			w.WalletTxRef = txRef
			w.ResultDesc = "wallet transfer confirmed"
		})
	case errors.As(transferErr, &ambiguous):
		// Stay in WALLET_PENDING: the transfer may already have succeeded,
		// so retrying risks a double-spend.
		o.logger.Warn().
			Str("withdrawal_id", claimed.ID).
			Str("reason", ambiguous.Reason).
			Msg("Wallet transfer outcome unknown, awaiting reconciliation")
		return o.withdrawals.GetByID(ctx, claimed.ID)
	case errors.As(transferErr, &rejected):
		updated, err := o.transition(ctx, claimed.ID, domain.WithdrawalStateWalletPending, domain.WithdrawalStateWalletFailed, func(w *domain.WithdrawalRequest) {
			w.ResultDesc = rejected.Reason
		})
		if err != nil {
			return nil, err
		}
		o.appendStatusEntry(ctx, updated, "wallet transfer rejected, no funds moved")
		return updated, nil
	default:
		return nil, fmt.Errorf("wallet transfer failed: %w", transferErr)
	}
}

// advanceWalletConfirmed initiates the STK push. The wallet debit has
// already happened, so a gateway rejection here is the asymmetric failure
// case: terminal, flagged for reconciliation, balance untouched.
func (o *Orchestrator) advanceWalletConfirmed(ctx context.Context, withdrawal *domain.WithdrawalRequest) (*domain.WithdrawalRequest, error) {
	pushResult, pushErr := o.gateway.InitiateSTKPush(ctx,
		withdrawal.DestinationPhone,
		withdrawal.Quote.DestinationAmount,
		withdrawal.ID,
		"Worldcoin to M-Pesa conversion",
	)
	if pushErr != nil {
		updated, err := o.transition(ctx, withdrawal.ID, domain.WithdrawalStateWalletConfirmed, domain.WithdrawalStateGatewayRejected, func(w *domain.WithdrawalRequest) {
			w.ResultDesc = pushErr.Error()
			w.RequiresReconciliation = true
		})
		if errors.Is(err, domain.ErrStateConflict) {
			return o.withdrawals.GetByID(ctx, withdrawal.ID)
		}
		if err != nil {
			return nil, err
		}
		o.appendStatusEntry(ctx, updated, "gateway rejected push after wallet debit; reconciliation required")
		return updated, nil
	}

	initiated, err := o.transition(ctx, withdrawal.ID, domain.WithdrawalStateWalletConfirmed, domain.WithdrawalStateGatewayInitiated, func(w *domain.WithdrawalRequest) {
		w.GatewayCheckoutRef = pushResult.CheckoutRequestID
		w.ResultDesc = pushResult.CustomerMessage
	})
	if errors.Is(err, domain.ErrStateConflict) {
		return o.withdrawals.GetByID(ctx, withdrawal.ID)
	}
	if err != nil {
		return nil, err
	}

	pending, err := o.transition(ctx, initiated.ID, domain.WithdrawalStateGatewayInitiated, domain.WithdrawalStateGatewayPending, nil)
	if errors.Is(err, domain.ErrStateConflict) {
		// A callback beat us to finalization.
		return o.withdrawals.GetByID(ctx, initiated.ID)
	}
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// advanceGatewayPending polls the gateway, honoring the timeout window.
func (o *Orchestrator) advanceGatewayPending(ctx context.Context, withdrawal *domain.WithdrawalRequest) (*domain.WithdrawalRequest, error) {
	if o.now().Sub(withdrawal.UpdatedAt) > o.pendingTimeout {
		return o.timeOut(ctx, withdrawal)
	}

	status, err := o.gateway.QueryStatus(ctx, withdrawal.GatewayCheckoutRef)
	if err != nil {
		// The provider often rejects status queries while the push is still
		// being processed. Not definitive either way; stay pending.
		o.logger.Debug().Err(err).
			Str("withdrawal_id", withdrawal.ID).
			Msg("Status poll inconclusive")
		return withdrawal, nil
	}

	if status.Settled() {
		return o.finalizeSuccess(ctx, withdrawal.ID, "payout confirmed by status query")
	}
	return o.finalizeRejected(ctx, withdrawal.ID, status.ResultCode, status.ResultDesc)
}

func (o *Orchestrator) HandleCallback(ctx context.Context, result domain.CallbackResult) {
	if result.CheckoutRequestID == "" {
		o.logger.Warn().Msg("Callback without checkout ref ignored")
		return
	}

	withdrawal, err := o.withdrawals.GetByCheckoutRef(ctx, result.CheckoutRequestID)
	if err != nil {
		o.logger.Warn().Err(err).
			Str("checkout_ref", result.CheckoutRequestID).
			Msg("Callback for unknown checkout ref ignored")
		return
	}

	if result.Success {
		desc := "payout confirmed by callback"
		if result.MpesaReceiptID != "" {
			desc = fmt.Sprintf("payout confirmed by callback, receipt %s", result.MpesaReceiptID)
		}
		if _, err := o.finalizeSuccess(ctx, withdrawal.ID, desc); err != nil {
			o.logger.Error().Err(err).Str("withdrawal_id", withdrawal.ID).Msg("Callback finalize failed")
		}
		return
	}

	if _, err := o.finalizeRejected(ctx, withdrawal.ID, result.ResultCode, result.ResultDesc); err != nil {
		o.logger.Error().Err(err).Str("withdrawal_id", withdrawal.ID).Msg("Callback finalize failed")
	}
}

// finalizeSuccess settles the withdrawal from whichever awaiting state it
// is in. Only the first definitive signal wins: a second finalize finds a
// terminal state, gets ErrStateConflict and no-ops, so the ledger entry
// is appended exactly once.
func (o *Orchestrator) finalizeSuccess(ctx context.Context, id, description string) (*domain.WithdrawalRequest, error) {
	settled, err := o.finalize(ctx, id, domain.WithdrawalStateSettled, func(w *domain.WithdrawalRequest) {
		w.ResultDesc = description
	})
	if err != nil {
		return nil, err
	}
	if settled == nil {
		return o.withdrawals.GetByID(ctx, id)
	}

	sourceAmount, err := decimal.NewFromString(settled.SourceAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt source amount %q: %w", settled.SourceAmount, err)
	}

	entry := domain.LedgerEntry{
		ID:                o.newID(),
		UserID:            settled.UserID,
		WithdrawalID:      settled.ID,
		Type:              domain.LedgerEntryWithdrawal,
		SourceAmount:      sourceAmount,
		DestinationAmount: settled.Quote.DestinationAmount,
		Description:       description,
		CreatedAt:         o.now(),
	}
	if err := o.ledger.AppendEntry(ctx, entry, sourceAmount.Neg()); err != nil {
		// The payout happened but the ledger write failed; this needs an
		// operator, not a retry that could double-debit.
		o.logger.Error().Err(err).
			Str("withdrawal_id", settled.ID).
			Msg("Ledger append failed after settlement")
		return settled, fmt.Errorf("ledger append failed: %w", err)
	}

	o.logger.Info().
		Str("withdrawal_id", settled.ID).
		Str("source_amount", settled.SourceAmount).
		Str("destination_amount", settled.Quote.DestinationAmount.String()).
		Msg("Withdrawal settled")

	return settled, nil
}

func (o *Orchestrator) finalizeRejected(ctx context.Context, id string, resultCode int, resultDesc string) (*domain.WithdrawalRequest, error) {
	rejected, err := o.finalize(ctx, id, domain.WithdrawalStateGatewayRejected, func(w *domain.WithdrawalRequest) {
		w.ResultDesc = fmt.Sprintf("gateway result %d: %s", resultCode, resultDesc)
		// The wallet debit already happened by the time a push can fail.
		w.RequiresReconciliation = true
	})
	if err != nil {
		return nil, err
	}
	if rejected == nil {
		return o.withdrawals.GetByID(ctx, id)
	}
	o.appendStatusEntry(ctx, rejected, rejected.ResultDesc)
	return rejected, nil
}

// finalize attempts the compare-and-transition out of either awaiting
// state. Returns (nil, nil) when the withdrawal was already finalized by
// a concurrent signal.
func (o *Orchestrator) finalize(ctx context.Context, id string, to domain.WithdrawalState, mutate withdrawalrepo.Mutator) (*domain.WithdrawalRequest, error) {
	for _, from := range []domain.WithdrawalState{domain.WithdrawalStateGatewayPending, domain.WithdrawalStateGatewayInitiated} {
		updated, err := o.transition(ctx, id, from, to, mutate)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, domain.ErrStateConflict) {
			return nil, err
		}
	}

	current, err := o.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.State.Terminal() {
		o.logger.Debug().
			Str("withdrawal_id", id).
			Str("state", string(current.State)).
			Msg("Duplicate finalize signal ignored")
		return nil, nil
	}
	return nil, domain.ErrStateConflict
}

func (o *Orchestrator) timeOut(ctx context.Context, withdrawal *domain.WithdrawalRequest) (*domain.WithdrawalRequest, error) {
	timedOut, err := o.finalize(ctx, withdrawal.ID, domain.WithdrawalStateTimeoutUnreconciled, func(w *domain.WithdrawalRequest) {
		w.ResultDesc = "no gateway confirmation within the pending window"
		w.RequiresReconciliation = true
	})
	if err != nil {
		return nil, err
	}
	if timedOut == nil {
		return o.withdrawals.GetByID(ctx, withdrawal.ID)
	}

	o.logger.Warn().
		Str("withdrawal_id", timedOut.ID).
		Msg("Withdrawal timed out awaiting gateway; operator intervention required")
	o.appendStatusEntry(ctx, timedOut, "gateway confirmation timed out; reconciliation required")
	return timedOut, nil
}

func (o *Orchestrator) SweepTimeouts(ctx context.Context) int {
	cutoff := o.now().Add(-o.pendingTimeout)
	swept := 0
	for _, state := range []domain.WithdrawalState{domain.WithdrawalStateGatewayPending, domain.WithdrawalStateGatewayInitiated} {
		stuck, err := o.withdrawals.ListStuck(ctx, state, cutoff)
		if err != nil {
			o.logger.Error().Err(err).Msg("Timeout sweep list failed")
			continue
		}
		for i := range stuck {
			if _, err := o.timeOut(ctx, &stuck[i]); err != nil {
				o.logger.Error().Err(err).Str("withdrawal_id", stuck[i].ID).Msg("Timeout sweep transition failed")
				continue
			}
			swept++
		}
	}
	return swept
}

// RunTimeoutSweeper periodically sweeps stuck withdrawals until the
// context is cancelled.
func (o *Orchestrator) RunTimeoutSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := o.SweepTimeouts(ctx); swept > 0 {
				o.logger.Info().Int("count", swept).Msg("Swept timed-out withdrawals")
			}
		}
	}
}

// transition wraps the store's guard with transition logging and notifier
// fan-out.
func (o *Orchestrator) transition(ctx context.Context, id string, from, to domain.WithdrawalState, mutate withdrawalrepo.Mutator) (*domain.WithdrawalRequest, error) {
	updated, err := o.withdrawals.Transition(ctx, id, from, to, mutate)
	if err != nil {
		var violation *domain.InvariantViolationError
		if errors.As(err, &violation) {
			o.logger.Error().
				Str("withdrawal_id", id).
				Str("from", string(from)).
				Str("to", string(to)).
				Msg("State machine invariant violated")
		}
		return updated, err
	}

	o.logger.Info().
		Str("withdrawal_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Withdrawal state transition")

	if o.notifier != nil {
		o.notifier.NotifyStateChange(*updated)
	}
	return updated, nil
}

// appendStatusEntry records a zero-delta ledger entry so terminal
// outcomes are retained in the append-only log.
func (o *Orchestrator) appendStatusEntry(ctx context.Context, withdrawal *domain.WithdrawalRequest, description string) {
	entry := domain.LedgerEntry{
		ID:           o.newID(),
		UserID:       withdrawal.UserID,
		WithdrawalID: withdrawal.ID,
		Type:         domain.LedgerEntryStatusUpdate,
		Description:  description,
		CreatedAt:    o.now(),
	}
	if err := o.ledger.AppendEntry(ctx, entry, decimal.Zero); err != nil {
		o.logger.Error().Err(err).
			Str("withdrawal_id", withdrawal.ID).
			Msg("Failed to append status ledger entry")
	}
}
