// Package quote computes withdrawal quotes. Pure decimal arithmetic, no
// I/O; identical inputs always produce identical output.
package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

// Fee and net amounts are carried at 4 decimal places of WLD; the KES
// payout is rounded to whole shillings because the gateway rejects
// fractional units.
const sourcePrecision = 4

type Calculator struct {
	feeRate decimal.Decimal
	now     func() time.Time
}

func NewCalculator(feeRate decimal.Decimal) *Calculator {
	return &Calculator{
		feeRate: feeRate,
		now:     time.Now,
	}
}

func (c *Calculator) FeeRate() decimal.Decimal {
	return c.feeRate
}

// Quote derives fee, net and payout amounts from a source amount and a
// rate snapshot. The net amount is source minus the rounded fee, so
// fee + net always reconstructs the source exactly.
func (c *Calculator) Quote(sourceAmount decimal.Decimal, snapshot domain.RateSnapshot) (domain.Quote, error) {
	if !sourceAmount.IsPositive() {
		return domain.Quote{}, domain.ErrInvalidAmount
	}

	feeAmount := sourceAmount.Mul(c.feeRate).Round(sourcePrecision)
	netSourceAmount := sourceAmount.Sub(feeAmount)
	destinationAmount := netSourceAmount.Mul(snapshot.WLDToKES).Round(0)

	return domain.Quote{
		SourceAmount:      sourceAmount,
		FeeRate:           c.feeRate,
		FeeAmount:         feeAmount,
		NetSourceAmount:   netSourceAmount,
		ExchangeRate:      snapshot.WLDToKES,
		DestinationAmount: destinationAmount,
		ComputedAt:        c.now(),
	}, nil
}
