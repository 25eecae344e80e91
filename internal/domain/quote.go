package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateSnapshot is a point-in-time view of the two conversion legs.
// Snapshots are immutable; a refresh produces a new one.
type RateSnapshot struct {
	WLDToUSD   decimal.Decimal `json:"wld_to_usd"`
	USDToKES   decimal.Decimal `json:"usd_to_kes"`
	WLDToKES   decimal.Decimal `json:"wld_to_kes"`
	FetchedAt  time.Time       `json:"fetched_at"`
	ValidUntil time.Time       `json:"valid_until"`
}

func (s RateSnapshot) Expired(now time.Time) bool {
	return !now.Before(s.ValidUntil)
}

// Quote locks in the conversion math for one withdrawal.
type Quote struct {
	SourceAmount      decimal.Decimal `json:"source_amount"`
	FeeRate           decimal.Decimal `json:"fee_rate"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
	NetSourceAmount   decimal.Decimal `json:"net_source_amount"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`
	DestinationAmount decimal.Decimal `json:"destination_amount"`
	ComputedAt        time.Time       `json:"computed_at"`
}
