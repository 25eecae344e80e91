// Package rates serves conversion rate snapshots with a bounded-staleness
// cache: fresh snapshots are served without network calls, fetch failures
// fall back to the last known snapshot, and only a first-ever failure with
// an empty cache is an error.
package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

type CryptoRateSource interface {
	WLDToUSD(ctx context.Context) (decimal.Decimal, error)
}

type FiatRateSource interface {
	USDToKES(ctx context.Context) (decimal.Decimal, error)
}

// Cache holds the single process-wide snapshot slot. Writes are whole
// snapshot swaps, so last-write-wins is safe.
type Cache interface {
	Get() (domain.RateSnapshot, bool)
	Put(snapshot domain.RateSnapshot)
}

type Provider struct {
	crypto CryptoRateSource
	fiat   FiatRateSource
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

func NewProvider(crypto CryptoRateSource, fiat FiatRateSource, cache Cache, ttl time.Duration, logger zerolog.Logger) *Provider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Provider{
		crypto: crypto,
		fiat:   fiat,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "rate_provider").Logger(),
		now:    time.Now,
	}
}

// GetRates returns the current snapshot, fetching both legs concurrently
// when the cached one has expired. A stale snapshot is returned as a
// degraded fallback whenever a refresh fails; callers can detect this via
// snapshot.Expired.
func (p *Provider) GetRates(ctx context.Context) (domain.RateSnapshot, error) {
	now := p.now()

	if cached, ok := p.cache.Get(); ok && !cached.Expired(now) {
		return cached, nil
	}

	snapshot, err := p.fetch(ctx, now)
	if err == nil {
		p.cache.Put(snapshot)
		return snapshot, nil
	}

	if cached, ok := p.cache.Get(); ok {
		p.logger.Warn().Err(err).
			Time("fetched_at", cached.FetchedAt).
			Msg("Rate refresh failed, serving stale snapshot")
		return cached, nil
	}

	p.logger.Error().Err(err).Msg("Rate fetch failed with empty cache")
	return domain.RateSnapshot{}, fmt.Errorf("%w: %v", domain.ErrRateUnavailable, err)
}

func (p *Provider) fetch(ctx context.Context, now time.Time) (domain.RateSnapshot, error) {
	type legResult struct {
		rate decimal.Decimal
		err  error
	}

	cryptoCh := make(chan legResult, 1)
	fiatCh := make(chan legResult, 1)

	go func() {
		rate, err := p.crypto.WLDToUSD(ctx)
		cryptoCh <- legResult{rate, err}
	}()
	go func() {
		rate, err := p.fiat.USDToKES(ctx)
		fiatCh <- legResult{rate, err}
	}()

	cryptoLeg := <-cryptoCh
	fiatLeg := <-fiatCh

	if cryptoLeg.err != nil {
		return domain.RateSnapshot{}, fmt.Errorf("WLD/USD leg: %w", cryptoLeg.err)
	}
	if fiatLeg.err != nil {
		return domain.RateSnapshot{}, fmt.Errorf("USD/KES leg: %w", fiatLeg.err)
	}

	return domain.RateSnapshot{
		WLDToUSD:   cryptoLeg.rate,
		USDToKES:   fiatLeg.rate,
		WLDToKES:   cryptoLeg.rate.Mul(fiatLeg.rate),
		FetchedAt:  now,
		ValidUntil: now.Add(p.ttl),
	}, nil
}
