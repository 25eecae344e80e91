package quote

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

func testSnapshot() domain.RateSnapshot {
	return domain.RateSnapshot{
		WLDToUSD: decimal.NewFromInt(5),
		USDToKES: decimal.NewFromInt(600),
		WLDToKES: decimal.NewFromInt(3000),
	}
}

func TestQuoteBreakdown(t *testing.T) {
	calc := NewCalculator(decimal.NewFromFloat(0.01))

	q, err := calc.Quote(decimal.NewFromInt(10), testSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !q.FeeAmount.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("fee = %s, want 0.1", q.FeeAmount)
	}
	if !q.NetSourceAmount.Equal(decimal.NewFromFloat(9.9)) {
		t.Errorf("net = %s, want 9.9", q.NetSourceAmount)
	}
	if !q.DestinationAmount.Equal(decimal.NewFromInt(29700)) {
		t.Errorf("destination = %s, want 29700", q.DestinationAmount)
	}
	if !q.ExchangeRate.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("exchange rate = %s, want 3000", q.ExchangeRate)
	}
}

func TestQuoteFeePlusNetReconstructsSource(t *testing.T) {
	calc := NewCalculator(decimal.NewFromFloat(0.015))

	for _, raw := range []string{"0.0001", "1", "3.3333", "10", "123.4567", "999999"} {
		source, err := decimal.NewFromString(raw)
		if err != nil {
			t.Fatal(err)
		}
		q, err := calc.Quote(source, testSnapshot())
		if err != nil {
			t.Fatalf("Quote(%s): %v", raw, err)
		}
		if !q.FeeAmount.Add(q.NetSourceAmount).Equal(source) {
			t.Errorf("fee %s + net %s != source %s", q.FeeAmount, q.NetSourceAmount, source)
		}
	}
}

func TestQuoteWholeShillingPayout(t *testing.T) {
	calc := NewCalculator(decimal.NewFromFloat(0.01))

	q, err := calc.Quote(decimal.NewFromFloat(1.2345), testSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.DestinationAmount.Equal(q.DestinationAmount.Truncate(0)) {
		t.Errorf("destination %s is not a whole amount", q.DestinationAmount)
	}
}

func TestQuoteDeterministic(t *testing.T) {
	calc := NewCalculator(decimal.NewFromFloat(0.01))
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	calc.now = func() time.Time { return fixed }

	first, err := calc.Quote(decimal.NewFromFloat(7.5), testSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	second, err := calc.Quote(decimal.NewFromFloat(7.5), testSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	if !first.DestinationAmount.Equal(second.DestinationAmount) || !first.ComputedAt.Equal(second.ComputedAt) {
		t.Errorf("identical inputs produced different quotes: %+v vs %+v", first, second)
	}
}

func TestQuoteRejectsNonPositiveAmounts(t *testing.T) {
	calc := NewCalculator(decimal.NewFromFloat(0.01))

	for _, raw := range []string{"0", "-1", "-0.0001"} {
		amount, _ := decimal.NewFromString(raw)
		if _, err := calc.Quote(amount, testSnapshot()); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Quote(%s) error = %v, want ErrInvalidAmount", raw, err)
		}
	}
}
