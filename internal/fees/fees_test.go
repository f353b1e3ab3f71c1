package fees

import (
	"errors"
	"testing"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

func TestTopUpFeeByMethod(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())

	b, err := calc.Breakdown(money.MustParse("500.00"), OpTopUp, "demo_bkash")
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if b.Fee != money.MustParse("9.00") || b.Net != money.MustParse("491.00") {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	if b.RateBps != 180 {
		t.Fatalf("expected 180 bps, got %d", b.RateBps)
	}

	for method, rate := range DefaultPolicy().TopUpRates {
		if rate < 120 || rate > 280 {
			t.Fatalf("method %s rate %d outside 1.2%%-2.8%%", method, rate)
		}
	}
}

func TestTopUpUnknownMethod(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())
	if _, err := calc.Fee(money.MustParse("10.00"), OpTopUp, "carrier_pigeon"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if calc.SupportsMethod("carrier_pigeon") {
		t.Fatal("unexpected support for unknown method")
	}
}

func TestMarketplaceAndPaymentFees(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())

	sale, err := calc.Fee(money.MustParse("300.00"), OpMarketplaceSale, "")
	if err != nil {
		t.Fatalf("sale fee: %v", err)
	}
	if sale != money.MustParse("6.00") {
		t.Fatalf("expected 6.00, got %s", sale)
	}

	pay, err := calc.Fee(money.MustParse("150.00"), OpPayment, ProductTypeMarketplace)
	if err != nil {
		t.Fatalf("payment fee: %v", err)
	}
	if pay != money.MustParse("3.00") {
		t.Fatalf("expected 3.00, got %s", pay)
	}

	food, err := calc.Fee(money.MustParse("150.00"), OpPayment, "food")
	if err != nil {
		t.Fatalf("food fee: %v", err)
	}
	if food != 0 {
		t.Fatalf("expected zero fee for non-marketplace payment, got %s", food)
	}
}

func TestFeeNeverExceedsAmount(t *testing.T) {
	calc := NewCalculator(Policy{TopUpRates: map[string]int64{"greedy": 20_000}})
	b, err := calc.Breakdown(money.MustParse("1.00"), OpTopUp, "greedy")
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if b.Fee != b.Gross || b.Net != 0 {
		t.Fatalf("fee should be clamped to the amount: %+v", b)
	}
}
