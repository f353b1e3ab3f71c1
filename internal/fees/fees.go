// Package fees computes platform and processing fees for money movements.
//
// Rates are expressed in basis points (1 bps = 0.01%) and applied to integer
// minor-unit amounts with round-half-up, so chained calculations never drift.
package fees

import (
	"errors"
	"fmt"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

// Operation identifies the kind of movement a fee is charged on.
type Operation string

const (
	// OpTopUp is a wallet top-up from an external payment method.
	OpTopUp Operation = "topup"
	// OpMarketplaceSale is the sale of a marketplace listing.
	OpMarketplaceSale Operation = "marketplace_sale"
	// OpPayment is a generic buyer-to-seller payment keyed by product type.
	OpPayment Operation = "payment"
)

// ProductTypeMarketplace is the product type charged the marketplace rate on generic payments.
const ProductTypeMarketplace = "marketplace"

// ErrUnsupportedMethod is returned for a top-up method without a configured rate.
var ErrUnsupportedMethod = errors.New("unsupported payment method")

// Policy is the fee table.
type Policy struct {
	TopUpRates          map[string]int64
	MarketplaceSaleRate int64
	PaymentRates        map[string]int64
}

// DefaultPolicy returns the production fee table.
func DefaultPolicy() Policy {
	return Policy{
		TopUpRates: map[string]int64{
			"demo_bkash":  180,
			"demo_nagad":  150,
			"demo_rocket": 160,
			"demo_card":   280,
			"demo_bank":   120,
		},
		MarketplaceSaleRate: 200,
		PaymentRates: map[string]int64{
			ProductTypeMarketplace: 200,
		},
	}
}

// Breakdown describes how a gross amount splits into fee and net.
type Breakdown struct {
	Gross   money.Amount `json:"gross"`
	Fee     money.Amount `json:"fee"`
	Net     money.Amount `json:"net"`
	RateBps int64        `json:"rateBps"`
}

// Calculator applies a Policy. It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	policy Policy
}

// NewCalculator builds a calculator for the given policy.
func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

// SupportsMethod reports whether a payment method has a top-up rate.
func (c *Calculator) SupportsMethod(method string) bool {
	_, ok := c.policy.TopUpRates[method]
	return ok
}

// Rate returns the basis-point rate for an operation. key is the payment
// method for top-ups and the product type for payments; it is ignored for sales.
func (c *Calculator) Rate(op Operation, key string) (int64, error) {
	switch op {
	case OpTopUp:
		rate, ok := c.policy.TopUpRates[key]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, key)
		}
		return rate, nil
	case OpMarketplaceSale:
		return c.policy.MarketplaceSaleRate, nil
	case OpPayment:
		return c.policy.PaymentRates[key], nil
	default:
		return 0, fmt.Errorf("unknown fee operation %q", op)
	}
}

// Fee returns the fee withheld from amount.
func (c *Calculator) Fee(amount money.Amount, op Operation, key string) (money.Amount, error) {
	b, err := c.Breakdown(amount, op, key)
	if err != nil {
		return 0, err
	}
	return b.Fee, nil
}

// Breakdown splits amount into fee and net. The fee is always within [0, amount].
func (c *Calculator) Breakdown(amount money.Amount, op Operation, key string) (Breakdown, error) {
	rate, err := c.Rate(op, key)
	if err != nil {
		return Breakdown{}, err
	}
	fee := amount.BasisPoints(rate)
	if fee < 0 {
		fee = 0
	}
	if fee > amount {
		fee = amount
	}
	return Breakdown{Gross: amount, Fee: fee, Net: amount - fee, RateBps: rate}, nil
}
