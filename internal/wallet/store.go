package wallet

import (
	"context"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

// Store mutates balances. Implementations are bound to an open atomic unit
// and are never handed out standalone.
type Store interface {
	// GetOrCreate returns the owner's wallet, creating a zero-balance one if absent.
	GetOrCreate(ctx context.Context, owner string) (Wallet, error)
	// Debit subtracts amount, failing with ErrInsufficientFunds when the balance is short.
	Debit(ctx context.Context, owner string, amount money.Amount) (Wallet, error)
	// Credit adds amount, creating the wallet if needed.
	Credit(ctx context.Context, owner string, amount money.Amount) (Wallet, error)
}

// Reader serves committed balances outside of any unit.
type Reader interface {
	Get(ctx context.Context, owner string) (Wallet, error)
}
