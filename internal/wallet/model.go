package wallet

import (
	"errors"
	"time"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

var (
	// ErrInsufficientFunds occurs when a debit exceeds the wallet balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotFound is returned by readers for an owner that never had a wallet.
	ErrNotFound = errors.New("wallet not found")
	// ErrNotLocked is returned when a unit mutates a wallet it did not lock up front.
	ErrNotLocked = errors.New("wallet not locked in this unit")
)

// Wallet is the balance row of a single owner. Balance is never negative.
type Wallet struct {
	OwnerID   string       `json:"ownerId"`
	Balance   money.Amount `json:"balance"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
