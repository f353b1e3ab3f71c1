package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/bazaarpay/bazaarpay/internal/fees"
	"github.com/bazaarpay/bazaarpay/internal/money"
)

var (
	// ErrNotFound is returned when a transaction id does not exist.
	ErrNotFound = errors.New("transaction not found")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateRequest indicates the idempotency key was already used by the
	// same owner, so the operation should be treated as a replay.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrKeyReused indicates the idempotency key was first used for a different
	// operation or request body.
	ErrKeyReused = errors.New("idempotency key was already used for a different request")
)

// Direction is the side of the wallet a row touches.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Status is the lifecycle state of a row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a row may move from s to next. Only pending
// rows move, and only to a terminal state.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusCompleted || next == StatusFailed)
}

// Kind names the operation that produced a row.
type Kind string

const (
	KindTopUp              Kind = "topup"
	KindWithdrawal         Kind = "withdrawal"
	KindTransfer           Kind = "transfer"
	KindPayment            Kind = "payment"
	KindPurchase           Kind = "purchase"
	KindWithdrawalReversal Kind = "withdrawal_reversal"
)

// Metadata carries the operation-specific details of a row.
type Metadata struct {
	CounterpartyID string            `json:"counterpartyId,omitempty"`
	Fee            *fees.Breakdown   `json:"fee,omitempty"`
	ProductID      string            `json:"productId,omitempty"`
	ProductType    string            `json:"productType,omitempty"`
	Note           string            `json:"note,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	PaymentDetails map[string]string `json:"paymentDetails,omitempty"`
}

// Transaction is one immutable ledger row. Only Status (and UpdatedAt) may
// change, once, from pending to a terminal state.
type Transaction struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"ownerId"`
	Direction     Direction    `json:"type"`
	Kind          Kind         `json:"kind"`
	Amount        money.Amount `json:"amount"`
	Description   string       `json:"description"`
	PaymentMethod string       `json:"paymentMethod,omitempty"`
	Reference     string       `json:"referenceId"`
	Status        Status       `json:"status"`
	Metadata      Metadata     `json:"metadata"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Page bounds a history query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps a page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Totals sums every row of an owner by direction.
type Totals struct {
	Credits money.Amount `json:"credits"`
	Debits  money.Amount `json:"debits"`
}

// Claim is what an idempotency key was first used for.
type Claim struct {
	Reference   string
	Kind        Kind
	Fingerprint string
}

// Matches reports whether a request of kind with fingerprint is a retry of
// the claimed one.
func (c Claim) Matches(kind Kind, fingerprint string) bool {
	return c.Kind == kind && c.Fingerprint == fingerprint
}

// Net is credits minus debits.
func (t Totals) Net() money.Amount { return t.Credits - t.Debits }

// Writer appends rows inside an open atomic unit.
type Writer interface {
	// Append stores a new row, assigning ID and timestamps when empty.
	Append(ctx context.Context, tx Transaction) (Transaction, error)
	// LockForUpdate reads a row and holds it until the unit ends.
	LockForUpdate(ctx context.Context, id string) (Transaction, error)
	// SetStatus applies a state machine transition.
	SetStatus(ctx context.Context, id string, status Status) (Transaction, error)
	// ClaimKey records that owner used key for the request described by
	// claim. It returns ErrDuplicateRequest when the key was already claimed.
	ClaimKey(ctx context.Context, owner, key string, claim Claim) error
}

// Reader serves committed rows.
type Reader interface {
	Get(ctx context.Context, id string) (Transaction, error)
	History(ctx context.Context, owner string, page Page) ([]Transaction, error)
	ByReference(ctx context.Context, reference string) ([]Transaction, error)
	Totals(ctx context.Context, owner string) (Totals, error)
	// LookupKey returns the claim stored for owner's key, or ErrNotFound.
	LookupKey(ctx context.Context, owner, key string) (Claim, error)
}
