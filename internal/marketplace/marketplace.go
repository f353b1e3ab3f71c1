// Package marketplace is the boundary to externally owned listings: reading
// an item, flipping it to sold and recording the sale inside a purchase unit.
package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

var (
	ErrItemNotFound     = errors.New("item not found")
	ErrItemNotAvailable = errors.New("item is no longer available")
	ErrPriceChanged     = errors.New("item price changed")
	ErrNotLocked        = errors.New("item not locked in this unit")
)

// ItemStatus is the sale state of a listing.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemSold      ItemStatus = "sold"
)

// Item is a listing as seen by the purchase path.
type Item struct {
	ID        string       `json:"id"`
	SellerID  string       `json:"sellerId"`
	Title     string       `json:"title"`
	Price     money.Amount `json:"price"`
	Status    ItemStatus   `json:"status"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// SaleStatusCompleted is the only status a sale is written with.
const SaleStatusCompleted = "completed"

// Sale is the marketplace-level record of a purchase.
type Sale struct {
	ID        string       `json:"id"`
	ItemID    string       `json:"itemId"`
	BuyerID   string       `json:"buyerId"`
	SellerID  string       `json:"sellerId"`
	Amount    money.Amount `json:"amount"`
	Fee       money.Amount `json:"platformFee"`
	Status    string       `json:"status"`
	Reference string       `json:"referenceId"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Inventory mutates listings inside an open atomic unit.
type Inventory interface {
	// Lock reads the item and holds its row until the unit ends.
	Lock(ctx context.Context, id string) (Item, error)
	// MarkSold flips an available item to sold, or fails with ErrItemNotAvailable.
	MarkSold(ctx context.Context, id string) error
	RecordSale(ctx context.Context, sale Sale) (Sale, error)
}

// Catalog reads committed listings.
type Catalog interface {
	Item(ctx context.Context, id string) (Item, error)
}
