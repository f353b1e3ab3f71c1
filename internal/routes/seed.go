package routes

import (
	"context"

	"github.com/bazaarpay/bazaarpay/internal/identity"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/money"
	"github.com/bazaarpay/bazaarpay/internal/storage"
)

// seedDevelopment gives a fresh in-memory backend a buyer, a seller, an
// operator and one listing, so the API can be exercised without Postgres.
func seedDevelopment(ctx context.Context, mem *storage.Memory, dir *identity.MemoryDirectory) error {
	dir.Put(identity.User{ID: "demo-buyer", Email: "buyer@bazaarpay.local", Username: "buyer"})
	dir.Put(identity.User{ID: "demo-seller", Email: "seller@bazaarpay.local", Username: "seller"})
	dir.Put(identity.User{ID: "demo-admin", Email: "ops@bazaarpay.local", Username: "ops", Role: identity.RoleAdmin})

	mem.PutItem(marketplace.Item{
		ID:       "demo-item",
		SellerID: "demo-seller",
		Title:    "Handwoven nakshi kantha",
		Price:    money.MustParse("300.00"),
	})
	return mem.Seed(ctx, "demo-buyer", money.MustParse("1000.00"))
}
