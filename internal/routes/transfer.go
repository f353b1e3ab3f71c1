package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bazaarpay/bazaarpay/internal/identity"
	"github.com/bazaarpay/bazaarpay/internal/middleware"
	"github.com/bazaarpay/bazaarpay/internal/transfer"
)

// RegisterTransferRoutes wires wallet, marketplace and back-office endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	w := r.Group("/wallet")
	w.Get("", h.Wallet)
	w.Get("/transactions", h.Transactions)
	w.Post("/add-money", h.AddMoney)
	w.Post("/withdraw", h.Withdraw)
	w.Post("/transfer", h.Transfer)
	w.Post("/make-payment", h.MakePayment)

	r.Post("/marketplace/items/:id/purchase", h.Purchase)

	admin := r.Group("/admin", middleware.RequireRole(identity.RoleAdmin))
	admin.Patch("/transactions/:id/status", h.ResolveWithdrawal)
	admin.Get("/wallets/:ownerId/reconcile", h.Reconcile)
}
