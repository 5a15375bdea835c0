package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mekong-bank/mekong_bank/internal/bank"
)

// RegisterBankRoutes wires the ledger service endpoints.
func RegisterBankRoutes(r fiber.Router, h *bank.Handler, loginLimiter fiber.Handler) {
	r.Post("/register", h.Register)
	r.Post("/login", loginLimiter, h.Login)

	accounts := r.Group("/accounts")
	accounts.Get("/:number", h.Query)
	accounts.Get("/:number/transactions", h.History)
	accounts.Post("/:number/deposit", h.Deposit)
	accounts.Post("/:number/withdraw", h.Withdraw)
	accounts.Put("/:number/subscription", h.Subscribe)
	accounts.Delete("/:number/subscription", h.Unsubscribe)

	r.Post("/transfers", h.Transfer)
}
