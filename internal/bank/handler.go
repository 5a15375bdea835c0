package bank

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/mekong-bank/mekong_bank/internal/account"
	"github.com/mekong-bank/mekong_bank/internal/identity"
	"github.com/mekong-bank/mekong_bank/internal/journal"
	"github.com/mekong-bank/mekong_bank/internal/notify"
)

// Handler exposes the ledger service over HTTP. Business failures surface as
// 4xx responses; only infrastructure faults become 5xx.
type Handler struct {
	service *Service
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Register handles account/user creation.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Register(c.UserContext(), req.Username, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrUsernameTaken):
			return fiber.NewError(http.StatusConflict, "username already taken")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account_number":       res.AccountNumber,
		"persistence_degraded": res.Degraded,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and returns the account number and display name.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Login(req.Username, req.Password)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}

	return c.JSON(fiber.Map{
		"account_number": res.AccountNumber,
		"full_name":      res.FullName,
	})
}

// Query returns the current balance.
func (h *Handler) Query(c *fiber.Ctx) error {
	number := c.Params("number")
	balance, err := h.service.QueryAccount(number)
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.JSON(fiber.Map{
		"account_number": number,
		"balance":        balance,
	})
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Deposit credits the account in the path.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Deposit(c.UserContext(), c.Params("number"), req.Amount)
	if err != nil {
		return mutationError(err)
	}
	return mutationResponse(c, res)
}

// Withdraw debits the account in the path.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Withdraw(c.UserContext(), c.Params("number"), req.Amount)
	if err != nil {
		return mutationError(err)
	}
	return mutationResponse(c, res)
}

func mutationResponse(c *fiber.Ctx, res MutationResult) error {
	return c.JSON(fiber.Map{
		"transaction_id":       res.Transaction.ID,
		"new_balance":          res.NewBalance,
		"persistence_degraded": res.Degraded,
	})
}

type transferRequest struct {
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Content     string          `json:"content"`
}

// Transfer moves funds between two accounts.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), req.FromAccount, req.ToAccount, req.Amount, req.Content)
	if err != nil {
		return mutationError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id":       res.OutTransaction.ID,
		"new_balance":          res.NewBalance,
		"content":              req.Content,
		"persistence_degraded": res.Degraded,
	})
}

// History lists the account's transactions, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	entries, err := h.service.History(c.Params("number"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if entries == nil {
		entries = []journal.Transaction{}
	}
	return c.JSON(fiber.Map{"transactions": entries})
}

type subscribeRequest struct {
	CallbackURL string `json:"callback_url"`
}

// Subscribe registers a webhook callback for incoming-transfer events.
func (h *Handler) Subscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.CallbackURL) == "" {
		return fiber.NewError(http.StatusBadRequest, "callback_url is required")
	}

	number := c.Params("number")
	if err := h.service.Subscribe(number, notify.NewWebhookSink(req.CallbackURL)); err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.JSON(fiber.Map{"account_number": number, "subscribed": true})
}

// Unsubscribe removes the account's callback; repeat calls are no-ops.
func (h *Handler) Unsubscribe(c *fiber.Ctx) error {
	number := c.Params("number")
	h.service.Unsubscribe(number)
	return c.JSON(fiber.Map{"account_number": number, "subscribed": false})
}

func mutationError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSameAccount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, account.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
