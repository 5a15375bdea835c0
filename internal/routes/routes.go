package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mekong-bank/mekong_bank/internal/bank"
	"github.com/mekong-bank/mekong_bank/internal/config"
	"github.com/mekong-bank/mekong_bank/internal/middleware"
	"github.com/mekong-bank/mekong_bank/internal/notify"
	"github.com/mekong-bank/mekong_bank/internal/store"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Store  store.Store
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares, builds the ledger service on top of the
// store, and wires all application routes.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	hub := notify.NewHub(d.Logger, d.Cfg.NotifyTimeout)
	svc, err := bank.NewService(context.Background(), d.Store, hub, d.Logger)
	if err != nil {
		return err
	}
	handler := bank.NewHandler(svc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	loginLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterBankRoutes(api, handler, loginLimiter)

	return nil
}
