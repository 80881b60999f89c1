package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/swapyard/swapyard/internal/config"
	"github.com/swapyard/swapyard/internal/escrow"
	"github.com/swapyard/swapyard/internal/middleware"
	"github.com/swapyard/swapyard/internal/transfer"
	"github.com/swapyard/swapyard/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. Services are
// constructed in main so the reaper can share the escrow engine.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Logger    *slog.Logger
	Wallets   *wallet.Service
	Escrows   *escrow.Service
	Transfers *transfer.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	walletHandler := wallet.NewHandler(d.Wallets)
	escrowHandler := escrow.NewHandler(d.Escrows)
	transferHandler := transfer.NewHandler(d.Transfers)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Every ledger operation needs a verified caller identity.
	protected := api.Group("", middleware.CallerID())
	RegisterWalletRoutes(protected, walletHandler)
	RegisterEscrowRoutes(protected, escrowHandler)
	RegisterTransferRoutes(protected, transferHandler)

	return nil
}
