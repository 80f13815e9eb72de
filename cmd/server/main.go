package main

import (
	"log"
	"strings"

	"procurement-backend/internal/audit"
	"procurement-backend/internal/auth"
	"procurement-backend/internal/batch"
	"procurement-backend/internal/catalog"
	"procurement-backend/internal/config"
	"procurement-backend/internal/database"
	"procurement-backend/internal/inventory"
	"procurement-backend/internal/ledger"
	"procurement-backend/internal/logger"
	"procurement-backend/internal/models"
	"procurement-backend/internal/realtime"
	"procurement-backend/internal/replenishment"
	"procurement-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer appLog.Sync()
	for _, w := range cfg.Warnings {
		appLog.Warn(w)
	}

	db, err := database.Open(cfg, appLog)
	if err != nil {
		appLog.Fatal("database unavailable", "error", err)
	}

	bus := realtime.NewMemoryBus()
	if cfg.RedisAddr != "" {
		bus, err = realtime.NewRedisBus(cfg.RedisAddr, cfg.RedisChannel, appLog)
		if err != nil {
			appLog.Fatal("redis unavailable", "addr", cfg.RedisAddr, "error", err)
		}
		appLog.Info("change bus on redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}
	defer bus.Close()

	st := store.NewGorm(db, cfg.BatchChunkSize, bus, appLog)
	auditSvc := audit.NewService(st, appLog)
	inv := inventory.NewRepository(st, auditSvc, appLog)
	writer := batch.NewWriter(st, cfg.BatchChunkSize, appLog)
	orders := ledger.New(st, writer, inv, auditSvc, cfg.OrderSplitThreshold, appLog)
	importer := catalog.NewReconciler(writer, inv, auditSvc, appLog)
	restock := replenishment.NewEngine(inv, orders, appLog)
	users := auth.NewUsers(st)

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			appLog.Error("unexpected error", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error inesperado del servidor",
			})
		},
	})

	app.Use(recover.New())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(users))
	api.Post("/auth/login", auth.LoginHandler(cfg, users))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg), audit.ActorMiddleware())

	protected.Get("/auth/me", auth.MeHandler(users))

	// Catalog
	protected.Get("/ingredients", inventory.ListIngredientsHandler(inv))
	protected.Post("/ingredients", inventory.CreateIngredientHandler(inv))
	protected.Put("/ingredients/:id", inventory.UpdateIngredientHandler(inv))
	protected.Get("/suppliers", inventory.ListSuppliersHandler(inv))
	protected.Get("/suppliers/:id/products", inventory.ListSupplierProductsHandler(inv))
	protected.Get("/stock-rules", inventory.ListRulesHandler(inv))

	// Replenishment
	protected.Get("/replenishment/critical", replenishment.CriticalHandler(restock))
	protected.Post("/replenishment/draft", replenishment.CreateDraftHandler(restock))

	// Orders
	protected.Post("/orders", ledger.CreateOrderHandler(orders))
	protected.Post("/orders/purchase-sheet", ledger.PurchaseSheetHandler(orders))
	protected.Post("/orders/bulk-purchase", ledger.BulkPurchaseHandler(orders))
	protected.Get("/orders/history", ledger.HistoryHandler(orders))
	protected.Get("/orders/stream", ledger.StreamHistoryHandler(orders))
	protected.Post("/orders/:id/receive", ledger.ReceiveOrderHandler(orders))
	protected.Put("/orders/:id/status", ledger.UpdateStatusHandler(orders))
	protected.Delete("/orders/:id", ledger.DeleteOrderHandler(orders))
	protected.Get("/orders/:id/csv", ledger.OrderCSVHandler(orders))

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler(auditSvc))

	// Admin only
	adminRoutes := protected.Group("")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/suppliers", inventory.CreateSupplierHandler(inv))
	adminRoutes.Post("/suppliers/:id/catalog", catalog.ImportCatalogHandler(importer))
	adminRoutes.Put("/stock-rules", inventory.UpsertRuleHandler(inv))
	adminRoutes.Post("/audit-logs/:id/undo", audit.UndoAuditLogHandler(auditSvc))

	appLog.Info("server listening", "port", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		appLog.Fatal("server stopped", "error", err)
	}
}
