package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/metrics"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AppName   string
	Ledger    StockLedger
	ProductUC *usecase.ProductUseCase
	Metrics   *metrics.Metrics // nil = sin /metrics
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.AppName})
	})
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	// Rutas protegidas (requieren Bearer Token); el tenant sale del claim company_id.
	inv := app.Group("/api/inventory", AuthMiddleware(deps.JWTSecret))
	writers := RequireRole(RoleAdmin, RoleBodeguero)
	readers := RequireRole(RoleAdmin, RoleBodeguero, RoleAuditor)

	inventoryHandler := NewInventoryHandler(deps.Ledger)
	inv.Post("/commands", writers, inventoryHandler.ExecuteCommand)
	inv.Get("/balances/:warehouse_id/:product_id", readers, inventoryHandler.GetBalance)
	inv.Get("/transactions", readers, inventoryHandler.ListTransactions)
	inv.Get("/lots/:warehouse_id/:product_id", readers, inventoryHandler.GetLots)

	productHandler := NewProductHandler(deps.ProductUC)
	inv.Post("/products", RequireRole(RoleAdmin), productHandler.Create)
	inv.Get("/products/:id", readers, productHandler.GetByID)
}
