package replenishment

import (
	"github.com/gofiber/fiber/v2"
)

// GET /api/replenishment/critical
func CriticalHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := e.Evaluate(c.UserContext())
		if err != nil {
			e.log.Error("replenishment evaluation failed", "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo evaluar el stock")
		}
		return c.JSON(report)
	}
}

// POST /api/replenishment/draft
func CreateDraftHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sheets, err := e.CreateDraftOrders(c.UserContext())
		if err != nil {
			e.log.Error("replenishment drafts failed", "error", err)
			if len(sheets) > 0 {
				return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{"orders": sheets, "error": err.Error()})
			}
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron crear los borradores")
		}
		if len(sheets) == 0 {
			return c.JSON(fiber.Map{"orders": []any{}, "message": "No hay ingredientes en stock crítico"})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"orders": sheets})
	}
}
