package audit

import (
	"errors"

	"procurement-backend/internal/auth"
	"procurement-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ActorMiddleware copies the authenticated user into the request context so
// services attribute their audit entries. Runs after auth.JWTMiddleware.
func ActorMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, name := auth.CurrentUser(c)
		if id != "" {
			c.SetUserContext(WithActor(c.UserContext(), Actor{ID: id, Name: name}))
		}
		return c.Next()
	}
}

type AuditLogResponse struct {
	ID          string             `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      string             `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    string             `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	IsUndone    bool               `json:"is_undone"`
	UndoneBy    string             `json:"undone_by,omitempty"`
	UndoneAt    *string            `json:"undone_at"`
}

// GET /api/audit-logs?entity_type=orders&entity_id=...&user_id=...
func ListAuditLogsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logs, err := svc.List(c.UserContext(), Filter{
			EntityType: c.Query("entity_type"),
			EntityID:   c.Query("entity_id"),
			UserID:     c.Query("user_id"),
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los registros")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			var undoneAt *string
			if l.UndoneAt != nil {
				formatted := l.UndoneAt.Format("2006-01-02 15:04:05")
				undoneAt = &formatted
			}
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				IsUndone:    l.IsUndone,
				UndoneBy:    l.UndoneBy,
				UndoneAt:    undoneAt,
			})
		}
		return c.JSON(resp)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := svc.Undo(c.UserContext(), c.Params("id"))
		switch {
		case errors.Is(err, ErrLogNotFound):
			return fiber.NewError(fiber.StatusNotFound, "Registro no encontrado")
		case errors.Is(err, ErrAlreadyUndone):
			return fiber.NewError(fiber.StatusConflict, "Esta operación ya se deshizo")
		case errors.Is(err, ErrNotUndoable):
			return fiber.NewError(fiber.StatusBadRequest, "Esta operación no se puede deshacer")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo deshacer la operación")
		}
		return c.JSON(fiber.Map{"message": "Operación deshecha"})
	}
}
