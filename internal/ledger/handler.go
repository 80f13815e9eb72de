package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"procurement-backend/internal/batch"
	"procurement-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const sseHeartbeat = 15 * time.Second

type CreateOrderRequest struct {
	Name   string             `json:"name"`
	Status models.OrderStatus `json:"status"`
	Items  []models.OrderItem `json:"items"`
}

type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func httpError(err error) error {
	var cerr *batch.ChunkCommitError
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Pedido no encontrado")
	case errors.Is(err, ErrOrderNotDraft):
		return fiber.NewError(fiber.StatusConflict, "El pedido ya no es un borrador")
	case errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, "Transición de estado no permitida")
	case errors.Is(err, ErrInvalidStatus):
		return fiber.NewError(fiber.StatusBadRequest, "Estado inválido")
	case errors.Is(err, ErrEmptyOrder):
		return fiber.NewError(fiber.StatusBadRequest, "El pedido no tiene artículos")
	case errors.As(err, &cerr):
		return fiber.NewError(fiber.StatusInternalServerError,
			fmt.Sprintf("Escritura parcial: falló el bloque %d", cerr.Index))
	}
	return fiber.NewError(fiber.StatusInternalServerError, "Error inesperado en pedidos")
}

// POST /api/orders
func CreateOrderHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		ids, err := l.CreateOrder(c.UserContext(), body.Items, body.Name, body.Status)
		if err != nil {
			if len(ids) > 0 {
				// partial creation is retryable, report what exists
				return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{"ids": ids, "error": err.Error()})
			}
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ids": ids})
	}
}

// POST /api/orders/purchase-sheet
func PurchaseSheetHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		sheets, err := l.GeneratePurchaseSheet(c.UserContext(), body.Items, body.Name, body.Status)
		if err != nil {
			if len(sheets) > 0 {
				return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{"orders": sheets, "error": err.Error()})
			}
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"orders": sheets})
	}
}

// POST /api/orders/bulk-purchase
func BulkPurchaseHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		summary, err := l.BulkPurchase(c.UserContext(), body.Items, body.Name)
		if err != nil {
			if summary.Result.Committed > 0 {
				return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{"summary": summary, "error": err.Error()})
			}
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(summary)
	}
}

// GET /api/orders/history
func HistoryHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries, err := l.ListUnifiedHistory(c.UserContext())
		if err != nil {
			return httpError(err)
		}
		return c.JSON(historyResponse(entries))
	}
}

type historyLine struct {
	HistoryEntry
	Receivable bool `json:"receivable"`
}

func historyResponse(entries []HistoryEntry) []historyLine {
	out := make([]historyLine, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyLine{HistoryEntry: e, Receivable: e.Receivable()})
	}
	return out
}

// GET /api/orders/stream
// Server-sent events: one "history" event per change, comment pings in between.
func StreamHistoryHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// the stream outlives the handler, so it gets its own context
		ctx, cancel := context.WithCancel(context.Background())
		updates, err := l.Watch(ctx)
		if err != nil {
			cancel()
			return httpError(err)
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			heartbeat := time.NewTicker(sseHeartbeat)
			defer heartbeat.Stop()
			for {
				select {
				case <-heartbeat.C:
					fmt.Fprint(w, ": ping\n\n")
				case entries, ok := <-updates:
					if !ok {
						return
					}
					payload, err := json.Marshal(historyResponse(entries))
					if err != nil {
						l.log.Warn("history event encode failed", "error", err)
						continue
					}
					fmt.Fprintf(w, "event: history\ndata: %s\n\n", payload)
				}
				// a failed flush means the client went away
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	}
}

// POST /api/orders/:id/receive
func ReceiveOrderHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summary, err := l.ReceiveOrder(c.UserContext(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(summary)
	}
}

// PUT /api/orders/:id/status
func UpdateStatusHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UpdateStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		if err := l.UpdateOrderStatus(c.UserContext(), c.Params("id"), body.Status); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "status": body.Status})
	}
}

// DELETE /api/orders/:id
func DeleteOrderHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := l.DeleteOrder(c.UserContext(), c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/orders/:id/csv
func OrderCSVHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		o, err := l.Order(c.UserContext(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		c.Set("Content-Type", "text/csv; charset=utf-8")
		c.Attachment(fmt.Sprintf("pedido-%s.csv", o.ID))
		return WritePurchaseSheetCSV(c, o)
	}
}
