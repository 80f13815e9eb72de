package catalog

import (
	"errors"
	"path/filepath"
	"strings"

	"procurement-backend/internal/batch"
	"procurement-backend/internal/inventory"

	"github.com/gofiber/fiber/v2"
)

// POST /api/suppliers/:id/catalog
// multipart form, field "file": .xlsx workbook or delimited text.
func ImportCatalogHandler(rec *Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Debe adjuntar un archivo")
		}
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "No se pudo leer el archivo")
		}
		defer f.Close()

		var rows []Row
		if strings.EqualFold(filepath.Ext(fh.Filename), ".xlsx") {
			rows, err = ParseXLSX(f)
		} else {
			rows, err = ParseCSV(f)
		}
		if err != nil {
			rec.log.Warn("catalog file rejected", "file", fh.Filename, "error", err)
			return fiber.NewError(fiber.StatusBadRequest, "Formato de archivo inválido")
		}
		if len(rows) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "El archivo no contiene productos")
		}

		summary, err := rec.ImportCatalog(c.UserContext(), c.Params("id"), rows)
		if err != nil {
			var cerr *batch.ChunkCommitError
			switch {
			case errors.Is(err, inventory.ErrSupplierNotFound):
				return fiber.NewError(fiber.StatusNotFound, "Proveedor no encontrado")
			case errors.As(err, &cerr) && summary.Result.Committed > 0:
				return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{"summary": summary, "error": err.Error()})
			}
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo importar el catálogo")
		}
		return c.JSON(summary)
	}
}
