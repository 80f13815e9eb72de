package inventory

import (
	"errors"
	"sort"
	"strings"

	"procurement-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// httpError maps repository errors to fiber errors.
func httpError(err error, fallback string) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrIngredientNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Ingrediente no encontrado")
	case errors.Is(err, ErrSupplierNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Proveedor no encontrado")
	}
	return fiber.NewError(fiber.StatusInternalServerError, fallback)
}

// GET /api/ingredients?category=...&supplier_id=...
func ListIngredientsHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ings, err := repo.Ingredients(c.UserContext())
		if err != nil {
			return httpError(err, "No se pudieron listar los ingredientes")
		}

		category := strings.TrimSpace(c.Query("category"))
		supplierID := strings.TrimSpace(c.Query("supplier_id"))
		res := make([]models.Ingredient, 0, len(ings))
		for _, ing := range ings {
			if category != "" && !strings.EqualFold(ing.Category, category) {
				continue
			}
			if supplierID != "" && !ing.HasSupplier(supplierID) {
				continue
			}
			res = append(res, ing)
		}
		sort.SliceStable(res, func(i, j int) bool {
			return strings.ToLower(res[i].Name) < strings.ToLower(res[j].Name)
		})
		return c.JSON(res)
	}
}

// POST /api/ingredients
func CreateIngredientHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body IngredientInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		ing, err := repo.CreateIngredient(c.UserContext(), body)
		if err != nil {
			return httpError(err, "No se pudo crear el ingrediente")
		}
		return c.Status(fiber.StatusCreated).JSON(ing)
	}
}

// PUT /api/ingredients/:id
func UpdateIngredientHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body IngredientPatch
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		ing, err := repo.UpdateIngredient(c.UserContext(), c.Params("id"), body)
		if err != nil {
			return httpError(err, "No se pudo actualizar el ingrediente")
		}
		return c.JSON(ing)
	}
}

type CreateSupplierRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// GET /api/suppliers
func ListSuppliersHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		suppliers, err := repo.Suppliers(c.UserContext())
		if err != nil {
			return httpError(err, "No se pudieron listar los proveedores")
		}
		sort.SliceStable(suppliers, func(i, j int) bool {
			return strings.ToLower(suppliers[i].Name) < strings.ToLower(suppliers[j].Name)
		})
		return c.JSON(suppliers)
	}
}

// POST /api/suppliers
func CreateSupplierHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSupplierRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		s, err := repo.CreateSupplier(c.UserContext(), body.Name, body.Contact)
		if err != nil {
			return httpError(err, "No se pudo crear el proveedor")
		}
		return c.Status(fiber.StatusCreated).JSON(s)
	}
}

// GET /api/suppliers/:id/products
func ListSupplierProductsHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := repo.Supplier(c.UserContext(), c.Params("id")); err != nil {
			return httpError(err, "No se pudo leer el proveedor")
		}
		products, err := repo.SupplierProducts(c.UserContext(), c.Params("id"))
		if err != nil {
			return httpError(err, "No se pudo leer el catálogo")
		}
		return c.JSON(products)
	}
}

// GET /api/stock-rules
func ListRulesHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rules, err := repo.Rules(c.UserContext())
		if err != nil {
			return httpError(err, "No se pudieron listar las reglas")
		}
		return c.JSON(rules)
	}
}

type UpsertRuleRequest struct {
	IngredientID    string  `json:"ingredientId"`
	MinStock        float64 `json:"minStock"`
	ReorderQuantity float64 `json:"reorderQuantity"`
	Active          *bool   `json:"active"`
}

// PUT /api/stock-rules
func UpsertRuleHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UpsertRuleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		rule := models.StockRule{
			IngredientID:    strings.TrimSpace(body.IngredientID),
			MinStock:        body.MinStock,
			ReorderQuantity: body.ReorderQuantity,
			Active:          true,
		}
		if body.Active != nil {
			rule.Active = *body.Active
		}
		saved, err := repo.UpsertRule(c.UserContext(), rule)
		if err != nil {
			return httpError(err, "No se pudo guardar la regla")
		}
		return c.JSON(saved)
	}
}
