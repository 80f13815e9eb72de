package models

import (
	"time"

	"procurement-backend/internal/resolver"
)

const DefaultCategory = "General"

// SupplierPrice: what one supplier charges for an ingredient.
type SupplierPrice struct {
	Price       float64   `json:"price"`
	Unit        string    `json:"unit"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Ingredient is the canonical catalog entity. Stock and Price are always the
// resolved values; the raw document is kept in Raw for writers that must
// preserve fields they do not own.
type Ingredient struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	Category         string                   `json:"category"`
	Stock            float64                  `json:"stock"`
	Price            float64                  `json:"price"`
	PurchaseUnit     string                   `json:"purchaseUnit"`
	StandardUnit     string                   `json:"standardUnit,omitempty"`
	StandardQuantity float64                  `json:"standardQuantity,omitempty"`
	WastePercentage  float64                  `json:"wastePercentage,omitempty"`
	SupplierIDs      []string                 `json:"supplierIds"`
	SupplierData     map[string]SupplierPrice `json:"supplierData"`
	MinStock         float64                  `json:"minStock,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`

	Raw map[string]any `json:"-"`
}

// IngredientFromData decodes a stored ingredient document.
func IngredientFromData(id string, data map[string]any, createdAt time.Time) Ingredient {
	ing := Ingredient{
		ID:               id,
		Name:             str(data, "name", "nombre"),
		Category:         str(data, "category", "categoria"),
		Stock:            resolver.ResolveStock(data),
		Price:            resolver.ResolvePrice(data),
		PurchaseUnit:     str(data, "purchaseUnit", "unidadCompra", "unit", "unidad"),
		StandardUnit:     str(data, "standardUnit"),
		StandardQuantity: num(data, "standardQuantity"),
		WastePercentage:  num(data, "wastePercentage", "merma"),
		SupplierIDs:      strList(data, "supplierIds", "proveedores", "providerIds"),
		SupplierData:     supplierDataFrom(data["supplierData"]),
		MinStock:         num(data, "minStock", "stockMinimo"),
		CreatedAt:        timeOf(data, "createdAt"),
		Raw:              data,
	}
	if ing.CreatedAt.IsZero() {
		ing.CreatedAt = createdAt
	}
	if ing.Category == "" {
		ing.Category = DefaultCategory
	}
	return ing
}

// Data encodes the ingredient with canonical field names only.
func (i Ingredient) Data() map[string]any {
	data := map[string]any{
		"name":              i.Name,
		"category":          i.Category,
		resolver.StockField: i.Stock,
		resolver.PriceField: i.Price,
		"purchaseUnit":      i.PurchaseUnit,
		"supplierIds":       stringsToAny(i.SupplierIDs),
		"supplierData":      SupplierDataValue(i.SupplierData),
		"createdAt":         timeString(i.CreatedAt),
	}
	if i.StandardUnit != "" {
		data["standardUnit"] = i.StandardUnit
	}
	if i.StandardQuantity != 0 {
		data["standardQuantity"] = i.StandardQuantity
	}
	if i.WastePercentage != 0 {
		data["wastePercentage"] = i.WastePercentage
	}
	if i.MinStock != 0 {
		data["minStock"] = i.MinStock
	}
	return data
}

// ProviderRef: ingredients have no explicit provider, only their supplier list.
func (i Ingredient) ProviderRef() (string, []string) { return "", i.SupplierIDs }

// HasSupplier reports whether id is already linked.
func (i Ingredient) HasSupplier(id string) bool {
	for _, s := range i.SupplierIDs {
		if s == id {
			return true
		}
	}
	return false
}

// SupplierDataValue encodes the per-supplier price map for storage.
func SupplierDataValue(sd map[string]SupplierPrice) map[string]any {
	out := make(map[string]any, len(sd))
	for id, p := range sd {
		out[id] = map[string]any{
			"price":       p.Price,
			"unit":        p.Unit,
			"lastUpdated": timeString(p.LastUpdated),
		}
	}
	return out
}

func supplierDataFrom(raw any) map[string]SupplierPrice {
	out := map[string]SupplierPrice{}
	m, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	for _, id := range sortedKeys(m) {
		entry, ok := m[id].(map[string]any)
		if !ok {
			continue
		}
		out[id] = SupplierPrice{
			Price:       num(entry, "price"),
			Unit:        str(entry, "unit"),
			LastUpdated: timeOf(entry, "lastUpdated"),
		}
	}
	return out
}

func stringsToAny(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}
