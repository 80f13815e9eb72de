package models

import "time"

// Supplier: entry of the supplier directory.
type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func SupplierFromData(id string, data map[string]any, createdAt time.Time) Supplier {
	return Supplier{
		ID:        id,
		Name:      str(data, "name", "nombre"),
		Contact:   str(data, "contact", "contacto"),
		CreatedAt: createdAt,
	}
}

func (s Supplier) Data() map[string]any {
	return map[string]any{"name": s.Name, "contact": s.Contact}
}

// SupplierProduct: one line of an imported supplier price list. Never
// deduplicated; every import appends a fresh snapshot.
type SupplierProduct struct {
	ID          string    `json:"id"`
	SupplierID  string    `json:"supplierId"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Unit        string    `json:"unit"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func SupplierProductFromData(id string, data map[string]any) SupplierProduct {
	return SupplierProduct{
		ID:          id,
		SupplierID:  str(data, "supplierId"),
		Name:        str(data, "name"),
		Price:       num(data, "price"),
		Unit:        str(data, "unit"),
		LastUpdated: timeOf(data, "lastUpdated"),
	}
}

func (p SupplierProduct) Data() map[string]any {
	return map[string]any{
		"supplierId":  p.SupplierID,
		"name":        p.Name,
		"price":       p.Price,
		"unit":        p.Unit,
		"lastUpdated": timeString(p.LastUpdated),
	}
}

// StockRule: replenishment rule for one ingredient. Only rules with positive
// MinStock and ReorderQuantity are actionable.
type StockRule struct {
	ID              string  `json:"id"`
	IngredientID    string  `json:"ingredientId"`
	IngredientName  string  `json:"ingredientName"`
	MinStock        float64 `json:"minStock"`
	ReorderQuantity float64 `json:"reorderQuantity"`
	Active          bool    `json:"active"`
}

func (r StockRule) Actionable() bool {
	return r.Active && r.MinStock > 0 && r.ReorderQuantity > 0
}

func StockRuleFromData(id string, data map[string]any) StockRule {
	return StockRule{
		ID:              id,
		IngredientID:    str(data, "ingredientId"),
		IngredientName:  str(data, "ingredientName"),
		MinStock:        num(data, "minStock"),
		ReorderQuantity: num(data, "reorderQuantity"),
		Active:          boolean(data, "active", true),
	}
}

func (r StockRule) Data() map[string]any {
	return map[string]any{
		"ingredientId":    r.IngredientID,
		"ingredientName":  r.IngredientName,
		"minStock":        r.MinStock,
		"reorderQuantity": r.ReorderQuantity,
		"active":          r.Active,
	}
}
