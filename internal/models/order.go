package models

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) Valid() bool {
	return s == OrderDraft || s == OrderCompleted || s == OrderCancelled
}

// OrderItem: one line of an order. IngredientName is cached so the line still
// reads correctly after the ingredient is renamed.
type OrderItem struct {
	IngredientID   string  `json:"ingredientId"`
	IngredientName string  `json:"ingredientName"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
	EstimatedCost  float64 `json:"estimatedCost"`
	ProviderID     string  `json:"providerId,omitempty"`
	ProviderName   string  `json:"providerName,omitempty"`
}

// ProviderRef: order items only carry an explicit provider.
func (it OrderItem) ProviderRef() (string, []string) { return it.ProviderID, nil }

func (it OrderItem) data() map[string]any {
	d := map[string]any{
		"ingredientId":   it.IngredientID,
		"ingredientName": it.IngredientName,
		"quantity":       it.Quantity,
		"unit":           it.Unit,
		"estimatedCost":  it.EstimatedCost,
	}
	if it.ProviderID != "" {
		d["providerId"] = it.ProviderID
	}
	if it.ProviderName != "" {
		d["providerName"] = it.ProviderName
	}
	return d
}

func orderItemFrom(m map[string]any) OrderItem {
	return OrderItem{
		IngredientID:   str(m, "ingredientId", "id"),
		IngredientName: str(m, "ingredientName", "name", "nombre"),
		Quantity:       num(m, "quantity", "cantidad"),
		Unit:           str(m, "unit", "unidad"),
		EstimatedCost:  num(m, "estimatedCost", "cost", "costo"),
		ProviderID:     str(m, "providerId"),
		ProviderName:   str(m, "providerName"),
	}
}

// Order is the current multi-item procurement order.
type Order struct {
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Items     []OrderItem `json:"items"`
	TotalCost float64     `json:"totalCost"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

func OrderFromData(id string, data map[string]any, createdAt time.Time) Order {
	o := Order{
		ID:        id,
		Name:      str(data, "name"),
		TotalCost: num(data, "totalCost", "totalEstimatedCost"),
		Status:    OrderStatus(str(data, "status")),
		CreatedAt: timeOf(data, "createdAt"),
	}
	if raw, ok := data["items"].([]any); ok {
		for _, r := range raw {
			if m, ok := r.(map[string]any); ok {
				o.Items = append(o.Items, orderItemFrom(m))
			}
		}
	}
	if !o.Status.Valid() {
		o.Status = OrderDraft
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = createdAt
	}
	return o
}

func (o Order) Data() map[string]any {
	items := make([]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, it.data())
	}
	d := map[string]any{
		"items":     items,
		"totalCost": o.TotalCost,
		"status":    string(o.Status),
		"createdAt": timeString(o.CreatedAt),
	}
	if o.Name != "" {
		d["name"] = o.Name
	}
	return d
}

// PurchaseEvent is the legacy single-ingredient purchase record. It is never
// migrated; readers map it into an Order on the fly.
type PurchaseEvent struct {
	ID           string      `json:"id"`
	IngredientID string      `json:"ingredientId"`
	ProviderID   string      `json:"providerId,omitempty"`
	Unit         string      `json:"unit"`
	Quantity     float64     `json:"quantity"`
	UnitPrice    float64     `json:"unitPrice"`
	TotalCost    float64     `json:"totalCost"`
	Status       OrderStatus `json:"status"`
	RawStatus    string      `json:"rawStatus,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func PurchaseEventFromData(id string, data map[string]any, createdAt time.Time) PurchaseEvent {
	raw := str(data, "status", "estado")
	p := PurchaseEvent{
		ID:           id,
		IngredientID: str(data, "ingredientId", "ingredienteId"),
		ProviderID:   str(data, "providerId", "proveedorId", "supplierId"),
		Unit:         str(data, "unit", "unidad"),
		Quantity:     num(data, "quantity", "cantidad"),
		UnitPrice:    num(data, "unitPrice", "precioUnitario"),
		TotalCost:    num(data, "totalCost", "total"),
		Status:       LegacyStatus(raw),
		RawStatus:    raw,
		CreatedAt:    timeOf(data, "createdAt", "timestamp", "fecha", "date"),
	}
	if p.TotalCost == 0 && p.Quantity > 0 && p.UnitPrice > 0 {
		p.TotalCost = p.Quantity * p.UnitPrice
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = createdAt
	}
	return p
}

// LegacyStatus maps the free-form status strings of purchase events onto the
// order vocabulary. Unknown values count as completed: legacy purchases were
// recorded after the goods arrived.
func LegacyStatus(s string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "draft", "pending", "pendiente", "borrador":
		return OrderDraft
	case "cancelled", "canceled", "cancelado", "cancelada", "anulado":
		return OrderCancelled
	}
	return OrderCompleted
}
