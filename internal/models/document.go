package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document: one stored JSON document. Every collection (ingredients, orders,
// purchases, ...) lives in this table, keyed by collection + id.
type Document struct {
	Collection string            `gorm:"primaryKey;size:64"`
	ID         string            `gorm:"primaryKey;size:64"`
	Data       datatypes.JSONMap `gorm:"not null"`
	CreatedAt  time.Time         `gorm:"index"`
	UpdatedAt  time.Time
}

func (Document) TableName() string { return "documents" }

// Collection names.
const (
	CollectionIngredients      = "ingredients"
	CollectionOrders           = "orders"
	CollectionPurchases        = "purchases" // legacy single-item purchase events
	CollectionStockRules       = "stock_rules"
	CollectionSuppliers        = "suppliers"
	CollectionSupplierProducts = "supplier_products"
	CollectionUsers            = "users"
	CollectionAuditLogs        = "audit_logs"
)
