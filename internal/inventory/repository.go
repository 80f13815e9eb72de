// Package inventory owns the ingredient catalog, the supplier directory and
// the stock rules.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"procurement-backend/internal/audit"
	"procurement-backend/internal/grouping"
	"procurement-backend/internal/logger"
	"procurement-backend/internal/models"
	"procurement-backend/internal/resolver"
	"procurement-backend/internal/store"
)

var (
	ErrIngredientNotFound = errors.New("ingredient not found")
	ErrSupplierNotFound   = errors.New("supplier not found")
	ErrInvalidInput       = errors.New("invalid input")
)

type Repository struct {
	store store.Store
	audit *audit.Service
	log   *logger.Logger
	now   func() time.Time
}

func NewRepository(s store.Store, auditSvc *audit.Service, log *logger.Logger) *Repository {
	return &Repository{
		store: s,
		audit: auditSvc,
		log:   logger.OrNop(log).With("service", "InventoryRepository"),
		now:   time.Now,
	}
}

func IngredientPath(id string) store.Path {
	return store.Path{Collection: models.CollectionIngredients, ID: id}
}

func (r *Repository) Ingredients(ctx context.Context) ([]models.Ingredient, error) {
	docs, err := r.store.Query(ctx, models.CollectionIngredients)
	if err != nil {
		return nil, fmt.Errorf("load ingredients: %w", err)
	}
	out := make([]models.Ingredient, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.IngredientFromData(d.ID(), d.Data, d.CreatedAt))
	}
	return out, nil
}

// IngredientIndex maps ingredient ID to ingredient.
func (r *Repository) IngredientIndex(ctx context.Context) (map[string]models.Ingredient, error) {
	ings, err := r.Ingredients(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]models.Ingredient, len(ings))
	for _, ing := range ings {
		idx[ing.ID] = ing
	}
	return idx, nil
}

func (r *Repository) Ingredient(ctx context.Context, id string) (models.Ingredient, error) {
	doc, err := r.store.Get(ctx, IngredientPath(id))
	if errors.Is(err, store.ErrNotFound) {
		return models.Ingredient{}, fmt.Errorf("%w: %s", ErrIngredientNotFound, id)
	}
	if err != nil {
		return models.Ingredient{}, err
	}
	return models.IngredientFromData(doc.ID(), doc.Data, doc.CreatedAt), nil
}

type IngredientInput struct {
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	Stock            float64  `json:"stock"`
	Price            float64  `json:"price"`
	PurchaseUnit     string   `json:"purchaseUnit"`
	StandardUnit     string   `json:"standardUnit"`
	StandardQuantity float64  `json:"standardQuantity"`
	WastePercentage  float64  `json:"wastePercentage"`
	MinStock         float64  `json:"minStock"`
	SupplierIDs      []string `json:"supplierIds"`
}

func (r *Repository) CreateIngredient(ctx context.Context, in IngredientInput) (models.Ingredient, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return models.Ingredient{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Stock < 0 || in.Price < 0 {
		return models.Ingredient{}, fmt.Errorf("%w: stock and price must not be negative", ErrInvalidInput)
	}
	ing := models.Ingredient{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Category:         strings.TrimSpace(in.Category),
		Stock:            in.Stock,
		Price:            in.Price,
		PurchaseUnit:     strings.TrimSpace(in.PurchaseUnit),
		StandardUnit:     in.StandardUnit,
		StandardQuantity: in.StandardQuantity,
		WastePercentage:  in.WastePercentage,
		MinStock:         in.MinStock,
		SupplierIDs:      in.SupplierIDs,
		SupplierData:     map[string]models.SupplierPrice{},
		CreatedAt:        r.now(),
	}
	if ing.Category == "" {
		ing.Category = models.DefaultCategory
	}
	data := ing.Data()
	muts := []store.Mutation{
		store.Set(IngredientPath(ing.ID), data),
		r.audit.Mutation(ctx, audit.LogOptions{
			EntityType: models.CollectionIngredients, EntityID: ing.ID,
			Action: models.AuditActionCreate, Description: "Ingrediente creado: " + ing.Name,
			After: data,
		}),
	}
	if err := r.store.BatchCommit(ctx, muts); err != nil {
		return models.Ingredient{}, fmt.Errorf("create ingredient: %w", err)
	}
	return ing, nil
}

// IngredientPatch: nil fields are left untouched.
type IngredientPatch struct {
	Name            *string  `json:"name"`
	Category        *string  `json:"category"`
	Stock           *float64 `json:"stock"`
	Price           *float64 `json:"price"`
	PurchaseUnit    *string  `json:"purchaseUnit"`
	WastePercentage *float64 `json:"wastePercentage"`
	MinStock        *float64 `json:"minStock"`
	SupplierIDs     []string `json:"supplierIds"`
}

// UpdateIngredient merges patch into the stored document. Fields the patch
// does not name, legacy ones included, are kept as they are.
func (r *Repository) UpdateIngredient(ctx context.Context, id string, patch IngredientPatch) (models.Ingredient, error) {
	doc, err := r.store.Get(ctx, IngredientPath(id))
	if errors.Is(err, store.ErrNotFound) {
		return models.Ingredient{}, fmt.Errorf("%w: %s", ErrIngredientNotFound, id)
	}
	if err != nil {
		return models.Ingredient{}, err
	}

	update := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.Ingredient{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		update["name"] = name
	}
	if patch.Category != nil {
		update["category"] = strings.TrimSpace(*patch.Category)
	}
	if patch.Stock != nil {
		if *patch.Stock < 0 {
			return models.Ingredient{}, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
		}
		for k, v := range resolver.StockPatch(*patch.Stock) {
			update[k] = v
		}
	}
	if patch.Price != nil {
		if *patch.Price < 0 {
			return models.Ingredient{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
		}
		update[resolver.PriceField] = *patch.Price
	}
	if patch.PurchaseUnit != nil {
		update["purchaseUnit"] = strings.TrimSpace(*patch.PurchaseUnit)
	}
	if patch.WastePercentage != nil {
		update["wastePercentage"] = *patch.WastePercentage
	}
	if patch.MinStock != nil {
		update["minStock"] = *patch.MinStock
	}
	if patch.SupplierIDs != nil {
		ids := make([]any, 0, len(patch.SupplierIDs))
		for _, s := range patch.SupplierIDs {
			ids = append(ids, s)
		}
		update["supplierIds"] = ids
	}
	if len(update) == 0 {
		return models.IngredientFromData(doc.ID(), doc.Data, doc.CreatedAt), nil
	}

	merged := make(map[string]any, len(doc.Data)+len(update))
	for k, v := range doc.Data {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	muts := []store.Mutation{
		store.Update(doc.Path, update),
		r.audit.Mutation(ctx, audit.LogOptions{
			EntityType: models.CollectionIngredients, EntityID: id,
			Action: models.AuditActionUpdate, Description: "Ingrediente actualizado",
			Before: doc.Data, After: merged,
		}),
	}
	if err := r.store.BatchCommit(ctx, muts); err != nil {
		return models.Ingredient{}, fmt.Errorf("update ingredient %s: %w", id, err)
	}
	return models.IngredientFromData(doc.ID(), merged, doc.CreatedAt), nil
}

func (r *Repository) Suppliers(ctx context.Context) ([]models.Supplier, error) {
	docs, err := r.store.Query(ctx, models.CollectionSuppliers)
	if err != nil {
		return nil, fmt.Errorf("load suppliers: %w", err)
	}
	out := make([]models.Supplier, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.SupplierFromData(d.ID(), d.Data, d.CreatedAt))
	}
	return out, nil
}

func (r *Repository) Supplier(ctx context.Context, id string) (models.Supplier, error) {
	doc, err := r.store.Get(ctx, store.Path{Collection: models.CollectionSuppliers, ID: id})
	if errors.Is(err, store.ErrNotFound) {
		return models.Supplier{}, fmt.Errorf("%w: %s", ErrSupplierNotFound, id)
	}
	if err != nil {
		return models.Supplier{}, err
	}
	return models.SupplierFromData(doc.ID(), doc.Data, doc.CreatedAt), nil
}

// Directory is the supplier directory used for provider names.
func (r *Repository) Directory(ctx context.Context) (grouping.MapDirectory, error) {
	suppliers, err := r.Suppliers(ctx)
	if err != nil {
		return nil, err
	}
	return grouping.DirectoryFromSuppliers(suppliers), nil
}

func (r *Repository) CreateSupplier(ctx context.Context, name, contact string) (models.Supplier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Supplier{}, fmt.Errorf("%w: supplier name is required", ErrInvalidInput)
	}
	s := models.Supplier{ID: uuid.NewString(), Name: name, Contact: strings.TrimSpace(contact), CreatedAt: r.now()}
	path := store.Path{Collection: models.CollectionSuppliers, ID: s.ID}
	muts := []store.Mutation{
		store.Set(path, s.Data()),
		r.audit.Mutation(ctx, audit.LogOptions{
			EntityType: models.CollectionSuppliers, EntityID: s.ID,
			Action: models.AuditActionCreate, Description: "Proveedor creado: " + s.Name,
			After: s.Data(),
		}),
	}
	if err := r.store.BatchCommit(ctx, muts); err != nil {
		return models.Supplier{}, fmt.Errorf("create supplier: %w", err)
	}
	return s, nil
}

// SupplierProducts lists the imported catalog lines of one supplier, every
// import snapshot included.
func (r *Repository) SupplierProducts(ctx context.Context, supplierID string) ([]models.SupplierProduct, error) {
	docs, err := r.store.Query(ctx, models.CollectionSupplierProducts, store.Where("supplierId", supplierID))
	if err != nil {
		return nil, fmt.Errorf("load supplier products: %w", err)
	}
	out := make([]models.SupplierProduct, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.SupplierProductFromData(d.ID(), d.Data))
	}
	return out, nil
}

func (r *Repository) Rules(ctx context.Context) ([]models.StockRule, error) {
	docs, err := r.store.Query(ctx, models.CollectionStockRules)
	if err != nil {
		return nil, fmt.Errorf("load stock rules: %w", err)
	}
	out := make([]models.StockRule, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.StockRuleFromData(d.ID(), d.Data))
	}
	return out, nil
}

// UpsertRule stores the rule of an ingredient. There is at most one rule per
// ingredient: an existing rule for the same ingredient is overwritten.
func (r *Repository) UpsertRule(ctx context.Context, rule models.StockRule) (models.StockRule, error) {
	if rule.IngredientID == "" {
		return models.StockRule{}, fmt.Errorf("%w: ingredientId is required", ErrInvalidInput)
	}
	if rule.MinStock < 0 || rule.ReorderQuantity < 0 {
		return models.StockRule{}, fmt.Errorf("%w: thresholds must not be negative", ErrInvalidInput)
	}
	ing, err := r.Ingredient(ctx, rule.IngredientID)
	if err != nil {
		return models.StockRule{}, err
	}
	if rule.IngredientName == "" {
		rule.IngredientName = ing.Name
	}

	existing, err := r.store.Query(ctx, models.CollectionStockRules, store.Where("ingredientId", rule.IngredientID))
	if err != nil {
		return models.StockRule{}, err
	}
	action := models.AuditActionCreate
	var before any
	if len(existing) > 0 {
		rule.ID = existing[0].ID()
		action = models.AuditActionUpdate
		before = existing[0].Data
	} else if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	path := store.Path{Collection: models.CollectionStockRules, ID: rule.ID}
	muts := []store.Mutation{
		store.Set(path, rule.Data()),
		r.audit.Mutation(ctx, audit.LogOptions{
			EntityType: models.CollectionStockRules, EntityID: rule.ID,
			Action: action, Description: "Regla de stock: " + rule.IngredientName,
			Before: before, After: rule.Data(),
		}),
	}
	if err := r.store.BatchCommit(ctx, muts); err != nil {
		return models.StockRule{}, fmt.Errorf("upsert stock rule: %w", err)
	}
	return rule, nil
}
