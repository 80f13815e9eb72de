package replenishment

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"

	"github.com/gofiber/fiber/v2"

	"procurement-backend/internal/batch"
	"procurement-backend/internal/config"
	"procurement-backend/internal/database"
	"procurement-backend/internal/grouping"
	"procurement-backend/internal/inventory"
	"procurement-backend/internal/ledger"
	"procurement-backend/internal/models"
	"procurement-backend/internal/store"
)

func rule(ingredientID string, min, reorder float64, active bool) models.StockRule {
	return models.StockRule{IngredientID: ingredientID, MinStock: min, ReorderQuantity: reorder, Active: active}
}

func ids(ings []models.Ingredient) []string {
	out := make([]string, 0, len(ings))
	for _, ing := range ings {
		out = append(out, ing.ID)
	}
	sort.Strings(out)
	return out
}

func TestEvaluateCritical(t *testing.T) {
	ingredients := []models.Ingredient{
		{ID: "below-rule", Stock: 2},
		{ID: "at-rule", Stock: 5},
		{ID: "above-rule", Stock: 10},
		{ID: "fallback", Stock: 3, MinStock: 4},
		{ID: "no-threshold", Stock: 0},
		{ID: "inactive-rule", Stock: 1},
		{ID: "rule-wins", Stock: 3, MinStock: 10},
	}
	rules := []models.StockRule{
		rule("below-rule", 5, 20, true),
		rule("at-rule", 5, 10, true),
		rule("above-rule", 5, 10, true),
		rule("inactive-rule", 5, 10, false),
		rule("rule-wins", 2, 10, true),
	}

	got := ids(EvaluateCritical(ingredients, rules))
	want := []string{"at-rule", "below-rule", "fallback"}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}

func TestBuildDraftQuantities(t *testing.T) {
	critical := []models.Ingredient{
		{ID: "a", Name: "Lima", Stock: 2, Price: 1.5, PurchaseUnit: "kg", SupplierIDs: []string{"s1", "s2"}},
		{ID: "b", Name: "Ron", Stock: 12, Price: 10},
		{ID: "c", Name: "Menta", Stock: 3.5, MinStock: 3.6, Price: 0.8},
	}
	rules := []models.StockRule{
		rule("a", 5, 20, true),
		rule("b", 15, 12.5, true),
	}

	items := BuildDraft(critical, rules)
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d", len(items))
	}
	if items[0].Quantity != 18 || items[0].EstimatedCost != 27 || items[0].Unit != "kg" || items[0].ProviderID != "s1" {
		t.Fatalf("item a: %+v", items[0])
	}
	if items[1].Quantity != 1 || items[1].ProviderID != grouping.GenericProvider || items[1].Unit != "und" {
		t.Fatalf("reorder below stock still orders one unit: %+v", items[1])
	}
	if items[2].Quantity != 1 || items[2].EstimatedCost != 0.8 {
		t.Fatalf("fallback threshold item: %+v", items[2])
	}
}

type fixture struct {
	store  store.Store
	repo   *inventory.Repository
	ledger *ledger.Ledger
	engine *Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemory(0, nil, nil))
}

func newFixtureOn(t *testing.T, st store.Store) fixture {
	t.Helper()
	repo := inventory.NewRepository(st, nil, nil)
	l := ledger.New(st, batch.NewWriter(st, 500, nil), repo, nil, 0, nil)
	return fixture{store: st, repo: repo, ledger: l, engine: NewEngine(repo, l, nil)}
}

func sqliteStore(t *testing.T) store.Store {
	t.Helper()
	db, err := database.Open(&config.Config{DatabaseDSN: "sqlite:" + filepath.Join(t.TempDir(), "replenishment.db")}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store.NewGorm(db, 0, nil, nil)
}

func backends(t *testing.T, fn func(t *testing.T, f fixture)) {
	t.Run("memory", func(t *testing.T) { fn(t, newFixture(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newFixtureOn(t, sqliteStore(t))) })
}

func (f fixture) seedIngredient(t *testing.T, id string, data map[string]any) {
	t.Helper()
	if err := f.store.BatchCommit(context.Background(), []store.Mutation{
		store.Set(inventory.IngredientPath(id), data),
	}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestCreateDraftOrdersGroupsByProvider(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		ctx := context.Background()

		makro, err := f.repo.CreateSupplier(ctx, "Makro", "")
		if err != nil {
			t.Fatalf("supplier: %v", err)
		}
		f.seedIngredient(t, "lima", map[string]any{"name": "Lima", "stock": "1", "precioCompra": 2, "supplierIds": []any{makro.ID}})
		f.seedIngredient(t, "ron", map[string]any{"name": "Ron", "stockActual": 0, "precioCompra": 10, "supplierIds": []any{makro.ID}})
		f.seedIngredient(t, "hielo", map[string]any{"name": "Hielo", "stock": 2, "minStock": 5})
		f.seedIngredient(t, "sal", map[string]any{"name": "Sal", "stock": 50})

		for _, r := range []models.StockRule{rule("lima", 3, 10, true), rule("ron", 2, 6, true)} {
			if _, err := f.repo.UpsertRule(ctx, r); err != nil {
				t.Fatalf("rule: %v", err)
			}
		}

		sheets, err := f.engine.CreateDraftOrders(ctx)
		if err != nil {
			t.Fatalf("create drafts: %v", err)
		}
		if len(sheets) != 2 {
			t.Fatalf("want 2 provider orders, got %+v", sheets)
		}
		byProvider := map[string]ledger.SheetOrder{}
		for _, s := range sheets {
			byProvider[s.ProviderID] = s
		}
		if byProvider[makro.ID].Items != 2 || byProvider[grouping.GenericProvider].Items != 1 {
			t.Fatalf("unexpected groups: %+v", sheets)
		}

		o, err := f.ledger.Order(ctx, byProvider[makro.ID].OrderIDs[0])
		if err != nil {
			t.Fatalf("load order: %v", err)
		}
		if o.Status != models.OrderDraft {
			t.Fatalf("want draft, got %s", o.Status)
		}
		qty := map[string]float64{}
		for _, it := range o.Items {
			qty[it.IngredientID] = it.Quantity
		}
		if qty["lima"] != 9 || qty["ron"] != 6 {
			t.Fatalf("unexpected quantities: %v", qty)
		}
		if o.TotalCost != 78 {
			t.Fatalf("want total 78, got %v", o.TotalCost)
		}

		// stock is untouched until the drafts are received
		lima, err := f.repo.Ingredient(ctx, "lima")
		if err != nil {
			t.Fatalf("load lima: %v", err)
		}
		if lima.Stock != 1 {
			t.Fatalf("draft creation changed stock: %v", lima.Stock)
		}
	})
}

func TestCreateDraftOrdersNothingCritical(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		f.seedIngredient(t, "sal", map[string]any{"name": "Sal", "stock": 50, "minStock": 5})

		sheets, err := f.engine.CreateDraftOrders(context.Background())
		if err != nil || len(sheets) != 0 {
			t.Fatalf("want no drafts, got %+v, %v", sheets, err)
		}
	})
}

func TestCriticalHandler(t *testing.T) {
	f := newFixture(t)
	f.seedIngredient(t, "hielo", map[string]any{"name": "Hielo", "stock": 2, "minStock": 5, "precioCompra": 1})

	app := fiber.New()
	app.Get("/api/replenishment/critical", CriticalHandler(f.engine))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/replenishment/critical", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Critical) != 1 || report.Critical[0].ID != "hielo" {
		t.Fatalf("critical: %+v", report.Critical)
	}
	if len(report.Draft) != 1 || report.Draft[0].Quantity != 3 || report.Draft[0].EstimatedCost != 3 {
		t.Fatalf("draft: %+v", report.Draft)
	}
}
