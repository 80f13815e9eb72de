package inventory

import (
	"context"
	"errors"
	"testing"

	"procurement-backend/internal/models"
	"procurement-backend/internal/store"
)

func newRepo(t *testing.T) (*Repository, *store.Memory) {
	t.Helper()
	st := store.NewMemory(0, nil, nil)
	return NewRepository(st, nil, nil), st
}

func TestCreateIngredientDefaults(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	ing, err := repo.CreateIngredient(ctx, IngredientInput{Name: "  Limón ", Stock: 4, Price: 0.2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ing.Name != "Limón" || ing.Category != models.DefaultCategory {
		t.Fatalf("unexpected ingredient: %+v", ing)
	}
	got, err := repo.Ingredient(ctx, ing.ID)
	if err != nil || got.Stock != 4 || got.Price != 0.2 {
		t.Fatalf("reload: %+v %v", got, err)
	}

	if _, err := repo.CreateIngredient(ctx, IngredientInput{Name: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestUpdateIngredientKeepsUnownedFields(t *testing.T) {
	repo, st := newRepo(t)
	ctx := context.Background()
	path := IngredientPath("legacy")
	if err := st.BatchCommit(ctx, []store.Mutation{store.Set(path, map[string]any{
		"nombre": "Azúcar", "stock": 12.0, "costo": "1,10", "notas": "granel",
	})}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	zero := 0.0
	ing, err := repo.UpdateIngredient(ctx, "legacy", IngredientPatch{Stock: &zero})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ing.Stock != 0 || ing.Price != 1.1 {
		t.Fatalf("unexpected resolved values: stock=%v price=%v", ing.Stock, ing.Price)
	}
	doc, _ := st.Get(ctx, path)
	if doc.Data["notas"] != "granel" || doc.Data["nombre"] != "Azúcar" {
		t.Fatalf("unowned fields lost: %v", doc.Data)
	}

	if _, err := repo.UpdateIngredient(ctx, "missing", IngredientPatch{Stock: &zero}); !errors.Is(err, ErrIngredientNotFound) {
		t.Fatalf("want ErrIngredientNotFound, got %v", err)
	}
}

func TestUpsertRuleKeepsOneRulePerIngredient(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	ing, _ := repo.CreateIngredient(ctx, IngredientInput{Name: "Hielo"})

	first, err := repo.UpsertRule(ctx, models.StockRule{IngredientID: ing.ID, MinStock: 5, ReorderQuantity: 20, Active: true})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := repo.UpsertRule(ctx, models.StockRule{IngredientID: ing.ID, MinStock: 8, ReorderQuantity: 30, Active: true})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID || second.IngredientName != "Hielo" {
		t.Fatalf("rule not reused: %+v %+v", first, second)
	}
	rules, _ := repo.Rules(ctx)
	if len(rules) != 1 || rules[0].MinStock != 8 {
		t.Fatalf("unexpected rules: %+v", rules)
	}

	if _, err := repo.UpsertRule(ctx, models.StockRule{IngredientID: "nope", MinStock: 1, ReorderQuantity: 1}); !errors.Is(err, ErrIngredientNotFound) {
		t.Fatalf("want ErrIngredientNotFound, got %v", err)
	}
}

func TestDirectoryFromSuppliers(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	s, err := repo.CreateSupplier(ctx, "Makro", "")
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	dir, err := repo.Directory(ctx)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	if name, ok := dir.SupplierName(s.ID); !ok || name != "Makro" {
		t.Fatalf("unexpected directory entry: %q %v", name, ok)
	}
}
