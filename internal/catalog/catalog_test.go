package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"procurement-backend/internal/batch"
	"procurement-backend/internal/config"
	"procurement-backend/internal/database"
	"procurement-backend/internal/inventory"
	"procurement-backend/internal/models"
	"procurement-backend/internal/store"
)

type fixture struct {
	store store.Store
	repo  *inventory.Repository
	rec   *Reconciler
	sid   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemory(0, nil, nil))
}

func newFixtureOn(t *testing.T, st store.Store) fixture {
	t.Helper()
	repo := inventory.NewRepository(st, nil, nil)
	s, err := repo.CreateSupplier(context.Background(), "Makro", "")
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	return fixture{
		store: st,
		repo:  repo,
		rec:   NewReconciler(batch.NewWriter(st, 500, nil), repo, nil, nil),
		sid:   s.ID,
	}
}

func sqliteStore(t *testing.T) store.Store {
	t.Helper()
	db, err := database.Open(&config.Config{DatabaseDSN: "sqlite:" + filepath.Join(t.TempDir(), "catalog.db")}, nil)
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

func mustParse(t *testing.T, text string) []Row {
	t.Helper()
	rows, err := ParseCSV(strings.NewReader(text))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return rows
}

func TestParseCSVDelimitersAndDefaults(t *testing.T) {
	rows := mustParse(t, "\ufeffNombre;Precio;Unidad\n"+
		"Ron Blanco;12,40;botella\n"+
		"\n"+
		"Vodka Absolut,25,50,ud\n"+
		"Lima,0.35\n"+
		"Hielo;gratis;kg\n")

	want := []Row{
		{Line: 2, Name: "Ron Blanco", Price: 12.4, Unit: "botella"},
		{Line: 4, Name: "Vodka Absolut", Price: 25.5, Unit: "ud"},
		{Line: 5, Name: "Lima", Price: 0.35, Unit: DefaultUnit},
		{Line: 6, Name: "Hielo", Price: 0, Unit: "kg"},
	}
	if len(rows) != len(want) {
		t.Fatalf("want %d rows, got %d: %+v", len(want), len(rows), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d: want %+v, got %+v", i, want[i], rows[i])
		}
	}
}

func TestParseCSVQuotedDecimal(t *testing.T) {
	rows := mustParse(t, "name,price,unit\n\"Ginebra, premium\",\"18,90\",l\n")
	if len(rows) != 1 || rows[0].Name != "Ginebra, premium" || rows[0].Price != 18.9 || rows[0].Unit != "l" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range [][]interface{}{
		{"Nombre", "Precio", "Unidad"},
		{"Tónica", 1.25, "ud"},
		{},
		{"Azúcar", "2,10"},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	rows, err := ParseXLSX(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %+v", rows)
	}
	if rows[0].Name != "Tónica" || rows[0].Price != 1.25 || rows[0].Unit != "ud" {
		t.Fatalf("row 0: %+v", rows[0])
	}
	if rows[1].Name != "Azúcar" || rows[1].Price != 2.1 || rows[1].Unit != DefaultUnit {
		t.Fatalf("row 1: %+v", rows[1])
	}
}

func TestImportSameNameTwiceCreatesOneIngredient(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		rows := mustParse(t, "nombre,precio,unidad\nVodka Absolut,25,50,ud\nvodka absolut;26.00;ud\n")

		sum, err := f.rec.ImportCatalog(ctx, f.sid, rows)
		if err != nil {
			t.Fatalf("import: %v", err)
		}
		if sum.Added != 2 || sum.Created != 1 || sum.Updated != 0 || sum.Skipped != 0 {
			t.Fatalf("unexpected summary: %+v", sum)
		}
		if !sum.Result.Complete() {
			t.Fatalf("import not complete: %+v", sum.Result)
		}

		ings, err := f.repo.Ingredients(ctx)
		if err != nil {
			t.Fatalf("ingredients: %v", err)
		}
		if len(ings) != 1 {
			t.Fatalf("want 1 ingredient, got %d", len(ings))
		}
		ing := ings[0]
		if ing.Name != "Vodka Absolut" || ing.Category != models.DefaultCategory {
			t.Fatalf("unexpected ingredient: %+v", ing)
		}
		if ing.Price != 25.5 {
			t.Fatalf("purchase price should come from the first row, got %v", ing.Price)
		}
		if got := ing.SupplierData[f.sid]; got.Price != 26 || got.Unit != "ud" {
			t.Fatalf("supplier entry should reflect the last row, got %+v", got)
		}
		if len(ing.SupplierIDs) != 1 || ing.SupplierIDs[0] != f.sid {
			t.Fatalf("supplier ids: %v", ing.SupplierIDs)
		}

		products, err := f.repo.SupplierProducts(ctx, f.sid)
		if err != nil {
			t.Fatalf("products: %v", err)
		}
		if len(products) != 2 {
			t.Fatalf("want 2 supplier products, got %d", len(products))
		}
	})
}

func TestReimportIsIdempotentForIngredients(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		rows := mustParse(t, "nombre;precio;unidad\nVodka Absolut;25,50;ud\nVodka Absolut;26.00;ud\nRon;12;botella\n")

		if _, err := f.rec.ImportCatalog(ctx, f.sid, rows); err != nil {
			t.Fatalf("first import: %v", err)
		}
		before, err := f.store.Query(ctx, models.CollectionIngredients)
		if err != nil {
			t.Fatalf("query: %v", err)
		}

		sum, err := f.rec.ImportCatalog(ctx, f.sid, rows)
		if err != nil {
			t.Fatalf("second import: %v", err)
		}
		if sum.Created != 0 || sum.Updated != 0 || sum.Added != 3 {
			t.Fatalf("second import should only append products: %+v", sum)
		}

		after, err := f.store.Query(ctx, models.CollectionIngredients)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(after) != len(before) {
			t.Fatalf("ingredient count changed: %d -> %d", len(before), len(after))
		}
		for i := range after {
			if !after[i].UpdatedAt.Equal(before[i].UpdatedAt) {
				t.Fatalf("ingredient %s was rewritten", after[i].ID())
			}
		}

		products, err := f.repo.SupplierProducts(ctx, f.sid)
		if err != nil {
			t.Fatalf("products: %v", err)
		}
		if len(products) != 6 {
			t.Fatalf("want 6 supplier products, got %d", len(products))
		}
	})
}

func TestImportLinksExistingIngredient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.BatchCommit(ctx, []store.Mutation{
		store.Set(inventory.IngredientPath("lima"), map[string]any{
			"nombre":      "LIMA",
			"cantidad":    "4",
			"proveedores": []any{"other"},
			"supplierData": map[string]any{
				"other": map[string]any{"price": 0.9, "unit": "kg"},
			},
		}),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sum, err := f.rec.ImportCatalog(ctx, f.sid, []Row{{Line: 2, Name: "  lima ", Price: 1.2, Unit: "kg"}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if sum.Created != 0 || sum.Updated != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	ing, err := f.repo.Ingredient(ctx, "lima")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ing.SupplierIDs) != 2 || ing.SupplierIDs[0] != "other" || ing.SupplierIDs[1] != f.sid {
		t.Fatalf("supplier ids: %v", ing.SupplierIDs)
	}
	if ing.SupplierData["other"].Price != 0.9 {
		t.Fatalf("other supplier entry lost: %+v", ing.SupplierData)
	}
	if ing.SupplierData[f.sid].Price != 1.2 {
		t.Fatalf("new supplier entry: %+v", ing.SupplierData[f.sid])
	}
	if ing.Stock != 4 || ing.Name != "LIMA" {
		t.Fatalf("fields outside the import were touched: %+v", ing)
	}
}

func TestImportTreatsCentEqualPricesAsUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.BatchCommit(ctx, []store.Mutation{
		store.Set(inventory.IngredientPath("ron"), map[string]any{
			"name":        "Ron",
			"supplierIds": []any{f.sid},
			"supplierData": map[string]any{
				f.sid: map[string]any{"price": 12.400000001, "unit": "botella"},
			},
		}),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sum, err := f.rec.ImportCatalog(ctx, f.sid, []Row{{Line: 2, Name: "Ron", Price: 12.4, Unit: "botella"}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if sum.Updated != 0 || sum.Created != 0 {
		t.Fatalf("price noise should not count as a change: %+v", sum)
	}
}

func TestImportSkipsNamelessRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows := []Row{
		{Line: 2, Name: "", Price: 3, Unit: "kg"},
		{Line: 3, Name: "Menta", Price: 0, Unit: "manojo"},
	}
	sum, err := f.rec.ImportCatalog(ctx, f.sid, rows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if sum.Skipped != 1 || sum.Added != 1 || sum.Created != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	ings, _ := f.repo.Ingredients(ctx)
	if len(ings) != 1 || ings[0].Price != 0 {
		t.Fatalf("unexpected ingredients: %+v", ings)
	}
}

func TestImportUnknownSupplier(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.ImportCatalog(context.Background(), "nope", []Row{{Name: "Lima", Price: 1}})
	if !errors.Is(err, inventory.ErrSupplierNotFound) {
		t.Fatalf("want ErrSupplierNotFound, got %v", err)
	}
}

// refusingStore fails its failAt-th BatchCommit.
type refusingStore struct {
	store.Store
	commits int
	failAt  int
}

func (s *refusingStore) BatchCommit(ctx context.Context, muts []store.Mutation) error {
	s.commits++
	if s.commits == s.failAt {
		return errors.New("commit refused")
	}
	return s.Store.BatchCommit(ctx, muts)
}

func TestImportPartialFailureKeepsProductsWithIngredients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// product + ingredient per new name, vodka's second row only adds a product,
	// plus the audit entry: 8 mutations in chunks of 2, the last one refused
	rows := mustParse(t, "nombre;precio;unidad\nVodka;10;ud\nRon;5;ud\nGin;7;ud\nvodka;12;ud\n")
	rs := &refusingStore{Store: f.store, failAt: 4}
	rec := NewReconciler(batch.NewWriter(rs, 2, nil), f.repo, nil, nil)

	sum, err := rec.ImportCatalog(ctx, f.sid, rows)
	var cerr *batch.ChunkCommitError
	if !errors.As(err, &cerr) || cerr.Index != 3 {
		t.Fatalf("want failure at chunk 3, got %v", err)
	}
	if sum.Result.CommittedChunks != 3 || sum.Result.TotalChunks != 4 {
		t.Fatalf("unexpected result: %+v", sum.Result)
	}

	products, err := f.repo.SupplierProducts(ctx, f.sid)
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("want 3 committed products, got %d", len(products))
	}
	ings, err := f.repo.Ingredients(ctx)
	if err != nil {
		t.Fatalf("ingredients: %v", err)
	}
	byName := map[string]models.Ingredient{}
	for _, ing := range ings {
		byName[strings.ToLower(ing.Name)] = ing
	}
	for _, p := range products {
		if _, ok := byName[strings.ToLower(p.Name)]; !ok {
			t.Fatalf("product %q committed without its ingredient", p.Name)
		}
	}
	if got := byName["vodka"].SupplierData[f.sid].Price; got != 12 {
		t.Fatalf("vodka should carry the last listed price, got %v", got)
	}
}
