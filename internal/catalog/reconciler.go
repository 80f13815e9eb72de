package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"procurement-backend/internal/audit"
	"procurement-backend/internal/batch"
	"procurement-backend/internal/inventory"
	"procurement-backend/internal/logger"
	"procurement-backend/internal/models"
	"procurement-backend/internal/store"
)

// Summary is the end-of-import report. Created and Updated count distinct
// ingredients; Added counts supplier product lines.
type Summary struct {
	Added   int          `json:"added"`
	Created int          `json:"created"`
	Updated int          `json:"updated"`
	Skipped int          `json:"skipped"`
	Result  batch.Result `json:"result"`
}

type Reconciler struct {
	writer    *batch.Writer
	inventory *inventory.Repository
	audit     *audit.Service
	log       *logger.Logger
	now       func() time.Time
}

func NewReconciler(w *batch.Writer, inv *inventory.Repository, auditSvc *audit.Service, log *logger.Logger) *Reconciler {
	return &Reconciler{
		writer:    w,
		inventory: inv,
		audit:     auditSvc,
		log:       logger.OrNop(log).With("service", "CatalogReconciler"),
		now:       time.Now,
	}
}

// nameKey is the dedup key: case folded, inner whitespace collapsed. Matching
// is exact on this key, "Vodka Absolut" and "Vodka Absolut 70cl" stay apart.
func nameKey(c cases.Caser, name string) string {
	return c.String(strings.Join(strings.Fields(name), " "))
}

// samePrice compares supplier price entries at cent precision. LastUpdated is
// not part of the comparison.
func samePrice(a, b models.SupplierPrice) bool {
	pa := decimal.NewFromFloat(a.Price).Round(2)
	pb := decimal.NewFromFloat(b.Price).Round(2)
	return pa.Equal(pb) && strings.EqualFold(strings.TrimSpace(a.Unit), strings.TrimSpace(b.Unit))
}

// tracked is one ingredient the import run has looked at.
type tracked struct {
	ing      models.Ingredient
	isNew    bool
	linked   bool                  // supplier was in the list before the run
	initial  *models.SupplierPrice // entry for the supplier before the run
	firstRow int                   // first row that changed it, -1 if none
}

func (t *tracked) changed(supplierID string) bool {
	if t.isNew {
		return true
	}
	if !t.linked {
		return true
	}
	cur, ok := t.ing.SupplierData[supplierID]
	if !ok {
		return false
	}
	return t.initial == nil || !samePrice(*t.initial, cur)
}

// ImportCatalog merges a supplier price list into the catalog. Every row with
// a name appends a supplier product. Rows are matched to ingredients by
// case-insensitive name; a match gets the supplier linked and its price entry
// replaced when it differs, no match creates the ingredient. Later rows see
// ingredients created by earlier ones, so the last row for a name wins.
//
// Each ingredient is written once with its net change, placed right after the
// first product that changed it. A committed chunk therefore never holds a
// product whose ingredient create or link is still pending in a later chunk.
// Re-importing the same list writes no ingredient.
func (r *Reconciler) ImportCatalog(ctx context.Context, supplierID string, rows []Row) (Summary, error) {
	var (
		summary     Summary
		ingredients []models.Ingredient
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := r.inventory.Supplier(gctx, supplierID)
		return err
	})
	g.Go(func() error {
		var err error
		ingredients, err = r.inventory.Ingredients(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}

	fold := cases.Fold()
	index := make(map[string]*tracked, len(ingredients))
	for _, ing := range ingredients {
		key := nameKey(fold, ing.Name)
		if key == "" {
			continue
		}
		if _, dup := index[key]; dup {
			// duplicate names already stored: the first one listed receives prices
			continue
		}
		t := &tracked{ing: ing, linked: ing.HasSupplier(supplierID), firstRow: -1}
		if e, ok := ing.SupplierData[supplierID]; ok {
			t.initial = &e
		}
		index[key] = t
	}

	now := r.now()
	perRow := make([][]store.Mutation, len(rows))
	var touched []*tracked

	for i, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			summary.Skipped++
			r.log.Debug("catalog row without name skipped", "line", row.Line)
			continue
		}
		unit := strings.TrimSpace(row.Unit)
		if unit == "" {
			unit = DefaultUnit
		}

		product := models.SupplierProduct{
			SupplierID:  supplierID,
			Name:        name,
			Price:       row.Price,
			Unit:        unit,
			LastUpdated: now,
		}
		perRow[i] = append(perRow[i], store.Set(
			store.Path{Collection: models.CollectionSupplierProducts, ID: uuid.NewString()},
			product.Data(),
		))
		summary.Added++

		entry := models.SupplierPrice{Price: row.Price, Unit: unit, LastUpdated: now}
		key := nameKey(fold, name)
		t, ok := index[key]
		if !ok {
			t = &tracked{
				isNew: true,
				ing: models.Ingredient{
					ID:           uuid.NewString(),
					Name:         name,
					Category:     models.DefaultCategory,
					Price:        row.Price,
					PurchaseUnit: unit,
					SupplierIDs:  []string{supplierID},
					SupplierData: map[string]models.SupplierPrice{supplierID: entry},
					CreatedAt:    now,
				},
				firstRow: i,
			}
			index[key] = t
			touched = append(touched, t)
			continue
		}

		dirty := false
		if !t.ing.HasSupplier(supplierID) {
			t.ing.SupplierIDs = append(append([]string(nil), t.ing.SupplierIDs...), supplierID)
			dirty = true
		}
		if cur, ok := t.ing.SupplierData[supplierID]; !ok || !samePrice(cur, entry) {
			sd := make(map[string]models.SupplierPrice, len(t.ing.SupplierData)+1)
			for k, v := range t.ing.SupplierData {
				sd[k] = v
			}
			sd[supplierID] = entry
			t.ing.SupplierData = sd
			dirty = true
		}
		if dirty && t.firstRow < 0 {
			t.firstRow = i
			touched = append(touched, t)
		}
	}

	for _, t := range touched {
		if !t.changed(supplierID) {
			continue
		}
		// the write carries the state after the last row but goes with the first
		// one, later rows of the same name only add products
		path := inventory.IngredientPath(t.ing.ID)
		if t.isNew {
			perRow[t.firstRow] = append(perRow[t.firstRow], store.Set(path, t.ing.Data()))
			summary.Created++
			continue
		}
		perRow[t.firstRow] = append(perRow[t.firstRow], store.Update(path, map[string]any{
			"supplierIds":  stringsToAny(t.ing.SupplierIDs),
			"supplierData": models.SupplierDataValue(t.ing.SupplierData),
		}))
		summary.Updated++
	}

	var muts []store.Mutation
	for _, m := range perRow {
		muts = append(muts, m...)
	}
	if len(muts) == 0 {
		return summary, nil
	}
	muts = append(muts, r.audit.Mutation(ctx, audit.LogOptions{
		EntityType: models.CollectionSuppliers, EntityID: supplierID,
		Action: models.AuditActionImport,
		Description: fmt.Sprintf("Catálogo importado: %d productos, %d ingredientes nuevos, %d actualizados, %d omitidos",
			summary.Added, summary.Created, summary.Updated, summary.Skipped),
	}))

	res, err := r.writer.CommitChunked(ctx, muts)
	summary.Result = res
	if err != nil {
		r.log.Error("catalog import incomplete",
			"supplier_id", supplierID, "failed_chunk", res.FailedAtIndex, "committed", res.Committed, "error", err)
		return summary, fmt.Errorf("import catalog: %w", err)
	}
	r.log.Info("catalog imported", "supplier_id", supplierID,
		"added", summary.Added, "created", summary.Created, "updated", summary.Updated, "skipped", summary.Skipped)
	return summary, nil
}

func stringsToAny(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}
