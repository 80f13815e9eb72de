// Package replenishment decides which ingredients need restocking and turns
// them into draft orders.
package replenishment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"procurement-backend/internal/grouping"
	"procurement-backend/internal/inventory"
	"procurement-backend/internal/ledger"
	"procurement-backend/internal/logger"
	"procurement-backend/internal/models"
)

// threshold is the effective restock rule of one ingredient.
type threshold struct {
	min     float64
	reorder float64 // 0 when the minimum comes from the ingredient itself
}

// ruleIndex keeps the first actionable rule per ingredient.
func ruleIndex(rules []models.StockRule) map[string]models.StockRule {
	idx := make(map[string]models.StockRule, len(rules))
	for _, r := range rules {
		if !r.Actionable() || r.IngredientID == "" {
			continue
		}
		if _, ok := idx[r.IngredientID]; !ok {
			idx[r.IngredientID] = r
		}
	}
	return idx
}

func thresholdFor(ing models.Ingredient, rules map[string]models.StockRule) (threshold, bool) {
	if r, ok := rules[ing.ID]; ok {
		return threshold{min: r.MinStock, reorder: r.ReorderQuantity}, true
	}
	if ing.MinStock > 0 {
		return threshold{min: ing.MinStock}, true
	}
	return threshold{}, false
}

// EvaluateCritical returns the ingredients whose stock is at or below their
// minimum. The minimum comes from an actionable rule, else from the
// ingredient's own MinStock; without either an ingredient is never critical.
func EvaluateCritical(ingredients []models.Ingredient, rules []models.StockRule) []models.Ingredient {
	idx := ruleIndex(rules)
	var out []models.Ingredient
	for _, ing := range ingredients {
		th, ok := thresholdFor(ing, idx)
		if ok && ing.Stock <= th.min {
			out = append(out, ing)
		}
	}
	return out
}

// BuildDraft computes one order line per critical ingredient. The quantity
// brings stock up to the reorder quantity (rule) or the minimum (fallback),
// and is at least 1.
func BuildDraft(critical []models.Ingredient, rules []models.StockRule) []models.OrderItem {
	idx := ruleIndex(rules)
	items := make([]models.OrderItem, 0, len(critical))
	for _, ing := range critical {
		th, ok := thresholdFor(ing, idx)
		target := th.min
		if th.reorder > 0 {
			target = th.reorder
		}
		qty := 1.0
		if ok {
			qty = max(1, target-ing.Stock)
		}
		unit := ing.PurchaseUnit
		if unit == "" {
			unit = "und"
		}
		cost := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(ing.Price)).Round(2)
		items = append(items, models.OrderItem{
			IngredientID:   ing.ID,
			IngredientName: ing.Name,
			Quantity:       qty,
			Unit:           unit,
			EstimatedCost:  cost.InexactFloat64(),
			ProviderID:     grouping.ProviderID(ing),
		})
	}
	return items
}

// Report is the current replenishment picture.
type Report struct {
	Critical []models.Ingredient `json:"critical"`
	Draft    []models.OrderItem  `json:"draft"`
}

type Engine struct {
	inventory *inventory.Repository
	ledger    *ledger.Ledger
	log       *logger.Logger
	now       func() time.Time
}

func NewEngine(inv *inventory.Repository, l *ledger.Ledger, log *logger.Logger) *Engine {
	return &Engine{
		inventory: inv,
		ledger:    l,
		log:       logger.OrNop(log).With("service", "ReplenishmentEngine"),
		now:       time.Now,
	}
}

// Evaluate loads the catalog and the rules and computes the report.
func (e *Engine) Evaluate(ctx context.Context) (Report, error) {
	var (
		ingredients []models.Ingredient
		rules       []models.StockRule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ingredients, err = e.inventory.Ingredients(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rules, err = e.inventory.Rules(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	critical := EvaluateCritical(ingredients, rules)
	return Report{Critical: critical, Draft: BuildDraft(critical, rules)}, nil
}

// CreateDraftOrders writes one draft order per provider for every critical
// ingredient. Nothing is written when no ingredient is critical.
func (e *Engine) CreateDraftOrders(ctx context.Context) ([]ledger.SheetOrder, error) {
	report, err := e.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if len(report.Draft) == 0 {
		return nil, nil
	}
	name := "Reposición " + e.now().Format("2006-01-02")
	sheets, err := e.ledger.GeneratePurchaseSheet(ctx, report.Draft, name, models.OrderDraft)
	if err != nil {
		return sheets, fmt.Errorf("create replenishment drafts: %w", err)
	}
	e.log.Info("replenishment drafts created", "critical", len(report.Critical), "orders", len(sheets))
	return sheets, nil
}
