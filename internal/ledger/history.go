package ledger

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"procurement-backend/internal/grouping"
	"procurement-backend/internal/models"
	"procurement-backend/internal/store"
)

type Source string

const (
	SourceCurrent Source = "current"
	SourceLegacy  Source = "legacy"
)

// HistoryEntry is one line of the unified order history. Order is always the
// unified view; Legacy is set only for entries that came from a purchase event.
type HistoryEntry struct {
	Source Source                `json:"source"`
	Order  models.Order          `json:"order"`
	Legacy *models.PurchaseEvent `json:"legacy,omitempty"`
}

// Receivable: only current drafts can go through ReceiveOrder.
func (e HistoryEntry) Receivable() bool {
	return e.Source == SourceCurrent && e.Order.Status == models.OrderDraft
}

// LegacyOrder synthesizes the single-item order a purchase event stands for.
func LegacyOrder(p models.PurchaseEvent, ingredients map[string]models.Ingredient) models.Order {
	name := p.IngredientID
	unit := p.Unit
	if ing, ok := ingredients[p.IngredientID]; ok {
		name = ing.Name
		if unit == "" {
			unit = ing.PurchaseUnit
		}
	}
	return models.Order{
		ID: p.ID,
		Items: []models.OrderItem{{
			IngredientID:   p.IngredientID,
			IngredientName: name,
			Quantity:       p.Quantity,
			Unit:           unit,
			EstimatedCost:  p.TotalCost,
			ProviderID:     p.ProviderID,
		}},
		TotalCost: p.TotalCost,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

// unify merges both record shapes, names providers and sorts newest first.
func unify(orders, purchases []store.Document, ingredients map[string]models.Ingredient, dir grouping.Directory) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(orders)+len(purchases))
	for _, d := range orders {
		o := models.OrderFromData(d.ID(), d.Data, d.CreatedAt)
		o.Items = grouping.NameItems(o.Items, ingredients, dir)
		out = append(out, HistoryEntry{Source: SourceCurrent, Order: o})
	}
	for _, d := range purchases {
		p := models.PurchaseEventFromData(d.ID(), d.Data, d.CreatedAt)
		o := LegacyOrder(p, ingredients)
		o.Items = grouping.NameItems(o.Items, ingredients, dir)
		out = append(out, HistoryEntry{Source: SourceLegacy, Order: o, Legacy: &p})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Order, out[j].Order
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// lookups loads what history rendering needs besides the orders themselves.
func (l *Ledger) lookups(ctx context.Context) (map[string]models.Ingredient, grouping.MapDirectory, error) {
	var (
		ingredients map[string]models.Ingredient
		dir         grouping.MapDirectory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ingredients, err = l.inventory.IngredientIndex(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		dir, err = l.inventory.Directory(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ingredients, dir, nil
}

// ListUnifiedHistory returns current orders and legacy purchase events as one
// list, newest first.
func (l *Ledger) ListUnifiedHistory(ctx context.Context) ([]HistoryEntry, error) {
	var (
		orders, purchases []store.Document
		ingredients       map[string]models.Ingredient
		dir               grouping.MapDirectory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = l.store.Query(gctx, models.CollectionOrders)
		return err
	})
	g.Go(func() error {
		var err error
		purchases, err = l.store.Query(gctx, models.CollectionPurchases)
		return err
	})
	g.Go(func() error {
		var err error
		ingredients, dir, err = l.lookups(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return unify(orders, purchases, ingredients, dir), nil
}

// Watch emits the unified history once both collections delivered their first
// snapshot, then again after every change to either. The channel closes with ctx.
func (l *Ledger) Watch(ctx context.Context) (<-chan []HistoryEntry, error) {
	ctx, cancel := context.WithCancel(ctx)
	ordersCh, err := l.store.Subscribe(ctx, models.CollectionOrders)
	if err != nil {
		cancel()
		return nil, err
	}
	purchasesCh, err := l.store.Subscribe(ctx, models.CollectionPurchases)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan []HistoryEntry, 1)
	go func() {
		defer cancel()
		defer close(out)
		var (
			orders, purchases   []store.Document
			haveOrders, havePur bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-ordersCh:
				if !ok {
					return
				}
				orders, haveOrders = s.Docs, true
			case s, ok := <-purchasesCh:
				if !ok {
					return
				}
				purchases, havePur = s.Docs, true
			}
			if !haveOrders || !havePur {
				continue
			}
			ingredients, dir, err := l.lookups(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.log.Warn("history refresh failed", "error", err)
				continue
			}
			select {
			case out <- unify(orders, purchases, ingredients, dir):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
