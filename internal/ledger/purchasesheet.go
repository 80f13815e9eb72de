package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"procurement-backend/internal/grouping"
	"procurement-backend/internal/models"
)

// SheetOrder is one per-provider order of a purchase sheet.
type SheetOrder struct {
	ProviderID   string   `json:"providerId"`
	ProviderName string   `json:"providerName"`
	OrderIDs     []string `json:"orderIds"`
	Items        int      `json:"items"`
}

// GeneratePurchaseSheet turns a cart into one order per provider, named
// "<name> - <provider>". Items without a provider get the first supplier of
// their ingredient. On failure the sheets created so far are returned.
func (l *Ledger) GeneratePurchaseSheet(ctx context.Context, cart []models.OrderItem, name string, status models.OrderStatus) ([]SheetOrder, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyOrder
	}
	if _, err := normalizeStatus(status); err != nil {
		return nil, err
	}
	ingredients, dir, err := l.lookups(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Hoja de compra " + l.now().Format("2006-01-02")
	}

	items := grouping.NameItems(cart, ingredients, dir)
	groups := grouping.GroupByProvider(items, dir)
	out := make([]SheetOrder, 0, len(groups))
	for _, g := range groups {
		ids, err := l.CreateOrder(ctx, g.Items, name+" - "+g.ProviderName, status)
		if len(ids) > 0 {
			out = append(out, SheetOrder{ProviderID: g.ProviderID, ProviderName: g.ProviderName, OrderIDs: ids, Items: len(g.Items)})
		}
		if err != nil {
			return out, fmt.Errorf("purchase sheet for %s: %w", g.ProviderName, err)
		}
	}
	return out, nil
}

var csvHeader = []string{"Ingrediente", "Cantidad", "Unidad", "Costo Total", "Fecha"}

// WritePurchaseSheetCSV writes one row per order item with the cost rounded to
// two decimals.
func WritePurchaseSheetCSV(w io.Writer, o models.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	date := o.CreatedAt.Format("2006-01-02")
	for _, it := range o.Items {
		row := []string{
			it.IngredientName,
			strconv.FormatFloat(it.Quantity, 'f', -1, 64),
			it.Unit,
			strconv.FormatFloat(it.EstimatedCost, 'f', 2, 64),
			date,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
