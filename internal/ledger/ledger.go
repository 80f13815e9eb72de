// Package ledger owns procurement orders: creation, receipt into stock, status
// transitions and the history view that merges current orders with legacy
// purchase events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"procurement-backend/internal/audit"
	"procurement-backend/internal/batch"
	"procurement-backend/internal/inventory"
	"procurement-backend/internal/logger"
	"procurement-backend/internal/models"
	"procurement-backend/internal/resolver"
	"procurement-backend/internal/store"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotDraft     = errors.New("order is not a draft")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrEmptyOrder        = errors.New("order has no items")
)

// DefaultSplitThreshold is the item count above which an order is split.
const DefaultSplitThreshold = 500

const defaultOrderName = "Pedido"

type Ledger struct {
	store          store.Store
	writer         *batch.Writer
	inventory      *inventory.Repository
	audit          *audit.Service
	log            *logger.Logger
	splitThreshold int
	now            func() time.Time
}

// New: splitThreshold <= 0 falls back to DefaultSplitThreshold.
func New(s store.Store, w *batch.Writer, inv *inventory.Repository, auditSvc *audit.Service, splitThreshold int, log *logger.Logger) *Ledger {
	if splitThreshold <= 0 {
		splitThreshold = DefaultSplitThreshold
	}
	return &Ledger{
		store:          s,
		writer:         w,
		inventory:      inv,
		audit:          auditSvc,
		log:            logger.OrNop(log).With("service", "Ledger"),
		splitThreshold: splitThreshold,
		now:            time.Now,
	}
}

func orderPath(id string) store.Path {
	return store.Path{Collection: models.CollectionOrders, ID: id}
}

// Order loads one current-shape order.
func (l *Ledger) Order(ctx context.Context, id string) (models.Order, error) {
	doc, err := l.store.Get(ctx, orderPath(id))
	if errors.Is(err, store.ErrNotFound) {
		return models.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return models.Order{}, err
	}
	return models.OrderFromData(doc.ID(), doc.Data, doc.CreatedAt), nil
}

// TotalCost sums estimated costs in decimal so split totals add up exactly.
func TotalCost(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.NewFromFloat(it.EstimatedCost))
	}
	return total
}

// SplitItems cuts items into consecutive parts of at most threshold items.
func SplitItems(items []models.OrderItem, threshold int) [][]models.OrderItem {
	if threshold <= 0 || len(items) <= threshold {
		return [][]models.OrderItem{items}
	}
	var parts [][]models.OrderItem
	for start := 0; start < len(items); start += threshold {
		end := start + threshold
		if end > len(items) {
			end = len(items)
		}
		parts = append(parts, items[start:end])
	}
	return parts
}

// PartName names part i (1-based) of n.
func PartName(name string, i, n int) string {
	if n <= 1 {
		return name
	}
	if strings.TrimSpace(name) == "" {
		name = defaultOrderName
	}
	return fmt.Sprintf("%s (Parte %d/%d)", name, i, n)
}

func normalizeStatus(status models.OrderStatus) (models.OrderStatus, error) {
	switch status {
	case "":
		return models.OrderDraft, nil
	case models.OrderDraft, models.OrderCompleted:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q cannot be a creation status", ErrInvalidStatus, status)
}

// buildOrders splits items and builds one order per part.
func (l *Ledger) buildOrders(items []models.OrderItem, name string, status models.OrderStatus) []models.Order {
	parts := SplitItems(items, l.splitThreshold)
	now := l.now()
	orders := make([]models.Order, 0, len(parts))
	for i, part := range parts {
		orders = append(orders, models.Order{
			ID:        uuid.NewString(),
			Name:      PartName(strings.TrimSpace(name), i+1, len(parts)),
			Items:     part,
			TotalCost: TotalCost(part).InexactFloat64(),
			Status:    status,
			CreatedAt: now,
		})
	}
	return orders
}

func (l *Ledger) orderMutations(ctx context.Context, o models.Order) []store.Mutation {
	data := o.Data()
	return []store.Mutation{
		store.Set(orderPath(o.ID), data),
		l.audit.Mutation(ctx, audit.LogOptions{
			EntityType: models.CollectionOrders, EntityID: o.ID,
			Action: models.AuditActionCreate, Description: "Pedido creado: " + o.Name,
			After: data,
		}),
	}
}

// CreateOrder stores items as one order, or as several "<name> (Parte i/n)"
// orders when there are more items than the split threshold. The parts are
// not created atomically as a set: on a chunk failure the IDs of the orders
// that did commit are returned with the error.
func (l *Ledger) CreateOrder(ctx context.Context, items []models.OrderItem, name string, status models.OrderStatus) ([]string, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	status, err := normalizeStatus(status)
	if err != nil {
		return nil, err
	}

	orders := l.buildOrders(items, name, status)
	var muts []store.Mutation
	ends := make([]int, 0, len(orders))
	for _, o := range orders {
		muts = append(muts, l.orderMutations(ctx, o)...)
		ends = append(ends, len(muts))
	}

	res, err := l.writer.CommitChunked(ctx, muts)
	ids := committedIDs(orders, ends, res.Committed)
	if err != nil {
		l.log.Error("order creation incomplete",
			"orders", len(orders), "committed_orders", len(ids), "failed_chunk", res.FailedAtIndex, "error", err)
		return ids, fmt.Errorf("create order: %w", err)
	}
	l.log.Info("orders created", "orders", len(ids), "items", len(items), "status", status)
	return ids, nil
}

// committedIDs: an order counts once every mutation up to ends[i] committed.
func committedIDs(orders []models.Order, ends []int, committed int) []string {
	ids := make([]string, 0, len(orders))
	for i, o := range orders {
		if ends[i] <= committed {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// ReceiptSummary reports what a receipt or bulk purchase applied.
type ReceiptSummary struct {
	OrderIDs []string     `json:"orderIds"`
	Applied  int          `json:"applied"`
	Missing  []string     `json:"missing"`
	Result   batch.Result `json:"result"`
}

// stockIncrements builds one stock update per distinct ingredient in items:
// resolved stock plus the summed quantity. Ingredients that no longer exist
// are skipped and returned in missing.
func (l *Ledger) stockIncrements(ctx context.Context, items []models.OrderItem) ([]store.Mutation, []string, error) {
	var order []string
	qty := map[string]decimal.Decimal{}
	for _, it := range items {
		if it.IngredientID == "" || it.Quantity <= 0 {
			continue
		}
		if _, ok := qty[it.IngredientID]; !ok {
			order = append(order, it.IngredientID)
			qty[it.IngredientID] = decimal.Zero
		}
		qty[it.IngredientID] = qty[it.IngredientID].Add(decimal.NewFromFloat(it.Quantity))
	}

	var (
		muts    []store.Mutation
		missing []string
	)
	for _, id := range order {
		doc, err := l.store.Get(ctx, inventory.IngredientPath(id))
		if errors.Is(err, store.ErrNotFound) {
			l.log.Warn("ingredient missing on receipt, item skipped", "ingredient_id", id)
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load ingredient %s: %w", id, err)
		}
		current := decimal.NewFromFloat(resolver.ResolveStock(doc.Data))
		next := current.Add(qty[id]).InexactFloat64()
		muts = append(muts, store.Update(doc.Path, resolver.StockPatch(next)))
	}
	return muts, missing, nil
}

// ReceiveOrder applies a draft order to stock and marks it completed. The
// status flip is the first mutation of the first chunk and requires the order
// to still be a draft, so a concurrent second receipt fails with
// ErrOrderNotDraft instead of counting the stock twice.
func (l *Ledger) ReceiveOrder(ctx context.Context, id string) (ReceiptSummary, error) {
	summary := ReceiptSummary{OrderIDs: []string{id}}
	o, err := l.Order(ctx, id)
	if err != nil {
		return summary, err
	}
	if o.Status != models.OrderDraft {
		return summary, fmt.Errorf("%w: %s is %s", ErrOrderNotDraft, id, o.Status)
	}

	stock, missing, err := l.stockIncrements(ctx, o.Items)
	if err != nil {
		return summary, err
	}
	summary.Missing = missing

	flip := store.Update(orderPath(id), map[string]any{
		"status":     string(models.OrderCompleted),
		"receivedAt": l.now().UTC().Format(time.RFC3339Nano),
	})
	flip.Expect = map[string]any{"status": string(models.OrderDraft)}

	muts := make([]store.Mutation, 0, len(stock)+2)
	muts = append(muts, flip)
	muts = append(muts, stock...)
	muts = append(muts, l.audit.Mutation(ctx, audit.LogOptions{
		EntityType: models.CollectionOrders, EntityID: id,
		Action: models.AuditActionReceive,
		Description: fmt.Sprintf("Pedido recibido: %d ingredientes actualizados, %d omitidos",
			len(stock), len(missing)),
		Before: o.Data(),
	}))

	res, err := l.writer.CommitChunked(ctx, muts)
	summary.Result = res
	var cerr *batch.ChunkCommitError
	if errors.As(err, &cerr) && cerr.Index == 0 && errors.Is(err, store.ErrPreconditionFailed) {
		return summary, fmt.Errorf("%w: %s", ErrOrderNotDraft, id)
	}
	// the flip is mutation 0, everything after it is a stock update until the audit entry
	summary.Applied = min(len(stock), max(0, res.Committed-1))
	if err != nil {
		l.log.Error("order receipt incomplete", "order_id", id, "failed_chunk", res.FailedAtIndex, "error", err)
		return summary, fmt.Errorf("receive order %s: %w", id, err)
	}
	l.log.Info("order received", "order_id", id, "applied", summary.Applied, "missing", len(missing))
	return summary, nil
}

// BulkPurchase records items as completed orders and adds their quantities to
// stock in the same chunked mutation set.
func (l *Ledger) BulkPurchase(ctx context.Context, items []models.OrderItem, name string) (ReceiptSummary, error) {
	var summary ReceiptSummary
	if len(items) == 0 {
		return summary, ErrEmptyOrder
	}
	stock, missing, err := l.stockIncrements(ctx, items)
	if err != nil {
		return summary, err
	}
	summary.Missing = missing

	if strings.TrimSpace(name) == "" {
		name = "Compra " + l.now().Format("2006-01-02")
	}
	orders := l.buildOrders(items, name, models.OrderCompleted)
	var muts []store.Mutation
	ends := make([]int, 0, len(orders))
	for _, o := range orders {
		muts = append(muts, l.orderMutations(ctx, o)...)
		ends = append(ends, len(muts))
	}
	ordersEnd := len(muts)
	muts = append(muts, stock...)

	res, err := l.writer.CommitChunked(ctx, muts)
	summary.Result = res
	summary.OrderIDs = committedIDs(orders, ends, res.Committed)
	summary.Applied = min(len(stock), max(0, res.Committed-ordersEnd))
	if err != nil {
		l.log.Error("bulk purchase incomplete", "failed_chunk", res.FailedAtIndex, "error", err)
		return summary, fmt.Errorf("bulk purchase: %w", err)
	}
	l.log.Info("bulk purchase recorded", "orders", len(orders), "applied", summary.Applied, "missing", len(missing))
	return summary, nil
}

// DeleteOrder removes a current-shape order. Stock already received is kept.
func (l *Ledger) DeleteOrder(ctx context.Context, id string) error {
	o, err := l.Order(ctx, id)
	if err != nil {
		return err
	}
	muts := []store.Mutation{
		store.Delete(orderPath(id)),
		l.audit.Mutation(ctx, audit.LogOptions{
			EntityType: models.CollectionOrders, EntityID: id,
			Action: models.AuditActionDelete, Description: "Pedido eliminado: " + o.Name,
			Before: o.Data(),
		}),
	}
	if err := l.store.BatchCommit(ctx, muts); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

// UpdateOrderStatus moves a draft to completed or cancelled without touching
// stock. Terminal orders never change.
func (l *Ledger) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	if status != models.OrderCompleted && status != models.OrderCancelled {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	o, err := l.Order(ctx, id)
	if err != nil {
		return err
	}
	if o.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, status)
	}

	upd := store.Update(orderPath(id), map[string]any{"status": string(status)})
	upd.Expect = map[string]any{"status": string(models.OrderDraft)}
	after := o
	after.Status = status
	muts := []store.Mutation{
		upd,
		l.audit.Mutation(ctx, audit.LogOptions{
			EntityType: models.CollectionOrders, EntityID: id,
			Action: models.AuditActionUpdate, Description: fmt.Sprintf("Estado del pedido: %s -> %s", o.Status, status),
			Before: o.Data(), After: after.Data(),
		}),
	}
	err = l.store.BatchCommit(ctx, muts)
	if errors.Is(err, store.ErrPreconditionFailed) {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, id)
	}
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	return nil
}
