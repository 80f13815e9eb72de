// Package resolver extracts canonical stock and price values from ingredient
// documents written by any historical code path.
//
// Nothing outside this package reads the legacy field names directly.
package resolver

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Record is a loosely typed ingredient document as it comes out of the store.
type Record = map[string]any

// FieldMap lists, in priority order, the document fields that may carry a value.
type FieldMap struct {
	Version int
	Stock   []string
	Price   []string
	// SupplierData is consulted for price after every Price field failed.
	SupplierData string
}

// LegacyFieldsV1 covers every field name ingredient documents have used so far.
var LegacyFieldsV1 = FieldMap{
	Version: 1,
	Stock:   []string{"stockActual", "stock", "cantidad", "quantity", "quantityAvailable"},
	Price: []string{
		"precioCompra", "costo", "price", "unitPrice",
		"lastPrice", "cost", "standardPrice", "averageUnitCost",
	},
	SupplierData: "supplierData",
}

// Canonical write targets. Writers always use these so later reads hit the
// highest priority field first.
const (
	StockField = "stockActual"
	PriceField = "precioCompra"
)

// ResolveStock returns the current stock of rec using LegacyFieldsV1.
func ResolveStock(rec Record) float64 {
	return LegacyFieldsV1.ResolveStock(rec)
}

// ResolvePrice returns the unit purchase price of rec using LegacyFieldsV1.
func ResolvePrice(rec Record) float64 {
	return LegacyFieldsV1.ResolvePrice(rec)
}

// ResolveStock: first strictly positive candidate wins; otherwise the first
// candidate that parses at all (a defined zero); otherwise 0.
func (m FieldMap) ResolveStock(rec Record) float64 {
	if v, ok := firstPositive(rec, m.Stock); ok {
		return v
	}
	for _, f := range m.Stock {
		if v, ok := toNumber(rec[f]); ok {
			return math.Max(0, v)
		}
	}
	return 0
}

// ResolvePrice has no second pass: a price of zero is the same as no price.
func (m FieldMap) ResolvePrice(rec Record) float64 {
	if v, ok := firstPositive(rec, m.Price); ok {
		return v
	}
	if m.SupplierData == "" {
		return 0
	}
	if v, ok := firstSupplierPrice(rec[m.SupplierData]); ok && v > 0 {
		return v
	}
	return 0
}

func firstPositive(rec Record, fields []string) (float64, bool) {
	for _, f := range fields {
		if v, ok := toNumber(rec[f]); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// firstSupplierPrice reads the price of the first supplierData entry. Maps are
// visited in supplier ID order so the result is stable.
func firstSupplierPrice(raw any) (float64, bool) {
	switch sd := raw.(type) {
	case map[string]any:
		if len(sd) == 0 {
			return 0, false
		}
		keys := make([]string, 0, len(sd))
		for k := range sd {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return entryPrice(sd[keys[0]])
	case []any:
		if len(sd) == 0 {
			return 0, false
		}
		return entryPrice(sd[0])
	}
	return 0, false
}

func entryPrice(raw any) (float64, bool) {
	entry, ok := raw.(map[string]any)
	if !ok {
		return toNumber(raw)
	}
	return toNumber(entry["price"])
}

// toNumber accepts JSON numbers and strings with a decimal comma.
func toNumber(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case nil:
		return 0, false
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case int32:
		v = float64(n)
	case uint:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		s := strings.TrimSpace(strings.Replace(n, ",", ".", 1))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// StockPatch is the update that sets stock to v: the canonical field gets v and
// every lower priority stock field is nulled, so a legacy positive value can
// not shadow a deliberate zero.
func StockPatch(v float64) Record {
	return LegacyFieldsV1.StockPatch(v)
}

func (m FieldMap) StockPatch(v float64) Record {
	patch := Record{StockField: math.Max(0, v)}
	for _, f := range m.Stock {
		if f != StockField {
			patch[f] = nil
		}
	}
	return patch
}
