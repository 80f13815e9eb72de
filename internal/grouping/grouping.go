// Package grouping buckets order items or ingredients by the supplier that
// provides them.
package grouping

import (
	"procurement-backend/internal/models"
)

const (
	// GenericProvider is the provider ID of items nobody supplies.
	GenericProvider = "generic_provider"
	// UnassignedLabel is the display name of the GenericProvider group.
	UnassignedLabel = "Sin asignar"
)

// Item is anything that can name its provider, either explicitly or through a
// list of candidate suppliers of which the first one counts.
type Item interface {
	ProviderRef() (explicit string, candidates []string)
}

// Directory resolves supplier IDs to display names.
type Directory interface {
	SupplierName(id string) (string, bool)
}

// MapDirectory is a Directory over an ID -> name map.
type MapDirectory map[string]string

func (d MapDirectory) SupplierName(id string) (string, bool) {
	name, ok := d[id]
	return name, ok && name != ""
}

// DirectoryFromSuppliers builds a MapDirectory from the supplier list.
func DirectoryFromSuppliers(suppliers []models.Supplier) MapDirectory {
	d := make(MapDirectory, len(suppliers))
	for _, s := range suppliers {
		d[s.ID] = s.Name
	}
	return d
}

type Group[T Item] struct {
	ProviderID   string `json:"providerId"`
	ProviderName string `json:"providerName"`
	Items        []T    `json:"items"`
}

// ProviderID resolves the provider of one item: explicit field, then the first
// candidate, then GenericProvider.
func ProviderID(it Item) string {
	explicit, candidates := it.ProviderRef()
	if explicit != "" {
		return explicit
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return GenericProvider
}

// ProviderName: directory name, else the ID itself, else UnassignedLabel for
// the sentinel.
func ProviderName(id string, dir Directory) string {
	if id == GenericProvider {
		return UnassignedLabel
	}
	if dir != nil {
		if name, ok := dir.SupplierName(id); ok {
			return name
		}
	}
	return id
}

// GroupByProvider partitions items by provider. Groups come out in the order
// their provider was first seen, items keep their input order inside a group.
func GroupByProvider[T Item](items []T, dir Directory) []Group[T] {
	var groups []Group[T]
	index := map[string]int{}
	for _, it := range items {
		id := ProviderID(it)
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group[T]{ProviderID: id, ProviderName: ProviderName(id, dir)})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// NameItems fills the ProviderID and ProviderName of order items from their
// ingredients' supplier lists when the item does not carry one. Used to show
// provider names on history lines that only stored an ingredient ID.
func NameItems(items []models.OrderItem, ingredients map[string]models.Ingredient, dir Directory) []models.OrderItem {
	out := make([]models.OrderItem, len(items))
	for i, it := range items {
		if it.ProviderID == "" {
			if ing, ok := ingredients[it.IngredientID]; ok {
				it.ProviderID = ProviderID(ing)
			} else {
				it.ProviderID = GenericProvider
			}
		}
		if it.ProviderName == "" {
			it.ProviderName = ProviderName(it.ProviderID, dir)
		}
		out[i] = it
	}
	return out
}
