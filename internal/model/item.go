package model

import (
	"maps"
	"time"

	"github.com/calvinalkan/opsync/pkg/collection"
)

// Item field names, as used by the inventory API. A category filter matches
// the category id, as the backend does; the name is display only.
const (
	ItemID           = "id"
	ItemName         = "name"
	ItemSKU          = "sku"
	ItemCategory     = "category"
	ItemCategoryName = "category_name"
	ItemQuantity     = "quantity"
	ItemLocation     = "location"
	ItemArchived     = "archived"
	ItemUpdatedAt    = "updated_at"
)

// Item is an inventory item. Attributes holds backend-defined fields.
type Item struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	SKU          string            `json:"sku,omitempty" yaml:"sku,omitempty"`
	CategoryID   string            `json:"category,omitempty" yaml:"category,omitempty"`
	CategoryName string            `json:"category_name,omitempty" yaml:"category_name,omitempty"`
	Quantity     int               `json:"quantity" yaml:"quantity"`
	Location     string            `json:"location,omitempty" yaml:"location,omitempty"`
	Archived     bool              `json:"archived" yaml:"archived"`
	UpdatedAt    time.Time         `json:"updated_at" yaml:"updated_at"`
	Attributes   map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// EntityID returns the item id.
func (it Item) EntityID() string { return it.ID }

// Field returns a fixed field by name, or else the attribute with that name.
func (it Item) Field(name string) (any, bool) {
	switch name {
	case ItemID:
		return it.ID, true
	case ItemName:
		return it.Name, true
	case ItemSKU:
		return it.SKU, it.SKU != ""
	case ItemCategory:
		return it.CategoryID, it.CategoryID != ""
	case ItemCategoryName:
		return it.CategoryName, it.CategoryName != ""
	case ItemQuantity:
		return it.Quantity, true
	case ItemLocation:
		return it.Location, it.Location != ""
	case ItemArchived:
		return it.Archived, true
	case ItemUpdatedAt:
		return formatTime(it.UpdatedAt), !it.UpdatedAt.IsZero()
	}

	v, ok := it.Attributes[name]

	return v, ok
}

// WithField returns a copy with name set to value. The id cannot be changed.
func (it Item) WithField(name string, value any) Item {
	out := it
	out.Attributes = maps.Clone(it.Attributes)

	switch name {
	case ItemID:
	case ItemName:
		out.Name = asString(value)
	case ItemSKU:
		out.SKU = asString(value)
	case ItemCategory:
		out.CategoryID = asString(value)
	case ItemCategoryName:
		out.CategoryName = asString(value)
	case ItemQuantity:
		out.Quantity = asInt(value)
	case ItemLocation:
		out.Location = asString(value)
	case ItemArchived:
		out.Archived = asBool(value)
	case ItemUpdatedAt:
		out.UpdatedAt = asTime(value)
	default:
		if out.Attributes == nil {
			out.Attributes = make(map[string]string)
		}

		out.Attributes[name] = asString(value)
	}

	return out
}

// WithoutField returns a copy with name reset to its zero value.
func (it Item) WithoutField(name string) Item {
	out := it
	out.Attributes = maps.Clone(it.Attributes)

	switch name {
	case ItemID:
	case ItemName:
		out.Name = ""
	case ItemSKU:
		out.SKU = ""
	case ItemCategory:
		out.CategoryID = ""
	case ItemCategoryName:
		out.CategoryName = ""
	case ItemQuantity:
		out.Quantity = 0
	case ItemLocation:
		out.Location = ""
	case ItemArchived:
		out.Archived = false
	case ItemUpdatedAt:
		out.UpdatedAt = time.Time{}
	default:
		delete(out.Attributes, name)
	}

	return out
}

// Fields returns every set field except the id.
func (it Item) Fields() collection.Fields {
	f := collection.Fields{
		ItemName:     it.Name,
		ItemQuantity: it.Quantity,
		ItemArchived: it.Archived,
	}

	for name, v := range map[string]string{
		ItemSKU:          it.SKU,
		ItemCategory:     it.CategoryID,
		ItemCategoryName: it.CategoryName,
		ItemLocation:     it.Location,
		ItemUpdatedAt:    formatTime(it.UpdatedAt),
	} {
		if v != "" {
			f[name] = v
		}
	}

	for name, v := range it.Attributes {
		f[name] = v
	}

	return f
}

// FormatValue renders a field value for display and for wire payloads.
func FormatValue(v any) string {
	return asString(v)
}
