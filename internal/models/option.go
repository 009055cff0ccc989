package models

import (
	"fmt"
	"strings"
)

// OptionKind represents a dimension along which ingredients are classified
type OptionKind string

const (
	KindLocation OptionKind = "Location"
	KindUnit     OptionKind = "Unit"
	KindCategory OptionKind = "Category"
)

// OptionKinds lists every kind in display order
var OptionKinds = []OptionKind{KindLocation, KindUnit, KindCategory}

// ParseOptionKind accepts a kind name in any case, singular or plural
func ParseOptionKind(s string) (OptionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "location", "locations":
		return KindLocation, nil
	case "unit", "units":
		return KindUnit, nil
	case "category", "categories":
		return KindCategory, nil
	}
	return "", fmt.Errorf("unknown option kind %q", s)
}

// Valid reports whether k is one of the known kinds
func (k OptionKind) Valid() bool {
	return k == KindLocation || k == KindUnit || k == KindCategory
}

// Sentinel is the trailing "Add ..." entry text for the kind
func (k OptionKind) Sentinel() string {
	return "Add " + string(k)
}

// DocumentKey is the array field holding custom entries in the taxonomy document
func (k OptionKind) DocumentKey() string {
	if k == KindCategory {
		return "IngredientCategories"
	}
	return "Ingredient" + string(k) + "s"
}

// OptionOrigin tells where an option entry came from
type OptionOrigin string

const (
	OriginDefault  OptionOrigin = "default"
	OriginCustom   OptionOrigin = "custom"
	OriginSentinel OptionOrigin = "sentinel"
)

// OptionEntry is one value within an option kind
type OptionEntry struct {
	Kind   OptionKind   `json:"kind"`
	Value  string       `json:"value"`
	Origin OptionOrigin `json:"origin"`
}

// IsSentinel reports whether the entry is the non-selectable "Add ..." marker
func (e OptionEntry) IsSentinel() bool {
	return e.Origin == OriginSentinel
}

// Matches compares text with the entry value case-insensitively
func (e OptionEntry) Matches(text string) bool {
	return strings.EqualFold(e.Value, text)
}

// SentinelEntry returns the "Add ..." marker for kind
func SentinelEntry(kind OptionKind) OptionEntry {
	return OptionEntry{Kind: kind, Value: kind.Sentinel(), Origin: OriginSentinel}
}

// Bundled storage locations
const (
	LocationRefrigerator = "Refrigerator"
	LocationFreezer      = "Freezer"
	LocationDryStorage   = "Dry Storage"
	LocationSpiceRack    = "Spice Rack"
)

// Bundled units of measure
const (
	UnitGram       = "g"
	UnitKilogram   = "kg"
	UnitOunce      = "oz"
	UnitPound      = "lb"
	UnitMilliliter = "ml"
	UnitLiter      = "l"
	UnitPiece      = "pc"
	UnitBox        = "box"
)

// Bundled categories
const (
	CategoryProtein    = "Protein"
	CategoryProduce    = "Produce"
	CategoryDairy      = "Dairy"
	CategoryDryGoods   = "Dry Goods"
	CategorySpices     = "Spices"
	CategoryCondiments = "Condiments"
	CategoryBeverages  = "Beverages"
)

// DefaultOptions returns the app-bundled entries for kind
func DefaultOptions(kind OptionKind) []string {
	switch kind {
	case KindLocation:
		return []string{LocationRefrigerator, LocationFreezer, LocationDryStorage, LocationSpiceRack}
	case KindUnit:
		return []string{UnitGram, UnitKilogram, UnitOunce, UnitPound, UnitMilliliter, UnitLiter, UnitPiece, UnitBox}
	case KindCategory:
		return []string{CategoryProtein, CategoryProduce, CategoryDairy, CategoryDryGoods, CategorySpices, CategoryCondiments, CategoryBeverages}
	}
	return nil
}
