package models

import "strconv"

// Ingredient represents an item tracked in the user's kitchen inventory
type Ingredient struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	BestBefore string  `json:"bestBefore"` // YYYY-MM-DD
	Location   string  `json:"location"`
	Unit       string  `json:"unit"`
	Category   string  `json:"category"`
}

// Identifier returns the store-assigned document id, empty until first persisted
func (i *Ingredient) Identifier() string {
	return i.ID
}

// AssignIdentifier records the store-assigned document id
func (i *Ingredient) AssignIdentifier(id string) {
	i.ID = id
}

// DisplayAmount formats the amount with one decimal place
func (i *Ingredient) DisplayAmount() string {
	return strconv.FormatFloat(i.Amount, 'f', 1, 64)
}

// Option returns the value of the enumerated field for kind
func (i *Ingredient) Option(kind OptionKind) string {
	switch kind {
	case KindLocation:
		return i.Location
	case KindUnit:
		return i.Unit
	case KindCategory:
		return i.Category
	}
	return ""
}

// SetOption sets the enumerated field for kind
func (i *Ingredient) SetOption(kind OptionKind, value string) {
	switch kind {
	case KindLocation:
		i.Location = value
	case KindUnit:
		i.Unit = value
	case KindCategory:
		i.Category = value
	}
}

// Clone returns a copy of the ingredient
func (i *Ingredient) Clone() *Ingredient {
	c := *i
	return &c
}
