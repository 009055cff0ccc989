package models

// Recipe represents a cooking recipe saved by the user
type Recipe struct {
	ID          string              `json:"id,omitempty"`
	Title       string              `json:"title"`
	Category    string              `json:"category"`
	Comments    string              `json:"comments"`
	PrepTime    int64               `json:"prepTime"` // minutes
	Servings    int64               `json:"servings"`
	Photo       string              `json:"photo"`
	Ingredients []IngredientSummary `json:"ingredients"`
}

// IngredientSummary is an ingredient embedded in a recipe. It has no identity of its own.
type IngredientSummary struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Identifier returns the store-assigned document id, empty until first persisted
func (r *Recipe) Identifier() string {
	return r.ID
}

// AssignIdentifier records the store-assigned document id
func (r *Recipe) AssignIdentifier(id string) {
	r.ID = id
}

// Clone returns a copy of the recipe with its own ingredient slice
func (r *Recipe) Clone() *Recipe {
	c := *r
	if r.Ingredients != nil {
		c.Ingredients = make([]IngredientSummary, len(r.Ingredients))
		copy(c.Ingredients, r.Ingredients)
	}
	return &c
}
