package records

import (
	"fmt"

	"larder/internal/docstore"
	"larder/internal/models"
)

// RecipeCollection is the per-user collection name for recipes
const RecipeCollection = "Recipe"

// Recipe document fields
const (
	fieldTitle       = "Title"
	fieldComments    = "Comments"
	fieldIngredients = "Ingredients"
	fieldPhoto       = "Photo"
	fieldPrepTime    = "PrepTime"
	fieldServings    = "Servings"

	summaryName   = "name"
	summaryAmount = "amount"
)

// RecipeCodec maps recipes to documents
type RecipeCodec struct{}

// Encode embeds the ingredient summaries as an array of {name, amount}
func (RecipeCodec) Encode(r *models.Recipe) (docstore.Fields, error) {
	ingredients := make([]any, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		ingredients = append(ingredients, map[string]any{
			summaryName:   ing.Name,
			summaryAmount: ing.Amount,
		})
	}
	return docstore.Fields{
		fieldTitle:       r.Title,
		fieldCategory:    r.Category,
		fieldComments:    r.Comments,
		fieldIngredients: ingredients,
		fieldPhoto:       r.Photo,
		fieldPrepTime:    r.PrepTime,
		fieldServings:    r.Servings,
	}, nil
}

// Decode reads a recipe document
func (RecipeCodec) Decode(id string, f docstore.Fields) (*models.Recipe, error) {
	r := &models.Recipe{ID: id}
	var err error
	if r.Title, err = stringField(f, fieldTitle); err != nil {
		return nil, err
	}
	if r.Category, err = stringField(f, fieldCategory); err != nil {
		return nil, err
	}
	if r.Comments, err = stringField(f, fieldComments); err != nil {
		return nil, err
	}
	if r.Photo, err = stringField(f, fieldPhoto); err != nil {
		return nil, err
	}
	if r.PrepTime, err = intField(f, fieldPrepTime); err != nil {
		return nil, err
	}
	if r.Servings, err = intField(f, fieldServings); err != nil {
		return nil, err
	}
	if r.Ingredients, err = decodeSummaries(f[fieldIngredients]); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeSummaries(raw any) ([]models.IngredientSummary, error) {
	var items []map[string]any
	switch v := raw.(type) {
	case nil:
		return []models.IngredientSummary{}, nil
	case []map[string]any:
		items = v
	case []any:
		for i, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %s[%d]: want map, got %T", fieldIngredients, i, e)
			}
			items = append(items, m)
		}
	default:
		return nil, fmt.Errorf("field %s: want array, got %T", fieldIngredients, v)
	}

	out := make([]models.IngredientSummary, 0, len(items))
	for i, m := range items {
		name, err := stringField(m, summaryName)
		if err != nil {
			return nil, fmt.Errorf("field %s[%d]: %w", fieldIngredients, i, err)
		}
		amount, err := floatField(m, summaryAmount)
		if err != nil {
			return nil, fmt.Errorf("field %s[%d]: %w", fieldIngredients, i, err)
		}
		out = append(out, models.IngredientSummary{Name: name, Amount: amount})
	}
	return out, nil
}

// NewRecipeRepository addresses the recipe collection of user
func NewRecipeRepository(store docstore.Store, user string, opts ...Option) *Repository[*models.Recipe] {
	return NewRepository[*models.Recipe](store, docstore.UserCollection(user, RecipeCollection), RecipeCodec{}, opts...)
}
