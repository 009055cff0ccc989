package records

import (
	"fmt"
	"time"

	"larder/internal/docstore"
	"larder/internal/models"
	"larder/internal/timecodec"
)

// IngredientCollection is the per-user collection name for ingredients
const IngredientCollection = "Ingredient"

// Ingredient document fields
const (
	fieldName           = "Name"
	fieldAmount         = "Amount"
	fieldBestBeforeDate = "BestBeforeDate"
	fieldCategory       = "Category"
	fieldLocation       = "Location"
	fieldUnit           = "Unit"
)

// IngredientCodec maps ingredients to documents
type IngredientCodec struct{}

// Encode converts the best-before text into a store timestamp
func (IngredientCodec) Encode(i *models.Ingredient) (docstore.Fields, error) {
	bbd, err := timecodec.ToStoreTimestamp(i.BestBefore)
	if err != nil {
		return nil, fmt.Errorf("best before date: %w", err)
	}
	return docstore.Fields{
		fieldName:           i.Name,
		fieldAmount:         i.Amount,
		fieldBestBeforeDate: bbd,
		fieldCategory:       i.Category,
		fieldLocation:       i.Location,
		fieldUnit:           i.Unit,
	}, nil
}

// Decode formats the stored timestamp back to YYYY-MM-DD. A date stored as
// plain text is surfaced unchanged.
func (IngredientCodec) Decode(id string, f docstore.Fields) (*models.Ingredient, error) {
	i := &models.Ingredient{ID: id}
	var err error
	if i.Name, err = stringField(f, fieldName); err != nil {
		return nil, err
	}
	if i.Amount, err = floatField(f, fieldAmount); err != nil {
		return nil, err
	}
	if i.Category, err = stringField(f, fieldCategory); err != nil {
		return nil, err
	}
	if i.Location, err = stringField(f, fieldLocation); err != nil {
		return nil, err
	}
	if i.Unit, err = stringField(f, fieldUnit); err != nil {
		return nil, err
	}

	switch v := f[fieldBestBeforeDate].(type) {
	case nil:
	case time.Time:
		i.BestBefore = timecodec.ToDisplayString(v)
	case *time.Time:
		if v != nil {
			i.BestBefore = timecodec.ToDisplayString(*v)
		}
	case string:
		i.BestBefore = v
	default:
		return nil, fmt.Errorf("field %s: want timestamp, got %T", fieldBestBeforeDate, v)
	}
	return i, nil
}

// NewIngredientRepository addresses the ingredient collection of user
func NewIngredientRepository(store docstore.Store, user string, opts ...Option) *Repository[*models.Ingredient] {
	return NewRepository[*models.Ingredient](store, docstore.UserCollection(user, IngredientCollection), IngredientCodec{}, opts...)
}
