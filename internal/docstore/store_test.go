package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/metrics"
)

// storeFactories runs the same contract against every driver
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite3": func() Store {
			s, err := OpenGorm("sqlite3", ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			bbd := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			id, err := s.Create(ctx, "User/a@b.c/Ingredient", Fields{
				"Name":           "Milk",
				"Amount":         2.5,
				"BestBeforeDate": bbd,
			})
			require.NoError(t, err)
			require.NotEmpty(t, id)

			require.NoError(t, s.Update(ctx, "User/a@b.c/Ingredient", id, Fields{"Amount": 1.5, "Unit": "l"}))

			got, err := s.GetOne(ctx, "User/a@b.c/Ingredient", id)
			require.NoError(t, err)
			assert.Equal(t, "Milk", got["Name"])
			assert.Equal(t, 1.5, got["Amount"])
			assert.Equal(t, "l", got["Unit"])
			ts, ok := got["BestBeforeDate"].(time.Time)
			require.True(t, ok, "timestamp type preserved")
			assert.True(t, bbd.Equal(ts))
		})
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			err := factory().Update(ctx, "Recipe", "nope", Fields{"Title": "x"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_GetAllOrderAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			var ids []string
			for i := 0; i < 3; i++ {
				id, err := s.Create(ctx, "Recipe", Fields{"Title": fmt.Sprintf("r%d", i)})
				require.NoError(t, err)
				ids = append(ids, id)
			}
			_, err := s.Create(ctx, "Other", Fields{"Title": "elsewhere"})
			require.NoError(t, err)

			require.NoError(t, s.Delete(ctx, "Recipe", ids[1]))
			require.NoError(t, s.Delete(ctx, "Recipe", "missing"))

			docs, err := s.GetAll(ctx, "Recipe")
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, ids[0], docs[0].ID)
			assert.Equal(t, "r0", docs[0].Fields["Title"])
			assert.Equal(t, ids[2], docs[1].ID)

			_, err = s.GetOne(ctx, "Recipe", ids[1])
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ArrayUnion(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			require.NoError(t, s.ArrayUnion(ctx, UsersCollection, "a@b.c", "IngredientUnits", "cup"))
			require.NoError(t, s.ArrayUnion(ctx, UsersCollection, "a@b.c", "IngredientUnits", "cup", "tbsp"))
			require.NoError(t, s.ArrayUnion(ctx, UsersCollection, "a@b.c", "IngredientLocations", "Pantry"))

			got, err := s.GetOne(ctx, UsersCollection, "a@b.c")
			require.NoError(t, err)
			assert.Equal(t, []any{"cup", "tbsp"}, got["IngredientUnits"])
			assert.Equal(t, []any{"Pantry"}, got["IngredientLocations"])
		})
	}
}

func TestStore_NestedArrays(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			id, err := s.Create(ctx, "Recipe", Fields{
				"PrepTime":    int64(15),
				"Ingredients": []map[string]any{{"name": "Flour", "amount": 2.5}, {"name": "Egg", "amount": int64(2)}},
			})
			require.NoError(t, err)

			got, err := s.GetOne(ctx, "Recipe", id)
			require.NoError(t, err)
			assert.EqualValues(t, 15, got["PrepTime"])
			list, ok := got["Ingredients"].([]any)
			require.True(t, ok)
			require.Len(t, list, 2)
			first := list[0].(map[string]any)
			assert.Equal(t, "Flour", first["name"])
			assert.Equal(t, 2.5, first["amount"])
		})
	}
}

func TestMemoryStore_IDGeneratorAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithIDGenerator(func() string { return "abc123" }))
	fields := Fields{"Name": "Salt", "Tags": []any{"a"}}

	id, err := s.Create(ctx, "Ingredient", fields)
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	fields["Name"] = "changed"
	fields["Tags"].([]any)[0] = "b"
	got, err := s.GetOne(ctx, "Ingredient", id)
	require.NoError(t, err)
	assert.Equal(t, "Salt", got["Name"])
	assert.Equal(t, []any{"a"}, got["Tags"])

	_, err = s.Create(ctx, "Ingredient", Fields{})
	assert.Error(t, err, "duplicate id is rejected")
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Create(ctx, "Ingredient", Fields{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserCollection(t *testing.T) {
	assert.Equal(t, "User/cook@example.com/Ingredient", UserCollection("cook@example.com", "Ingredient"))
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	collector := metrics.NewCollector()
	s := Instrument(NewMemoryStore(), collector)

	id, err := s.Create(ctx, "Recipe", Fields{"Title": "Soup"})
	require.NoError(t, err)
	_, err = s.GetOne(ctx, "Recipe", id)
	require.NoError(t, err)
	_, err = s.GetOne(ctx, "Recipe", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "larder_store_operations_total" {
			found = true
			assert.Len(t, mf.GetMetric(), 3)
		}
	}
	assert.True(t, found)

	plain := NewMemoryStore()
	assert.Same(t, plain, Instrument(plain, nil))
}

func TestStore_ConcurrentArrayUnion(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			fields := []string{"IngredientUnits", "IngredientLocations", "IngredientCategories"}

			var wg sync.WaitGroup
			errs := make(chan error, 30)
			for i := 0; i < 30; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- s.ArrayUnion(ctx, UsersCollection, "a@b.c", fields[i%3], fmt.Sprintf("v%d", i))
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			got, err := s.GetOne(ctx, UsersCollection, "a@b.c")
			require.NoError(t, err)
			for _, f := range fields {
				assert.Len(t, got[f], 10, f)
			}
		})
	}
}

func TestGormStore_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	s, err := OpenGorm("sqlite3", ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.db.Create(&documentRow{Collection: "Recipe", DocID: "bad", Payload: "{not json"}).Error)

	_, err = s.GetAll(ctx, "Recipe")
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = s.GetOne(ctx, "Recipe", "bad")
	assert.ErrorIs(t, err, ErrCorrupt)
	err = s.Update(ctx, "Recipe", "bad", Fields{"Title": "Soup"})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestGormStore_UniqueViolation(t *testing.T) {
	ctx := context.Background()
	s, err := OpenGorm("sqlite3", ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.ArrayUnion(ctx, UsersCollection, "a@b.c", "IngredientUnits", "cup"))
	err = s.db.Create(&documentRow{Collection: UsersCollection, DocID: "a@b.c", Payload: "{}"}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.True(t, isUniqueViolation(fmt.Errorf("create: %w", err)))
	assert.False(t, isUniqueViolation(ErrNotFound))
	assert.False(t, isUniqueViolation(nil))

	assert.False(t, s.lockRows)
	assert.True(t, supportsRowLocks("postgres"))
	assert.False(t, supportsRowLocks("sqlite3"))
}
