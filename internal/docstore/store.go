// Package docstore is the remote document store the sync layer persists to.
//
// Documents live in collections addressed by slash-separated paths. Records
// for a user live under User/<email>/<Collection>; the user's taxonomy
// document is User/<email> itself.
package docstore

import (
	"context"
	"errors"
	"path"
	"reflect"
)

// UsersCollection is the root collection holding one document per user
const UsersCollection = "User"

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrCorrupt is returned when a stored document cannot be decoded
	ErrCorrupt = errors.New("document payload is corrupt")
)

// Fields is the attribute mapping of one document. Timestamps are time.Time,
// numbers are int64 or float64, arrays are []any.
type Fields map[string]any

// Document is a stored document with its id
type Document struct {
	ID     string
	Fields Fields
}

// Store is the minimal contract of a remote document store
type Store interface {
	// Create adds a document and returns the store-assigned id
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// Update merges fields into an existing document
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// GetAll returns every document of a collection in creation order
	GetAll(ctx context.Context, collection string) ([]Document, error)
	// GetOne returns the fields of a single document
	GetOne(ctx context.Context, collection, id string) (Fields, error)
	// ArrayUnion appends values missing from the array field, creating the
	// document when it does not exist
	ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error
}

// UserCollection addresses a record collection in the user's namespace
func UserCollection(email, collection string) string {
	return path.Join(UsersCollection, email, collection)
}

// CloneFields deep-copies nested maps and slices
func CloneFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Fields:
		return CloneFields(t)
	case map[string]any:
		return map[string]any(CloneFields(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = map[string]any(CloneFields(e))
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	}
	return v
}

// unionValues appends to existing every value not already present
func unionValues(existing any, values []any) []any {
	var out []any
	if arr, ok := cloneValue(existing).([]any); ok {
		out = arr
	}
	for _, v := range values {
		found := false
		for _, e := range out {
			if reflect.DeepEqual(e, v) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}
