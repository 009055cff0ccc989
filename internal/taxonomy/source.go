package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"larder/internal/docstore"
	"larder/internal/models"
)

// Source is the remote side of the catalog: it holds the user's custom entries
type Source interface {
	// FetchCustom returns the custom entries stored for kind
	FetchCustom(ctx context.Context, kind models.OptionKind) ([]string, error)
	// AddCustom persists a new custom entry for kind
	AddCustom(ctx context.Context, kind models.OptionKind, value string) error
}

// DocumentSource keeps custom entries in the user's taxonomy document, one
// array field per kind
type DocumentSource struct {
	store      docstore.Store
	collection string
	docID      string
}

// NewDocumentSource addresses the taxonomy document of user
func NewDocumentSource(store docstore.Store, user string) *DocumentSource {
	return &DocumentSource{
		store:      store,
		collection: docstore.UsersCollection,
		docID:      user,
	}
}

// FetchCustom reads the kind's array from the taxonomy document. A missing
// document means no custom entries yet.
func (s *DocumentSource) FetchCustom(ctx context.Context, kind models.OptionKind) ([]string, error) {
	fields, err := s.store.GetOne(ctx, s.collection, s.docID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s options: %w", kind, err)
	}

	var values []string
	switch raw := fields[kind.DocumentKey()].(type) {
	case nil:
	case []any:
		for _, v := range raw {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				values = append(values, s)
			}
		}
	case []string:
		values = append(values, raw...)
	default:
		return nil, fmt.Errorf("fetch %s options: field %s has type %T", kind, kind.DocumentKey(), raw)
	}
	return values, nil
}

// AddCustom array-unions value into the kind's field
func (s *DocumentSource) AddCustom(ctx context.Context, kind models.OptionKind, value string) error {
	if err := s.store.ArrayUnion(ctx, s.collection, s.docID, kind.DocumentKey(), value); err != nil {
		return fmt.Errorf("add %s option %q: %w", kind, value, err)
	}
	return nil
}
