// Package records persists Ingredient and Recipe documents and reconciles
// the locally held record with the id the store assigns on first write.
package records

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"larder/internal/docstore"
)

var (
	ErrPersistence       = errors.New("persistence failure")
	ErrMissingIdentifier = errors.New("record has no identifier")
	ErrDecode            = errors.New("decode failure")
	ErrMutationInFlight  = errors.New("mutation already in flight for record")
	ErrNotFound          = errors.New("record not found")
)

// Record is a document-backed value with an optional store-assigned id
type Record interface {
	Identifier() string
	AssignIdentifier(id string)
}

// Codec maps a record kind to and from document fields
type Codec[R Record] interface {
	Encode(rec R) (docstore.Fields, error)
	Decode(id string, fields docstore.Fields) (R, error)
}

// Repository is a CRUD facade over one collection
type Repository[R Record] struct {
	store      docstore.Store
	collection string
	codec      Codec[R]
	logger     *log.Logger

	mu       sync.Mutex
	inflight map[any]struct{}
}

// Option configures a Repository
type Option func(*options)

type options struct {
	logger *log.Logger
}

// WithLogger sets the logger for commit and delete outcomes
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// NewRepository creates a repository over collection
func NewRepository[R Record](store docstore.Store, collection string, codec Codec[R], opts ...Option) *Repository[R] {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[R]{
		store:      store,
		collection: collection,
		codec:      codec,
		logger:     o.logger,
		inflight:   make(map[any]struct{}),
	}
}

// Collection returns the collection path the repository writes to
func (r *Repository[R]) Collection() string {
	return r.collection
}

// acquire marks rec (and its id, if any) as having a mutation in flight
func (r *Repository[R]) acquire(rec R) (func(), error) {
	keys := []any{any(rec)}
	if id := rec.Identifier(); id != "" {
		keys = append(keys, "id:"+id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if _, busy := r.inflight[k]; busy {
			return nil, ErrMutationInFlight
		}
	}
	for _, k := range keys {
		r.inflight[k] = struct{}{}
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, k := range keys {
			delete(r.inflight, k)
		}
	}, nil
}

// Upsert creates the record when it has no id, assigning the store id on
// success, and otherwise updates every attribute of the stored document.
// On failure rec is left unchanged.
func (r *Repository[R]) Upsert(ctx context.Context, rec R) (string, error) {
	release, err := r.acquire(rec)
	if err != nil {
		return "", err
	}
	defer release()

	fields, err := r.codec.Encode(rec)
	if err != nil {
		return "", err
	}

	id := rec.Identifier()
	if id == "" {
		newID, err := r.store.Create(ctx, r.collection, fields)
		if err != nil {
			return "", fmt.Errorf("%w: create in %s: %w", ErrPersistence, r.collection, err)
		}
		rec.AssignIdentifier(newID)
		r.logger.Printf("Added document with ID: %s", newID)
		return newID, nil
	}

	if err := r.store.Update(ctx, r.collection, id, fields); err != nil {
		return "", fmt.Errorf("%w: update %s/%s: %w", ErrPersistence, r.collection, id, err)
	}
	return id, nil
}

// Remove deletes the stored document of rec
func (r *Repository[R]) Remove(ctx context.Context, rec R) error {
	id := rec.Identifier()
	if id == "" {
		return ErrMissingIdentifier
	}
	release, err := r.acquire(rec)
	if err != nil {
		return err
	}
	defer release()

	if err := r.store.Delete(ctx, r.collection, id); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %w", ErrPersistence, r.collection, id, err)
	}
	r.logger.Printf("Successfully deleted document with ID: %s", id)
	return nil
}

// FetchAll loads every record of the collection. A record that cannot be
// decoded fails the whole fetch.
func (r *Repository[R]) FetchAll(ctx context.Context) ([]R, error) {
	docs, err := r.store.GetAll(ctx, r.collection)
	if errors.Is(err, docstore.ErrCorrupt) {
		return nil, fmt.Errorf("%w: list %s: %w", ErrDecode, r.collection, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrPersistence, r.collection, err)
	}
	out := make([]R, 0, len(docs))
	for _, doc := range docs {
		rec, err := r.codec.Decode(doc.ID, doc.Fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrDecode, r.collection, doc.ID, err)
		}
		rec.AssignIdentifier(doc.ID)
		out = append(out, rec)
	}
	return out, nil
}

// Get loads a single record by id
func (r *Repository[R]) Get(ctx context.Context, id string) (R, error) {
	var zero R
	fields, err := r.store.GetOne(ctx, r.collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, r.collection, id)
	}
	if errors.Is(err, docstore.ErrCorrupt) {
		return zero, fmt.Errorf("%w: get %s/%s: %w", ErrDecode, r.collection, id, err)
	}
	if err != nil {
		return zero, fmt.Errorf("%w: get %s/%s: %w", ErrPersistence, r.collection, id, err)
	}
	rec, err := r.codec.Decode(id, fields)
	if err != nil {
		return zero, fmt.Errorf("%w: %s/%s: %w", ErrDecode, r.collection, id, err)
	}
	rec.AssignIdentifier(id)
	return rec, nil
}
