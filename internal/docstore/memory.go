package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for tests and the "memory" driver
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	newID       func() string
}

type memCollection struct {
	order []string
	docs  map[string]Fields
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithIDGenerator overrides document id assignment
func WithIDGenerator(fn func() string) MemoryOption {
	return func(s *MemoryStore) {
		s.newID = fn
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]*memCollection),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]Fields)}
		s.collections[name] = c
	}
	return c
}

func (c *memCollection) put(id string, fields Fields) {
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = fields
}

// Create adds a document and returns its generated id
func (s *MemoryStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	id := s.newID()
	if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("document %s/%s already exists", collection, id)
	}
	c.put(id, CloneFields(fields))
	return id, nil
}

// Update merges fields into an existing document
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collection(collection).docs[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range fields {
		doc[k] = cloneValue(v)
	}
	return nil
}

// Delete removes a document if it exists
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetAll returns the collection's documents in creation order
func (s *MemoryStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return []Document{}, nil
	}
	docs := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, Document{ID: id, Fields: CloneFields(c.docs[id])})
	}
	return docs, nil
}

// GetOne returns a copy of a document's fields
func (s *MemoryStore) GetOne(ctx context.Context, collection, id string) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[collection]; ok {
		if doc, ok := c.docs[id]; ok {
			return CloneFields(doc), nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
}

// ArrayUnion appends missing values to an array field
func (s *MemoryStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	doc, ok := c.docs[id]
	if !ok {
		doc = Fields{}
		c.put(id, doc)
	}
	doc[field] = unionValues(doc[field], values)
	return nil
}
