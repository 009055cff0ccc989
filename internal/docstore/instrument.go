package docstore

import (
	"context"
	"time"

	"larder/internal/metrics"
)

type instrumentedStore struct {
	next    Store
	metrics *metrics.Collector
}

// Instrument wraps store so every call is counted and timed
func Instrument(store Store, collector *metrics.Collector) Store {
	if collector == nil {
		return store
	}
	return &instrumentedStore{next: store, metrics: collector}
}

func (s *instrumentedStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	start := time.Now()
	id, err := s.next.Create(ctx, collection, fields)
	s.metrics.RecordStoreOp("create", start, err)
	return id, err
}

func (s *instrumentedStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	start := time.Now()
	err := s.next.Update(ctx, collection, id, fields)
	s.metrics.RecordStoreOp("update", start, err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, collection, id)
	s.metrics.RecordStoreOp("delete", start, err)
	return err
}

func (s *instrumentedStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	start := time.Now()
	docs, err := s.next.GetAll(ctx, collection)
	s.metrics.RecordStoreOp("get_all", start, err)
	return docs, err
}

func (s *instrumentedStore) GetOne(ctx context.Context, collection, id string) (Fields, error) {
	start := time.Now()
	fields, err := s.next.GetOne(ctx, collection, id)
	s.metrics.RecordStoreOp("get_one", start, err)
	return fields, err
}

func (s *instrumentedStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	start := time.Now()
	err := s.next.ArrayUnion(ctx, collection, id, field, values...)
	s.metrics.RecordStoreOp("array_union", start, err)
	return err
}
