package stream

import (
	"context"
	"errors"

	"github.com/congo-pay/timelock/internal/custody"
)

type memoryRepository struct {
	table *custody.Table[custody.Key, Stream]
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{table: custody.NewTable[custody.Key, Stream](Stream.Clone)}
}

func (r *memoryRepository) Insert(ctx context.Context, ns custody.Namespace, build func(ctx context.Context, id uint64) (Stream, error)) (Stream, error) {
	return r.table.Allocate(ns, func(id uint64) (custody.Key, Stream, error) {
		s, err := build(ctx, id)
		return s.Key, s, err
	})
}

func (r *memoryRepository) Update(ctx context.Context, key custody.Key, fn func(ctx context.Context, s *Stream) (bool, error)) (Stream, error) {
	s, err := r.table.Update(key, func(s *Stream) (bool, error) { return fn(ctx, s) })
	return s, notFound(err)
}

func (r *memoryRepository) Get(_ context.Context, key custody.Key) (Stream, error) {
	s, err := r.table.Get(key)
	return s, notFound(err)
}

func (r *memoryRepository) ListByOwner(_ context.Context, owner string) ([]Stream, error) {
	return r.table.Filter(func(s Stream) bool { return s.Owner == owner }), nil
}

func notFound(err error) error {
	if errors.Is(err, custody.ErrNoRecord) {
		return custody.ErrStreamNotFound
	}
	return err
}
