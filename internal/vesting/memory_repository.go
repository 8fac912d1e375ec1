package vesting

import (
	"context"
	"errors"

	"github.com/congo-pay/timelock/internal/custody"
)

type memoryRepository struct {
	table *custody.Table[custody.Key, Schedule]
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{table: custody.NewTable[custody.Key, Schedule](Schedule.Clone)}
}

func (r *memoryRepository) Insert(ctx context.Context, ns custody.Namespace, build func(ctx context.Context, id uint64) (Schedule, error)) (Schedule, error) {
	return r.table.Allocate(ns, func(id uint64) (custody.Key, Schedule, error) {
		v, err := build(ctx, id)
		return v.Key, v, err
	})
}

func (r *memoryRepository) Update(ctx context.Context, key custody.Key, fn func(ctx context.Context, v *Schedule) (bool, error)) (Schedule, error) {
	v, err := r.table.Update(key, func(v *Schedule) (bool, error) { return fn(ctx, v) })
	if errors.Is(err, custody.ErrNoRecord) {
		return Schedule{}, custody.ErrScheduleNotFound
	}
	return v, err
}

func (r *memoryRepository) Get(_ context.Context, key custody.Key) (Schedule, error) {
	v, err := r.table.Get(key)
	if errors.Is(err, custody.ErrNoRecord) {
		return Schedule{}, custody.ErrScheduleNotFound
	}
	return v, err
}

func (r *memoryRepository) ListByOwner(_ context.Context, owner string) ([]Schedule, error) {
	return r.table.Filter(func(v Schedule) bool { return v.Owner == owner }), nil
}
