package custody

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNoRecord is returned by a Table for a key it does not hold.
	ErrNoRecord = errors.New("no record for key")
	// ErrRecordExists is returned by Table.Put for a key already in use.
	ErrRecordExists = errors.New("record exists for key")
)

// Table is the in-memory keyed store behind the ledgers' memory repositories.
// Every mutation runs under the table lock on a cloned value, so a callback
// that fails leaves the stored value untouched. Updates write through the
// stored row and never replace the key held by the map.
type Table[K comparable, V any] struct {
	mu    sync.Mutex
	rows  map[K]*V
	seq   map[K]uint64
	next  map[Namespace]uint64
	clone func(V) V
	n     uint64
}

// NewTable builds an empty table. clone must deep-copy any state a callback
// may mutate.
func NewTable[K comparable, V any](clone func(V) V) *Table[K, V] {
	return &Table[K, V]{
		rows:  make(map[K]*V),
		seq:   make(map[K]uint64),
		next:  make(map[Namespace]uint64),
		clone: clone,
	}
}

// Allocate reserves the next id of ns and stores whatever build returns for it.
// The counter only advances when build succeeds.
func (t *Table[K, V]) Allocate(ns Namespace, build func(id uint64) (K, V, error)) (V, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next[ns]
	key, v, err := build(id)
	if err != nil {
		var zero V
		return zero, err
	}
	t.next[ns] = id + 1
	t.store(key, v)
	return t.clone(v), nil
}

// Put stores the value build returns under key, failing with ErrRecordExists
// when key is taken.
func (t *Table[K, V]) Put(key K, build func() (V, error)) (V, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero V
	if _, ok := t.rows[key]; ok {
		return zero, ErrRecordExists
	}
	v, err := build()
	if err != nil {
		return zero, err
	}
	t.store(key, v)
	return t.clone(v), nil
}

// Update applies fn to a copy of the value under key. The copy replaces the
// stored value when fn succeeds; when fn also reports keep=false the key is
// removed. The returned value is the copy fn left behind.
func (t *Table[K, V]) Update(key K, fn func(v *V) (keep bool, err error)) (V, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero V
	current, ok := t.rows[key]
	if !ok {
		return zero, ErrNoRecord
	}
	v := t.clone(*current)
	keep, err := fn(&v)
	if err != nil {
		return zero, err
	}
	if keep {
		*current = t.clone(v)
	} else {
		delete(t.rows, key)
		delete(t.seq, key)
	}
	return v, nil
}

// Get returns a copy of the value under key.
func (t *Table[K, V]) Get(key K) (V, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.rows[key]
	if !ok {
		var zero V
		return zero, ErrNoRecord
	}
	return t.clone(*v), nil
}

// Filter returns copies of the values matching keep, in insertion order.
func (t *Table[K, V]) Filter(keep func(V) bool) []V {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]K, 0, len(t.rows))
	for k, v := range t.rows {
		if keep(*v) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return t.seq[keys[i]] < t.seq[keys[j]] })
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.clone(*t.rows[k]))
	}
	return out
}

func (t *Table[K, V]) store(key K, v V) {
	stored := t.clone(v)
	t.rows[key] = &stored
	t.seq[key] = t.n
	t.n++
}
