package state

import "sync"

// Table maps user ids to values of V. Callbacks passed to Update and Range run
// under the table lock and must not block.
type Table[V any] struct {
	mu   sync.Mutex
	rows map[int64]V
}

// NewTable returns an empty table.
func NewTable[V any]() *Table[V] {
	return &Table[V]{rows: make(map[int64]V)}
}

// Get returns the value stored for userID.
func (t *Table[V]) Get(userID int64) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.rows[userID]
	return v, ok
}

// Put stores v and returns the value it replaced.
func (t *Table[V]) Put(userID int64, v V) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.rows[userID]
	t.rows[userID] = v
	return prev, ok
}

// Delete removes userID and returns the removed value.
func (t *Table[V]) Delete(userID int64) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.rows[userID]
	delete(t.rows, userID)
	return prev, ok
}

// Update atomically replaces the value of userID with the result of fn.
// fn receives the current value (zero when absent); returning keep=false deletes the row.
func (t *Table[V]) Update(userID int64, fn func(cur V, ok bool) (next V, keep bool)) V {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.rows[userID]
	next, keep := fn(cur, ok)
	if keep {
		t.rows[userID] = next
	} else {
		delete(t.rows, userID)
	}
	return next
}

// Len returns the number of rows.
func (t *Table[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Range calls fn for every row until fn returns false.
func (t *Table[V]) Range(fn func(userID int64, v V) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, v := range t.rows {
		if !fn(id, v) {
			return
		}
	}
}

// Drain removes and returns every row.
func (t *Table[V]) Drain() map[int64]V {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.rows
	t.rows = make(map[int64]V)
	return out
}
