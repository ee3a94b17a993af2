// Package memtable provides a comparator-ordered in-memory table backed by a
// bump-pointer arena.
//
// A MemTable is the mutable head of an LSM tree: writes land here first, and
// a full table is drained through its iterator into an immutable segment.
// Entry bytes and skiplist towers are arena-resident, so a table holding
// millions of entries costs the garbage collector almost nothing, and the
// whole table is released in one pass by Close.
//
// Deletes are recorded as tombstones rather than removals, so a flushed
// segment can shadow older data for the same key.
package memtable

import (
	"sync"

	"github.com/hupe1980/lsmkit"
	"github.com/hupe1980/lsmkit/arena"
)

// MemTable is a sorted in-memory key-value buffer. It is safe for concurrent
// use: writes take the write lock, point reads the read lock. The skiplist
// underneath is single-writer; the lock enforces that.
type MemTable struct {
	mu    sync.RWMutex
	skl   *skiplist
	arena *arena.Arena
	count int
}

type options struct {
	arenaOpts []arena.Option
}

// Option is a configuration option for MemTable.
type Option func(*options)

// WithArenaOptions forwards options to the table's arena, such as off-heap
// block placement or a resource controller.
func WithArenaOptions(opts ...arena.Option) Option {
	return func(o *options) {
		o.arenaOpts = append(o.arenaOpts, opts...)
	}
}

// New creates an empty MemTable ordered by cmp.
func New(cmp lsmkit.Comparator, opts ...Option) *MemTable {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := arena.New(o.arenaOpts...)

	return &MemTable{
		skl:   newSkiplist(cmp, a),
		arena: a,
	}
}

// Put stores value under key, replacing any existing entry for the key. Both
// spans are copied into the table's arena; the caller's buffers can be
// reused immediately.
func (m *MemTable) Put(key, value lsmkit.Slice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.skl.put(key, value, lsmkit.KindValue) {
		m.count++
	}
}

// Delete records a tombstone for key. The tombstone is an entry like any
// other; it is flushed into segments so newer runs can shadow older ones.
func (m *MemTable) Delete(key lsmkit.Slice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.skl.put(key, nil, lsmkit.KindTombstone) {
		m.count++
	}
}

// Get retrieves the entry stored under key.
// Returns (value, found, isDeleted). A tombstone reports found=true,
// isDeleted=true so callers can stop probing older runs. The returned value
// is an arena view, valid until Close; use Clone to detach it.
func (m *MemTable) Get(key lsmkit.Slice) (lsmkit.Slice, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, kind, ok := m.skl.get(key)
	if !ok {
		return nil, false, false
	}
	if kind == lsmkit.KindTombstone {
		return nil, true, true
	}
	return v, true, false
}

// Len returns the number of entries in the table, tombstones included.
func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Comparator returns the ordering the table was built with.
func (m *MemTable) Comparator() lsmkit.Comparator {
	return m.skl.cmp
}

// ApproximateMemoryUsage returns the bytes reserved by the table's arena. It
// reads an atomic counter and takes no lock, so a flush scheduler can poll
// it while writers are active.
func (m *MemTable) ApproximateMemoryUsage() int64 {
	return m.arena.MemoryUsage()
}

// Close releases the table's arena in one pass. Every Slice the table ever
// returned is invalid afterwards, and further writes panic.
func (m *MemTable) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arena.Close()
}
