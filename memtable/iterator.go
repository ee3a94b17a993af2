package memtable

import "github.com/hupe1980/lsmkit"

// Iterator walks the table in comparator order, tombstones included. A fresh
// iterator is not positioned; call SeekToFirst, SeekToLast or Seek before
// reading.
//
// Iteration must not run concurrently with writes. The intended pattern is
// the flush path: stop writing to the table, drain it through an iterator
// into a segment, then Close it.
type Iterator struct {
	s  *skiplist
	id uint32
}

// Iter returns a new iterator over the table.
func (m *MemTable) Iter() *Iterator {
	return &Iterator{s: m.skl}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.id != 0
}

// SeekToFirst positions the iterator at the smallest key.
func (it *Iterator) SeekToFirst() {
	it.id = it.s.nodes[0].tower[0]
}

// SeekToLast positions the iterator at the largest key.
func (it *Iterator) SeekToLast() {
	it.id = it.s.findLast()
}

// Seek positions the iterator at the first key >= key.
func (it *Iterator) Seek(key lsmkit.Slice) {
	it.id = it.s.findGreaterOrEqual(key, nil)
}

// Next advances to the following entry. The iterator must be valid.
func (it *Iterator) Next() {
	it.id = it.s.nodes[it.mustID()].tower[0]
}

// Prev steps back to the preceding entry, invalidating the iterator at the
// front of the table. The iterator must be valid.
func (it *Iterator) Prev() {
	it.id = it.s.findLessThan(it.s.nodeKey(it.mustID()))
}

// Key returns the current key as an arena view, valid until the table is
// closed.
func (it *Iterator) Key() lsmkit.Slice {
	key, _, _ := decodeEntry(it.s.nodes[it.mustID()].entry)
	return key
}

// Value returns the current value as an arena view. Tombstones have an empty
// value.
func (it *Iterator) Value() lsmkit.Slice {
	_, value, _ := decodeEntry(it.s.nodes[it.mustID()].entry)
	return value
}

// Kind returns the current entry's kind.
func (it *Iterator) Kind() lsmkit.Kind {
	_, _, kind := decodeEntry(it.s.nodes[it.mustID()].entry)
	return kind
}

func (it *Iterator) mustID() uint32 {
	if it.id == 0 {
		panic("memtable: use of invalid iterator")
	}
	return it.id
}
