package segment

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hupe1980/lsmkit"
)

// blockIter steps through the entries of one decoded block payload.
type blockIter struct {
	payload []byte
	off     int
	count   int
	pos     int

	key   []byte
	value []byte
	kind  lsmkit.Kind
	err   error
}

func (b *blockIter) init(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("%w: short block payload", ErrCorrupted)
	}

	*b = blockIter{
		payload: payload,
		off:     4,
		count:   int(binary.LittleEndian.Uint32(payload)),
	}

	return nil
}

func (b *blockIter) next() bool {
	if b.err != nil || b.pos >= b.count {
		return false
	}

	klen, n := binary.Uvarint(b.payload[b.off:])
	if n <= 0 || klen > uint64(len(b.payload)) || b.off+n+int(klen)+1 > len(b.payload) {
		b.err = fmt.Errorf("%w: truncated entry key", ErrCorrupted)
		return false
	}
	b.off += n

	b.key = b.payload[b.off : b.off+int(klen)]
	b.off += int(klen)

	b.kind = lsmkit.Kind(b.payload[b.off])
	b.off++
	if !b.kind.Valid() {
		b.err = fmt.Errorf("%w: entry kind %d", ErrCorrupted, uint8(b.kind))
		return false
	}

	vlen, n := binary.Uvarint(b.payload[b.off:])
	if n <= 0 || vlen > uint64(len(b.payload)) || b.off+n+int(vlen) > len(b.payload) {
		b.err = fmt.Errorf("%w: truncated entry value", ErrCorrupted)
		return false
	}
	b.off += n

	b.value = b.payload[b.off : b.off+int(vlen)]
	b.off += int(vlen)

	b.pos++

	return true
}

// Iterator walks a segment in ascending key order, loading one block at a
// time. It must be positioned with SeekToFirst or Seek before use and is not
// safe for concurrent use, though several iterators may run over the same
// Reader independently.
//
// Unlike memtable iterators, segment iterators can fail mid-scan on IO or
// checksum errors. A failure leaves the iterator invalid; check Err after
// the scan.
type Iterator struct {
	r        *Reader
	blockIdx int
	blk      blockIter
	valid    bool
	err      error
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.valid
}

// Err returns the first IO or corruption error the iterator hit, if any.
func (it *Iterator) Err() error {
	return it.err
}

// SeekToFirst positions the iterator on the first entry of the segment.
func (it *Iterator) SeekToFirst() {
	it.err = nil
	it.valid = false

	if !it.loadBlock(0) {
		return
	}

	it.advance()
}

// Seek positions the iterator on the first entry with key >= key.
func (it *Iterator) Seek(key lsmkit.Slice) {
	it.err = nil
	it.valid = false

	i := sort.Search(len(it.r.index), func(i int) bool {
		return it.r.cmp.Compare(it.r.index[i].sep, key) >= 0
	})
	if i == len(it.r.index) {
		it.blockIdx = i
		return
	}

	if !it.loadBlock(i) {
		return
	}

	for it.blk.next() {
		if it.r.cmp.Compare(it.blk.key, key) >= 0 {
			it.valid = true
			return
		}
	}

	if it.blk.err != nil {
		it.err = it.blk.err
		return
	}

	// The separator admitted this block but every key in it is smaller,
	// so the target falls in the gap before the next block.
	it.advance()
}

// Next advances to the following entry. Calling Next on an invalid iterator
// is a no-op.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}

	it.valid = false
	it.advance()
}

// Key returns the key at the current position. The returned slice is a view
// into the reader's memory and is valid until Close.
func (it *Iterator) Key() lsmkit.Slice {
	return it.blk.key
}

// Value returns the value at the current position, empty for tombstones.
func (it *Iterator) Value() lsmkit.Slice {
	return it.blk.value
}

// Kind returns the kind of the current entry.
func (it *Iterator) Kind() lsmkit.Kind {
	return it.blk.kind
}

// advance moves to the next entry, crossing block boundaries as needed.
func (it *Iterator) advance() {
	for {
		if it.blk.next() {
			it.valid = true
			return
		}

		if it.blk.err != nil {
			it.err = it.blk.err
			it.valid = false
			return
		}

		if it.blockIdx+1 >= len(it.r.index) {
			it.valid = false
			return
		}

		if !it.loadBlock(it.blockIdx + 1) {
			return
		}
	}
}

// loadBlock decodes block i and resets the entry cursor. It reports whether
// the block is ready to scan.
func (it *Iterator) loadBlock(i int) bool {
	it.valid = false

	if it.r.closed.Load() {
		it.err = ErrClosed
		return false
	}

	if i >= len(it.r.index) {
		it.blockIdx = len(it.r.index)
		return false
	}

	payload, err := it.r.readBlock(it.r.index[i].handle)
	if err != nil {
		it.err = err
		return false
	}

	if err := it.blk.init(payload); err != nil {
		it.err = err
		return false
	}

	it.blockIdx = i

	return true
}
