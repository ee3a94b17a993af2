package segment

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"

	"github.com/hupe1980/lsmkit"
	"github.com/hupe1980/lsmkit/internal/mmap"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithBlockCache keeps up to n decoded data blocks in an LRU cache shared by
// Get and iterators. Values <= 0 disable caching.
func WithBlockCache(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.cache = newBlockCache(n)
		}
	}
}

// WithReaderLogger sets the logger used to report the outcome of Open.
func WithReaderLogger(l *lsmkit.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reader serves point lookups and ordered scans from a finished segment. The
// index is decoded once at open time; data blocks are fetched, checksummed
// and decompressed on demand.
//
// A Reader is safe for concurrent use by multiple goroutines.
type Reader struct {
	r    io.ReaderAt
	size int64
	cmp  lsmkit.Comparator

	codec   CompressionType
	id      uuid.UUID
	index   []indexEntry
	entries uint64

	cache   *blockCache
	mapping *mmap.Mapping
	logger  *lsmkit.Logger
	closed  atomic.Bool
}

// Open reads the header, footer and index of a segment and returns a Reader.
// The comparator must match the one the file was written with, by name, or
// Open returns ErrComparatorMismatch.
func Open(r io.ReaderAt, size int64, cmp lsmkit.Comparator, opts ...ReaderOption) (*Reader, error) {
	sr := &Reader{
		r:      r,
		size:   size,
		cmp:    cmp,
		logger: lsmkit.NoopLogger(),
	}

	for _, opt := range opts {
		opt(sr)
	}

	if size < headerPrefixSize+footerSize {
		return nil, fmt.Errorf("%w: %d byte file", ErrCorrupted, size)
	}

	h, err := decodeFileHeader(r, size)
	if err != nil {
		return nil, err
	}

	if name := cmp.Name(); h.comparator != name {
		return nil, fmt.Errorf("%w: file written with %q, opened with %q", ErrComparatorMismatch, h.comparator, name)
	}

	sr.codec = h.codec
	sr.id = h.segmentID

	fbuf := make([]byte, footerSize)
	if _, err := r.ReadAt(fbuf, size-footerSize); err != nil {
		return nil, fmt.Errorf("segment: reading footer: %w", err)
	}

	ft, err := decodeFooter(fbuf)
	if err != nil {
		return nil, err
	}

	sr.entries = ft.entries

	payload, err := sr.readBlock(blockHandle{offset: ft.indexOff, length: ft.indexLen})
	if err != nil {
		return nil, err
	}

	if sr.index, err = decodeIndex(payload); err != nil {
		return nil, err
	}

	sr.logger.WithSegment(sr.id).LogOpen(context.Background(), sr.entries, size, nil)

	return sr, nil
}

// OpenFile memory-maps the segment at path and opens it. The kernel is
// advised that access will be random, which suits point lookups.
func OpenFile(path string, cmp lsmkit.Comparator, opts ...ReaderOption) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("segment: mapping %s: %w", path, err)
	}

	_ = m.Advise(mmap.AccessRandom)

	r, err := Open(m, int64(m.Size()), cmp, opts...)
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	r.mapping = m

	return r, nil
}

// Get returns the value and kind stored for key. A tombstone comes back with
// KindTombstone and an empty value; a key the segment never saw comes back
// as ErrNotFound. The returned slice is a view into the reader's memory and
// is valid until Close.
func (r *Reader) Get(key lsmkit.Slice) (lsmkit.Slice, lsmkit.Kind, error) {
	if r.closed.Load() {
		return nil, 0, ErrClosed
	}

	i := sort.Search(len(r.index), func(i int) bool {
		return r.cmp.Compare(r.index[i].sep, key) >= 0
	})
	if i == len(r.index) {
		return nil, 0, ErrNotFound
	}

	payload, err := r.readBlock(r.index[i].handle)
	if err != nil {
		return nil, 0, err
	}

	var blk blockIter
	if err := blk.init(payload); err != nil {
		return nil, 0, err
	}

	for blk.next() {
		switch c := r.cmp.Compare(blk.key, key); {
		case c == 0:
			return blk.value, blk.kind, nil
		case c > 0:
			return nil, 0, ErrNotFound
		}
	}

	if blk.err != nil {
		return nil, 0, blk.err
	}

	return nil, 0, ErrNotFound
}

// Iter returns an iterator over the whole segment. Position it with
// SeekToFirst or Seek before use.
func (r *Reader) Iter() *Iterator {
	return &Iterator{r: r, blockIdx: -1}
}

// Entries returns the number of entries in the segment, tombstones included.
func (r *Reader) Entries() uint64 {
	return r.entries
}

// SegmentID returns the ID embedded in the file header.
func (r *Reader) SegmentID() uuid.UUID {
	return r.id
}

// Compression returns the codec the segment was written with.
func (r *Reader) Compression() CompressionType {
	return r.codec
}

// Close releases the underlying mapping, if any. Slices returned by Get and
// by iterators must not be used afterwards. Close is idempotent.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}

	if r.mapping != nil {
		return r.mapping.Close()
	}

	return nil
}

// readBlock fetches, verifies and decompresses one physical block. When the
// segment is memory-mapped the raw bytes are sliced straight out of the
// mapping instead of being copied.
func (r *Reader) readBlock(h blockHandle) ([]byte, error) {
	if r.cache != nil {
		if payload, ok := r.cache.get(h.offset); ok {
			return payload, nil
		}
	}

	if h.length < blockHeaderSize+blockTrailerSize || h.offset+uint64(h.length) > uint64(r.size) {
		return nil, fmt.Errorf("%w: block handle out of range", ErrCorrupted)
	}

	var physical []byte
	if r.mapping != nil {
		physical = r.mapping.Bytes()[h.offset : h.offset+uint64(h.length)]
	} else {
		physical = make([]byte, h.length)
		if _, err := r.r.ReadAt(physical, int64(h.offset)); err != nil {
			return nil, fmt.Errorf("segment: reading block: %w", err)
		}
	}

	payload, err := decodeBlock(physical, r.codec)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.add(h.offset, payload)
	}

	return payload, nil
}

// blockCache wraps the groupcache LRU with a mutex, keyed by block offset.
type blockCache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

func newBlockCache(n int) *blockCache {
	return &blockCache{lru: lru.New(n)}
}

func (c *blockCache) get(off uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lru.Get(off); ok {
		return v.([]byte), true
	}

	return nil, false
}

func (c *blockCache) add(off uint64, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(off, payload)
}
