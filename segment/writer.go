package segment

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/hupe1980/lsmkit"
	"github.com/hupe1980/lsmkit/resource"
)

// DefaultBlockSize is the target uncompressed payload size of a data block.
const DefaultBlockSize = 4096

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompression selects the codec for data blocks. The default is
// CompressionZSTD.
func WithCompression(c CompressionType) WriterOption {
	return func(w *Writer) {
		w.codec = c
	}
}

// WithBlockSize sets the target uncompressed payload size at which a data
// block is cut. Values <= 0 keep the default.
func WithBlockSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.blockSize = n
		}
	}
}

// WithController attaches a resource controller. Every physical write first
// acquires its byte count from the controller's IO budget.
func WithController(rc *resource.Controller) WriterOption {
	return func(w *Writer) {
		w.ctrl = rc
	}
}

// WithLogger sets the logger used to report the outcome of Finish.
func WithLogger(l *lsmkit.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithSegmentID overrides the randomly generated segment ID.
func WithSegmentID(id uuid.UUID) WriterOption {
	return func(w *Writer) {
		w.id = id
	}
}

// Writer builds a segment file on an io.Writer. Keys must be added in
// strictly ascending comparator order; the writer cuts data blocks at the
// configured size, collects one shortened separator key per block and ends
// the file with the index and footer when Finish is called.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	w   io.Writer
	cmp lsmkit.Comparator

	codec     CompressionType
	blockSize int
	ctrl      *resource.Controller
	logger    *lsmkit.Logger
	id        uuid.UUID

	block   blockBuilder
	index   []indexEntry
	offset  uint64
	entries uint64

	lastKey []byte

	// pendingSep marks a flushed block whose index separator is deferred
	// until the first key of the next block is known.
	pendingSep   bool
	pendingBlock blockHandle

	started  bool
	finished bool
}

// NewWriter returns a Writer that streams a segment to w. The comparator
// fixes the key order; its name is embedded in the file header and checked
// again on open.
func NewWriter(w io.Writer, cmp lsmkit.Comparator, opts ...WriterOption) *Writer {
	sw := &Writer{
		w:         w,
		cmp:       cmp,
		codec:     CompressionZSTD,
		blockSize: DefaultBlockSize,
		logger:    lsmkit.NoopLogger(),
		id:        uuid.New(),
	}

	for _, opt := range opts {
		opt(sw)
	}

	sw.block.reset()

	return sw
}

// Add appends one entry. The key must compare strictly greater than the
// previously added key or Add returns ErrOutOfOrder. Tombstones are added
// with KindTombstone and an empty value.
func (w *Writer) Add(ctx context.Context, key, value lsmkit.Slice, kind lsmkit.Kind) error {
	if w.finished {
		return ErrFinished
	}

	if !kind.Valid() {
		return fmt.Errorf("segment: invalid entry kind %d", uint8(kind))
	}

	if w.entries > 0 && w.cmp.Compare(key, w.lastKey) <= 0 {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, key, w.lastKey)
	}

	if err := w.ensureStarted(ctx); err != nil {
		return err
	}

	if w.pendingSep {
		sep := w.cmp.Separator(nil, w.lastKey, key)
		w.index = append(w.index, indexEntry{sep: sep, handle: w.pendingBlock})
		w.pendingSep = false
	}

	w.block.add(key, value, kind)
	w.lastKey = append(w.lastKey[:0], key...)
	w.entries++

	if w.block.size() >= w.blockSize {
		return w.flushBlock(ctx)
	}

	return nil
}

// Finish flushes the open data block, writes the index and footer and seals
// the writer. A segment with zero entries is valid.
func (w *Writer) Finish(ctx context.Context) (err error) {
	if w.finished {
		return ErrFinished
	}

	defer func() {
		w.finished = true
		w.logger.WithSegment(w.id).LogFlush(ctx, w.entries, int64(w.offset), err)
	}()

	if err = w.ensureStarted(ctx); err != nil {
		return err
	}

	if !w.block.empty() {
		if err = w.flushBlock(ctx); err != nil {
			return err
		}
	}

	if w.pendingSep {
		// No next block exists, so the last separator is a short key
		// that still compares >= every key in the file.
		sep := w.cmp.Successor(nil, w.lastKey)
		w.index = append(w.index, indexEntry{sep: sep, handle: w.pendingBlock})
		w.pendingSep = false
	}

	physical, err := encodeBlock(encodeIndex(w.index), CompressionNone)
	if err != nil {
		return err
	}

	indexOff := w.offset
	if err = w.writeAll(ctx, physical); err != nil {
		return err
	}

	ft := footer{indexOff: indexOff, indexLen: uint32(len(physical)), entries: w.entries}

	return w.writeAll(ctx, ft.encode())
}

// Entries returns the number of entries added so far.
func (w *Writer) Entries() uint64 {
	return w.entries
}

// BytesWritten returns the number of bytes emitted so far, header included.
func (w *Writer) BytesWritten() int64 {
	return int64(w.offset)
}

// SegmentID returns the ID embedded in the file header.
func (w *Writer) SegmentID() uuid.UUID {
	return w.id
}

func (w *Writer) ensureStarted(ctx context.Context) error {
	if w.started {
		return nil
	}

	h := fileHeader{codec: w.codec, segmentID: w.id, comparator: w.cmp.Name()}
	if err := w.writeAll(ctx, h.encode()); err != nil {
		return err
	}

	w.started = true

	return nil
}

func (w *Writer) flushBlock(ctx context.Context) error {
	physical, err := encodeBlock(w.block.finish(), w.codec)
	if err != nil {
		return err
	}

	handle := blockHandle{offset: w.offset, length: uint32(len(physical))}
	if err := w.writeAll(ctx, physical); err != nil {
		return err
	}

	w.pendingBlock = handle
	w.pendingSep = true
	w.block.reset()

	return nil
}

func (w *Writer) writeAll(ctx context.Context, p []byte) error {
	if err := w.ctrl.AcquireIO(ctx, len(p)); err != nil {
		return fmt.Errorf("segment: io budget: %w", err)
	}

	n, err := w.w.Write(p)
	w.offset += uint64(n)

	if err != nil {
		return fmt.Errorf("segment: write: %w", err)
	}

	return nil
}

// blockBuilder accumulates the uncompressed payload of one data block:
// a u32 entry count followed by length-prefixed entries.
type blockBuilder struct {
	data  []byte
	count uint32
}

func (b *blockBuilder) reset() {
	if b.data == nil {
		b.data = make([]byte, 4, DefaultBlockSize/2)
	}
	b.data = b.data[:4]
	b.count = 0
}

func (b *blockBuilder) add(key, value []byte, kind lsmkit.Kind) {
	b.data = binary.AppendUvarint(b.data, uint64(len(key)))
	b.data = append(b.data, key...)
	b.data = append(b.data, byte(kind))
	b.data = binary.AppendUvarint(b.data, uint64(len(value)))
	b.data = append(b.data, value...)
	b.count++
}

func (b *blockBuilder) empty() bool {
	return b.count == 0
}

func (b *blockBuilder) size() int {
	return len(b.data)
}

func (b *blockBuilder) finish() []byte {
	binary.LittleEndian.PutUint32(b.data[:4], b.count)
	return b.data
}

// Source yields ordered entries for Copy. Memtable iterators and segment
// iterators both satisfy it.
type Source interface {
	SeekToFirst()
	Valid() bool
	Next()
	Key() lsmkit.Slice
	Value() lsmkit.Slice
	Kind() lsmkit.Kind
}

// Copy drains src into w and returns the number of entries written. It does
// not call Finish, so a caller can combine several non-overlapping sources
// into one segment before sealing it. If src also implements Err() error,
// the error is checked after the drain.
func Copy(ctx context.Context, w *Writer, src Source) (uint64, error) {
	var n uint64

	for src.SeekToFirst(); src.Valid(); src.Next() {
		if err := w.Add(ctx, src.Key(), src.Value(), src.Kind()); err != nil {
			return n, err
		}
		n++
	}

	if errer, ok := src.(interface{ Err() error }); ok {
		if err := errer.Err(); err != nil {
			return n, err
		}
	}

	return n, nil
}
