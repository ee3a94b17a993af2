// Package arena provides a bump-pointer memory arena for short-lived,
// densely packed data such as memtable entries.
//
// # Concurrency Model
//
// An arena has a single logical owner. Allocate, AllocateAligned, Stats and
// Close must all be issued by that owner (or under its external
// synchronization). MemoryUsage is the one exception: it reads an atomic
// counter and may be called from any goroutine, which is how a flush
// scheduler watches a memtable grow while the write path keeps allocating.
//
// # Memory Management
//
// Memory is taken from the block source in standard blocks (4 KiB by
// default). Small allocations bump a cursor through the active block.
// Allocations larger than a quarter block get a dedicated block of their own,
// leaving the active block's remainder for further small allocations.
// Nothing is freed individually: allocation is a pointer bump, reclamation is
// Close, which releases every block in one pass. Slices returned earlier are
// invalid after Close.
//
// # Usage Recommendations
//
//  1. Create one arena per memtable (not per operation)
//  2. Size blocks so a typical entry is well under a quarter block
//  3. Use WithOffHeap for large memtables to keep GC scan time flat
//  4. Call Close exactly once, after the memtable is flushed or dropped
package arena

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/lsmkit/internal/mmap"
	"github.com/hupe1980/lsmkit/resource"
)

// ErrQuotaExceeded is the panic value when a resource controller refuses a
// block acquisition. Running out of budgeted memory is not a recoverable
// per-call condition here; an arena cannot make progress without its block.
var ErrQuotaExceeded = errors.New("arena: memory quota exceeded")

const (
	// DefaultBlockSize is the default size of a standard block (4 KiB).
	DefaultBlockSize = 4096

	// Alignment is the base alignment guaranteed by AllocateAligned.
	// It covers pointer width on every supported platform.
	Alignment = 8
)

type block struct {
	data    []byte
	mapping *mmap.Mapping // non-nil when the block is off-heap
}

// Arena is a bump-pointer allocator. The zero value is not usable; call New.
//
// head is the unused tail of the active block: &head[0] is the cursor,
// len(head) the remaining capacity. Serving n bytes is a single reslice.
type Arena struct {
	head   []byte
	blocks []block
	allocs uint64

	// usage holds the total capacity taken from the block source. It only
	// grows; abandoned remainders and Close do not subtract from it.
	usage atomic.Int64

	blockSize int
	offHeap   bool
	ctrl      *resource.Controller
	closed    bool
}

// Option is a configuration option for Arena.
type Option func(*Arena)

// WithBlockSize sets the standard block size. Sizes <= 0 select
// DefaultBlockSize. Allocations larger than a quarter of the block size are
// served from dedicated blocks.
func WithBlockSize(n int) Option {
	return func(a *Arena) {
		a.blockSize = n
	}
}

// WithOffHeap places blocks in anonymous memory mappings outside the Go
// heap. The garbage collector neither scans nor accounts them; Close unmaps
// them.
func WithOffHeap() Option {
	return func(a *Arena) {
		a.offHeap = true
	}
}

// WithController charges every block acquisition against c. A refusal by the
// controller panics with ErrQuotaExceeded. Close gives the reserved bytes
// back.
func WithController(c *resource.Controller) Option {
	return func(a *Arena) {
		a.ctrl = c
	}
}

// New creates an empty Arena. No block is acquired until the first
// allocation.
func New(opts ...Option) *Arena {
	a := &Arena{
		blockSize: DefaultBlockSize,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.blockSize <= 0 {
		a.blockSize = DefaultBlockSize
	}

	return a
}

// Allocate returns a slice of exactly n zeroed bytes owned by the arena. The
// bytes stay valid until Close. n must be positive; a zero or negative size
// is a caller bug and panics.
func (a *Arena) Allocate(n int) []byte {
	if n <= 0 {
		panic("arena: allocation size must be positive")
	}
	if a.closed {
		panic("arena: allocate after Close")
	}

	a.allocs++

	if n <= len(a.head) {
		b := a.head[:n:n]
		a.head = a.head[n:]
		return b
	}

	return a.allocateFallback(n)
}

// AllocateAligned is Allocate with the additional guarantee that the first
// byte sits on an Alignment boundary. Skipped padding bytes are lost to the
// arena like any abandoned remainder.
func (a *Arena) AllocateAligned(n int) []byte {
	if n <= 0 {
		panic("arena: allocation size must be positive")
	}
	if a.closed {
		panic("arena: allocate after Close")
	}

	a.allocs++

	if len(a.head) > 0 {
		mod := int(uintptr(unsafe.Pointer(&a.head[0])) & (Alignment - 1))
		slop := 0
		if mod != 0 {
			slop = Alignment - mod
		}
		if need := n + slop; need <= len(a.head) {
			b := a.head[slop:need:need]
			a.head = a.head[need:]
			return b
		}
	}

	// Fresh blocks start on an aligned base, so the fallback result is
	// aligned without padding.
	return a.allocateFallback(n)
}

// AllocateUint32Slice returns a zeroed []uint32 of length n backed by arena
// memory. Skiplist towers are stored this way: one allocation, no per-node
// pointer slices for the garbage collector to trace.
func (a *Arena) AllocateUint32Slice(n int) []uint32 {
	if n <= 0 {
		panic("arena: allocation size must be positive")
	}

	b := a.AllocateAligned(n * 4)

	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), n)
}

func (a *Arena) allocateFallback(n int) []byte {
	if n > a.blockSize/4 {
		// Serve large objects from a dedicated block so the active block's
		// remainder keeps absorbing small allocations.
		return a.newBlock(n)
	}

	// Abandon the remainder of the active block and start a fresh one.
	data := a.newBlock(a.blockSize)
	a.head = data[n:]

	return data[:n:n]
}

// newBlock acquires a block of exactly size bytes from the configured
// source. The base address is Alignment-aligned for both sources.
func (a *Arena) newBlock(size int) []byte {
	if !a.ctrl.TryAcquireMemory(int64(size)) {
		panic(fmt.Errorf("arena: acquiring %d byte block: %w", size, ErrQuotaExceeded))
	}

	var (
		data    []byte
		mapping *mmap.Mapping
	)

	if a.offHeap {
		m, err := mmap.MapAnon(size)
		if err != nil {
			a.ctrl.ReleaseMemory(int64(size))
			panic(fmt.Errorf("arena: anonymous mapping of %d bytes: %w", size, err))
		}
		mapping = m
		data = m.Bytes()
	} else {
		data = heapBlock(size)
	}

	a.blocks = append(a.blocks, block{data: data, mapping: mapping})
	a.usage.Add(int64(size))

	return data
}

// heapBlock returns a size-byte slice whose base address is
// Alignment-aligned. The runtime's tiny allocator can hand out unaligned
// bases for small byte slices, so the block is over-allocated by Alignment
// and trimmed to the first aligned byte.
func heapBlock(size int) []byte {
	buf := make([]byte, size+Alignment)

	addr := uintptr(unsafe.Pointer(&buf[0]))
	off := int((Alignment - (addr & (Alignment - 1))) & (Alignment - 1))

	return buf[off : off+size : off+size]
}

// MemoryUsage returns the total capacity, in bytes, taken from the block
// source over the arena's lifetime. It is monotonically non-decreasing and
// safe to call from any goroutine, including while the owner allocates.
func (a *Arena) MemoryUsage() int64 {
	return a.usage.Load()
}

// Stats tracks arena memory metrics.
//
// Note on semantics:
//   - Blocks: blocks currently held (standard and dedicated)
//   - BytesReserved: total capacity taken from the block source
//   - BytesRemaining: unused space left in the active block
//   - Allocs: allocations served over the arena's lifetime
type Stats struct {
	Blocks         int
	BytesReserved  int64
	BytesRemaining int
	Allocs         uint64
}

// Stats returns a snapshot of the arena's metrics. Owner-only, like the
// allocation methods; concurrent observers should use MemoryUsage.
func (a *Arena) Stats() Stats {
	return Stats{
		Blocks:         len(a.blocks),
		BytesReserved:  a.usage.Load(),
		BytesRemaining: len(a.head),
		Allocs:         a.allocs,
	}
}

func (a *Arena) String() string {
	stats := a.Stats()
	return fmt.Sprintf(
		"Arena{blocks: %d, reserved: %s, remaining: %s, allocs: %d}",
		stats.Blocks,
		humanize.IBytes(uint64(stats.BytesReserved)),
		humanize.IBytes(uint64(stats.BytesRemaining)),
		stats.Allocs,
	)
}

// Close releases every block in one pass and invalidates the arena. All
// slices it ever returned are dead afterwards; allocating on a closed arena
// panics. Close is idempotent and returns the first unmap error, if any.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	for i := range a.blocks {
		if m := a.blocks[i].mapping; m != nil {
			if err := m.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		a.blocks[i] = block{}
	}

	a.blocks = nil
	a.head = nil

	a.ctrl.ReleaseMemory(a.usage.Load())

	return firstErr
}
