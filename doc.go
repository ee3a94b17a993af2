// Package lsmkit provides arena-backed building blocks for log-structured
// storage engines in Go.
//
// Lsmkit is the memory and table layer of an LSM-tree, packaged as an
// embeddable library: a bump-pointer arena allocator, a comparator-ordered
// in-memory table, and a sorted-run segment format with block compression.
// It is the substrate an engine builds on, not an engine itself.
//
// # Quick Start
//
// Build an in-memory table, then flush it to a segment file:
//
//	mt := memtable.New(lsmkit.Bytewise)
//	defer mt.Close()
//
//	mt.Put([]byte("apple"), []byte("red"))
//	mt.Put([]byte("banana"), []byte("yellow"))
//	mt.Delete([]byte("apple"))
//
//	f, _ := os.Create("run-000001.seg")
//	w := segment.NewWriter(f, lsmkit.Bytewise, segment.WithCompression(segment.CompressionZSTD))
//	_, _ = segment.Copy(ctx, w, mt.Iter())
//	_ = w.Finish(ctx)
//	_ = f.Close()
//
// Reopen and read:
//
//	r, _ := segment.OpenFile("run-000001.seg", lsmkit.Bytewise)
//	defer r.Close()
//	value, kind, err := r.Get([]byte("banana"))
//
// # Memory Model
//
// All per-entry memory flows through the arena package: allocation is a
// pointer bump, teardown is whole-arena. There is no per-entry free. Optional
// off-heap block placement keeps bulk data outside the garbage collector, and
// an optional resource.Controller enforces a hard memory budget across many
// arenas.
//
// # Ordering
//
// Every ordered structure takes a Comparator. The package-level Bytewise
// comparator orders keys lexicographically and is the right choice unless keys
// carry internal structure. Comparator names are persisted in segment files
// and verified on open, so a file written under one ordering cannot silently
// be read under another.
//
// # Key Features
//
//   - Bump-pointer arena with aligned allocation and atomic usage reporting
//   - Off-heap (mmap) block placement outside the Go GC
//   - Skiplist memtable with tombstones and bidirectional iteration
//   - Sorted segment files with ZSTD/LZ4 block compression and CRC32-C checksums
//   - Shortened block index keys via comparator separators
//   - Memory quota and flush IO pacing via resource.Controller
package lsmkit
