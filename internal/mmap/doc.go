// Package mmap provides memory mappings for segment files and arena blocks.
//
// # Overview
//
// Two kinds of mapping are exposed. Open maps a segment file read-only for
// zero-copy reads; the file contents are paged in on demand and never copied
// through user-space buffers. MapAnon creates a read-write anonymous mapping,
// which the arena uses as an off-heap block source so that bulk entry data
// stays outside the Go garbage collector.
//
// # Usage
//
//	m, err := mmap.Open("run-000001.seg")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//	m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile and VirtualAlloc; Advise is a no-op
//
// # Thread Safety
//
// A Mapping is safe for concurrent reads. Close is idempotent and protected
// by an atomic flag, but callers must ensure no goroutine touches Bytes()
// after Close returns; the pages are gone.
package mmap
