package lsmkit

import "bytes"

// Comparator defines a total order over keys. Ordered components (memtable,
// segment) never compare bytes themselves; they delegate every decision to
// the comparator they were built with.
//
// Implementations must be safe for concurrent use and must provide a total
// order: exactly one of Compare(a,b) < 0, == 0, > 0 holds for every pair.
type Comparator interface {
	// Compare returns a negative value if a orders before b, zero if they
	// are equivalent, and a positive value if a orders after b.
	Compare(a, b Slice) int

	// Name identifies the ordering. It is persisted in segment files and
	// checked on open; change the name whenever the order of any two keys
	// changes, or old files will be read under the wrong order. Names
	// starting with "lsmkit." are reserved for built-in comparators.
	Name() string

	// Separator appends to dst a key k with a <= k < limit, given
	// a < limit, and returns the extended buffer. Short results shrink
	// segment block indexes. Appending a unchanged is always a valid
	// implementation.
	Separator(dst []byte, a, limit Slice) []byte

	// Successor appends to dst a key k with k >= key and returns the
	// extended buffer. Appending key unchanged is always a valid
	// implementation.
	Successor(dst []byte, key Slice) []byte
}

// Bytewise orders keys lexicographically by unsigned byte value. It is
// stateless and shared process-wide; there is nothing to construct or tear
// down.
var Bytewise Comparator = bytewiseComparator{}

type bytewiseComparator struct{}

func (bytewiseComparator) Compare(a, b Slice) int {
	return bytes.Compare(a, b)
}

func (bytewiseComparator) Name() string {
	return "lsmkit.BytewiseComparator"
}

func (bytewiseComparator) Separator(dst []byte, a, limit Slice) []byte {
	// Walk the shared prefix, then try to cut a off right after the first
	// diverging byte, incremented. Valid only if the incremented byte still
	// orders below limit at that position.
	n := min(len(a), len(limit))
	i := 0
	for i < n && a[i] == limit[i] {
		i++
	}
	if i >= n {
		// One key is a prefix of the other; a cannot be shortened.
		return append(dst, a...)
	}
	if c := a[i]; c < 0xff && c+1 < limit[i] {
		dst = append(dst, a[:i+1]...)
		dst[len(dst)-1]++
		return dst
	}
	return append(dst, a...)
}

func (bytewiseComparator) Successor(dst []byte, key Slice) []byte {
	for i, c := range key {
		if c != 0xff {
			dst = append(dst, key[:i+1]...)
			dst[len(dst)-1]++
			return dst
		}
	}
	// Run of 0xff bytes: key is its own successor.
	return append(dst, key...)
}
