package lsmkit

import "bytes"

// Slice is a view over a byte span owned by someone else, typically an arena
// block or a decoded segment block. Copying a Slice copies the slice header,
// never the underlying bytes; Clone is the only method that copies bytes.
//
// The zero value is an empty, valid Slice. Because Slice has []byte as its
// underlying type, plain byte slices convert freely in both directions and
// untyped []byte arguments are accepted wherever a Slice is expected.
//
// A Slice is only valid while its owner keeps the bytes alive. Views handed
// out by an arena die with the arena; views into a segment die when its
// reader is closed.
type Slice []byte

// Compare returns -1, 0 or +1 ordering s against b byte-lexicographically.
// Shared-prefix spans compare byte by byte; if one side is a prefix of the
// other, the shorter side orders first.
func (s Slice) Compare(b Slice) int {
	return bytes.Compare(s, b)
}

// Equal reports whether s and b hold the same bytes.
func (s Slice) Equal(b Slice) bool {
	return bytes.Equal(s, b)
}

// HasPrefix reports whether s begins with p. Every Slice has the empty
// prefix.
func (s Slice) HasPrefix(p Slice) bool {
	return bytes.HasPrefix(s, p)
}

// Clone returns a copy of the viewed bytes backed by fresh heap memory,
// detached from the original owner. Use it to let data outlive its arena.
func (s Slice) Clone() Slice {
	if s == nil {
		return nil
	}
	return Slice(bytes.Clone(s))
}

// String copies the viewed bytes into a string.
func (s Slice) String() string {
	return string(s)
}
