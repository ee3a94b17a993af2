package lsmkit

import "fmt"

// Kind tags an entry as a live value or a deletion marker. Tombstones travel
// through memtables and segments like ordinary entries so that a deletion in
// a newer run can shadow a value in an older one.
//
// The numeric values are part of the segment file format and must not change.
type Kind uint8

const (
	// KindTombstone marks a key as deleted.
	KindTombstone Kind = 0
	// KindValue marks a key as carrying a live value.
	KindValue Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindTombstone:
		return "tombstone"
	case KindValue:
		return "value"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a defined entry kind. Decoders reject entries
// with undefined kinds rather than guessing.
func (k Kind) Valid() bool {
	return k == KindTombstone || k == KindValue
}
