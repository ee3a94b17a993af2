package memtable

import (
	"encoding/binary"
	"math/rand"

	"github.com/hupe1980/lsmkit"
	"github.com/hupe1980/lsmkit/arena"
)

const (
	maxHeight = 12
	branching = 4

	// Fixed seed so tower shapes are reproducible across runs.
	towerSeed = 0xdeadbeef
)

// node is the registry entry for one skiplist node. The entry bytes and the
// tower live in the arena; the registry itself is ordinary Go memory.
type node struct {
	entry []byte   // uvarint(klen) | key | kind | uvarint(vlen) | value
	tower []uint32 // next node id per level; 0 is the nil link
}

// skiplist is a single-writer skiplist over arena-resident entries. Nodes
// are addressed by their index in the registry; id 0 is the head sentinel,
// so a zero link doubles as nil and needs no special casing.
type skiplist struct {
	cmp    lsmkit.Comparator
	arena  *arena.Arena
	nodes  []node
	height int
	rnd    *rand.Rand
}

func newSkiplist(cmp lsmkit.Comparator, a *arena.Arena) *skiplist {
	s := &skiplist{
		cmp:    cmp,
		arena:  a,
		nodes:  make([]node, 1, 128),
		height: 1,
		rnd:    rand.New(rand.NewSource(towerSeed)),
	}

	// The head gets a full-height tower; zeroed arena memory means every
	// level starts as a nil link.
	s.nodes[0].tower = a.AllocateUint32Slice(maxHeight)

	return s
}

// randomHeight picks a tower height with a 1/branching chance per extra
// level, capped at maxHeight.
func (s *skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

func encodeEntry(a *arena.Arena, key, value lsmkit.Slice, kind lsmkit.Kind) []byte {
	n := uvarintLen(uint64(len(key))) + len(key) + 1 + uvarintLen(uint64(len(value))) + len(value)

	buf := a.Allocate(n)
	off := binary.PutUvarint(buf, uint64(len(key)))
	off += copy(buf[off:], key)
	buf[off] = byte(kind)
	off++
	off += binary.PutUvarint(buf[off:], uint64(len(value)))
	copy(buf[off:], value)

	return buf
}

func decodeEntry(e []byte) (key, value lsmkit.Slice, kind lsmkit.Kind) {
	klen, n := binary.Uvarint(e)
	key = lsmkit.Slice(e[n : n+int(klen)])

	off := n + int(klen)
	kind = lsmkit.Kind(e[off])
	off++

	vlen, n := binary.Uvarint(e[off:])
	off += n
	value = lsmkit.Slice(e[off : off+int(vlen)])

	return key, value, kind
}

func uvarintLen(x uint64) int {
	n := 1
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n
}

// nodeKey decodes just the key span of a node's entry.
func (s *skiplist) nodeKey(id uint32) lsmkit.Slice {
	e := s.nodes[id].entry
	klen, n := binary.Uvarint(e)
	return lsmkit.Slice(e[n : n+int(klen)])
}

// keyIsAfterNode reports whether key orders strictly after the node's key.
func (s *skiplist) keyIsAfterNode(key lsmkit.Slice, id uint32) bool {
	return s.cmp.Compare(s.nodeKey(id), key) < 0
}

// findGreaterOrEqual returns the first node whose key is >= key, or 0. When
// prev is non-nil it receives, per level, the last node before that
// position; insertion splices there.
func (s *skiplist) findGreaterOrEqual(key lsmkit.Slice, prev []uint32) uint32 {
	x := uint32(0)
	level := s.height - 1
	for {
		next := s.nodes[x].tower[level]
		if next != 0 && s.keyIsAfterNode(key, next) {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// findLessThan returns the last node whose key is < key, or 0 when no such
// node exists.
func (s *skiplist) findLessThan(key lsmkit.Slice) uint32 {
	x := uint32(0)
	level := s.height - 1
	for {
		next := s.nodes[x].tower[level]
		if next != 0 && s.cmp.Compare(s.nodeKey(next), key) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}

// findLast returns the highest-keyed node, or 0 when the list is empty.
func (s *skiplist) findLast() uint32 {
	x := uint32(0)
	level := s.height - 1
	for {
		next := s.nodes[x].tower[level]
		if next != 0 {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}

// put stores an entry under key, replacing any existing entry for an
// equivalent key in place. It reports whether a new node was created.
func (s *skiplist) put(key, value lsmkit.Slice, kind lsmkit.Kind) bool {
	var prev [maxHeight]uint32
	x := s.findGreaterOrEqual(key, prev[:])

	if x != 0 && s.cmp.Compare(s.nodeKey(x), key) == 0 {
		// Same key: swap the entry, keep the tower. The old entry's bytes
		// stay reserved in the arena until Close.
		s.nodes[x].entry = encodeEntry(s.arena, key, value, kind)
		return false
	}

	h := s.randomHeight()
	if h > s.height {
		for level := s.height; level < h; level++ {
			prev[level] = 0
		}
		s.height = h
	}

	id := uint32(len(s.nodes))
	s.nodes = append(s.nodes, node{
		entry: encodeEntry(s.arena, key, value, kind),
		tower: s.arena.AllocateUint32Slice(h),
	})

	for level := 0; level < h; level++ {
		s.nodes[id].tower[level] = s.nodes[prev[level]].tower[level]
		s.nodes[prev[level]].tower[level] = id
	}

	return true
}

// get returns the value and kind stored under key.
func (s *skiplist) get(key lsmkit.Slice) (lsmkit.Slice, lsmkit.Kind, bool) {
	x := s.findGreaterOrEqual(key, nil)
	if x == 0 {
		return nil, 0, false
	}

	k, v, kind := decodeEntry(s.nodes[x].entry)
	if s.cmp.Compare(k, key) != 0 {
		return nil, 0, false
	}

	return v, kind, true
}
