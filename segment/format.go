package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/google/uuid"
)

const (
	// MagicNumber opens and closes every segment file ("LSMKSEG1").
	MagicNumber uint64 = 0x4C534D4B53454731

	// Version is the current file format version.
	Version uint32 = 1
)

const (
	// headerPrefixSize covers the fixed part of the file header:
	// magic u64 | version u32 | codec u8 | pad [3]byte | segmentID [16]byte |
	// nameLen u16. The comparator name follows.
	headerPrefixSize = 8 + 4 + 1 + 3 + 16 + 2

	// footerSize covers the fixed trailer:
	// indexOff u64 | indexLen u32 | entries u64 | magic u64.
	footerSize = 8 + 4 + 8 + 8

	// Physical block framing: usize u32 | csize u32 | payload | crc32c u32.
	blockHeaderSize  = 8
	blockTrailerSize = 4
)

// crc32cTable is pre-computed for the CRC32-Castagnoli polynomial, which has
// hardware support on modern x86 and ARM.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

type fileHeader struct {
	codec      CompressionType
	segmentID  uuid.UUID
	comparator string
}

func (h *fileHeader) encode() []byte {
	buf := make([]byte, headerPrefixSize+len(h.comparator))
	binary.LittleEndian.PutUint64(buf[0:], MagicNumber)
	binary.LittleEndian.PutUint32(buf[8:], Version)
	buf[12] = byte(h.codec)
	// Padding [13:16]
	copy(buf[16:32], h.segmentID[:])
	binary.LittleEndian.PutUint16(buf[32:], uint16(len(h.comparator)))
	copy(buf[headerPrefixSize:], h.comparator)
	return buf
}

func decodeFileHeader(r io.ReaderAt, size int64) (*fileHeader, error) {
	if size < headerPrefixSize {
		return nil, fmt.Errorf("%w: %d byte file", ErrCorrupted, size)
	}

	prefix := make([]byte, headerPrefixSize)
	if _, err := r.ReadAt(prefix, 0); err != nil {
		return nil, fmt.Errorf("segment: reading header: %w", err)
	}

	if binary.LittleEndian.Uint64(prefix[0:]) != MagicNumber {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(prefix[8:]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, v)
	}

	h := &fileHeader{codec: CompressionType(prefix[12])}
	copy(h.segmentID[:], prefix[16:32])

	nameLen := int(binary.LittleEndian.Uint16(prefix[32:]))
	if int64(headerPrefixSize+nameLen) > size {
		return nil, fmt.Errorf("%w: comparator name extends past file end", ErrCorrupted)
	}
	name := make([]byte, nameLen)
	if _, err := r.ReadAt(name, headerPrefixSize); err != nil {
		return nil, fmt.Errorf("segment: reading comparator name: %w", err)
	}
	h.comparator = string(name)

	return h, nil
}

type footer struct {
	indexOff uint64
	indexLen uint32
	entries  uint64
}

func (f *footer) encode() []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(buf[0:], f.indexOff)
	binary.LittleEndian.PutUint32(buf[8:], f.indexLen)
	binary.LittleEndian.PutUint64(buf[12:], f.entries)
	binary.LittleEndian.PutUint64(buf[20:], MagicNumber)
	return buf
}

func decodeFooter(buf []byte) (*footer, error) {
	if len(buf) < footerSize {
		return nil, fmt.Errorf("%w: short footer", ErrCorrupted)
	}
	if binary.LittleEndian.Uint64(buf[20:]) != MagicNumber {
		return nil, ErrInvalidMagic
	}
	return &footer{
		indexOff: binary.LittleEndian.Uint64(buf[0:]),
		indexLen: binary.LittleEndian.Uint32(buf[8:]),
		entries:  binary.LittleEndian.Uint64(buf[12:]),
	}, nil
}

// blockHandle locates one physical block inside the file.
type blockHandle struct {
	offset uint64
	length uint32 // full physical length, framing included
}

// indexEntry pairs a block handle with a separator key that compares >= every
// key inside the block and < every key in later blocks.
type indexEntry struct {
	sep    []byte
	handle blockHandle
}

func encodeIndex(entries []indexEntry) []byte {
	buf := make([]byte, 4, 4+len(entries)*24)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))

	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(len(e.sep)))
		buf = append(buf, e.sep...)
		buf = binary.LittleEndian.AppendUint64(buf, e.handle.offset)
		buf = binary.LittleEndian.AppendUint32(buf, e.handle.length)
	}

	return buf
}

func decodeIndex(payload []byte) ([]indexEntry, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: short index", ErrCorrupted)
	}

	count := binary.LittleEndian.Uint32(payload)
	entries := make([]indexEntry, 0, count)
	off := 4

	for i := uint32(0); i < count; i++ {
		seplen, n := binary.Uvarint(payload[off:])
		if n <= 0 || seplen > uint64(len(payload)) || off+n+int(seplen)+12 > len(payload) {
			return nil, fmt.Errorf("%w: truncated index entry", ErrCorrupted)
		}
		off += n

		sep := payload[off : off+int(seplen)]
		off += int(seplen)

		handle := blockHandle{
			offset: binary.LittleEndian.Uint64(payload[off:]),
			length: binary.LittleEndian.Uint32(payload[off+8:]),
		}
		off += 12

		entries = append(entries, indexEntry{sep: sep, handle: handle})
	}

	return entries, nil
}
