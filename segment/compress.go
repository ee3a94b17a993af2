package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType identifies the compression algorithm used for data blocks.
type CompressionType uint8

const (
	// CompressionNone disables compression.
	CompressionNone CompressionType = iota
	// CompressionLZ4 uses LZ4 block compression (fast, moderate ratio).
	CompressionLZ4
	// CompressionZSTD uses zstd compression (slower, better ratio).
	CompressionZSTD
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

// encodeBlock frames payload as a physical block:
//
//	usize u32 | csize u32 | stored bytes | crc32c u32
//
// where csize == 0 means the payload is stored raw. Payloads that do not
// compress below 90% of their original size are stored raw regardless of the
// requested codec, so decoding cost is only paid where compression earned it.
// The checksum covers the framing header and the stored bytes.
func encodeBlock(payload []byte, codec CompressionType) ([]byte, error) {
	var stored []byte

	switch codec {
	case CompressionNone:

	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("segment: lz4 compression: %w", err)
		}
		if n > 0 {
			stored = buf[:n]
		}

	case CompressionZSTD:
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		stored = enc.EncodeAll(payload, nil)
		zstdEncoderPool.Put(enc)

	default:
		return nil, fmt.Errorf("segment: unknown compression type %d", codec)
	}

	csize := uint32(len(stored))
	if stored == nil || float64(len(stored)) > float64(len(payload))*0.9 {
		stored = payload
		csize = 0
	}

	block := make([]byte, blockHeaderSize+len(stored)+blockTrailerSize)
	binary.LittleEndian.PutUint32(block[0:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(block[4:], csize)
	copy(block[blockHeaderSize:], stored)

	crc := crc32.Checksum(block[:blockHeaderSize+len(stored)], crc32cTable)
	binary.LittleEndian.PutUint32(block[blockHeaderSize+len(stored):], crc)

	return block, nil
}

// decodeBlock verifies the checksum of a physical block and returns the
// uncompressed payload. Raw blocks are returned as a view into block, so the
// result shares the lifetime of the input.
func decodeBlock(block []byte, codec CompressionType) ([]byte, error) {
	if len(block) < blockHeaderSize+blockTrailerSize {
		return nil, fmt.Errorf("%w: short block", ErrCorrupted)
	}

	usize := binary.LittleEndian.Uint32(block[0:])
	csize := binary.LittleEndian.Uint32(block[4:])

	plen := int(csize)
	if csize == 0 {
		plen = int(usize)
	}
	if len(block) != blockHeaderSize+plen+blockTrailerSize {
		return nil, fmt.Errorf("%w: block length mismatch", ErrCorrupted)
	}

	want := binary.LittleEndian.Uint32(block[blockHeaderSize+plen:])
	if got := crc32.Checksum(block[:blockHeaderSize+plen], crc32cTable); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (got %#x, want %#x)", ErrCorrupted, got, want)
	}

	stored := block[blockHeaderSize : blockHeaderSize+plen]
	if csize == 0 {
		return stored, nil
	}

	switch codec {
	case CompressionLZ4:
		payload := make([]byte, usize)
		n, err := lz4.UncompressBlock(stored, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupted, err)
		}
		if n != int(usize) {
			return nil, fmt.Errorf("%w: lz4 size mismatch", ErrCorrupted)
		}
		return payload, nil

	case CompressionZSTD:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		payload, err := dec.DecodeAll(stored, make([]byte, 0, usize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupted, err)
		}
		if len(payload) != int(usize) {
			return nil, fmt.Errorf("%w: zstd size mismatch", ErrCorrupted)
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("%w: compressed block with codec %s", ErrCorrupted, codec)
	}
}
