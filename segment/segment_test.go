package segment

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lsmkit"
	"github.com/hupe1980/lsmkit/memtable"
	"github.com/hupe1980/lsmkit/resource"
)

// Memtable iterators must keep satisfying Source so flushes stay one call.
var _ Source = (*memtable.Iterator)(nil)
var _ Source = (*Iterator)(nil)

type reverseComparator struct{}

func (reverseComparator) Compare(a, b lsmkit.Slice) int { return -bytes.Compare(a, b) }

func (reverseComparator) Name() string { return "test.ReverseBytewiseComparator" }

func (reverseComparator) Separator(dst []byte, a, limit lsmkit.Slice) []byte {
	return append(dst, a...)
}

func (reverseComparator) Successor(dst []byte, key lsmkit.Slice) []byte {
	return append(dst, key...)
}

func buildSegment(t *testing.T, n int, opts ...WriterOption) []byte {
	t.Helper()

	ctx := context.Background()

	var buf bytes.Buffer

	w := NewWriter(&buf, lsmkit.Bytewise, opts...)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%05d", i)
		value := fmt.Sprintf("value-%05d", i)
		require.NoError(t, w.Add(ctx, []byte(key), []byte(value), lsmkit.KindValue))
	}
	require.NoError(t, w.Finish(ctx))

	return buf.Bytes()
}

func TestSegment_Roundtrip(t *testing.T) {
	for _, codec := range []CompressionType{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(codec.String(), func(t *testing.T) {
			data := buildSegment(t, 500, WithCompression(codec))

			r, err := Open(bytes.NewReader(data), int64(len(data)), lsmkit.Bytewise)
			require.NoError(t, err)

			assert.Equal(t, uint64(500), r.Entries())
			assert.Equal(t, codec, r.Compression())

			for i := 0; i < 500; i++ {
				value, kind, err := r.Get([]byte(fmt.Sprintf("key-%05d", i)))
				require.NoError(t, err)
				assert.Equal(t, lsmkit.KindValue, kind)
				assert.Equal(t, fmt.Sprintf("value-%05d", i), string(value))
			}

			_, _, err = r.Get([]byte("key-99999"))
			assert.ErrorIs(t, err, ErrNotFound)

			_, _, err = r.Get([]byte("aaa"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSegment_MultiBlock(t *testing.T) {
	data := buildSegment(t, 500, WithBlockSize(128))

	r, err := Open(bytes.NewReader(data), int64(len(data)), lsmkit.Bytewise)
	require.NoError(t, err)

	// Small blocks force many index entries, so lookups exercise the
	// separator-based block selection.
	assert.Greater(t, len(r.index), 10)

	for i := 0; i < 500; i++ {
		value, _, err := r.Get([]byte(fmt.Sprintf("key-%05d", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("value-%05d", i), string(value))
	}

	// Keys that fall in the gaps between blocks must miss cleanly.
	_, _, err = r.Get([]byte("key-00123x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSegment_Tombstones(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer

	w := NewWriter(&buf, lsmkit.Bytewise)
	require.NoError(t, w.Add(ctx, []byte("alive"), []byte("v"), lsmkit.KindValue))
	require.NoError(t, w.Add(ctx, []byte("dead"), nil, lsmkit.KindTombstone))
	require.NoError(t, w.Add(ctx, []byte("empty"), nil, lsmkit.KindValue))
	require.NoError(t, w.Finish(ctx))

	r, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), lsmkit.Bytewise)
	require.NoError(t, err)

	value, kind, err := r.Get([]byte("alive"))
	require.NoError(t, err)
	assert.Equal(t, lsmkit.KindValue, kind)
	assert.Equal(t, "v", string(value))

	value, kind, err = r.Get([]byte("dead"))
	require.NoError(t, err)
	assert.Equal(t, lsmkit.KindTombstone, kind)
	assert.Empty(t, value)

	value, kind, err = r.Get([]byte("empty"))
	require.NoError(t, err)
	assert.Equal(t, lsmkit.KindValue, kind)
	assert.Empty(t, value)
}

func TestWriter_OutOfOrder(t *testing.T) {
	ctx := context.Background()

	w := NewWriter(io.Discard, lsmkit.Bytewise)
	require.NoError(t, w.Add(ctx, []byte("banana"), []byte("v"), lsmkit.KindValue))

	err := w.Add(ctx, []byte("apple"), []byte("v"), lsmkit.KindValue)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	err = w.Add(ctx, []byte("banana"), []byte("v2"), lsmkit.KindValue)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	require.NoError(t, w.Add(ctx, []byte("cherry"), []byte("v"), lsmkit.KindValue))
	assert.Equal(t, uint64(2), w.Entries())
}

func TestWriter_Finished(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer

	w := NewWriter(&buf, lsmkit.Bytewise)
	require.NoError(t, w.Add(ctx, []byte("k"), []byte("v"), lsmkit.KindValue))
	require.NoError(t, w.Finish(ctx))

	assert.ErrorIs(t, w.Add(ctx, []byte("l"), []byte("v"), lsmkit.KindValue), ErrFinished)
	assert.ErrorIs(t, w.Finish(ctx), ErrFinished)

	assert.Positive(t, w.BytesWritten())
	assert.Equal(t, int64(buf.Len()), w.BytesWritten())
}

func TestWriter_Empty(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer

	w := NewWriter(&buf, lsmkit.Bytewise)
	require.NoError(t, w.Finish(ctx))

	r, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), lsmkit.Bytewise)
	require.NoError(t, err)

	assert.Zero(t, r.Entries())

	_, _, err = r.Get([]byte("anything"))
	assert.ErrorIs(t, err, ErrNotFound)

	it := r.Iter()
	it.SeekToFirst()
	assert.False(t, it.Valid())
	assert.NoError(t, it.Err())
}

func TestWriter_SegmentID(t *testing.T) {
	ctx := context.Background()
	id := uuid.MustParse("7d56471e-3f83-4c1b-9a47-ef0cbb3a7d10")

	var buf bytes.Buffer

	w := NewWriter(&buf, lsmkit.Bytewise, WithSegmentID(id))
	assert.Equal(t, id, w.SegmentID())

	require.NoError(t, w.Add(ctx, []byte("k"), []byte("v"), lsmkit.KindValue))
	require.NoError(t, w.Finish(ctx))

	r, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), lsmkit.Bytewise)
	require.NoError(t, err)
	assert.Equal(t, id, r.SegmentID())
}

func TestWriter_IOBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("write larger than burst fails", func(t *testing.T) {
		rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 16})

		w := NewWriter(io.Discard, lsmkit.Bytewise, WithController(rc))

		// The header alone exceeds the 16 byte burst.
		err := w.Add(ctx, []byte("k"), []byte("v"), lsmkit.KindValue)
		assert.Error(t, err)
	})

	t.Run("generous budget passes", func(t *testing.T) {
		rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})

		var buf bytes.Buffer

		w := NewWriter(&buf, lsmkit.Bytewise, WithController(rc))
		for i := 0; i < 100; i++ {
			require.NoError(t, w.Add(ctx, []byte(fmt.Sprintf("key-%05d", i)), []byte("v"), lsmkit.KindValue))
		}
		require.NoError(t, w.Finish(ctx))

		r, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), lsmkit.Bytewise)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), r.Entries())
	})
}

// failingWriter fails every write once limit bytes have gone through,
// simulating a full or broken disk mid-flush.
type failingWriter struct {
	written int
	limit   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.limit {
		n := w.limit - w.written
		w.written = w.limit
		return n, fmt.Errorf("disk full")
	}
	w.written += len(p)
	return len(p), nil
}

func TestWriter_WriteFailure(t *testing.T) {
	ctx := context.Background()

	// The header fits under the limit; no block flush does.
	w := NewWriter(&failingWriter{limit: 70}, lsmkit.Bytewise)

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Add(ctx, []byte(fmt.Sprintf("key-%05d", i)), []byte("v"), lsmkit.KindValue))
	}

	err := w.Finish(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")

	// A failed Finish still seals the writer.
	assert.ErrorIs(t, w.Finish(ctx), ErrFinished)
	assert.ErrorIs(t, w.Add(ctx, []byte("z"), []byte("v"), lsmkit.KindValue), ErrFinished)
}

func TestOpen_ComparatorMismatch(t *testing.T) {
	data := buildSegment(t, 10)

	_, err := Open(bytes.NewReader(data), int64(len(data)), reverseComparator{})
	assert.ErrorIs(t, err, ErrComparatorMismatch)
}

func TestOpen_Corrupted(t *testing.T) {
	data := buildSegment(t, 100, WithCompression(CompressionNone))
	headerLen := headerPrefixSize + len(lsmkit.Bytewise.Name())

	t.Run("flipped data byte", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[headerLen+10] ^= 0xff

		// The index and footer are intact, so the file still opens.
		r, err := Open(bytes.NewReader(bad), int64(len(bad)), lsmkit.Bytewise)
		require.NoError(t, err)

		_, _, err = r.Get([]byte("key-00000"))
		assert.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("flipped footer magic", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)-1] ^= 0xff

		_, err := Open(bytes.NewReader(bad), int64(len(bad)), lsmkit.Bytewise)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("flipped index byte", func(t *testing.T) {
		bad := bytes.Clone(data)
		indexOff := binary.LittleEndian.Uint64(bad[len(bad)-footerSize:])
		bad[indexOff+10] ^= 0xff

		_, err := Open(bytes.NewReader(bad), int64(len(bad)), lsmkit.Bytewise)
		assert.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("truncated file", func(t *testing.T) {
		_, err := Open(bytes.NewReader(data[:30]), 30, lsmkit.Bytewise)
		assert.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("not a segment", func(t *testing.T) {
		junk := bytes.Repeat([]byte("nope"), 100)

		_, err := Open(bytes.NewReader(junk), int64(len(junk)), lsmkit.Bytewise)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})
}

func TestIterator(t *testing.T) {
	data := buildSegment(t, 300, WithBlockSize(256))

	r, err := Open(bytes.NewReader(data), int64(len(data)), lsmkit.Bytewise)
	require.NoError(t, err)

	t.Run("full scan in order", func(t *testing.T) {
		it := r.Iter()

		i := 0
		for it.SeekToFirst(); it.Valid(); it.Next() {
			assert.Equal(t, fmt.Sprintf("key-%05d", i), string(it.Key()))
			assert.Equal(t, fmt.Sprintf("value-%05d", i), string(it.Value()))
			assert.Equal(t, lsmkit.KindValue, it.Kind())
			i++
		}

		require.NoError(t, it.Err())
		assert.Equal(t, 300, i)
	})

	t.Run("seek exact", func(t *testing.T) {
		it := r.Iter()
		it.Seek([]byte("key-00150"))

		require.True(t, it.Valid())
		assert.Equal(t, "key-00150", string(it.Key()))
	})

	t.Run("seek between keys", func(t *testing.T) {
		it := r.Iter()
		it.Seek([]byte("key-00150x"))

		require.True(t, it.Valid())
		assert.Equal(t, "key-00151", string(it.Key()))
	})

	t.Run("seek before first", func(t *testing.T) {
		it := r.Iter()
		it.Seek([]byte("a"))

		require.True(t, it.Valid())
		assert.Equal(t, "key-00000", string(it.Key()))
	})

	t.Run("seek past end", func(t *testing.T) {
		it := r.Iter()
		it.Seek([]byte("zzz"))

		assert.False(t, it.Valid())
		assert.NoError(t, it.Err())

		// Next on an exhausted iterator stays put.
		it.Next()
		assert.False(t, it.Valid())
	})
}

func TestReader_BlockCache(t *testing.T) {
	data := buildSegment(t, 500, WithBlockSize(128))

	r, err := Open(bytes.NewReader(data), int64(len(data)), lsmkit.Bytewise, WithBlockCache(4))
	require.NoError(t, err)

	// Two passes over more blocks than the cache holds, so both hits and
	// evictions happen.
	for pass := 0; pass < 2; pass++ {
		for i := 0; i < 500; i += 7 {
			value, _, err := r.Get([]byte(fmt.Sprintf("key-%05d", i)))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("value-%05d", i), string(value))
		}
	}
}

func TestCopy_FromMemTable(t *testing.T) {
	ctx := context.Background()

	mt := memtable.New(lsmkit.Bytewise)
	defer mt.Close()

	for i := 0; i < 200; i++ {
		mt.Put([]byte(fmt.Sprintf("user:%03d", i)), []byte(fmt.Sprintf("profile-%03d", i)))
	}
	for i := 0; i < 200; i += 4 {
		mt.Delete([]byte(fmt.Sprintf("user:%03d", i)))
	}

	var buf bytes.Buffer

	w := NewWriter(&buf, mt.Comparator(), WithBlockSize(512))
	n, err := Copy(ctx, w, mt.Iter())
	require.NoError(t, err)
	assert.Equal(t, uint64(200), n)
	require.NoError(t, w.Finish(ctx))

	r, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), lsmkit.Bytewise)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), r.Entries())

	for i := 0; i < 200; i++ {
		value, kind, err := r.Get([]byte(fmt.Sprintf("user:%03d", i)))
		require.NoError(t, err)

		if i%4 == 0 {
			assert.Equal(t, lsmkit.KindTombstone, kind)
			assert.Empty(t, value)
		} else {
			assert.Equal(t, lsmkit.KindValue, kind)
			assert.Equal(t, fmt.Sprintf("profile-%03d", i), string(value))
		}
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000001.seg")

	require.NoError(t, os.WriteFile(path, buildSegment(t, 200), 0o600))

	r, err := OpenFile(path, lsmkit.Bytewise, WithBlockCache(8))
	require.NoError(t, err)

	value, kind, err := r.Get([]byte("key-00042"))
	require.NoError(t, err)
	assert.Equal(t, lsmkit.KindValue, kind)
	assert.Equal(t, "value-00042", string(value))

	require.NoError(t, r.Close())

	_, _, err = r.Get([]byte("key-00042"))
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, r.Close())
}

func TestOpenFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		_, err := OpenFile(filepath.Join(dir, "missing.seg"), lsmkit.Bytewise)
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.seg")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		_, err := OpenFile(path, lsmkit.Bytewise)
		assert.ErrorIs(t, err, ErrCorrupted)
	})
}

func BenchmarkWriter_Add(b *testing.B) {
	ctx := context.Background()

	for _, codec := range []CompressionType{CompressionNone, CompressionLZ4, CompressionZSTD} {
		b.Run(codec.String(), func(b *testing.B) {
			w := NewWriter(io.Discard, lsmkit.Bytewise, WithCompression(codec))
			value := bytes.Repeat([]byte("v"), 100)

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				key := []byte(fmt.Sprintf("key-%012d", i))
				if err := w.Add(ctx, key, value, lsmkit.KindValue); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkReader_Get(b *testing.B) {
	ctx := context.Background()

	var buf bytes.Buffer

	w := NewWriter(&buf, lsmkit.Bytewise)
	for i := 0; i < 10000; i++ {
		key := []byte(fmt.Sprintf("key-%08d", i))
		value := []byte(fmt.Sprintf("value-%08d", i))
		if err := w.Add(ctx, key, value, lsmkit.KindValue); err != nil {
			b.Fatal(err)
		}
	}
	if err := w.Finish(ctx); err != nil {
		b.Fatal(err)
	}

	r, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), lsmkit.Bytewise, WithBlockCache(64))
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key-%08d", i%10000))
		if _, _, err := r.Get(key); err != nil {
			b.Fatal(err)
		}
	}
}
