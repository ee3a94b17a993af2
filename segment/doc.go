// Package segment writes and reads immutable sorted segment files, the
// on-disk form of a flushed memtable.
//
// A segment is a sequence of compressed, checksummed data blocks followed by
// a block index and a fixed-size footer. Each index entry carries a shortened
// separator key, so point lookups touch at most one data block. The file
// header records the comparator name and a UUID for the segment; opening a
// file under a different key ordering fails up front instead of returning
// silently wrong results.
//
// # Writing
//
//	w := segment.NewWriter(f, lsmkit.Bytewise,
//		segment.WithCompression(segment.CompressionZSTD),
//	)
//	if _, err := segment.Copy(ctx, w, mt.Iter()); err != nil {
//		return err
//	}
//	if err := w.Finish(ctx); err != nil {
//		return err
//	}
//
// # Reading
//
//	r, err := segment.OpenFile(path, lsmkit.Bytewise,
//		segment.WithBlockCache(64),
//	)
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//
//	value, kind, err := r.Get([]byte("key"))
//
// Readers are safe for concurrent use. Writers are single-goroutine, which
// matches the flush path that drains one memtable at a time.
package segment
