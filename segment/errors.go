package segment

import "errors"

var (
	// ErrNotFound is returned by Get when the segment holds no entry for
	// the key.
	ErrNotFound = errors.New("segment: key not found")

	// ErrOutOfOrder is returned by Add when a key is not strictly greater
	// than the previously added key.
	ErrOutOfOrder = errors.New("segment: keys must be added in strictly ascending order")

	// ErrFinished is returned when a Writer is used after Finish.
	ErrFinished = errors.New("segment: writer already finished")

	// ErrClosed is returned when a Reader is used after Close.
	ErrClosed = errors.New("segment: reader is closed")

	// ErrInvalidMagic is returned when a file does not carry the segment
	// magic number.
	ErrInvalidMagic = errors.New("segment: invalid magic number")

	// ErrInvalidVersion is returned when a file uses an unsupported format
	// version.
	ErrInvalidVersion = errors.New("segment: unsupported format version")

	// ErrCorrupted is returned when a checksum mismatch or inconsistent
	// framing is detected.
	ErrCorrupted = errors.New("segment: corrupted data")

	// ErrComparatorMismatch is returned by Open when the file was written
	// under a different key ordering than the supplied comparator.
	ErrComparatorMismatch = errors.New("segment: comparator mismatch")
)
