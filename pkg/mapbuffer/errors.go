package mapbuffer

import "errors"

// Sentinel errors, one per taxonomy entry. Callers classify failures with
// errors.Is; wrapping with fmt.Errorf("...: %w", ...) preserves the
// underlying detail without inventing structured error types.
var (
	// ErrBadMagic is returned when the MAGIC prefix does not match "mapbufr".
	ErrBadMagic = errors.New("mapbuffer: bad magic")

	// ErrUnsupportedVersion is returned when the version byte is not 0 or 1.
	ErrUnsupportedVersion = errors.New("mapbuffer: unsupported format version")

	// ErrUnsupportedCodec is returned when the codec tag is not one of the
	// recognized tags. A recognized tag whose codec is not linked in (00br,
	// lzma) is accepted by Build, Open and Validate; encoding or decoding a
	// value under it fails with ErrCompressionFailure or
	// ErrDecompressionFailure instead.
	ErrUnsupportedCodec = errors.New("mapbuffer: unsupported compression codec")

	// ErrTruncatedBuffer is returned when declared sizes exceed the actual
	// buffer length, or a ranged read comes back short.
	ErrTruncatedBuffer = errors.New("mapbuffer: truncated buffer")

	// ErrCorruptIndex is returned when labels are not sorted after
	// un-permuting, offsets are not monotonic, or offsets fall out of range.
	ErrCorruptIndex = errors.New("mapbuffer: corrupt index")

	// ErrChecksumMismatch is returned when a version-1 trailer's CRC32C does
	// not verify.
	ErrChecksumMismatch = errors.New("mapbuffer: checksum mismatch")

	// ErrMissingKey is returned by a strict lookup for an absent key when no
	// default value was supplied.
	ErrMissingKey = errors.New("mapbuffer: key not found")

	// ErrEmptyBufferAccess is returned by a strict lookup against a buffer
	// with N=0, in place of ErrMissingKey.
	ErrEmptyBufferAccess = errors.New("mapbuffer: lookup against empty buffer")

	// ErrDuplicateKey is returned by Build when the input contains the same
	// key twice.
	ErrDuplicateKey = errors.New("mapbuffer: duplicate key")

	// ErrTooManyEntries is returned by Build when the input has 2^32 or more
	// entries.
	ErrTooManyEntries = errors.New("mapbuffer: too many entries")

	// ErrCompressionFailure is returned when a codec rejects a value during
	// encoding.
	ErrCompressionFailure = errors.New("mapbuffer: compression failure")

	// ErrDecompressionFailure is returned when a codec rejects a value
	// during decoding.
	ErrDecompressionFailure = errors.New("mapbuffer: decompression failure")
)
